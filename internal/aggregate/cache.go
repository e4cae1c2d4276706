package aggregate

import (
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// Loader reads the stored state a sequence is built from.
type Loader interface {
	LoadInput(packageID, sessionID string) (Input, error)
}

// LoaderFunc adapts a function to [Loader].
type LoaderFunc func(packageID, sessionID string) (Input, error)

func (f LoaderFunc) LoadInput(packageID, sessionID string) (Input, error) {
	return f(packageID, sessionID)
}

type cacheKey struct {
	packageID string
	sessionID string
}

// Cache memoizes sequences per (package, session) until [Cache.Invalidate] is called for the package.
//
// Concurrent misses for one key and generation share a single load. A Get that starts after
// Invalidate never joins a load started before it. A load that overlaps an invalidation is returned
// to its callers but not stored.
type Cache struct {
	loader  Loader
	logger  *log.Logger
	group   singleflight.Group
	mu      sync.RWMutex
	entries map[cacheKey]*Sequence
	gens    map[string]uint64
	enabled bool
}

// NewCache creates a cache over loader. When enabled is false every Get rebuilds from storage.
func NewCache(loader Loader, logger *log.Logger, enabled bool) *Cache {
	return &Cache{
		loader:  loader,
		logger:  logger,
		entries: make(map[cacheKey]*Sequence),
		gens:    make(map[string]uint64),
		enabled: enabled,
	}
}

// Get returns the sequence for a package, optionally scoped to a session's selections.
func (c *Cache) Get(packageID, sessionID string) (*Sequence, error) {
	key := cacheKey{packageID, sessionID}

	c.mu.RLock()
	seq, ok := c.entries[key]
	gen := c.gens[packageID]
	c.mu.RUnlock()
	if c.enabled && ok {
		return seq, nil
	}

	flight := packageID + "\x00" + sessionID + "\x00" + strconv.FormatUint(gen, 10)
	v, err, _ := c.group.Do(flight, func() (any, error) {
		in, err := c.loader.LoadInput(packageID, sessionID)
		if err != nil {
			return nil, err
		}
		seq := Build(in)

		if c.enabled {
			c.mu.Lock()
			if c.gens[packageID] == gen {
				c.entries[key] = seq
			}
			c.mu.Unlock()
		}
		return seq, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Sequence), nil
}

// Invalidate drops every cached sequence of a package.
func (c *Cache) Invalidate(packageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[packageID]++
	dropped := 0
	for key := range c.entries {
		if key.packageID == packageID {
			delete(c.entries, key)
			dropped++
		}
	}

	if c.logger != nil && dropped > 0 {
		c.logger.Debug("invalidated sequences", "package_id", packageID, "dropped", dropped)
	}
}
