package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tasting/internal/repositories"
	"github.com/desertthunder/tasting/internal/responses"
	"github.com/desertthunder/tasting/internal/services"
	"github.com/desertthunder/tasting/internal/shared"
	"github.com/desertthunder/tasting/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	client     *services.TastingClient
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Client     *services.TastingClient
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Client == nil {
		opts.Client = services.NewTastingClient(opts.Config.Sync.APIURL, opts.HTTPClient)
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		client:     opts.Client,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(l *log.Logger) { r.logger = l }

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, packageCommand, sessionCommand, playCommand, syncCommand, apiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// openDatabase opens and migrates the sqlite database at path.
func (r *Runner) openDatabase(path string) (*sql.DB, error) {
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path != ":memory:" {
		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	}

	if err := shared.RunMigrations(db, shared.MigrateWithLogger(r.logger)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// openEngine opens the content database and builds a [tasks.TastingEngine] over it. The returned
// func closes the database.
func (r *Runner) openEngine() (*tasks.TastingEngine, func(), error) {
	db, err := r.openDatabase(r.config.Database.Path)
	if err != nil {
		return nil, nil, err
	}

	engine := tasks.NewTastingEngine(db, tasks.EngineOpts{
		Ordering:       r.config.Ordering,
		CacheSequences: r.config.Server.CacheSequences,
		Logger:         r.logger,
	})
	return engine, func() { db.Close() }, nil
}

// openRecorder opens the local queue database and builds a [responses.Recorder] that submits to the API.
func (r *Runner) openRecorder() (*responses.Recorder, *sql.DB, error) {
	db, err := r.openDatabase(r.config.Sync.QueuePath)
	if err != nil {
		return nil, nil, err
	}

	queue := repositories.NewQueueRepository(db)
	opts := responses.OptionsFromConfig(r.config.Sync)
	rec := responses.NewRecorder(r.client, queue, opts, shared.WithLogger(r.logger, "component", "recorder"))
	return rec, db, nil
}

// printProgress writes updates until ch is closed. done is closed afterwards.
func (r *Runner) printProgress(ch <-chan tasks.ProgressUpdate, done chan<- struct{}) {
	defer close(done)
	for update := range ch {
		if update.Total > 0 {
			r.writePlain("[%d/%d] %s\n", update.Step, update.Total, update.Message)
		} else {
			r.writePlain("%s\n", update.Message)
		}
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
