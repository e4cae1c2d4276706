package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/desertthunder/tasting/internal/aggregate"
	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/playback"
	"github.com/desertthunder/tasting/internal/shared"
)

// PackageInfo is the package header returned with a slide list.
type PackageInfo struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SlidesPayload is the body of GET /packages/{code}/slides.
type SlidesPayload struct {
	Package    PackageInfo     `json:"package"`
	SessionID  string          `json:"sessionId,omitempty"`
	Wines      []*models.Wine  `json:"wines"`
	Slides     []*models.Slide `json:"slides"`
	TotalCount int             `json:"totalCount"`
}

// Sequence rebuilds the aggregated order from the payload. The server already applied session
// selections, so the wine order is carried over as selections. A payload whose totalCount does not
// match its slides is rejected rather than rendered.
func (p *SlidesPayload) Sequence() (*aggregate.Sequence, error) {
	if p.TotalCount != len(p.Slides) {
		return nil, shared.ErrContentUnavailable.WithMetadata(map[string]string{
			"totalCount": fmt.Sprint(p.TotalCount),
			"slides":     fmt.Sprint(len(p.Slides)),
		})
	}

	selections := make([]models.WineSelection, len(p.Wines))
	for i, w := range p.Wines {
		selections[i] = models.WineSelection{WineID: w.ID(), Position: i + 1, IsIncluded: true}
	}
	return aggregate.Build(aggregate.Input{
		PackageID:  p.Package.ID,
		Wines:      p.Wines,
		Slides:     p.Slides,
		Selections: selections,
	}), nil
}

// JoinResult is the body of POST /sessions/{shortCode}/join.
type JoinResult struct {
	Participant *models.Participant `json:"participant"`
	Session     *models.Session     `json:"session"`
}

// StatePayload is the body of GET /participants/{id}/state.
type StatePayload struct {
	Participant *models.Participant `json:"participant"`
	Session     *models.Session     `json:"session"`
	Step        playback.Step       `json:"step"`
	Steps       int                 `json:"steps"`
	TotalCount  int                 `json:"totalCount"`
}

// TastingClient is the typed participant-side client of the tasting API.
type TastingClient struct {
	api *APIService
}

// NewTastingClient creates a client for the API at baseURL.
func NewTastingClient(baseURL string, client *http.Client) *TastingClient {
	return &TastingClient{api: NewAPIService(baseURL, client)}
}

// Name returns the service name.
func (c *TastingClient) Name() string { return "Tasting API" }

// API exposes the underlying raw client.
func (c *TastingClient) API() *APIService { return c.api }

// Ping checks /health.
func (c *TastingClient) Ping(ctx context.Context) error {
	return c.api.doJSON(ctx, http.MethodGet, "/health", nil, nil)
}

// PackageSlides fetches a package's slides, with the participant's session selections applied when
// participantID is set.
func (c *TastingClient) PackageSlides(ctx context.Context, code, participantID string) (*SlidesPayload, error) {
	path := "/packages/" + url.PathEscape(code) + "/slides"
	if participantID != "" {
		path += "?" + url.Values{"participantId": {participantID}}.Encode()
	}

	var payload SlidesPayload
	if err := c.api.doJSON(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Source adapts [TastingClient.PackageSlides] to a [playback.Source].
func (c *TastingClient) Source(code, participantID string) playback.Source {
	return playback.SourceFunc(func(ctx context.Context) (*aggregate.Sequence, error) {
		payload, err := c.PackageSlides(ctx, code, participantID)
		if err != nil {
			return nil, err
		}
		return payload.Sequence()
	})
}

// JoinSession adds a participant to the session with the given short code.
func (c *TastingClient) JoinSession(ctx context.Context, shortCode, displayName string, isHost bool) (*JoinResult, error) {
	body := map[string]any{"displayName": displayName, "isHost": isHost}

	var result JoinResult
	path := "/sessions/" + url.PathEscape(shortCode) + "/join"
	if err := c.api.doJSON(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ParticipantState resolves a participant's stored pointer on the server.
func (c *TastingClient) ParticipantState(ctx context.Context, participantID string) (*StatePayload, error) {
	var state StatePayload
	path := "/participants/" + url.PathEscape(participantID) + "/state"
	if err := c.api.doJSON(ctx, http.MethodGet, path, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// UpdateProgress persists a participant's pointer on the server.
func (c *TastingClient) UpdateProgress(ctx context.Context, participantID string, ptr models.ProgressPointer) error {
	path := "/participants/" + url.PathEscape(participantID) + "/progress"
	return c.api.doJSON(ctx, http.MethodPut, path, ptr, nil)
}

// SubmitResponse upserts one answer.
func (c *TastingClient) SubmitResponse(ctx context.Context, resp *models.Response) (*models.Response, error) {
	body := struct {
		ParticipantID string          `json:"participantId"`
		SlideID       string          `json:"slideId"`
		Answer        json.RawMessage `json:"answerJson"`
		Synced        bool            `json:"synced"`
	}{resp.ParticipantID(), resp.SlideID(), resp.Answer(), true}

	var stored models.Response
	if err := c.api.doJSON(ctx, http.MethodPost, "/responses", body, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}
