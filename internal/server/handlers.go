package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/ordering"
	"github.com/desertthunder/tasting/internal/shared"
	"github.com/desertthunder/tasting/internal/tasks"
)

// Engine is the part of [tasks.TastingEngine] the API serves.
type Engine interface {
	PackageSlides(ctx context.Context, code, participantID string) (*tasks.SlidesView, error)
	MoveSlide(ctx context.Context, slideID string, position float64) (*models.Slide, error)
	ReorderSlides(ctx context.Context, updates []ordering.Update) error
	ReconcileOrder(ctx context.Context, req tasks.ReconcileRequest) (ordering.Result, error)
	ReplaceSelections(ctx context.Context, sessionID string, selections []models.WineSelection) ([]models.WineSelection, error)
	Selections(sessionID string) ([]models.WineSelection, error)
	RecordResponse(ctx context.Context, participantID, slideID string, answer json.RawMessage, synced bool) (*models.Response, error)
	SessionResponses(ctx context.Context, sessionID string) ([]*models.Response, error)
	CreateSession(ctx context.Context, code, shortCode string) (*models.Session, error)
	SessionByRef(ref string) (*models.Session, error)
	JoinSession(ctx context.Context, shortCode, displayName string, isHost bool) (*models.Participant, *models.Session, error)
	CompleteSession(ctx context.Context, sessionID string) (*models.Session, error)
	ParticipantState(ctx context.Context, participantID string) (*tasks.ParticipantState, error)
	UpdateProgress(ctx context.Context, participantID string, ptr models.ProgressPointer) error
}

// TastingHandler serves the JSON API and the session websocket.
type TastingHandler struct {
	engine Engine
	hub    *Hub
	logger *log.Logger
	mux    *http.ServeMux
}

// NewTastingHandler creates the API handler.
func NewTastingHandler(engine Engine, hub *Hub, logger *log.Logger) *TastingHandler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	h := &TastingHandler{engine: engine, hub: hub, logger: logger, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /health", h.health)
	h.mux.HandleFunc("GET /packages/{code}/slides", h.packageSlides)
	h.mux.HandleFunc("POST /packages/{code}/sessions", h.createSession)
	h.mux.HandleFunc("PUT /slides/{id}/position", h.moveSlide)
	h.mux.HandleFunc("POST /slides/reorder", h.reorderSlides)
	h.mux.HandleFunc("POST /slides/reconcile", h.reconcile)
	h.mux.HandleFunc("GET /sessions/{sessionId}/wine-selections", h.selections)
	h.mux.HandleFunc("POST /sessions/{sessionId}/wine-selections", h.replaceSelections)
	h.mux.HandleFunc("GET /sessions/{sessionId}/responses", h.sessionResponses)
	h.mux.HandleFunc("POST /sessions/{shortCode}/join", h.join)
	h.mux.HandleFunc("POST /sessions/{sessionId}/complete", h.complete)
	h.mux.HandleFunc("GET /sessions/{sessionId}/ws", h.websocket)
	h.mux.HandleFunc("POST /responses", h.recordResponse)
	h.mux.HandleFunc("GET /participants/{id}/state", h.participantState)
	h.mux.HandleFunc("PUT /participants/{id}/progress", h.updateProgress)
	return h
}

// Routes returns the method patterns served by the handler.
func (h *TastingHandler) Routes() []string {
	return []string{
		"GET /health",
		"GET /packages/{code}/slides",
		"POST /packages/{code}/sessions",
		"PUT /slides/{id}/position",
		"POST /slides/reorder",
		"POST /slides/reconcile",
		"GET /sessions/{sessionId}/wine-selections",
		"POST /sessions/{sessionId}/wine-selections",
		"GET /sessions/{sessionId}/responses",
		"POST /sessions/{shortCode}/join",
		"POST /sessions/{sessionId}/complete",
		"GET /sessions/{sessionId}/ws",
		"POST /responses",
		"GET /participants/{id}/state",
		"PUT /participants/{id}/progress",
	}
}

func (h *TastingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *TastingHandler) fail(w http.ResponseWriter, err error) {
	writeError(w, h.logger, err)
}

func (h *TastingHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
}

func (h *TastingHandler) packageSlides(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.PackageSlides(r.Context(), r.PathValue("code"), r.URL.Query().Get("participantId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if view.TotalCount != len(view.Slides) {
		h.fail(w, shared.ErrContentUnavailable.WithMetadata(map[string]string{
			"totalCount": fmt.Sprint(view.TotalCount),
			"slides":     fmt.Sprint(len(view.Slides)),
		}))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *TastingHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ShortCode string `json:"shortCode"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			h.fail(w, err)
			return
		}
	}

	session, err := h.engine.CreateSession(r.Context(), r.PathValue("code"), body.ShortCode)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *TastingHandler) moveSlide(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NewPosition *float64 `json:"newPosition"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, err)
		return
	}
	if body.NewPosition == nil {
		h.fail(w, fmt.Errorf("%w: newPosition is required", shared.ErrInvalidInput))
		return
	}

	slide, err := h.engine.MoveSlide(r.Context(), r.PathValue("id"), *body.NewPosition)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slide)
}

func (h *TastingHandler) reorderSlides(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Updates []ordering.Update `json:"updates"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, err)
		return
	}

	if err := h.engine.ReorderSlides(r.Context(), body.Updates); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": len(body.Updates)})
}

func (h *TastingHandler) reconcile(w http.ResponseWriter, r *http.Request) {
	var req tasks.ReconcileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}

	result, err := h.engine.ReconcileOrder(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *TastingHandler) selections(w http.ResponseWriter, r *http.Request) {
	selections, err := h.engine.Selections(r.PathValue("sessionId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selections": selections})
}

func (h *TastingHandler) replaceSelections(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Selections []models.WineSelection `json:"selections"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, err)
		return
	}

	stored, err := h.engine.ReplaceSelections(r.Context(), r.PathValue("sessionId"), body.Selections)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selections": stored})
}

func (h *TastingHandler) sessionResponses(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.SessionResponses(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if list == nil {
		list = []*models.Response{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"responses": list})
}

func (h *TastingHandler) join(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DisplayName string `json:"displayName"`
		IsHost      bool   `json:"isHost"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, err)
		return
	}

	p, session, err := h.engine.JoinSession(r.Context(), r.PathValue("shortCode"), body.DisplayName, body.IsHost)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"participant": p, "session": session})
}

func (h *TastingHandler) complete(w http.ResponseWriter, r *http.Request) {
	session, err := h.engine.CompleteSession(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *TastingHandler) websocket(w http.ResponseWriter, r *http.Request) {
	session, err := h.engine.SessionByRef(r.PathValue("sessionId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.hub.Serve(w, r, session.ID())
}

func (h *TastingHandler) recordResponse(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ParticipantID string          `json:"participantId"`
		SlideID       string          `json:"slideId"`
		Answer        json.RawMessage `json:"answerJson"`
		Synced        *bool           `json:"synced"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, err)
		return
	}
	if body.ParticipantID == "" || body.SlideID == "" || len(body.Answer) == 0 {
		h.fail(w, fmt.Errorf("%w: participantId, slideId and answerJson are required", shared.ErrInvalidInput))
		return
	}

	synced := true
	if body.Synced != nil {
		synced = *body.Synced
	}
	resp, err := h.engine.RecordResponse(r.Context(), body.ParticipantID, body.SlideID, body.Answer, synced)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *TastingHandler) participantState(w http.ResponseWriter, r *http.Request) {
	state, err := h.engine.ParticipantState(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *TastingHandler) updateProgress(w http.ResponseWriter, r *http.Request) {
	var ptr models.ProgressPointer
	if err := decodeJSON(w, r, &ptr); err != nil {
		h.fail(w, err)
		return
	}

	if err := h.engine.UpdateProgress(r.Context(), r.PathValue("id"), ptr); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
