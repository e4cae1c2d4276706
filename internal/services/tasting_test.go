package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
	tu "github.com/desertthunder/tasting/internal/testing"
)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

// fakeAPI serves a three wine fixture with the second wine played first.
func fakeAPI(t *testing.T, totalCount int) *httptest.Server {
	t.Helper()
	pkg, wines, slides := tu.TastingFixture(true, 2, 1, 1)
	wines = []*models.Wine{wines[1], wines[0]}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /packages/{code}/slides", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("code") != "FIXTURE" {
			writeJSON(t, w, http.StatusNotFound, ErrorBody{Error: ErrorDetail{Code: "NOT_FOUND", Message: "no package"}})
			return
		}
		if r.URL.Query().Get("participantId") != "p1" {
			t.Errorf("expected participantId query, got %q", r.URL.RawQuery)
		}

		var played []*models.Slide
		for _, s := range slides {
			if s.WineID() != "w3" {
				played = append(played, s)
			}
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"package":    pkg,
			"wines":      wines,
			"slides":     played,
			"totalCount": totalCount,
		})
	})
	mux.HandleFunc("POST /sessions/{code}/join", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("code") == "DONE01" {
			writeJSON(t, w, http.StatusUnprocessableEntity, ErrorBody{Error: ErrorDetail{Code: "SESSION_CLOSED", Message: "session is completed"}})
			return
		}
		var body struct {
			DisplayName string `json:"displayName"`
			IsHost      bool   `json:"isHost"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		session := models.NewSession(1, pkg.ID(), r.PathValue("code"))
		session.SetID("s1")
		p := models.NewParticipant(session.ID(), body.DisplayName, body.IsHost)
		p.SetID("p1")
		writeJSON(t, w, http.StatusCreated, map[string]any{"participant": p, "session": session})
	})
	mux.HandleFunc("PUT /participants/{id}/progress", func(w http.ResponseWriter, r *http.Request) {
		var ptr models.ProgressPointer
		json.NewDecoder(r.Body).Decode(&ptr)
		if ptr.StepIndex != 4 || ptr.SlideID != "w1-s0" {
			t.Errorf("unexpected pointer %+v", ptr)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /responses", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ParticipantID string          `json:"participantId"`
			SlideID       string          `json:"slideId"`
			Answer        json.RawMessage `json:"answerJson"`
			Synced        bool            `json:"synced"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.SlideID == "welcome" {
			writeJSON(t, w, http.StatusBadRequest, ErrorBody{Error: ErrorDetail{Code: "INVALID_INPUT", Message: "no answers"}})
			return
		}
		stored := models.NewResponse(body.ParticipantID, body.SlideID, body.Answer, body.Synced)
		stored.SetID("r1")
		writeJSON(t, w, http.StatusOK, stored)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestTastingClient(t *testing.T) {
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		client := NewTastingClient(fakeAPI(t, 4).URL, nil)
		if err := client.Ping(ctx); err != nil {
			t.Errorf("Ping() failed: %v", err)
		}

		down := NewTastingClient("http://127.0.0.1:1", nil)
		if err := down.Ping(ctx); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("PackageSlides keeps the served wine order", func(t *testing.T) {
		client := NewTastingClient(fakeAPI(t, 4).URL, nil)

		payload, err := client.PackageSlides(ctx, "FIXTURE", "p1")
		if err != nil {
			t.Fatalf("PackageSlides() failed: %v", err)
		}
		if payload.Package.Code != "FIXTURE" || len(payload.Wines) != 2 || payload.TotalCount != len(payload.Slides) {
			t.Fatalf("unexpected payload %+v", payload)
		}

		seq, err := payload.Sequence()
		if err != nil {
			t.Fatalf("Sequence() failed: %v", err)
		}
		want := []string{"welcome", "w2-s0", "w1-s0", "w1-s1"}
		got := seq.IDs()
		if len(got) != len(want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("slide %d: expected %s, got %s", i, want[i], got[i])
			}
		}
	})

	t.Run("count mismatch is content unavailable", func(t *testing.T) {
		client := NewTastingClient(fakeAPI(t, 7).URL, nil)

		_, err := client.Source("FIXTURE", "p1").Sequence(ctx)
		if !errors.Is(err, shared.ErrContentUnavailable) {
			t.Errorf("expected ErrContentUnavailable, got %v", err)
		}
	})

	t.Run("unknown package", func(t *testing.T) {
		client := NewTastingClient(fakeAPI(t, 4).URL, nil)
		_, err := client.PackageSlides(ctx, "NOPE", "p1")
		if shared.CodeOf(err) != shared.CodeNotFound {
			t.Errorf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("JoinSession", func(t *testing.T) {
		client := NewTastingClient(fakeAPI(t, 4).URL, nil)

		result, err := client.JoinSession(ctx, "ABC123", "Ana", true)
		if err != nil {
			t.Fatalf("JoinSession() failed: %v", err)
		}
		if result.Participant.ID() != "p1" || !result.Participant.IsHost() || result.Session.ShortCode() != "ABC123" {
			t.Errorf("unexpected join result %+v", result)
		}

		if _, err := client.JoinSession(ctx, "DONE01", "Ana", false); !errors.Is(err, shared.ErrSessionClosed) {
			t.Errorf("expected ErrSessionClosed, got %v", err)
		}
	})

	t.Run("UpdateProgress", func(t *testing.T) {
		client := NewTastingClient(fakeAPI(t, 4).URL, nil)
		ptr := models.ProgressPointer{StepIndex: 4, Kind: "slide", SlideID: "w1-s0", WineID: "w1"}
		if err := client.UpdateProgress(ctx, "p1", ptr); err != nil {
			t.Errorf("UpdateProgress() failed: %v", err)
		}
	})

	t.Run("SubmitResponse", func(t *testing.T) {
		client := NewTastingClient(fakeAPI(t, 4).URL, nil)

		stored, err := client.SubmitResponse(ctx, models.NewResponse("p1", "w1-s0", json.RawMessage(`{"value":4}`), false))
		if err != nil {
			t.Fatalf("SubmitResponse() failed: %v", err)
		}
		if stored.ID() != "r1" || !stored.Synced() || string(stored.Answer()) != `{"value":4}` {
			t.Errorf("unexpected stored response id=%s synced=%v answer=%s", stored.ID(), stored.Synced(), stored.Answer())
		}

		_, err = client.SubmitResponse(ctx, models.NewResponse("p1", "welcome", json.RawMessage(`{}`), false))
		if !errors.Is(err, shared.ErrInvalidInput) && shared.CodeOf(err) != shared.CodeInvalidInput {
			t.Errorf("expected INVALID_INPUT, got %v", err)
		}
	})
}
