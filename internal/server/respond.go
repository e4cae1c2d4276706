package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tasting/internal/shared"
)

const maxBodyBytes = 1 << 20

type errorDetail struct {
	Code     shared.Code       `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to its code's status. Unknown errors are logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, logger *log.Logger, err error) {
	code := shared.CodeOf(err)
	detail := errorDetail{Code: code, Message: err.Error()}

	var domainErr *shared.Error
	if errors.As(err, &domainErr) {
		detail.Metadata = domainErr.Metadata
	}

	status := code.HTTPStatus()
	if status >= 500 && code != shared.CodeUnavailable && code != shared.CodeContentUnavailable {
		logger.Error("request failed", "error", err)
		detail.Message = "internal error"
	}
	writeJSON(w, status, errorBody{Error: detail})
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", shared.ErrInvalidInput)
		}
		return fmt.Errorf("%w: malformed request body: %v", shared.ErrInvalidInput, err)
	}
	return nil
}
