package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/tasting/internal/shared"
	tu "github.com/desertthunder/tasting/internal/testing"
)

func TestAPIService(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("With Custom BaseURL and Client", func(t *testing.T) {
			customClient := &http.Client{}
			srv := NewAPIService("http://example.com", customClient)

			if srv.baseURL != "http://example.com" {
				t.Errorf("expected baseURL 'http://example.com', got %s", srv.baseURL)
			}
			if srv.httpClient != customClient {
				t.Error("expected custom client to be used")
			}
		})

		t.Run("With Defaults", func(t *testing.T) {
			srv := NewAPIService("", nil)

			if srv.baseURL != defaultBaseURL {
				t.Errorf("expected default baseURL %s, got %s", defaultBaseURL, srv.baseURL)
			}
			if srv.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
		})
	})

	t.Run("Methods", func(t *testing.T) {
		tests := []struct {
			name   string
			method string
			call   func(*APIService) (*APIResponse, error)
		}{
			{"Get", http.MethodGet, func(a *APIService) (*APIResponse, error) { return a.Get(context.Background(), "/test") }},
			{"Post", http.MethodPost, func(a *APIService) (*APIResponse, error) {
				return a.Post(context.Background(), "/test", []byte(`{"test":"data"}`))
			}},
			{"Put", http.MethodPut, func(a *APIService) (*APIResponse, error) {
				return a.Put(context.Background(), "/test", []byte(`{"test":"data"}`))
			}},
			{"UploadJSON", http.MethodPost, func(a *APIService) (*APIResponse, error) {
				return a.UploadJSON(context.Background(), "/test", []byte(`{"test":"data"}`))
			}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					if r.Method != tt.method {
						t.Errorf("expected %s method, got %s", tt.method, r.Method)
					}
					if r.URL.Path != "/test" {
						t.Errorf("expected path '/test', got %s", r.URL.Path)
					}
					if tt.method != http.MethodGet {
						if r.Header.Get("Content-Type") != "application/json" {
							t.Errorf("expected Content-Type 'application/json', got %s", r.Header.Get("Content-Type"))
						}
						body, _ := io.ReadAll(r.Body)
						if string(body) != `{"test":"data"}` {
							t.Errorf("unexpected body %s", body)
						}
					}

					w.Header().Set("X-Request-Id", "abc")
					w.WriteHeader(http.StatusOK)
					json.NewEncoder(w).Encode(map[string]string{"status": "success"})
				}))
				defer server.Close()

				resp, err := tt.call(NewAPIService(server.URL, nil))
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if !resp.OK() || !resp.IsJSON {
					t.Errorf("expected 200 JSON response, got %d (json=%v)", resp.StatusCode, resp.IsJSON)
				}
				if resp.Headers.Get("X-Request-Id") != "abc" {
					t.Error("expected response headers to be preserved")
				}
			})
		}
	})

	t.Run("Non-JSON Response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("plain text response"))
		}))
		defer server.Close()

		resp, err := NewAPIService(server.URL, nil).Get(context.Background(), "/test")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if resp.IsJSON || resp.JSONData != nil {
			t.Error("expected response to not be JSON")
		}
		if string(resp.Body) != "plain text response" {
			t.Errorf("expected body 'plain text response', got %s", resp.Body)
		}
	})

	t.Run("Failed Request Creation", func(t *testing.T) {
		_, err := NewAPIService("http://example.com", nil).Get(context.Background(), "/test\x00invalid")
		if err == nil || !strings.Contains(err.Error(), "failed to create request") {
			t.Errorf("expected 'failed to create request' error, got %v", err)
		}
	})

	t.Run("Transport Failures Are Unavailable", func(t *testing.T) {
		tests := []struct {
			name      string
			transport http.RoundTripper
			contains  string
		}{
			{"connection", tu.NewMockRoundTripper(nil, errors.New("connection failed")), "request failed"},
			{"body read", tu.NewMockRoundTripper(&http.Response{
				StatusCode: http.StatusOK,
				Body:       &tu.FCloser{},
				Header:     http.Header{},
			}, nil), "failed to read response"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				srv := NewAPIService("http://example.com", &http.Client{Transport: tt.transport})
				_, err := srv.Post(context.Background(), "/test", []byte("data"))

				if !errors.Is(err, shared.ErrServiceUnavailable) {
					t.Errorf("expected ErrServiceUnavailable, got %v", err)
				}
				if err != nil && !strings.Contains(err.Error(), tt.contains) {
					t.Errorf("expected %q in error, got %v", tt.contains, err)
				}
			})
		}
	})

	t.Run("With Canceled Context", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := NewAPIService(server.URL, nil).Get(ctx, "/test"); err == nil {
			t.Error("expected error for canceled context")
		}
	})
}

func TestAPIResponseErr(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   shared.Code
	}{
		{"success", http.StatusOK, `{}`, ""},
		{"error envelope", http.StatusConflict, `{"error":{"code":"DUPLICATE_POSITION","message":"taken"}}`, shared.CodeDuplicatePosition},
		{"closed session", http.StatusUnprocessableEntity, `{"error":{"code":"SESSION_CLOSED","message":"done"}}`, shared.CodeSessionClosed},
		{"bare 404", http.StatusNotFound, `not found`, shared.CodeNotFound},
		{"bare 502", http.StatusBadGateway, ``, shared.CodeUnavailable},
		{"bare 418", http.StatusTeapot, ``, shared.CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &APIResponse{StatusCode: tt.status, Body: []byte(tt.body)}
			err := resp.Err()
			if got := shared.CodeOf(err); got != tt.want {
				t.Errorf("CodeOf(Err()) = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("matches sentinel by code", func(t *testing.T) {
		resp := &APIResponse{StatusCode: http.StatusConflict, Body: []byte(`{"error":{"code":"DUPLICATE_POSITION","message":"x"}}`)}
		if !errors.Is(resp.Err(), shared.ErrDuplicatePosition) {
			t.Error("expected errors.Is to match ErrDuplicatePosition")
		}
	})
}
