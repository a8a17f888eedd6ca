package serverutil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cmerrs "github.com/jdholdren/campusmart/internal/errors"
)

type nameReq struct {
	Name string `json:"name"`
}

func (r *nameReq) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return cmerrs.E("name is required", http.StatusBadRequest, cmerrs.Detail{Field: "name", Error: "required"})
	}

	return nil
}

func TestDecodeValid(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantName   string
	}{
		{name: "valid", body: `{"name": "  asha "}`, wantName: "asha"},
		{name: "not json", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "fails validation", body: `{"name": " "}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req nameReq
			err := DecodeValid(strings.NewReader(tt.body), &req)
			if tt.wantStatus == 0 {
				require.NoError(t, err)
				assert.Equal(t, tt.wantName, req.Name)
				return
			}

			assert.Equal(t, tt.wantStatus, cmerrs.StatusOf(err))
		})
	}
}

func TestHandlerFuncE(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "structured",
			err:        cmerrs.E(http.StatusNotFound, "chat not found"),
			wantStatus: http.StatusNotFound,
			wantMsg:    "chat not found",
		},
		{
			name:       "unstructured is hidden",
			err:        errors.New("database is on fire"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := HandlerFuncE(func(w http.ResponseWriter, r *http.Request) error {
				return tt.err
			})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
		})
	}
}

func TestAccessLogMiddleware_KeepsStatusAndFlusher(t *testing.T) {
	r := ErrRouter{Router: mux.NewRouter()}
	r.Use(AccessLogMiddleware)
	r.HandleFuncE("/stream", func(w http.ResponseWriter, r *http.Request) error {
		rc := http.NewResponseController(w)
		w.WriteHeader(http.StatusAccepted)
		return rc.Flush()
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, rec.Flushed)
}
