// Package serverutil has the http plumbing shared by citadel's handlers.
package serverutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	cmerrs "github.com/jdholdren/campusmart/internal/errors"
	"github.com/jdholdren/campusmart/internal/logger"
)

func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("error encoding json response: %s", err)
	}

	return nil
}

// Validator is a surface that can validate itself and return an error
// if something is wrong.
type Validator interface {
	Validate() error
}

// DecodeValid decodes a request and then validates it. V is usually a pointer
// so Validate can clean the value in place.
func DecodeValid[V Validator](r io.Reader, v V) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return cmerrs.E(http.StatusBadRequest, "invalid request body")
	}
	if err := v.Validate(); err != nil {
		return err
	}

	return nil
}

// Decode is DecodeValid for bodies with nothing to validate.
func Decode(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return cmerrs.E(http.StatusBadRequest, "invalid request body")
	}

	return nil
}

// AccessLogMiddleware tags the request's context with an id and logs the
// request's outcome.
func AccessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.Ctx(r.Context(), slog.String("request_id", uuid.NewString()))
		r = r.WithContext(ctx)
		start := time.Now()

		writer := &respCodeWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(writer, r)

		slog.InfoContext(ctx, "request completed",
			"method", r.Method,
			"url", r.URL.String(),
			"duration", time.Since(start),
			"status_code", writer.code,
		)
	})
}

// To trap the response status code for logging later.
type respCodeWriter struct {
	http.ResponseWriter
	code int
}

func (w *respCodeWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers see through the wrapper.
func (w *respCodeWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *respCodeWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// HandlerFuncE is a modified type of [http.HandlerFunc] that returns an error.
type HandlerFuncE func(w http.ResponseWriter, r *http.Request) error

func (f HandlerFuncE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := f(w, r)
	if err == nil {
		return
	}

	// Either it's already a structured error, or coerce it to one
	cmErr := &cmerrs.Error{}
	if !errors.As(err, &cmErr) {
		slog.ErrorContext(r.Context(), "unstructured error", "err", err)
		cmErr = cmerrs.E(http.StatusInternalServerError, "internal server error")
	} else if cmErr.Status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "server error", "err", err)
	}

	if err := WriteJSON(w, cmErr.Status, cmErr); err != nil {
		slog.ErrorContext(r.Context(), "error writing response", "error", err)
	}
}

// ErrRouter is a newtype around a mux router that allows attaching handlers that return errors.
type ErrRouter struct {
	*mux.Router
}

func (r ErrRouter) HandleFuncE(path string, f HandlerFuncE) *mux.Route {
	return r.Handle(path, f)
}
