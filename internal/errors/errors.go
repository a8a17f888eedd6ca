package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// GenericMessage is used when a failure carries no message of its own, like a
// dropped connection or a backend that answered with an empty body.
const GenericMessage = "server error"

// Error represents a universal error type between the browser, citadel, and the
// marketplace backend.
type Error struct {
	Status  int
	Err     error // The error this wraps
	Details []Detail
}

type Detail struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s, details: %v", e.Status, e.Err, e.Details)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the human readable part of the error, safe to hand to the browser.
func (e *Error) Message() string {
	if e.Err == nil {
		return GenericMessage
	}

	return e.Err.Error()
}

type transport struct {
	Message string   `json:"message"`
	Details []Detail `json:"details,omitempty"`
	Status  int      `json:"status,omitempty"`
}

func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(transport{
		Message: e.Message(),
		Details: e.Details,
		Status:  e.Status,
	})
}

// UnmarshalJSON reads both citadel's own error bodies and the backend's
// `{"status": false, "message": "..."}` bodies. The backend uses a boolean for
// status, so a status that isn't a number is left alone.
func (e *Error) UnmarshalJSON(byts []byte) error {
	var raw struct {
		Message string          `json:"message"`
		Details []Detail        `json:"details"`
		Status  json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(byts, &raw); err != nil {
		return err
	}

	msg := raw.Message
	if msg == "" {
		msg = GenericMessage
	}
	e.Err = errors.New(msg)
	e.Details = raw.Details

	var status int
	if err := json.Unmarshal(raw.Status, &status); err == nil && status != 0 {
		e.Status = status
	}
	return nil
}

func E(args ...any) *Error {
	ret := &Error{
		Status:  http.StatusInternalServerError,
		Err:     nil,
		Details: nil,
	}

	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			ret.Err = errors.New(arg)
		case error:
			ret.Err = arg
		case int:
			ret.Status = arg
		case Detail:
			ret.Details = append(ret.Details, arg)
		case []Detail:
			ret.Details = append(ret.Details, arg...)
		}
	}

	return ret
}

// StatusOf reports the status carried by err, or 0 if err isn't structured.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}

	return 0
}
