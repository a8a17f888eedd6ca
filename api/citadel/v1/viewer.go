// Package v1 holds the request and response bodies of citadel's browser API.
package v1

import (
	"net/http"

	cmerrs "github.com/jdholdren/campusmart/internal/errors"
)

// Viewer is the structured data about the current user in the frontend.
type Viewer struct {
	UserID       string `json:"userId"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	College      string `json:"college"`
	Address      string `json:"address"`
	ProfileImage string `json:"profileImage"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks that the body (minus logic checks) is valid.
func (r *LoginRequest) Validate() error {
	var details []cmerrs.Detail
	if r.Email == "" {
		details = append(details, cmerrs.Detail{Field: "email", Error: "email is required"})
	}
	if r.Password == "" {
		details = append(details, cmerrs.Detail{Field: "password", Error: "password is required"})
	}
	if len(details) > 0 {
		return cmerrs.E("invalid login", http.StatusBadRequest, details)
	}

	return nil
}
