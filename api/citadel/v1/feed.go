package v1

import (
	"net/http"

	cmerrs "github.com/jdholdren/campusmart/internal/errors"
)

// VisibilityRequest is the browser reporting whether the card it was told to
// watch is near the bottom of the viewport.
type VisibilityRequest struct {
	Target string `json:"target"`
	Near   bool   `json:"near"`
}

func (r *VisibilityRequest) Validate() error {
	if r.Target == "" {
		return cmerrs.E("target is required", http.StatusBadRequest)
	}

	return nil
}
