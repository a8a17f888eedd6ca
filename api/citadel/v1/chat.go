package v1

import (
	"net/http"

	cmerrs "github.com/jdholdren/campusmart/internal/errors"
)

type OpenChatRequest struct {
	PostID   string `json:"postId"`
	SellerID string `json:"sellerId"`
}

func (r *OpenChatRequest) Validate() error {
	var details []cmerrs.Detail
	if r.PostID == "" {
		details = append(details, cmerrs.Detail{Field: "postId", Error: "postId is required"})
	}
	if r.SellerID == "" {
		details = append(details, cmerrs.Detail{Field: "sellerId", Error: "sellerId is required"})
	}
	if len(details) > 0 {
		return cmerrs.E("invalid chat", http.StatusBadRequest, details)
	}

	return nil
}

// SendMessageRequest is checked by the chat service, which also sanitizes the
// text.
type SendMessageRequest struct {
	Text string `json:"text"`
}

type SendMessageResponse struct {
	ID string `json:"id"`
}
