package v1

import (
	"net/http"
	"strings"

	cmerrs "github.com/jdholdren/campusmart/internal/errors"
)

type RouteRequest struct {
	SellerAddress string `json:"sellerAddress"`
}

func (r *RouteRequest) Validate() error {
	if strings.TrimSpace(r.SellerAddress) == "" {
		return cmerrs.E("sellerAddress is required", http.StatusBadRequest)
	}

	return nil
}

type ProfileImageResponse struct {
	ImageURL string `json:"imageUrl"`
}
