package market

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"regexp"
	"slices"
	"time"

	cmerrs "github.com/jdholdren/campusmart/internal/errors"
	"github.com/jdholdren/campusmart/internal/sanitize"
)

// Listing categories the backend knows about.
const (
	CategoryBooksStationery        = "books-stationery"
	CategoryStudyToolsElectronics  = "study-tools-electronics"
	CategoryUniformsApparel        = "uniforms-apparel"
	CategoryEducationalAccessories = "educational-accessories"
	CategoryOther                  = "other"
)

var Categories = []string{
	CategoryBooksStationery,
	CategoryStudyToolsElectronics,
	CategoryUniformsApparel,
	CategoryEducationalAccessories,
	CategoryOther,
}

type (
	// Product is a listing as the backend projects it. IsLiked is never
	// authoritative: it's derived from the session's liked-set.
	Product struct {
		ID          string    `json:"_id"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Price       float64   `json:"price"`
		Category    string    `json:"category"`
		Images      []string  `json:"images"`
		CreatedAt   time.Time `json:"createdAt"`
		LikeCount   int       `json:"likeCount"`
		Owner       *Owner    `json:"userId,omitempty"`
		IsLiked     bool      `json:"isLiked"`
	}

	// Owner is the seller summary embedded in a product. Every field is optional.
	Owner struct {
		ID       string `json:"_id,omitempty"`
		Name     string `json:"name,omitempty"`
		Address  string `json:"address,omitempty"`
		MobileNo string `json:"mobileNo,omitempty"`
		Email    string `json:"email,omitempty"`
	}

	// Page is one page of the paginated feed. TotalPages is zero when the
	// backend didn't say.
	Page struct {
		Posts      []Product `json:"posts"`
		TotalPages int       `json:"totalPages"`
	}

	User struct {
		ID           string    `json:"_id"`
		Name         string    `json:"name"`
		Email        string    `json:"email"`
		College      string    `json:"college"`
		PRN          string    `json:"prn"`
		Address      string    `json:"address"`
		MobileNo     string    `json:"mobileNo"`
		ProfileImage string    `json:"profileImage"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	// Upload is a file headed for a multipart form.
	Upload struct {
		Filename string
		Content  io.Reader
	}

	// NewPost is the form for creating or editing a listing.
	NewPost struct {
		Title       string
		Price       float64
		Description string
		Category    string
		Tags        []string
		Images      []Upload
	}

	ProfileUpdate struct {
		College  string `json:"college"`
		PRN      string `json:"prn"`
		Address  string `json:"address"`
		MobileNo string `json:"mobileNo"`
	}

	Signup struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		MobileNo string `json:"mobileNo"`
		Address  string `json:"address"`
	}

	// GoogleIdentity is what the identity provider told the browser about the user.
	GoogleIdentity struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Photo string `json:"photo"`
	}
)

// UnmarshalJSON accepts the seller either populated or as a bare id, which is
// what the backend sends when it didn't join the user.
func (o *Owner) UnmarshalJSON(byts []byte) error {
	var id string
	if err := json.Unmarshal(byts, &id); err == nil {
		*o = Owner{ID: id}
		return nil
	}

	type owner Owner
	var full owner
	if err := json.Unmarshal(byts, &full); err != nil {
		return err
	}
	*o = Owner(full)

	return nil
}

const (
	maxTitleLen       = 120
	maxDescriptionLen = 4096
)

// Validate checks the form and cleans its text in place.
//
// Returns an *errors.Error with per-field details if the form is invalid.
func (p *NewPost) Validate() error {
	p.Title = sanitize.Strip(p.Title, maxTitleLen)
	p.Description = sanitize.Strip(p.Description, maxDescriptionLen)

	var details []cmerrs.Detail
	if p.Title == "" {
		details = append(details, cmerrs.Detail{Field: "title", Error: "title is required"})
	}
	switch {
	case math.IsNaN(p.Price), math.IsInf(p.Price, 0):
		details = append(details, cmerrs.Detail{Field: "price", Error: "price must be a number"})
	case p.Price < 0:
		details = append(details, cmerrs.Detail{Field: "price", Error: "price can't be negative"})
	}
	if !slices.Contains(Categories, p.Category) {
		details = append(details, cmerrs.Detail{Field: "category", Error: "unknown category"})
	}
	if sanitize.Profane(p.Title, p.Description) {
		details = append(details, cmerrs.Detail{Field: "title", Error: "profanity detected"})
	}
	if len(details) > 0 {
		return cmerrs.E("invalid listing", http.StatusUnprocessableEntity, details)
	}

	return nil
}

var mobileNoPattern = regexp.MustCompile(`^[0-9]{10}$`)

func (u ProfileUpdate) Validate() error {
	if u.MobileNo != "" && !mobileNoPattern.MatchString(u.MobileNo) {
		return cmerrs.E(
			"invalid profile",
			http.StatusUnprocessableEntity,
			cmerrs.Detail{Field: "mobileNo", Error: "Mobile number must be exactly 10 digits"},
		)
	}

	return nil
}

func (s Signup) Validate() error {
	var details []cmerrs.Detail
	if s.Email == "" {
		details = append(details, cmerrs.Detail{Field: "email", Error: "email is required"})
	}
	if s.Password == "" {
		details = append(details, cmerrs.Detail{Field: "password", Error: "password is required"})
	}
	if s.MobileNo != "" && !mobileNoPattern.MatchString(s.MobileNo) {
		details = append(details, cmerrs.Detail{Field: "mobileNo", Error: "Mobile number must be exactly 10 digits"})
	}
	if len(details) > 0 {
		return cmerrs.E("invalid signup", http.StatusUnprocessableEntity, details)
	}

	return nil
}
