package citadel

import (
	"io"
	"mime/multipart"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	v1 "github.com/jdholdren/campusmart/api/citadel/v1"
	cmerrs "github.com/jdholdren/campusmart/internal/errors"
	"github.com/jdholdren/campusmart/internal/market"
	"github.com/jdholdren/campusmart/internal/serverutil"
)

const (
	maxFormMemory = 32 << 20
	maxImages     = 6
)

type productsResp struct {
	Posts []market.Product `json:"posts"`
}

func writeProducts(w http.ResponseWriter, ps []market.Product) error {
	return serverutil.WriteJSON(w, http.StatusOK, productsResp{Posts: presentable(ps)})
}

// Toggles the like, then tells every feed to reconcile.
func (s *Server) postLike(w http.ResponseWriter, r *http.Request) error {
	postID := mux.Vars(r)["postID"]
	if err := s.market.ToggleLike(r.Context(), s.cookies.Read(r), postID); err != nil {
		return backendErr(err)
	}
	s.bus.Publish()

	return serverutil.WriteJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) getLikedPosts(w http.ResponseWriter, r *http.Request) error {
	ps, err := s.market.LikedPosts(r.Context(), s.cookies.Read(r))
	if err != nil {
		return backendErr(err)
	}

	return writeProducts(w, ps)
}

// Similar listings don't change often and are the same for everyone, so
// they're cached.
func (s *Server) getSimilarPosts(w http.ResponseWriter, r *http.Request) error {
	postID := mux.Vars(r)["postID"]
	if ps, ok := s.similar.Get(postID); ok {
		return writeProducts(w, ps)
	}

	ps, err := s.market.SimilarPosts(r.Context(), postID)
	if err != nil {
		return backendErr(err)
	}
	s.similar.Add(postID, ps)

	return writeProducts(w, ps)
}

func (s *Server) getRecommendations(w http.ResponseWriter, r *http.Request) error {
	ps, err := s.market.Recommendations(r.Context(), s.cookies.Read(r))
	if err != nil {
		return backendErr(err)
	}

	return writeProducts(w, ps)
}

func (s *Server) getSearch(w http.ResponseWriter, r *http.Request) error {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		return cmerrs.E("query is required", http.StatusBadRequest)
	}

	ps, err := s.market.Search(r.Context(), query)
	if err != nil {
		return backendErr(err)
	}

	return writeProducts(w, ps)
}

func (s *Server) getCategory(w http.ResponseWriter, r *http.Request) error {
	category := mux.Vars(r)["category"]
	if !slices.Contains(market.Categories, category) {
		return cmerrs.E("unknown category", http.StatusNotFound)
	}

	ps, err := s.market.Category(r.Context(), category)
	if err != nil {
		return backendErr(err)
	}

	return writeProducts(w, ps)
}

func (s *Server) getMyPosts(w http.ResponseWriter, r *http.Request) error {
	ps, err := s.market.UserPosts(r.Context(), s.cookies.Read(r))
	if err != nil {
		return backendErr(err)
	}

	return writeProducts(w, ps)
}

func (s *Server) postCreatePost(w http.ResponseWriter, r *http.Request) error {
	post, closeFiles, err := postFromForm(r)
	if err != nil {
		return err
	}
	defer closeFiles()

	if err := s.market.AddPost(r.Context(), s.cookies.Read(r), post); err != nil {
		return backendErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusCreated, struct{}{})
}

func (s *Server) postEditPost(w http.ResponseWriter, r *http.Request) error {
	post, closeFiles, err := postFromForm(r)
	if err != nil {
		return err
	}
	defer closeFiles()

	postID := mux.Vars(r)["postID"]
	updated, err := s.market.EditPost(r.Context(), s.cookies.Read(r), postID, post)
	if err != nil {
		return backendErr(err)
	}
	s.similar.Remove(postID)

	return serverutil.WriteJSON(w, http.StatusOK, updated)
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) error {
	postID := mux.Vars(r)["postID"]
	if err := s.market.DeletePost(r.Context(), s.cookies.Read(r), postID); err != nil {
		return backendErr(err)
	}
	s.similar.Remove(postID)

	return serverutil.WriteJSON(w, http.StatusOK, struct{}{})
}

// postFromForm reads the listing form the browser posts. The returned func
// closes the uploaded files.
func postFromForm(r *http.Request) (market.NewPost, func(), error) {
	noop := func() {}
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		return market.NewPost{}, noop, cmerrs.E("invalid form", http.StatusBadRequest)
	}

	price, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("price")), 64)
	if err != nil {
		return market.NewPost{}, noop, cmerrs.E(
			"invalid listing",
			http.StatusUnprocessableEntity,
			cmerrs.Detail{Field: "price", Error: "price must be a number"},
		)
	}

	var tags []string
	for _, t := range strings.Split(r.FormValue("tags"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	headers := r.MultipartForm.File["images"]
	if len(headers) > maxImages {
		return market.NewPost{}, noop, cmerrs.E(
			"invalid listing",
			http.StatusUnprocessableEntity,
			cmerrs.Detail{Field: "images", Error: "too many images"},
		)
	}

	var files []multipart.File
	closeFiles := func() {
		for _, f := range files {
			f.Close()
		}
	}

	images := make([]market.Upload, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			closeFiles()
			return market.NewPost{}, noop, cmerrs.E("invalid form", http.StatusBadRequest)
		}
		files = append(files, f)
		images = append(images, market.Upload{Filename: h.Filename, Content: f})
	}

	return market.NewPost{
		Title:       r.FormValue("title"),
		Price:       price,
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		Tags:        tags,
		Images:      images,
	}, closeFiles, nil
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) error {
	usr, err := s.market.Profile(r.Context(), s.cookies.Read(r))
	if err != nil {
		return backendErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, usr)
}

func (s *Server) postProfile(w http.ResponseWriter, r *http.Request) error {
	var req market.ProfileUpdate
	if err := serverutil.DecodeValid(r.Body, &req); err != nil {
		return err
	}

	sess := s.cookies.Read(r)
	if err := s.market.UpdateProfile(r.Context(), sess, req); err != nil {
		return backendErr(err)
	}

	// Routes start from the new address
	if req.Address != "" && req.Address != sess.Address {
		sess.Address = req.Address
		s.cookies.Write(w, sess)
	}

	return serverutil.WriteJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) postProfileImage(w http.ResponseWriter, r *http.Request) error {
	f, h, err := r.FormFile("image")
	if err != nil {
		return cmerrs.E("image is required", http.StatusBadRequest)
	}
	defer f.Close()

	url, err := s.market.UploadProfileImage(r.Context(), s.cookies.Read(r), market.Upload{
		Filename: h.Filename,
		Content:  io.LimitReader(f, maxFormMemory),
	})
	if err != nil {
		return backendErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, v1.ProfileImageResponse{ImageURL: url})
}

// The backend's route is handed to the map as-is.
func (s *Server) postRoute(w http.ResponseWriter, r *http.Request) error {
	var req v1.RouteRequest
	if err := serverutil.DecodeValid(r.Body, &req); err != nil {
		return err
	}

	doc, err := s.market.Route(r.Context(), s.cookies.Read(r), req.SellerAddress)
	if err != nil {
		return backendErr(err)
	}

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(doc)
	return err
}
