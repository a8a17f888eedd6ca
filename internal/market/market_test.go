package market

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/campusmart/internal/apiclient"
	cmerrs "github.com/jdholdren/campusmart/internal/errors"
	"github.com/jdholdren/campusmart/internal/session"
)

var authed = session.Session{ID: "s1", Token: "tok"}

func testClient(t *testing.T, r *mux.Router) *Client {
	t.Helper()

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return New(apiclient.NewWithHTTPClient(srv.Client()), srv.URL+"/")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestPosts(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/posts/get", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "12", r.URL.Query().Get("limit"))
		switch r.URL.Query().Get("getpage") {
		case "1":
			w.Write([]byte(`{
				"posts": [
					{"_id": "p1", "title": "Calculus", "price": 250, "userId": "u9"},
					{"_id": "p2", "title": "Lab coat", "userId": {"_id": "u3", "name": "Asha"}}
				],
				"totalPages": 2
			}`))
		default:
			writeJSON(w, http.StatusNotFound, map[string]any{"status": false, "message": "No posts found"})
		}
	})
	c := testClient(t, r)

	page, err := c.Posts(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Posts, 2)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, &Owner{ID: "u9"}, page.Posts[0].Owner)
	assert.Equal(t, "Asha", page.Posts[1].Owner.Name)

	_, err = c.Posts(context.Background(), 3, 0)
	assert.ErrorIs(t, err, ErrNoMorePages)
}

func TestPosts_ServerError(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/posts/get", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := testClient(t, r)

	_, err := c.Posts(context.Background(), 1, 12)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoMorePages))
	assert.Equal(t, http.StatusInternalServerError, cmerrs.StatusOf(err))
}

func TestLikedPostIDs(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []string
		wantErr error
	}{
		{
			name: "ids",
			body: `{"status": true, "postId": ["a", "b"]}`,
			want: []string{"a", "b"},
		},
		{
			name: "empty list",
			body: `{"status": true, "postId": []}`,
			want: []string{},
		},
		{
			name:    "missing list",
			body:    `{"status": true}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "not json",
			body:    `<html>`,
			wantErr: ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mux.NewRouter()
			r.HandleFunc("/api/posts/getLikedPostId", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				w.Write([]byte(tt.body))
			})
			c := testClient(t, r)

			ids, err := c.LikedPostIDs(context.Background(), authed)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestUnauthenticatedSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	r := mux.NewRouter()
	r.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})
	c := testClient(t, r)

	anon := session.Session{ID: "s1"}
	_, err := c.LikedPostIDs(context.Background(), anon)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, c.ToggleLike(context.Background(), anon, "p1"), ErrUnauthenticated)

	ok, err := c.CheckUser(context.Background(), anon)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Zero(t, hits.Load())
}

func TestCheckUser_Rejected(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/user/checkUser", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "jwt expired"})
	})
	c := testClient(t, r)

	ok, err := c.CheckUser(context.Background(), authed)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFalseStatusIsAnError(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/user/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": false, "message": "Invalid credentials"})
	})
	c := testClient(t, r)

	_, err := c.Login(context.Background(), "a@b.c", "nope")
	require.Error(t, err)

	var e *cmerrs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "Invalid credentials", e.Message())
	assert.Equal(t, http.StatusBadRequest, e.Status)
}

func TestLogin(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/user/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.c", body["email"])
		writeJSON(w, http.StatusOK, map[string]any{"status": true, "token": "jwt-1"})
	}).Methods(http.MethodPost)
	c := testClient(t, r)

	tok, err := c.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, "jwt-1", tok)
}

func TestRecommendations_FlattensAndDedupes(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/posts/getRecommendation", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"posts": [[{"_id": "a"}, {"_id": "b"}], [{"_id": "b"}, {"_id": "c"}], []]}`))
	})
	c := testClient(t, r)

	ps, err := c.Recommendations(context.Background(), authed)
	require.NoError(t, err)

	var ids []string
	for _, p := range ps {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestAddPost(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/user/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user": {"_id": "u1", "address": "Hostel B", "college": "PCCOE"}}`))
	})
	r.HandleFunc("/api/posts/add", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Drafter", r.FormValue("title"))
		assert.Equal(t, "99.5", r.FormValue("price"))
		assert.Equal(t, CategoryStudyToolsElectronics, r.FormValue("category"))
		assert.Equal(t, "drawing,Hostel B,PCCOE", r.FormValue("tags"))

		files := r.MultipartForm.File["images"]
		require.Len(t, files, 1)
		assert.Equal(t, "front.jpg", files[0].Filename)
		f, err := files[0].Open()
		require.NoError(t, err)
		byts, _ := io.ReadAll(f)
		assert.Equal(t, "jpegbytes", string(byts))

		writeJSON(w, http.StatusCreated, map[string]any{"status": true})
	}).Methods(http.MethodPost)
	c := testClient(t, r)

	err := c.AddPost(context.Background(), authed, NewPost{
		Title:    "  <b>Drafter</b> ",
		Price:    99.5,
		Category: CategoryStudyToolsElectronics,
		Tags:     []string{"drawing"},
		Images:   []Upload{{Filename: "front.jpg", Content: strings.NewReader("jpegbytes")}},
	})
	require.NoError(t, err)
}

func TestAddPost_Invalid(t *testing.T) {
	var hits atomic.Int32
	r := mux.NewRouter()
	r.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})
	c := testClient(t, r)

	err := c.AddPost(context.Background(), authed, NewPost{Price: -1, Category: "cars"})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, cmerrs.StatusOf(err))

	var e *cmerrs.Error
	require.ErrorAs(t, err, &e)
	assert.Len(t, e.Details, 3)
	assert.Zero(t, hits.Load())
}

func TestNewPostValidate_Price(t *testing.T) {
	tests := []struct {
		name    string
		price   float64
		wantErr bool
	}{
		{name: "free", price: 0},
		{name: "priced", price: 250},
		{name: "negative", price: -1, wantErr: true},
		{name: "not a number", price: math.NaN(), wantErr: true},
		{name: "infinite", price: math.Inf(1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPost{Title: "Drafter", Price: tt.price, Category: CategoryOther}
			err := p.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}

			var e *cmerrs.Error
			require.ErrorAs(t, err, &e)
			require.Len(t, e.Details, 1)
			assert.Equal(t, "price", e.Details[0].Field)
		})
	}
}

func TestRoute_UsesDefaultBuyerAddress(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/search/getPath", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, session.DefaultAddress, body["buyerAddress"])
		assert.Equal(t, "Hostel C", body["sellerAddress"])
		w.Write([]byte(`{"path": ["PCCOE", "Hostel C"]}`))
	}).Methods(http.MethodPost)
	c := testClient(t, r)

	doc, err := c.Route(context.Background(), authed, "Hostel C")
	require.NoError(t, err)
	assert.JSONEq(t, `{"path": ["PCCOE", "Hostel C"]}`, string(doc))
}
