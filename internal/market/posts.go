package market

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jdholdren/campusmart/internal/apiclient"
	cmerrs "github.com/jdholdren/campusmart/internal/errors"
	"github.com/jdholdren/campusmart/internal/session"
)

// Posts fetches one page of the public feed. A 404 from the backend means the
// page doesn't exist and is reported as [ErrNoMorePages].
func (c *Client) Posts(ctx context.Context, page, limit int) (Page, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = PageSize
	}

	q := url.Values{}
	q.Set("getpage", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var p Page
	err := c.call(ctx, apiclient.Request{URL: c.url("/api/posts/get", q)}, &p)
	if cmerrs.StatusOf(err) == http.StatusNotFound {
		return Page{}, ErrNoMorePages
	}
	if err != nil {
		return Page{}, fmt.Errorf("error fetching page %d: %w", page, err)
	}

	return p, nil
}

type postsResp struct {
	Posts []Product `json:"posts"`
}

// LikedPosts are the full listings the session's user has liked.
func (c *Client) LikedPosts(ctx context.Context, sess session.Session) ([]Product, error) {
	var resp postsResp
	if err := c.authed(ctx, sess, apiclient.Request{URL: c.url("/api/posts/getLikedPost", nil)}, &resp); err != nil {
		return nil, fmt.Errorf("error fetching liked posts: %w", err)
	}

	return nonNil(resp.Posts), nil
}

// SimilarPosts are listings the backend considers related to the given one.
func (c *Client) SimilarPosts(ctx context.Context, postID string) ([]Product, error) {
	var resp struct {
		Data []Product `json:"data"`
	}
	if err := c.call(ctx, apiclient.Request{URL: c.url("/api/posts/getSimilarPost/"+url.PathEscape(postID), nil)}, &resp); err != nil {
		return nil, fmt.Errorf("error fetching similar posts: %w", err)
	}

	return nonNil(resp.Data), nil
}

// Recommendations come back grouped; they're flattened and deduplicated by id,
// keeping the first occurrence.
func (c *Client) Recommendations(ctx context.Context, sess session.Session) ([]Product, error) {
	var resp struct {
		Posts [][]Product `json:"posts"`
	}
	if err := c.authed(ctx, sess, apiclient.Request{URL: c.url("/api/posts/getRecommendation", nil)}, &resp); err != nil {
		return nil, fmt.Errorf("error fetching recommendations: %w", err)
	}

	var (
		seen = map[string]struct{}{}
		out  = []Product{}
	)
	for _, group := range resp.Posts {
		for _, p := range group {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
	}

	return out, nil
}

// Search is a free text search over listings.
func (c *Client) Search(ctx context.Context, query string) ([]Product, error) {
	q := url.Values{}
	q.Set("query", query)

	var resp postsResp
	if err := c.call(ctx, apiclient.Request{URL: c.url("/api/posts/search/", q)}, &resp); err != nil {
		return nil, fmt.Errorf("error searching posts: %w", err)
	}

	return nonNil(resp.Posts), nil
}

// Category lists everything in one category.
func (c *Client) Category(ctx context.Context, category string) ([]Product, error) {
	var resp postsResp
	if err := c.call(ctx, apiclient.Request{URL: c.url("/api/search/cat/"+url.PathEscape(category), nil)}, &resp); err != nil {
		return nil, fmt.Errorf("error fetching category %s: %w", category, err)
	}

	return nonNil(resp.Posts), nil
}

// UserPosts are the session user's own listings.
func (c *Client) UserPosts(ctx context.Context, sess session.Session) ([]Product, error) {
	var resp postsResp
	if err := c.authed(ctx, sess, apiclient.Request{URL: c.url("/api/posts/user", nil)}, &resp); err != nil {
		return nil, fmt.Errorf("error fetching user posts: %w", err)
	}

	return nonNil(resp.Posts), nil
}

// AddPost creates a listing. The poster's address and college are added to the
// tags so the listing can be found by campus.
func (c *Client) AddPost(ctx context.Context, sess session.Session, post NewPost) error {
	if err := post.Validate(); err != nil {
		return err
	}

	usr, err := c.Profile(ctx, sess)
	if err != nil {
		return fmt.Errorf("error fetching poster: %w", err)
	}
	tags := append([]string{}, post.Tags...)
	for _, t := range []string{usr.Address, usr.College} {
		if t != "" {
			tags = append(tags, t)
		}
	}
	post.Tags = tags

	body, contentType, err := postForm(post)
	if err != nil {
		return err
	}

	if err := c.authed(ctx, sess, apiclient.Request{
		Method:      http.MethodPost,
		URL:         c.url("/api/posts/add", nil),
		Body:        body,
		ContentType: contentType,
	}, nil); err != nil {
		return fmt.Errorf("error adding post: %w", err)
	}

	return nil
}

// EditPost replaces a listing's fields and returns the updated listing.
func (c *Client) EditPost(ctx context.Context, sess session.Session, postID string, post NewPost) (Product, error) {
	if err := post.Validate(); err != nil {
		return Product{}, err
	}

	body, contentType, err := postForm(post)
	if err != nil {
		return Product{}, err
	}

	var resp struct {
		Post Product `json:"post"`
	}
	if err := c.authed(ctx, sess, apiclient.Request{
		Method:      http.MethodPost,
		URL:         c.url("/api/posts/editPost/"+url.PathEscape(postID), nil),
		Body:        body,
		ContentType: contentType,
	}, &resp); err != nil {
		return Product{}, fmt.Errorf("error editing post: %w", err)
	}

	return resp.Post, nil
}

func (c *Client) DeletePost(ctx context.Context, sess session.Session, postID string) error {
	if err := c.authed(ctx, sess, apiclient.Request{
		Method: http.MethodDelete,
		URL:    c.url("/api/posts/delete/"+url.PathEscape(postID), nil),
	}, nil); err != nil {
		return fmt.Errorf("error deleting post: %w", err)
	}

	return nil
}

func postForm(post NewPost) (io.Reader, string, error) {
	fields := [][2]string{
		{"title", post.Title},
		{"price", strconv.FormatFloat(post.Price, 'f', -1, 64)},
		{"description", post.Description},
		{"category", post.Category},
	}
	if len(post.Tags) > 0 {
		// FormData flattens arrays to a comma separated value; the backend expects that.
		fields = append(fields, [2]string{"tags", strings.Join(post.Tags, ",")})
	}

	files := make([]formFile, 0, len(post.Images))
	for _, img := range post.Images {
		if img.Content == nil {
			return nil, "", errors.New("image upload has no content")
		}
		files = append(files, formFile{field: "images", upload: img})
	}

	return multipartBody(fields, files)
}

func nonNil(ps []Product) []Product {
	if ps == nil {
		return []Product{}
	}

	return ps
}
