package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jdholdren/campusmart/internal/apiclient"
	cmerrs "github.com/jdholdren/campusmart/internal/errors"
	"github.com/jdholdren/campusmart/internal/session"
)

type tokenResp struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp tokenResp
	if err := c.call(ctx, apiclient.Request{
		Method: http.MethodPost,
		URL:    c.url("/api/user/login", nil),
		JSON:   map[string]string{"email": email, "password": password},
	}, &resp); err != nil {
		return "", fmt.Errorf("error logging in: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: no token issued", ErrMalformed)
	}

	return resp.Token, nil
}

// GoogleLogin hands the identity provider's user to the backend for a token.
func (c *Client) GoogleLogin(ctx context.Context, id GoogleIdentity) (string, error) {
	var resp tokenResp
	if err := c.call(ctx, apiclient.Request{
		Method: http.MethodPost,
		URL:    c.url("/api/auth/google", nil),
		JSON:   id,
	}, &resp); err != nil {
		return "", fmt.Errorf("error logging in with google: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: no token issued", ErrMalformed)
	}

	return resp.Token, nil
}

func (c *Client) Signup(ctx context.Context, s Signup) error {
	if err := s.Validate(); err != nil {
		return err
	}

	if err := c.call(ctx, apiclient.Request{
		Method: http.MethodPost,
		URL:    c.url("/api/user/signup", nil),
		JSON:   s,
	}, nil); err != nil {
		return fmt.Errorf("error signing up: %w", err)
	}

	return nil
}

// Profile fetches the session user's profile.
func (c *Client) Profile(ctx context.Context, sess session.Session) (User, error) {
	var resp struct {
		User *User `json:"user"`
	}
	if err := c.authed(ctx, sess, apiclient.Request{URL: c.url("/api/user/", nil)}, &resp); err != nil {
		return User{}, fmt.Errorf("error fetching profile: %w", err)
	}
	if resp.User == nil {
		return User{}, fmt.Errorf("%w: no user in profile", ErrMalformed)
	}

	return *resp.User, nil
}

// CheckUser reports whether the session's token is still accepted.
func (c *Client) CheckUser(ctx context.Context, sess session.Session) (bool, error) {
	err := c.authed(ctx, sess, apiclient.Request{URL: c.url("/api/user/checkUser", nil)}, nil)
	if errors.Is(err, ErrUnauthenticated) {
		return false, nil
	}
	switch cmerrs.StatusOf(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error checking user: %w", err)
	}

	return true, nil
}

func (c *Client) UpdateProfile(ctx context.Context, sess session.Session, u ProfileUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}

	if err := c.authed(ctx, sess, apiclient.Request{
		Method: http.MethodPost,
		URL:    c.url("/api/user/updateDetails", nil),
		JSON:   u,
	}, nil); err != nil {
		return fmt.Errorf("error updating profile: %w", err)
	}

	return nil
}

// UploadProfileImage replaces the profile picture and returns its new url.
func (c *Client) UploadProfileImage(ctx context.Context, sess session.Session, img Upload) (string, error) {
	if img.Content == nil {
		return "", errors.New("image upload has no content")
	}

	body, contentType, err := multipartBody(nil, []formFile{{field: "image", upload: img}})
	if err != nil {
		return "", err
	}

	var resp struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := c.authed(ctx, sess, apiclient.Request{
		Method:      http.MethodPost,
		URL:         c.url("/api/user/profileImage", nil),
		Body:        body,
		ContentType: contentType,
	}, &resp); err != nil {
		return "", fmt.Errorf("error uploading profile image: %w", err)
	}

	return resp.ImageURL, nil
}

// Route asks the backend for a path from the session user's address to the
// seller's. The backend's route document is passed through untouched.
func (c *Client) Route(ctx context.Context, sess session.Session, sellerAddress string) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := c.authed(ctx, sess, apiclient.Request{
		Method: http.MethodPost,
		URL:    c.url("/api/search/getPath", nil),
		JSON: map[string]string{
			"sellerAddress": sellerAddress,
			"buyerAddress":  sess.BuyerAddress(),
		},
	}, &resp); err != nil {
		return nil, fmt.Errorf("error fetching route: %w", err)
	}

	return resp, nil
}
