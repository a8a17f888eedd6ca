// Package market is the typed client for the marketplace backend's REST API.
//
// It knows the backend's paths and body shapes; transport concerns live in
// apiclient. Calls that need a credential take the caller's session explicitly
// and fail fast with [ErrUnauthenticated] when it has none.
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/jdholdren/campusmart/internal/apiclient"
	cmerrs "github.com/jdholdren/campusmart/internal/errors"
	"github.com/jdholdren/campusmart/internal/session"
)

// PageSize is the fixed number of listings per feed page.
const PageSize = 12

var (
	ErrNoMorePages     = errors.New("no more pages")
	ErrUnauthenticated = errors.New("no credential in session")
	ErrMalformed       = errors.New("malformed response")
)

type Client struct {
	api     apiclient.Doer
	baseURL string
}

func New(api apiclient.Doer, baseURL string) *Client {
	return &Client{
		api:     api,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	return u
}

// Most backend bodies carry a boolean status next to the payload.
type envelope struct {
	Status  *bool  `json:"status"`
	Message string `json:"message"`
}

// call performs the request and decodes the body into out, which may be nil.
//
// A 2xx body whose status flag is false is turned into an error carrying the
// backend's message.
func (c *Client) call(ctx context.Context, req apiclient.Request, out any) error {
	res := c.api.Do(ctx, req)
	if !res.OK {
		return res.Err
	}

	var env envelope
	if err := json.Unmarshal(res.Data, &env); err == nil && env.Status != nil && !*env.Status {
		msg := env.Message
		if msg == "" {
			msg = cmerrs.GenericMessage
		}
		return cmerrs.E(msg, http.StatusBadRequest)
	}

	if out == nil {
		return nil
	}
	if err := res.Decode(out); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	return nil
}

// authed is call for the endpoints requiring a bearer credential.
func (c *Client) authed(ctx context.Context, sess session.Session, req apiclient.Request, out any) error {
	if !sess.Authenticated() {
		return ErrUnauthenticated
	}
	req.Token = sess.Token

	return c.call(ctx, req, out)
}

type formFile struct {
	field  string
	upload Upload
}

// multipartBody builds a form the way a browser's FormData would.
func multipartBody(fields [][2]string, files []formFile) (*bytes.Buffer, string, error) {
	var (
		buf = &bytes.Buffer{}
		mw  = multipart.NewWriter(buf)
	)
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("error writing field %s: %w", f[0], err)
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.upload.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("error creating form file: %w", err)
		}
		if _, err := io.Copy(part, f.upload.Content); err != nil {
			return nil, "", fmt.Errorf("error reading upload %s: %w", f.upload.Filename, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("error closing form: %w", err)
	}

	return buf, mw.FormDataContentType(), nil
}
