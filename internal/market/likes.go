package market

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jdholdren/campusmart/internal/apiclient"
	"github.com/jdholdren/campusmart/internal/session"
)

// LikedPostIDs fetches the ids of every listing the session's user has liked.
//
// A body without the id list is reported as [ErrMalformed].
func (c *Client) LikedPostIDs(ctx context.Context, sess session.Session) ([]string, error) {
	var resp struct {
		Status bool     `json:"status"`
		PostID []string `json:"postId"`
	}
	if err := c.authed(ctx, sess, apiclient.Request{URL: c.url("/api/posts/getLikedPostId", nil)}, &resp); err != nil {
		return nil, fmt.Errorf("error fetching liked post ids: %w", err)
	}
	if !resp.Status || resp.PostID == nil {
		return nil, fmt.Errorf("%w: liked post ids missing", ErrMalformed)
	}

	return resp.PostID, nil
}

// ToggleLike flips the like on a listing for the session's user. The backend
// decides the direction.
func (c *Client) ToggleLike(ctx context.Context, sess session.Session, postID string) error {
	if err := c.authed(ctx, sess, apiclient.Request{URL: c.url("/api/posts/likePost/"+url.PathEscape(postID), nil)}, nil); err != nil {
		return fmt.Errorf("error toggling like on %s: %w", postID, err)
	}

	return nil
}
