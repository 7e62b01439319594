package sessionclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"bearcatboard/internal/models"
)

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, email, username, password string) (*models.PublicUser, error) {
	var out struct {
		User models.PublicUser `json:"user"`
	}
	err := c.Do(ctx, http.MethodPost, "/auth/register", map[string]string{
		"email":    email,
		"username": username,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Login starts a session. With rememberMe the server also sets the refresh
// cookie, which the client's cookie jar keeps.
func (c *Client) Login(ctx context.Context, identifier, password string, rememberMe bool) (*models.SessionUser, error) {
	var out struct {
		AccessToken string             `json:"accessToken"`
		User        models.SessionUser `json:"user"`
	}
	err := c.Do(ctx, http.MethodPost, "/auth/login", map[string]any{
		"identifier": identifier,
		"password":   password,
		"rememberMe": rememberMe,
	}, &out)
	if err != nil {
		return nil, err
	}

	c.startSession(out.AccessToken)
	return &out.User, nil
}

// Logout revokes the current refresh token. The local token is dropped
// even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.setToken("")
	return c.Do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// LogoutAll revokes every session of the user and returns how many there were.
func (c *Client) LogoutAll(ctx context.Context) (int64, error) {
	var out struct {
		Sessions int64 `json:"sessions"`
	}
	if err := c.Do(ctx, http.MethodPost, "/auth/logout-all", nil, &out); err != nil {
		return 0, err
	}
	c.setToken("")
	return out.Sessions, nil
}

func (c *Client) Me(ctx context.Context) (*models.SessionUser, error) {
	var out models.SessionUser
	if err := c.Do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePost publishes a post and returns its id. An empty title is stored as none.
func (c *Client) CreatePost(ctx context.Context, title, content string) (uint, error) {
	var out struct {
		Result uint `json:"result"`
	}
	err := c.Do(ctx, http.MethodPost, "/api/post", map[string]string{
		"title":   title,
		"content": content,
	}, &out)
	return out.Result, err
}

func (c *Client) ListPosts(ctx context.Context, page, limit int) ([]models.Post, error) {
	return c.listPosts(ctx, "/api/posts", url.Values{
		"page":  {strconv.Itoa(page)},
		"limit": {strconv.Itoa(limit)},
	})
}

func (c *Client) ListUserPosts(ctx context.Context, username string, page, limit int) ([]models.Post, error) {
	return c.listPosts(ctx, "/api/user/posts", url.Values{
		"username": {username},
		"page":     {strconv.Itoa(page)},
		"limit":    {strconv.Itoa(limit)},
	})
}

func (c *Client) listPosts(ctx context.Context, path string, query url.Values) ([]models.Post, error) {
	var out struct {
		Posts []models.Post `json:"posts"`
	}
	if err := c.Do(ctx, http.MethodGet, path+"?"+query.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Posts, nil
}

// ToggleLike likes or unlikes a post and reports whether it is now liked.
func (c *Client) ToggleLike(ctx context.Context, postID uint) (bool, error) {
	var out struct {
		Liked bool `json:"liked"`
	}
	if err := c.Do(ctx, http.MethodPost, "/api/like", map[string]uint{"post_id": postID}, &out); err != nil {
		return false, err
	}
	return out.Liked, nil
}

// DeletePost deletes one of the caller's posts. author is the username the
// caller expects to own the post.
func (c *Client) DeletePost(ctx context.Context, postID uint, author string) error {
	if postID == 0 {
		return fmt.Errorf("post id is required")
	}
	return c.Do(ctx, http.MethodPut, "/api/deletepost", map[string]any{
		"post_id":     postID,
		"post_author": author,
	}, nil)
}
