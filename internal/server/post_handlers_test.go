package server

import (
	"fmt"
	"net/http"
	"testing"

	"bearcatboard/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) createPost(t *testing.T, access string, body fiber.Map) uint {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/post", body, withBearer(access))
	require.Equal(t, fiber.StatusCreated, resp.status, string(resp.raw))
	return uint(resp.body["result"].(float64))
}

func postsOf(t *testing.T, resp testResponse) []map[string]any {
	t.Helper()
	require.Equal(t, fiber.StatusOK, resp.status, string(resp.raw))
	raw, ok := resp.body["posts"].([]any)
	require.True(t, ok, "posts must be a JSON array")
	out := make([]map[string]any, 0, len(raw))
	for _, p := range raw {
		out = append(out, p.(map[string]any))
	}
	return out
}

func TestCreatePostHandler(t *testing.T) {
	env := setupServer(t)
	a := env.register(t)
	access, _ := env.login(t, a, false)

	t.Run("requires auth", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/post", fiber.Map{"content": "hi"})
		assert.Equal(t, fiber.StatusUnauthorized, resp.status)
	})

	t.Run("requires content", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/post", fiber.Map{"title": "only a title"}, withBearer(access))
		assert.Equal(t, fiber.StatusBadRequest, resp.status)
		assert.Equal(t, "Your post needs content!", resp.body["error"])
	})

	t.Run("untitled post", func(t *testing.T) {
		id := env.createPost(t, access, fiber.Map{"content": "hello board"})
		assert.NotZero(t, id)

		posts := postsOf(t, env.do(t, http.MethodGet, "/api/posts", nil, withBearer(access)))
		require.NotEmpty(t, posts)
		assert.Nil(t, posts[0]["title"])
		assert.Equal(t, "hello board", posts[0]["content"])
		assert.Equal(t, a.username, posts[0]["username"])
		assert.Equal(t, false, posts[0]["nsfw"])
		assert.Equal(t, false, posts[0]["has_liked"])
		assert.Equal(t, float64(0), posts[0]["like_count"])
	})
}

func TestGetPostsHandler_Pagination(t *testing.T) {
	env := setupServer(t)
	a := env.register(t)
	access, _ := env.login(t, a, false)

	for i := 1; i <= 25; i++ {
		env.createPost(t, access, fiber.Map{"content": fmt.Sprintf("post %d", i)})
	}

	page2 := postsOf(t, env.do(t, http.MethodGet, "/api/posts?page=2&limit=10", nil, withBearer(access)))
	require.Len(t, page2, 10)
	// Newest first: the 11th newest of 25 is post 15.
	for i, p := range page2 {
		assert.Equal(t, fmt.Sprintf("post %d", 15-i), p["content"])
	}

	last := postsOf(t, env.do(t, http.MethodGet, "/api/posts?page=3&limit=10", nil, withBearer(access)))
	assert.Len(t, last, 5)

	beyond := postsOf(t, env.do(t, http.MethodGet, "/api/posts?page=9&limit=10", nil, withBearer(access)))
	assert.Empty(t, beyond)

	huge := postsOf(t, env.do(t, http.MethodGet, "/api/posts?page=9223372036854775807&limit=10", nil, withBearer(access)))
	assert.Empty(t, huge)

	defaults := postsOf(t, env.do(t, http.MethodGet, "/api/posts?page=0&limit=-3", nil, withBearer(access)))
	assert.Len(t, defaults, 10)
	assert.Equal(t, "post 25", defaults[0]["content"])
}

func TestGetUserPostsHandler(t *testing.T) {
	env := setupServer(t)
	alice := env.register(t)
	bob := env.register(t)
	aliceAccess, _ := env.login(t, alice, false)
	bobAccess, _ := env.login(t, bob, false)

	env.createPost(t, aliceAccess, fiber.Map{"content": "from alice"})
	env.createPost(t, bobAccess, fiber.Map{"content": "from bob"})

	posts := postsOf(t, env.do(t, http.MethodGet, "/api/user/posts?username="+bob.username, nil, withBearer(aliceAccess)))
	require.Len(t, posts, 1)
	assert.Equal(t, "from bob", posts[0]["content"])

	own := postsOf(t, env.do(t, http.MethodGet, "/api/user/posts", nil, withBearer(aliceAccess)))
	require.Len(t, own, 1)
	assert.Equal(t, "from alice", own[0]["content"])

	none := postsOf(t, env.do(t, http.MethodGet, "/api/user/posts?username=ghost", nil, withBearer(aliceAccess)))
	assert.Empty(t, none)
}

func TestToggleLikeHandler(t *testing.T) {
	env := setupServer(t)
	a := env.register(t)
	access, _ := env.login(t, a, false)
	postID := env.createPost(t, access, fiber.Map{"content": "like me"})

	first := env.do(t, http.MethodPost, "/api/like", fiber.Map{"post_id": postID}, withBearer(access))
	require.Equal(t, fiber.StatusOK, first.status)
	assert.Equal(t, true, first.body["liked"])
	assert.Equal(t, true, first.body["success"])

	posts := postsOf(t, env.do(t, http.MethodGet, "/api/posts", nil, withBearer(access)))
	assert.Equal(t, true, posts[0]["has_liked"])
	assert.Equal(t, float64(1), posts[0]["like_count"])

	second := env.do(t, http.MethodPost, "/api/like", fiber.Map{"post_id": postID}, withBearer(access))
	require.Equal(t, fiber.StatusOK, second.status)
	assert.Equal(t, false, second.body["liked"])

	var likes int64
	require.NoError(t, env.db.Model(&models.Like{}).Where("post_id = ?", postID).Count(&likes).Error)
	assert.Zero(t, likes)

	missing := env.do(t, http.MethodPost, "/api/like", fiber.Map{"post_id": 9999}, withBearer(access))
	assert.Equal(t, fiber.StatusNotFound, missing.status)

	invalid := env.do(t, http.MethodPost, "/api/like", fiber.Map{}, withBearer(access))
	assert.Equal(t, fiber.StatusBadRequest, invalid.status)
}

func TestDeletePostHandler(t *testing.T) {
	env := setupServer(t)
	author := env.register(t)
	intruder := env.register(t)
	authorAccess, _ := env.login(t, author, false)
	intruderAccess, _ := env.login(t, intruder, false)

	postID := env.createPost(t, authorAccess, fiber.Map{"content": "mine"})

	t.Run("non-author is forbidden", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/deletepost", fiber.Map{
			"post_id": postID, "post_author": author.username,
		}, withBearer(intruderAccess))
		assert.Equal(t, fiber.StatusForbidden, resp.status)
		// Ownership failures must not look like a bad token to clients.
		assert.Equal(t, models.CodeForbidden, resp.body["code"])

		posts := postsOf(t, env.do(t, http.MethodGet, "/api/posts", nil, withBearer(authorAccess)))
		require.Len(t, posts, 1)
		assert.Equal(t, float64(postID), posts[0]["id"])
	})

	t.Run("claimed author must be caller", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/deletepost", fiber.Map{
			"post_id": postID, "post_author": intruder.username,
		}, withBearer(authorAccess))
		assert.Equal(t, fiber.StatusForbidden, resp.status)
	})

	t.Run("missing post", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/deletepost", fiber.Map{"post_id": 9999}, withBearer(authorAccess))
		assert.Equal(t, fiber.StatusNotFound, resp.status)
	})

	t.Run("author deletes", func(t *testing.T) {
		env.do(t, http.MethodPost, "/api/like", fiber.Map{"post_id": postID}, withBearer(intruderAccess))

		resp := env.do(t, http.MethodPut, "/api/deletepost", fiber.Map{
			"post_id": postID, "post_author": author.username,
		}, withBearer(authorAccess))
		assert.Equal(t, fiber.StatusOK, resp.status)

		posts := postsOf(t, env.do(t, http.MethodGet, "/api/posts", nil, withBearer(authorAccess)))
		assert.Empty(t, posts)
	})
}
