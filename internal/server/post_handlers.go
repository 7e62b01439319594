package server

import (
	"bearcatboard/internal/auth"
	"bearcatboard/internal/models"
	"bearcatboard/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreatePost handles POST /api/post
func (s *Server) CreatePost(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	var req struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, models.NewValidationError("Invalid request body"))
	}

	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		AuthorID: claims.UserID,
		Title:    req.Title,
		Content:  req.Content,
	})
	if err != nil {
		return s.respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"result": post.ID})
}

// GetPosts handles GET /api/posts?page=&limit=
func (s *Server) GetPosts(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	posts, err := s.postService.ListPosts(c.UserContext(), service.ListPostsInput{
		ViewerID: claims.UserID,
		Page:     queryInt(c, "page", 1),
		Limit:    queryInt(c, "limit", service.DefaultPageSize),
	})
	if err != nil {
		return s.respondError(c, err)
	}

	return c.JSON(fiber.Map{"posts": posts})
}

// GetUserPosts handles GET /api/user/posts?username=&page=&limit=
// Without a username it lists the caller's own posts.
func (s *Server) GetUserPosts(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	username := c.Query("username")
	if username == "" {
		username = claims.Username
	}

	posts, err := s.postService.ListPosts(c.UserContext(), service.ListPostsInput{
		ViewerID: claims.UserID,
		Username: username,
		Page:     queryInt(c, "page", 1),
		Limit:    queryInt(c, "limit", service.DefaultPageSize),
	})
	if err != nil {
		return s.respondError(c, err)
	}

	return c.JSON(fiber.Map{"posts": posts})
}

// ToggleLike handles POST /api/like
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	var req struct {
		PostID uint `json:"post_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, models.NewValidationError("Invalid request body"))
	}

	liked, err := s.postService.ToggleLike(c.UserContext(), claims.UserID, req.PostID)
	if err != nil {
		return s.respondError(c, err)
	}

	message := "Post unliked"
	if liked {
		message = "Post liked"
	}
	return c.JSON(fiber.Map{
		"success": true,
		"liked":   liked,
		"message": message,
	})
}

// DeletePost handles PUT /api/deletepost
func (s *Server) DeletePost(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	var req struct {
		PostID     uint   `json:"post_id"`
		PostAuthor string `json:"post_author"`
	}
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, models.NewValidationError("Invalid request body"))
	}

	err := s.postService.DeletePost(c.UserContext(), service.DeletePostInput{
		UserID:     claims.UserID,
		Username:   claims.Username,
		PostID:     req.PostID,
		PostAuthor: req.PostAuthor,
	})
	if err != nil {
		return s.respondError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Post deleted successfully"})
}
