package service

import (
	"context"
	"math"
	"strings"

	"bearcatboard/internal/models"
	"bearcatboard/internal/repository"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	// maxPage keeps (page-1)*limit from overflowing int.
	maxPage = math.MaxInt / MaxPageSize

	maxTitleLen   = 300
	maxContentLen = 50000
)

type PostService struct {
	postRepo repository.PostRepository
}

type CreatePostInput struct {
	AuthorID uint
	Title    string
	Content  string
}

// ListPostsInput selects one page of the feed. An empty Username lists every author.
type ListPostsInput struct {
	ViewerID uint
	Username string
	Page     int
	Limit    int
}

// DeletePostInput identifies the caller and the post. PostAuthor is the
// username the client believes wrote the post; when set it must be the caller.
type DeletePostInput struct {
	UserID     uint
	Username   string
	PostID     uint
	PostAuthor string
}

func NewPostService(postRepo repository.PostRepository) *PostService {
	return &PostService{postRepo: postRepo}
}

// Paginate normalizes page and limit and returns limit and offset.
func Paginate(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return limit, (page - 1) * limit
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, models.NewValidationError("Your post needs content!")
	}
	if len(in.Content) > maxContentLen {
		return nil, models.NewValidationError("Content too long (max 50000 characters)")
	}

	post := &models.Post{AuthorID: in.AuthorID, Content: in.Content}
	if title := strings.TrimSpace(in.Title); title != "" {
		if len(title) > maxTitleLen {
			return nil, models.NewValidationError("Title too long (max 300 characters)")
		}
		post.Title = &title
	}

	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) ListPosts(ctx context.Context, in ListPostsInput) ([]*models.Post, error) {
	limit, offset := Paginate(in.Page, in.Limit)
	if in.Username != "" {
		return s.postRepo.ListByUsername(ctx, in.Username, limit, offset, in.ViewerID)
	}
	return s.postRepo.List(ctx, limit, offset, in.ViewerID)
}

// ToggleLike likes or unlikes postID for userID and reports the new state.
func (s *PostService) ToggleLike(ctx context.Context, userID, postID uint) (bool, error) {
	if postID == 0 {
		return false, models.NewValidationError("post_id is required")
	}
	return s.postRepo.ToggleLike(ctx, userID, postID)
}

// DeletePost removes a post written by the caller.
func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) error {
	if in.PostID == 0 {
		return models.NewValidationError("post_id is required")
	}

	post, err := s.postRepo.GetByID(ctx, in.PostID)
	if err != nil {
		return err
	}
	if post.AuthorID != in.UserID || (in.PostAuthor != "" && in.PostAuthor != in.Username) {
		return models.NewForbiddenError("You can only delete your own posts")
	}

	return s.postRepo.Delete(ctx, in.PostID, in.UserID)
}
