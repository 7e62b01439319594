package repository

import (
	"context"
	"errors"

	"bearcatboard/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	List(ctx context.Context, limit, offset int, viewerID uint) ([]*models.Post, error)
	ListByUsername(ctx context.Context, username string, limit, offset int, viewerID uint) ([]*models.Post, error)
	Delete(ctx context.Context, id, authorID uint) error
	ToggleLike(ctx context.Context, userID, postID uint) (bool, error)
}

// feedColumns lists the post columns returned to clients with the author and like data.
const feedColumns = "posts.id, posts.author_id, posts.title, posts.content, posts.nsfw, posts.sensitive, " +
	"posts.created_at, posts.updated_at, " +
	"users.username AS username, users.avatar AS avatar, " +
	"(SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id) AS like_count, " +
	"EXISTS(SELECT 1 FROM likes WHERE likes.post_id = posts.id AND likes.user_id = ?) AS has_liked"

var errAlreadyLiked = errors.New("like already exists")

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context, limit, offset int, viewerID uint) ([]*models.Post, error) {
	return r.find(r.feed(ctx, viewerID), limit, offset)
}

func (r *postRepository) ListByUsername(ctx context.Context, username string, limit, offset int, viewerID uint) ([]*models.Post, error) {
	return r.find(r.feed(ctx, viewerID).Where("users.username = ?", username), limit, offset)
}

// feed selects posts joined with their author and like data for viewerID.
func (r *postRepository) feed(ctx context.Context, viewerID uint) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Post{}).
		Select(feedColumns, viewerID).
		Joins("JOIN users ON users.id = posts.author_id AND users.deleted_at IS NULL")
}

func (r *postRepository) find(q *gorm.DB, limit, offset int) ([]*models.Post, error) {
	posts := make([]*models.Post, 0, limit)
	// GORM drops a non-positive OFFSET, which would silently serve the first page.
	if offset < 0 {
		return posts, nil
	}
	err := q.Order("posts.created_at DESC, posts.id DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

// Delete removes the post owned by authorID together with its likes.
func (r *postRepository) Delete(ctx context.Context, id, authorID uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ? AND author_id = ?", id, authorID).Delete(&models.Post{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.NewNotFoundError("Post", id)
		}
		return nil
	})
	return wrapTxError(err)
}

// ToggleLike adds the like when absent and removes it when present.
// It reports whether the post is liked afterwards.
func (r *postRepository) ToggleLike(ctx context.Context, userID, postID uint) (bool, error) {
	var liked bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Post{}).Where("id = ?", postID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return models.NewNotFoundError("Post", postID)
		}

		removed := tx.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.Like{})
		if removed.Error != nil {
			return removed.Error
		}
		if removed.RowsAffected > 0 {
			liked = false
			return nil
		}

		if err := tx.Omit(clause.Associations).Create(&models.Like{UserID: userID, PostID: postID}).Error; err != nil {
			if isUniqueConstraintError(err) {
				return errAlreadyLiked
			}
			return err
		}
		liked = true
		return nil
	})

	// A concurrent toggle inserted the same like first.
	if errors.Is(err, errAlreadyLiked) {
		return true, nil
	}
	if err != nil {
		return false, wrapTxError(err)
	}
	return liked, nil
}

// wrapTxError keeps AppErrors raised inside a transaction and wraps driver errors.
func wrapTxError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewInternalError(err)
}
