package repository

import (
	"context"
	"errors"

	"bearcatboard/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionRepository persists refresh-token sessions by token hash.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	FindByUserAndHash(ctx context.Context, userID uint, tokenHash string) (*models.Session, error)
	Rotate(ctx context.Context, sessionID uint, oldHash, newHash string) (bool, error)
	DeleteByHash(ctx context.Context, tokenHash string) (int64, error)
	DeleteByUser(ctx context.Context, userID uint) (int64, error)
	CountByUser(ctx context.Context, userID uint) (int64, error)
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository returns a new SessionRepository implementation.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *models.Session) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(session).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// FindByUserAndHash returns nil, nil when the session was revoked or never existed.
func (r *sessionRepository) FindByUserAndHash(ctx context.Context, userID uint, tokenHash string) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND token_hash = ?", userID, tokenHash).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &session, nil
}

// Rotate swaps the stored hash only if it still equals oldHash.
// It reports false when another refresh won the race or the session is gone.
func (r *sessionRepository) Rotate(ctx context.Context, sessionID uint, oldHash, newHash string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND token_hash = ?", sessionID, oldHash).
		Update("token_hash", newHash)
	if result.Error != nil {
		return false, models.NewInternalError(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *sessionRepository) DeleteByHash(ctx context.Context, tokenHash string) (int64, error) {
	result := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&models.Session{})
	if result.Error != nil {
		return 0, models.NewInternalError(result.Error)
	}
	return result.RowsAffected, nil
}

func (r *sessionRepository) DeleteByUser(ctx context.Context, userID uint) (int64, error) {
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Session{})
	if result.Error != nil {
		return 0, models.NewInternalError(result.Error)
	}
	return result.RowsAffected, nil
}

func (r *sessionRepository) CountByUser(ctx context.Context, userID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Session{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}
