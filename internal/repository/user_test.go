package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"bearcatboard/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestUserRepository_CreateAndLookup(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := createUser(t, db)
	require.NotZero(t, user.ID)

	byID, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Username, byID.Username)

	byName, err := repo.GetByUsername(ctx, user.Username)
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, user.ID, byName.ID)

	byEmail, err := repo.GetByEmail(ctx, user.Email)
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, user.ID, byEmail.ID)

	either, err := repo.FindByEmailOrUsername(ctx, "nobody@example.com", user.Username)
	require.NoError(t, err)
	require.NotNil(t, either)
	assert.Equal(t, user.ID, either.ID)

	missing, err := repo.GetByUsername(ctx, "ghost")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := NewUserRepository(db).GetByID(context.Background(), 404)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestUserRepository_Create_Duplicate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	existing := createUser(t, db)

	tests := []struct {
		name string
		user *models.User
	}{
		{"same username", &models.User{Username: existing.Username, Email: "other@example.com", PasswordHash: "x"}},
		{"same email", &models.User{Username: "someone-else", Email: existing.Email, PasswordHash: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Create(context.Background(), tt.user)
			assert.True(t, models.HasCode(err, models.CodeConflict), "got %v", err)
		})
	}
}

func TestUserRepository_DriverFailure(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))

	_, err := repo.GetByEmail(context.Background(), "a@example.com")
	assert.True(t, models.HasCode(err, models.CodeInternal))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueConstraintError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm duplicated key", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"pg other violation", &pgconn.PgError{Code: "23503"}, false},
		{"sqlite message", errors.New("UNIQUE constraint failed: users.username"), true},
		{"postgres message", errors.New(`duplicate key value violates unique constraint "idx_users_email"`), true},
		{"other", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueConstraintError(tt.err))
		})
	}
}
