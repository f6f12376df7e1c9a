package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"presence-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserStatusRepository abstracts the user directory lookup performed during
// the websocket handshake.
type UserStatusRepository interface {
	LoadUserStatus(ctx context.Context, userID string) (models.UserStatus, error)
}

// UserStatusRepo is a sqlx implementation of UserStatusRepository.
type UserStatusRepo struct {
	db *sqlx.DB
}

// NewUserStatusRepo constructs a UserStatusRepo.
func NewUserStatusRepo(db *sqlx.DB) *UserStatusRepo {
	return &UserStatusRepo{db: db}
}

// LoadUserStatus fetches the directory record for a user id.
func (r *UserStatusRepo) LoadUserStatus(ctx context.Context, userID string) (models.UserStatus, error) {
	var status models.UserStatus
	err := r.db.GetContext(ctx, &status, `SELECT id, display_name, role, is_active FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserStatus{}, ErrUserNotFound
	}
	if err != nil {
		return models.UserStatus{}, err
	}
	return status, nil
}
