package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// ErrDuplicate is returned when a user with the same email or federated
// subject already exists.
var ErrDuplicate = errors.New("duplicate")

// UserRecord is the persisted shape of an account. CreatedAt is epoch
// milliseconds.
type UserRecord struct {
	ID           string `db:"id"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	DisplayName  string `db:"display_name"`
	Provider     string `db:"provider"`
	Subject      string `db:"subject"`
	CreatedAt    int64  `db:"created_at"`
}

const userColumns = `id, email, password_hash, display_name, provider, subject, created_at`

type UserStore struct {
	db *sqlx.DB
}

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, u *UserRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.PasswordHash, u.DisplayName, u.Provider, u.Subject, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*UserRecord, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByEmail looks up a password account; the comparison ignores case.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*UserRecord, error) {
	return s.getOne(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE provider = 'password' AND email = ? COLLATE NOCASE
	`, email)
}

// GetBySubject looks up a federated account by the identity provider's subject.
func (s *UserStore) GetBySubject(ctx context.Context, subject string) (*UserRecord, error) {
	return s.getOne(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE provider = 'federated' AND subject = ?
	`, subject)
}

func (s *UserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireAffected(result)
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireAffected(result)
}

func (s *UserStore) getOne(ctx context.Context, query string, args ...any) (*UserRecord, error) {
	u := &UserRecord{}
	err := s.db.GetContext(ctx, u, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
