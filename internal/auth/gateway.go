// Package auth holds the signed-in identity of this bloom instance.
package auth

import (
	"context"
	"errors"

	"github.com/vbonduro/bloom/internal/domain"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrNotSignedIn        = errors.New("not signed in")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrFederatedDisabled  = errors.New("federated sign-in is not configured")
)

// Gateway is the identity provider seen by the rest of the application.
// At most one user is signed in at a time.
type Gateway interface {
	CurrentUser() *domain.User
	SignInWithPassword(ctx context.Context, email, password string) (*domain.User, error)
	SignUpWithPassword(ctx context.Context, email, password string) (*domain.User, error)
	SignInWithFederatedCredential(ctx context.Context, idToken string) (*domain.User, error)
	SignOut()
	SendPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
	DeleteCurrentAccount(ctx context.Context) error
	Refresh(ctx context.Context) (*domain.User, error)
	// Watch emits the current user (nil when signed out) immediately and
	// again after every sign-in, sign-out, refresh or account deletion.
	Watch(ctx context.Context) <-chan *domain.User
	SessionToken() string
}
