package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"

	"github.com/vbonduro/bloom/internal/domain"
	"github.com/vbonduro/bloom/internal/notify"
	"github.com/vbonduro/bloom/internal/store"
	"github.com/vbonduro/bloom/internal/watch"
)

const minPasswordLength = 6

// userStore is the subset of store.UserStore that LocalGateway requires.
type userStore interface {
	Create(ctx context.Context, u *store.UserRecord) error
	GetByID(ctx context.Context, id string) (*store.UserRecord, error)
	GetByEmail(ctx context.Context, email string) (*store.UserRecord, error)
	GetBySubject(ctx context.Context, subject string) (*store.UserRecord, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error
}

// AccountDeleteHook runs before an account is removed. An error aborts the
// deletion.
type AccountDeleteHook func(ctx context.Context, userID string) error

type Options struct {
	JWTSecret  string
	SessionTTL time.Duration
	// SessionFile, when set, persists the session token so other bloom
	// processes on this machine share the identity.
	SessionFile string
	ResetTTL    time.Duration
	Federated   *FederatedVerifier
}

// LocalGateway authenticates against the local users table.
type LocalGateway struct {
	users     userStore
	sessions  *SessionManager
	federated *FederatedVerifier
	resets    *cache.Cache
	resetTTL  time.Duration
	notifier  notify.Notifier
	logger    *slog.Logger

	sessionFile string

	mu          sync.Mutex
	token       string
	deleteHooks []AccountDeleteHook

	state *watch.Value[*domain.User]
}

func NewLocalGateway(users userStore, notifier notify.Notifier, opts Options, logger *slog.Logger) *LocalGateway {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * 24 * time.Hour
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}
	return &LocalGateway{
		users:       users,
		sessions:    NewSessionManager(opts.JWTSecret, opts.SessionTTL),
		federated:   opts.Federated,
		resets:      cache.New(opts.ResetTTL, 2*opts.ResetTTL),
		resetTTL:    opts.ResetTTL,
		notifier:    notifier,
		logger:      logger,
		sessionFile: opts.SessionFile,
		state:       watch.NewValue[*domain.User](nil),
	}
}

// OnAccountDelete registers a hook run by DeleteCurrentAccount.
func (g *LocalGateway) OnAccountDelete(hook AccountDeleteHook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleteHooks = append(g.deleteHooks, hook)
}

func (g *LocalGateway) CurrentUser() *domain.User {
	u := g.state.Get()
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func (g *LocalGateway) SessionToken() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token
}

func (g *LocalGateway) Watch(ctx context.Context) <-chan *domain.User {
	return g.state.Watch(ctx)
}

func (g *LocalGateway) SignUpWithPassword(ctx context.Context, email, password string) (*domain.User, error) {
	email, err := normaliseEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	rec := &store.UserRecord{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  displayNameFromEmail(email),
		Provider:     domain.ProviderPassword,
		CreatedAt:    time.Now().UnixMilli(),
	}
	if err := g.users.Create(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	g.logger.Info("account created", "user_id", rec.ID)
	return g.establish(rec)
}

func (g *LocalGateway) SignInWithPassword(ctx context.Context, email, password string) (*domain.User, error) {
	email, err := normaliseEmail(email)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ErrInvalidCredentials
	}

	rec, err := g.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if rec == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return g.establish(rec)
}

func (g *LocalGateway) SignInWithFederatedCredential(ctx context.Context, idToken string) (*domain.User, error) {
	if g.federated == nil {
		return nil, ErrFederatedDisabled
	}

	claims, err := g.federated.Verify(idToken)
	if err != nil {
		return nil, err
	}

	rec, err := g.users.GetBySubject(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if rec == nil {
		name := claims.Name
		if name == "" {
			name = displayNameFromEmail(claims.Email)
		}
		rec = &store.UserRecord{
			ID:          uuid.NewString(),
			Email:       claims.Email,
			DisplayName: name,
			Provider:    domain.ProviderFederated,
			Subject:     claims.Subject,
			CreatedAt:   time.Now().UnixMilli(),
		}
		if err := g.users.Create(ctx, rec); err != nil {
			if !errors.Is(err, store.ErrDuplicate) {
				return nil, fmt.Errorf("failed to create account: %w", err)
			}
			// A concurrent first sign-in for this subject won the insert.
			existing, lookupErr := g.users.GetBySubject(ctx, claims.Subject)
			if lookupErr != nil {
				return nil, fmt.Errorf("failed to look up account: %w", lookupErr)
			}
			if existing == nil {
				return nil, fmt.Errorf("failed to create account: %w", err)
			}
			rec = existing
		} else {
			g.logger.Info("federated account created", "user_id", rec.ID)
		}
	}

	return g.establish(rec)
}

func (g *LocalGateway) SignOut() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clearLocked()
}

// SendPasswordReset sends a reset token to the account's email. Unknown
// addresses succeed without sending anything.
func (g *LocalGateway) SendPasswordReset(ctx context.Context, email string) error {
	email, err := normaliseEmail(email)
	if err != nil {
		return err
	}

	rec, err := g.users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to look up account: %w", err)
	}
	if rec == nil {
		g.logger.Info("password reset requested for unknown email")
		return nil
	}

	token := rand.Text()
	g.resets.Set(token, rec.ID, g.resetTTL)

	msg := notify.Message{
		To:    rec.Email,
		Title: "Reset your bloom password",
		Body: fmt.Sprintf("Use this code to reset your bloom password: %s\nIt expires in %s.",
			token, g.resetTTL.Round(time.Minute)),
	}
	if err := g.notifier.Notify(ctx, msg); err != nil {
		g.resets.Delete(token)
		return fmt.Errorf("failed to send password reset: %w", err)
	}
	return nil
}

func (g *LocalGateway) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}

	v, ok := g.resets.Get(token)
	if !ok {
		return ErrInvalidToken
	}
	userID, _ := v.(string)

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := g.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("failed to update password: %w", err)
	}

	g.resets.Delete(token)
	g.logger.Info("password reset", "user_id", userID)
	return nil
}

// DeleteCurrentAccount removes the signed-in account and signs out. With no
// one signed in it does nothing.
func (g *LocalGateway) DeleteCurrentAccount(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	u := g.state.Get()
	if u == nil {
		return nil
	}

	for _, hook := range g.deleteHooks {
		if err := hook(ctx, u.ID); err != nil {
			return fmt.Errorf("failed to delete account data: %w", err)
		}
	}
	if err := g.users.Delete(ctx, u.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	g.logger.Info("account deleted", "user_id", u.ID)
	g.clearLocked()
	return nil
}

// Refresh re-issues the session token and publishes the user again. A
// sign-out or account switch during the lookup wins over the refresh.
func (g *LocalGateway) Refresh(ctx context.Context) (*domain.User, error) {
	current := g.state.Get()
	if current == nil {
		return nil, ErrNotSignedIn
	}

	rec, err := g.users.GetByID(ctx, current.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	var token string
	if rec != nil {
		if token, err = g.sessions.Issue(rec.ID, rec.Email); err != nil {
			return nil, err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if u := g.state.Get(); u == nil || u.ID != current.ID {
		return nil, ErrNotSignedIn
	}
	if rec == nil {
		g.clearLocked()
		return nil, ErrNotSignedIn
	}
	return g.publishLocked(rec, token), nil
}

// Restore resumes the session saved in the session file, if any. A missing,
// expired or orphaned session leaves the gateway signed out.
func (g *LocalGateway) Restore(ctx context.Context) (*domain.User, error) {
	if g.sessionFile == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(g.sessionFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	claims, err := g.sessions.Validate(strings.TrimSpace(string(raw)))
	if err != nil {
		g.logger.Info("discarding saved session", "error", err)
		g.removeSessionFile()
		return nil, nil
	}

	rec, err := g.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if rec == nil {
		g.removeSessionFile()
		return nil, nil
	}
	return g.establish(rec)
}

func (g *LocalGateway) establish(rec *store.UserRecord) (*domain.User, error) {
	token, err := g.sessions.Issue(rec.ID, rec.Email)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.publishLocked(rec, token), nil
}

func (g *LocalGateway) publishLocked(rec *store.UserRecord, token string) *domain.User {
	u := toDomainUser(rec)
	g.token = token
	g.writeSessionFile(token)
	g.state.Set(u)

	c := *u
	return &c
}

func (g *LocalGateway) clearLocked() {
	g.token = ""
	g.removeSessionFile()
	g.state.Set(nil)
}

func (g *LocalGateway) writeSessionFile(token string) {
	if g.sessionFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(g.sessionFile), 0o700); err != nil {
		g.logger.Error("failed to create session directory", "error", err)
		return
	}
	if err := os.WriteFile(g.sessionFile, []byte(token), 0o600); err != nil {
		g.logger.Error("failed to write session file", "error", err)
	}
}

func (g *LocalGateway) removeSessionFile() {
	if g.sessionFile == "" {
		return
	}
	if err := os.Remove(g.sessionFile); err != nil && !os.IsNotExist(err) {
		g.logger.Error("failed to remove session file", "error", err)
	}
}

func normaliseEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func displayNameFromEmail(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}

func toDomainUser(rec *store.UserRecord) *domain.User {
	return &domain.User{
		ID:          rec.ID,
		Email:       rec.Email,
		DisplayName: rec.DisplayName,
		Provider:    rec.Provider,
		CreatedAt:   time.UnixMilli(rec.CreatedAt),
	}
}

var _ Gateway = (*LocalGateway)(nil)
