package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vbonduro/bloom/internal/db"
	"github.com/vbonduro/bloom/internal/domain"
	"github.com/vbonduro/bloom/internal/photostore/local"
	"github.com/vbonduro/bloom/internal/repository"
	"github.com/vbonduro/bloom/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubIdentifier is a minimal vision.Identifier and vision.FactGenerator.
type stubIdentifier struct {
	mu     sync.Mutex
	result *domain.Identification
	err    error
	fact   string
	calls  int
}

func (s *stubIdentifier) Identify(_ context.Context, r io.Reader, _ string) (*domain.Identification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	return s.result, s.err
}

func (s *stubIdentifier) GenerateFact(_ context.Context, _ string) (string, error) {
	return s.fact, s.err
}

// stubUser is a fixed current-user source.
type stubUser struct {
	user *domain.User
}

func (s *stubUser) CurrentUser() *domain.User {
	return s.user
}

type fixture struct {
	repo   *repository.DiscoveryRepository
	photos *local.LocalPhotoStore
	dir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	dir := t.TempDir()
	photos, err := local.NewLocalPhotoStore(dir)
	require.NoError(t, err)

	return &fixture{
		repo:   repository.NewDiscoveryRepository(store.NewDiscoveryStore(d), discardLogger()),
		photos: photos,
		dir:    dir,
	}
}
