package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vbonduro/bloom/internal/domain"
	"github.com/vbonduro/bloom/internal/metrics"
	"github.com/vbonduro/bloom/internal/photostore"
	"github.com/vbonduro/bloom/internal/repository"
	"github.com/vbonduro/bloom/internal/vision"
	"github.com/vbonduro/bloom/internal/watch"
)

var (
	// ErrDiscoveryNotFound is returned for ids that do not exist or belong to
	// another user.
	ErrDiscoveryNotFound = errors.New("discovery not found")
	ErrFactsUnsupported  = errors.New("the configured vision backend cannot generate facts")
)

// journalRepository is the subset of repository.DiscoveryRepository that
// JournalService requires.
type journalRepository interface {
	WatchAll(ctx context.Context, userID string) <-chan watch.Result[[]*domain.Discovery]
	WatchByID(ctx context.Context, id string) <-chan watch.Result[*domain.Discovery]
	WatchSearch(ctx context.Context, userID, query string) <-chan watch.Result[[]*domain.Discovery]
	All(ctx context.Context, userID string) ([]*domain.Discovery, error)
	GetByID(ctx context.Context, id string) (*domain.Discovery, error)
	Search(ctx context.Context, userID, query string) ([]*domain.Discovery, error)
	Update(ctx context.Context, d *domain.Discovery) error
	DeleteByID(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	Count(ctx context.Context, userID string) int
}

// DetailState is one emission of LoadDetail. NotFound is terminal.
type DetailState struct {
	Discovery *domain.Discovery
	NotFound  bool
	Err       error
}

// JournalService serves a user's journal: listing, searching, detail,
// deletion and statistics.
type JournalService struct {
	repo    journalRepository
	photos  photostore.PhotoStore
	facts   vision.FactGenerator
	metrics *metrics.BloomMetrics
	logger  *slog.Logger
}

// NewJournalService builds the service. facts may be nil when the vision
// backend cannot generate facts.
func NewJournalService(
	repo journalRepository,
	photos photostore.PhotoStore,
	facts vision.FactGenerator,
	m *metrics.BloomMetrics,
	logger *slog.Logger,
) *JournalService {
	return &JournalService{
		repo:    repo,
		photos:  photos,
		facts:   facts,
		metrics: m,
		logger:  logger,
	}
}

// Watch streams the user's journal, newest first. A blank query lists
// everything; otherwise only names containing query are included.
func (s *JournalService) Watch(ctx context.Context, userID, query string) <-chan watch.Result[[]*domain.Discovery] {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.repo.WatchAll(ctx, userID)
	}
	return s.repo.WatchSearch(ctx, userID, query)
}

// List is the one-shot form of Watch.
func (s *JournalService) List(ctx context.Context, userID, query string) ([]*domain.Discovery, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.repo.All(ctx, userID)
	}
	return s.repo.Search(ctx, userID, query)
}

func (s *JournalService) Get(ctx context.Context, userID, id string) (*domain.Discovery, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil || d.UserID != userID {
		return nil, ErrDiscoveryNotFound
	}
	return d, nil
}

// LoadDetail streams one discovery. Once it is gone (or never existed) a
// NotFound state is sent and the stream closes.
func (s *JournalService) LoadDetail(ctx context.Context, userID, id string) <-chan DetailState {
	out := make(chan DetailState)
	ctx, cancel := context.WithCancel(ctx)
	results := s.repo.WatchByID(ctx, id)

	go func() {
		defer close(out)
		defer cancel()

		for r := range results {
			st := DetailState{Discovery: r.Value, Err: r.Err}
			if r.Err == nil && (r.Value == nil || r.Value.UserID != userID) {
				st = DetailState{NotFound: true}
			}
			select {
			case out <- st:
			case <-ctx.Done():
				return
			}
			if st.NotFound {
				return
			}
		}
	}()

	return out
}

// Delete removes the discovery and then its image. A failure to remove the
// image is logged and otherwise ignored.
func (s *JournalService) Delete(ctx context.Context, userID, id string) error {
	d, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrDiscoveryNotFound
		}
		return err
	}
	s.metrics.AddDeleted(1)
	s.logger.Info("discovery deleted", "discovery_id", id)

	s.removeImage(ctx, d)
	return nil
}

// DeleteAllForUser removes every discovery of the user along with the images.
func (s *JournalService) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	all, err := s.repo.All(ctx, userID)
	if err != nil {
		return 0, err
	}

	n, err := s.repo.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.metrics.AddDeleted(int(n))
	s.logger.Info("discoveries deleted", "user_id", userID, "count", n)

	for _, d := range all {
		s.removeImage(ctx, d)
	}
	return n, nil
}

func (s *JournalService) Stats(ctx context.Context, userID string) domain.DiscoveryStats {
	return domain.DiscoveryStats{TotalDiscoveries: s.repo.Count(ctx, userID)}
}

// RegenerateFact replaces the discovery's fun fact with a fresh one.
func (s *JournalService) RegenerateFact(ctx context.Context, userID, id string) (*domain.Discovery, error) {
	if s.facts == nil {
		return nil, ErrFactsUnsupported
	}

	d, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	fact, err := s.facts.GenerateFact(ctx, d.Name)
	if err != nil {
		return nil, err
	}

	updated := *d
	updated.AISummary = fact
	if err := s.repo.Update(ctx, &updated); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDiscoveryNotFound
		}
		return nil, err
	}
	s.logger.Info("fun fact regenerated", "discovery_id", id)
	return &updated, nil
}

// Photo opens the discovery's image.
func (s *JournalService) Photo(ctx context.Context, userID, id string) (io.ReadCloser, string, error) {
	d, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, "", err
	}
	rc, mimeType, err := s.photos.Get(ctx, d.ImagePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image: %w", err)
	}
	return rc, mimeType, nil
}

func (s *JournalService) removeImage(ctx context.Context, d *domain.Discovery) {
	if d.ImagePath == "" {
		return
	}
	if ok, err := s.photos.Exists(ctx, d.ImagePath); err == nil && !ok {
		s.logger.Debug("discovery image already gone", "discovery_id", d.ID, "image_path", d.ImagePath)
		return
	}
	if err := s.photos.Delete(ctx, d.ImagePath); err != nil {
		s.logger.Warn("failed to delete discovery image", "discovery_id", d.ID, "image_path", d.ImagePath, "error", err)
	}
}
