// Package repository is the only path between the journal services and the
// discovery store. It maps persisted records to domain values and turns reads
// into streams that refresh after every write made through it.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vbonduro/bloom/internal/domain"
	"github.com/vbonduro/bloom/internal/store"
	"github.com/vbonduro/bloom/internal/watch"
)

// ErrNotFound is returned by Update and DeleteByID when the discovery does
// not exist.
var ErrNotFound = errors.New("discovery not found")

// discoveryStore is the subset of store.DiscoveryStore the repository requires.
type discoveryStore interface {
	Upsert(ctx context.Context, rec *store.DiscoveryRecord) error
	UpsertMany(ctx context.Context, recs []*store.DiscoveryRecord) error
	Update(ctx context.Context, rec *store.DiscoveryRecord) error
	Delete(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	GetByID(ctx context.Context, id string) (*store.DiscoveryRecord, error)
	ListByUser(ctx context.Context, userID string) ([]*store.DiscoveryRecord, error)
	Search(ctx context.Context, userID, query string) ([]*store.DiscoveryRecord, error)
	Count(ctx context.Context, userID string) (int, error)
}

type DiscoveryRepository struct {
	store  discoveryStore
	hub    *watch.Hub
	logger *slog.Logger
}

func NewDiscoveryRepository(s discoveryStore, logger *slog.Logger) *DiscoveryRepository {
	return &DiscoveryRepository{
		store:  s,
		hub:    watch.NewHub(),
		logger: logger,
	}
}

// WatchAll streams the user's discoveries, newest first.
func (r *DiscoveryRepository) WatchAll(ctx context.Context, userID string) <-chan watch.Result[[]*domain.Discovery] {
	return watch.Query(ctx, r.hub, func(ctx context.Context) ([]*domain.Discovery, error) {
		return r.All(ctx, userID)
	})
}

// WatchByID streams a single discovery; the value is nil while it does not exist.
func (r *DiscoveryRepository) WatchByID(ctx context.Context, id string) <-chan watch.Result[*domain.Discovery] {
	return watch.Query(ctx, r.hub, func(ctx context.Context) (*domain.Discovery, error) {
		return r.GetByID(ctx, id)
	})
}

// WatchSearch streams the user's discoveries whose name contains query.
func (r *DiscoveryRepository) WatchSearch(ctx context.Context, userID, query string) <-chan watch.Result[[]*domain.Discovery] {
	return watch.Query(ctx, r.hub, func(ctx context.Context) ([]*domain.Discovery, error) {
		return r.Search(ctx, userID, query)
	})
}

func (r *DiscoveryRepository) All(ctx context.Context, userID string) ([]*domain.Discovery, error) {
	recs, err := r.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load discoveries: %w", err)
	}
	return toDomainList(recs), nil
}

func (r *DiscoveryRepository) GetByID(ctx context.Context, id string) (*domain.Discovery, error) {
	rec, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load discovery: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	return toDomain(rec), nil
}

func (r *DiscoveryRepository) Search(ctx context.Context, userID, query string) ([]*domain.Discovery, error) {
	recs, err := r.store.Search(ctx, userID, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search discoveries: %w", err)
	}
	return toDomainList(recs), nil
}

// Save inserts d, replacing any discovery with the same id.
func (r *DiscoveryRepository) Save(ctx context.Context, d *domain.Discovery) error {
	if err := r.store.Upsert(ctx, toRecord(d)); err != nil {
		return fmt.Errorf("failed to save discovery: %w", err)
	}
	r.hub.Notify()
	return nil
}

func (r *DiscoveryRepository) SaveMany(ctx context.Context, ds []*domain.Discovery) error {
	if len(ds) == 0 {
		return nil
	}
	recs := make([]*store.DiscoveryRecord, 0, len(ds))
	for _, d := range ds {
		recs = append(recs, toRecord(d))
	}
	if err := r.store.UpsertMany(ctx, recs); err != nil {
		return fmt.Errorf("failed to save discoveries: %w", err)
	}
	r.hub.Notify()
	return nil
}

func (r *DiscoveryRepository) Update(ctx context.Context, d *domain.Discovery) error {
	if err := r.store.Update(ctx, toRecord(d)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update discovery: %w", err)
	}
	r.hub.Notify()
	return nil
}

func (r *DiscoveryRepository) Delete(ctx context.Context, d *domain.Discovery) error {
	return r.DeleteByID(ctx, d.ID)
}

func (r *DiscoveryRepository) DeleteByID(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete discovery: %w", err)
	}
	r.hub.Notify()
	return nil
}

// DeleteAllForUser removes every discovery the user owns and reports how many
// were removed.
func (r *DiscoveryRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	n, err := r.store.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete discoveries: %w", err)
	}
	if n > 0 {
		r.hub.Notify()
	}
	return n, nil
}

// Count never fails: a store error is logged and reported as zero.
func (r *DiscoveryRepository) Count(ctx context.Context, userID string) int {
	n, err := r.store.Count(ctx, userID)
	if err != nil {
		r.logger.Warn("failed to count discoveries", "user_id", userID, "error", err)
		return 0
	}
	return n
}

func toDomain(rec *store.DiscoveryRecord) *domain.Discovery {
	return &domain.Discovery{
		ID:        rec.ID,
		Name:      rec.Name,
		AISummary: rec.AISummary,
		ImagePath: rec.ImagePath,
		Timestamp: time.UnixMilli(rec.Timestamp),
		UserID:    rec.UserID,
	}
}

func toDomainList(recs []*store.DiscoveryRecord) []*domain.Discovery {
	out := make([]*domain.Discovery, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toDomain(rec))
	}
	return out
}

func toRecord(d *domain.Discovery) *store.DiscoveryRecord {
	return &store.DiscoveryRecord{
		ID:        d.ID,
		Name:      d.Name,
		AISummary: d.AISummary,
		ImagePath: d.ImagePath,
		Timestamp: d.Timestamp.UnixMilli(),
		UserID:    d.UserID,
	}
}
