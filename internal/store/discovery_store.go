package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned by writes that target a row which does not exist.
var ErrNotFound = errors.New("not found")

// DiscoveryRecord is the persisted shape of a discovery. Timestamp is epoch
// milliseconds.
type DiscoveryRecord struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	AISummary string `db:"aiSummary"`
	ImagePath string `db:"imagePath"`
	Timestamp int64  `db:"timestamp"`
	UserID    string `db:"userId"`
}

const discoveryColumns = `id, name, aiSummary, imagePath, timestamp, userId`

const upsertDiscovery = `
	INSERT INTO discoveries (id, name, aiSummary, imagePath, timestamp, userId)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		aiSummary = excluded.aiSummary,
		imagePath = excluded.imagePath,
		timestamp = excluded.timestamp,
		userId = excluded.userId
`

type DiscoveryStore struct {
	db *sqlx.DB
}

func NewDiscoveryStore(db *sqlx.DB) *DiscoveryStore {
	return &DiscoveryStore{db: db}
}

// Upsert inserts rec, replacing any existing row with the same id.
func (s *DiscoveryStore) Upsert(ctx context.Context, rec *DiscoveryRecord) error {
	if _, err := s.db.ExecContext(ctx, upsertDiscovery, upsertArgs(rec)...); err != nil {
		return fmt.Errorf("failed to upsert discovery: %w", err)
	}
	return nil
}

// UpsertMany upserts all records in a single transaction.
func (s *DiscoveryStore) UpsertMany(ctx context.Context, recs []*DiscoveryRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, upsertDiscovery)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, upsertArgs(rec)...); err != nil {
			return fmt.Errorf("failed to upsert discovery %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upserts: %w", err)
	}
	return nil
}

// Update replaces the stored row for rec.ID. It returns ErrNotFound when no
// such row exists.
func (s *DiscoveryStore) Update(ctx context.Context, rec *DiscoveryRecord) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE discoveries
		SET name = ?, aiSummary = ?, imagePath = ?, timestamp = ?, userId = ?
		WHERE id = ?
	`, rec.Name, rec.AISummary, rec.ImagePath, rec.Timestamp, rec.UserID, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to update discovery: %w", err)
	}
	return requireAffected(result)
}

func (s *DiscoveryStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM discoveries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete discovery: %w", err)
	}
	return requireAffected(result)
}

// DeleteByID is an alias of Delete kept for callers that only hold an id.
func (s *DiscoveryStore) DeleteByID(ctx context.Context, id string) error {
	return s.Delete(ctx, id)
}

// DeleteAllForUser removes every discovery owned by userID and reports how
// many rows were removed.
func (s *DiscoveryStore) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM discoveries WHERE userId = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete discoveries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (s *DiscoveryStore) GetByID(ctx context.Context, id string) (*DiscoveryRecord, error) {
	rec := &DiscoveryRecord{}
	err := s.db.GetContext(ctx, rec, `SELECT `+discoveryColumns+` FROM discoveries WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get discovery: %w", err)
	}
	return rec, nil
}

// ListByUser returns the user's discoveries, newest first.
func (s *DiscoveryStore) ListByUser(ctx context.Context, userID string) ([]*DiscoveryRecord, error) {
	var recs []*DiscoveryRecord
	err := s.db.SelectContext(ctx, &recs, `
		SELECT `+discoveryColumns+` FROM discoveries
		WHERE userId = ?
		ORDER BY timestamp DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list discoveries: %w", err)
	}
	return recs, nil
}

// Search returns the user's discoveries whose name contains query, newest
// first. Matching is SQLite LIKE, so ASCII letters compare case-insensitively.
// An empty query matches everything.
func (s *DiscoveryStore) Search(ctx context.Context, userID, query string) ([]*DiscoveryRecord, error) {
	if query == "" {
		return s.ListByUser(ctx, userID)
	}

	var recs []*DiscoveryRecord
	err := s.db.SelectContext(ctx, &recs, `
		SELECT `+discoveryColumns+` FROM discoveries
		WHERE userId = ? AND name LIKE ? ESCAPE '\'
		ORDER BY timestamp DESC
	`, userID, "%"+escapeLike(query)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to search discoveries: %w", err)
	}
	return recs, nil
}

func (s *DiscoveryStore) Count(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM discoveries WHERE userId = ?`, userID); err != nil {
		return 0, fmt.Errorf("failed to count discoveries: %w", err)
	}
	return n, nil
}

func upsertArgs(rec *DiscoveryRecord) []any {
	return []any{rec.ID, rec.Name, rec.AISummary, rec.ImagePath, rec.Timestamp, rec.UserID}
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
