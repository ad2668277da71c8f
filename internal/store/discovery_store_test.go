package store

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/bloom/internal/db"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func record(id, name, userID string, ts int64) *DiscoveryRecord {
	return &DiscoveryRecord{
		ID:        id,
		Name:      name,
		AISummary: name + " fact",
		ImagePath: "discovery_" + id + ".jpg",
		Timestamp: ts,
		UserID:    userID,
	}
}

func TestDiscoveryStoreUpsertAndGet(t *testing.T) {
	s := NewDiscoveryStore(openTestDB(t))
	ctx := context.Background()

	rec := record("d1", "Ficus", "u1", 1000)
	require.NoError(t, s.Upsert(ctx, rec))

	got, err := s.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestDiscoveryStoreUpsertReplaces(t *testing.T) {
	s := NewDiscoveryStore(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, record("d1", "Ficus", "u1", 1000)))
	require.NoError(t, s.Upsert(ctx, record("d1", "Fig", "u1", 2000)))

	got, err := s.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Fig", got.Name)
	assert.Equal(t, int64(2000), got.Timestamp)

	n, err := s.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDiscoveryStoreGetByIDNotFound(t *testing.T) {
	s := NewDiscoveryStore(openTestDB(t))

	got, err := s.GetByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDiscoveryStoreUpsertMany(t *testing.T) {
	s := NewDiscoveryStore(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.UpsertMany(ctx, []*DiscoveryRecord{
		record("d1", "Rose", "u1", 1000),
		record("d2", "Oak", "u1", 2000),
		record("d3", "Ladybird", "u2", 3000),
	}))

	n, err := s.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDiscoveryStoreListByUserNewestFirst(t *testing.T) {
	s := NewDiscoveryStore(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, record("d1", "Rose", "u1", 1000)))
	require.NoError(t, s.Upsert(ctx, record("d2", "Oak", "u1", 2000)))
	require.NoError(t, s.Upsert(ctx, record("d3", "Bee", "u2", 3000)))

	recs, err := s.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Oak", recs[0].Name)
	assert.Equal(t, "Rose", recs[1].Name)
}

func TestDiscoveryStoreSearch(t *testing.T) {
	s := NewDiscoveryStore(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, record("d1", "Rose", "u1", 1000)))
	require.NoError(t, s.Upsert(ctx, record("d2", "Oak", "u1", 2000)))
	require.NoError(t, s.Upsert(ctx, record("d3", "Rosemary", "u2", 3000)))

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"substring", "ro", []string{"Rose"}},
		{"case insensitive", "OAK", []string{"Oak"}},
		{"empty returns all", "", []string{"Oak", "Rose"}},
		{"no match", "tulip", nil},
		{"wildcards are literal", "%", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := s.Search(ctx, "u1", tt.query)
			require.NoError(t, err)
			var names []string
			for _, r := range recs {
				names = append(names, r.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestDiscoveryStoreUpdate(t *testing.T) {
	s := NewDiscoveryStore(openTestDB(t))
	ctx := context.Background()

	rec := record("d1", "Rose", "u1", 1000)
	require.NoError(t, s.Upsert(ctx, rec))

	rec.AISummary = "Roses have prickles, not thorns."
	require.NoError(t, s.Update(ctx, rec))

	got, err := s.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Roses have prickles, not thorns.", got.AISummary)

	err = s.Update(ctx, record("missing", "X", "u1", 1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiscoveryStoreDelete(t *testing.T) {
	s := NewDiscoveryStore(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, record("d1", "Rose", "u1", 1000)))
	require.NoError(t, s.Delete(ctx, "d1"))

	got, err := s.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, s.DeleteByID(ctx, "d1"), ErrNotFound)
}

func TestDiscoveryStoreDeleteAllForUser(t *testing.T) {
	s := NewDiscoveryStore(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.UpsertMany(ctx, []*DiscoveryRecord{
		record("d1", "Rose", "u1", 1000),
		record("d2", "Oak", "u1", 2000),
		record("d3", "Bee", "u2", 3000),
	}))

	n, err := s.DeleteAllForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := s.Count(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, left)
}
