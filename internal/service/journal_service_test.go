package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/bloom/internal/domain"
)

func newJournal(t *testing.T, facts *stubIdentifier) (*JournalService, *fixture) {
	t.Helper()
	f := newFixture(t)
	var svc *JournalService
	if facts != nil {
		svc = NewJournalService(f.repo, f.photos, facts, nil, discardLogger())
	} else {
		svc = NewJournalService(f.repo, f.photos, nil, nil, discardLogger())
	}
	return svc, f
}

// seed stores a discovery with a real image file behind it.
func seed(t *testing.T, f *fixture, name, userID string, ts time.Time) *domain.Discovery {
	t.Helper()
	ctx := context.Background()
	key, err := f.photos.Save(ctx, photoPrefix, "image/jpeg", strings.NewReader("img"))
	require.NoError(t, err)
	d := domain.NewDiscovery(name+"-"+userID, name, name+" fact", key, userID, ts)
	require.NoError(t, f.repo.Save(ctx, d))
	return d
}

func names(ds []*domain.Discovery) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Name)
	}
	return out
}

func TestJournalWatchOrderingAndSearch(t *testing.T) {
	svc, f := newJournal(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t1 := time.Now().Add(-time.Hour)
	seed(t, f, "Rose", "u1", t1)
	seed(t, f, "Oak", "u1", t1.Add(time.Minute))
	seed(t, f, "Rosemary", "u2", t1)

	all := <-svc.Watch(ctx, "u1", "   ")
	require.NoError(t, all.Err)
	assert.Equal(t, []string{"Oak", "Rose"}, names(all.Value))

	found := <-svc.Watch(ctx, "u1", "ro")
	require.NoError(t, found.Err)
	assert.Equal(t, []string{"Rose"}, names(found.Value))

	list, err := svc.List(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Oak", "Rose"}, names(list))
}

func TestJournalLoadDetail(t *testing.T) {
	svc, f := newJournal(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := seed(t, f, "Rose", "u1", time.Now())

	states := svc.LoadDetail(ctx, "u1", d.ID)
	first := <-states
	require.NoError(t, first.Err)
	require.NotNil(t, first.Discovery)
	assert.Equal(t, "Rose", first.Discovery.Name)
	assert.False(t, first.NotFound)

	require.NoError(t, svc.Delete(ctx, "u1", d.ID))

	gone := <-states
	assert.True(t, gone.NotFound)
	_, open := <-states
	assert.False(t, open, "stream closes after not found")
}

func TestJournalLoadDetailMissingAndForeign(t *testing.T) {
	svc, f := newJournal(t, nil)
	ctx := context.Background()

	missing := <-svc.LoadDetail(ctx, "u1", "never-inserted")
	assert.True(t, missing.NotFound)
	assert.NoError(t, missing.Err)

	d := seed(t, f, "Oak", "u2", time.Now())
	foreign := <-svc.LoadDetail(ctx, "u1", d.ID)
	assert.True(t, foreign.NotFound)
}

func TestJournalDeleteRemovesImage(t *testing.T) {
	svc, f := newJournal(t, nil)
	ctx := context.Background()

	d := seed(t, f, "Rose", "u1", time.Now())
	require.NoError(t, svc.Delete(ctx, "u1", d.ID))

	_, err := os.Stat(filepath.Join(f.dir, d.ImagePath))
	assert.True(t, os.IsNotExist(err))

	_, err = svc.Get(ctx, "u1", d.ID)
	assert.ErrorIs(t, err, ErrDiscoveryNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "u1", d.ID), ErrDiscoveryNotFound)
}

func TestJournalDeleteSwallowsImageErrors(t *testing.T) {
	svc, f := newJournal(t, nil)
	ctx := context.Background()

	d := seed(t, f, "Rose", "u1", time.Now())
	require.NoError(t, os.Remove(filepath.Join(f.dir, d.ImagePath)))

	assert.NoError(t, svc.Delete(ctx, "u1", d.ID))
}

func TestJournalDeleteForeignIsNotFound(t *testing.T) {
	svc, f := newJournal(t, nil)
	ctx := context.Background()

	d := seed(t, f, "Rose", "u2", time.Now())
	assert.ErrorIs(t, svc.Delete(ctx, "u1", d.ID), ErrDiscoveryNotFound)

	still, err := f.repo.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.NotNil(t, still)
}

func TestJournalStats(t *testing.T) {
	svc, f := newJournal(t, nil)
	ctx := context.Background()

	assert.Equal(t, domain.DiscoveryStats{}, svc.Stats(ctx, "u1"))
	seed(t, f, "Rose", "u1", time.Now())
	seed(t, f, "Oak", "u1", time.Now())
	assert.Equal(t, domain.DiscoveryStats{TotalDiscoveries: 2}, svc.Stats(ctx, "u1"))
}

func TestJournalRegenerateFact(t *testing.T) {
	svc, f := newJournal(t, &stubIdentifier{fact: "Roses are related to apples."})
	ctx := context.Background()

	d := seed(t, f, "Rose", "u1", time.Now())
	updated, err := svc.RegenerateFact(ctx, "u1", d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Roses are related to apples.", updated.AISummary)

	stored, err := f.repo.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Roses are related to apples.", stored.AISummary)
	assert.True(t, d.Timestamp.Equal(stored.Timestamp))
}

func TestJournalRegenerateFactErrors(t *testing.T) {
	svc, f := newJournal(t, nil)
	ctx := context.Background()
	d := seed(t, f, "Rose", "u1", time.Now())

	_, err := svc.RegenerateFact(ctx, "u1", d.ID)
	assert.ErrorIs(t, err, ErrFactsUnsupported)

	failing, f2 := newJournal(t, &stubIdentifier{err: errors.New("quota exceeded")})
	d2 := seed(t, f2, "Oak", "u1", time.Now())
	_, err = failing.RegenerateFact(ctx, "u1", d2.ID)
	assert.Error(t, err)

	_, err = failing.RegenerateFact(ctx, "u1", "missing")
	assert.ErrorIs(t, err, ErrDiscoveryNotFound)
}

func TestJournalPhoto(t *testing.T) {
	svc, f := newJournal(t, nil)
	ctx := context.Background()

	d := seed(t, f, "Rose", "u1", time.Now())
	rc, mimeType, err := svc.Photo(ctx, "u1", d.ID)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "img", string(data))
	assert.Equal(t, "image/jpeg", mimeType)

	_, _, err = svc.Photo(ctx, "u2", d.ID)
	assert.ErrorIs(t, err, ErrDiscoveryNotFound)
}

func TestJournalDeleteAllForUser(t *testing.T) {
	svc, f := newJournal(t, nil)
	ctx := context.Background()

	a := seed(t, f, "Rose", "u1", time.Now())
	seed(t, f, "Oak", "u1", time.Now())
	seed(t, f, "Bee", "u2", time.Now())

	n, err := svc.DeleteAllForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = os.Stat(filepath.Join(f.dir, a.ImagePath))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 1, svc.Stats(ctx, "u2").TotalDiscoveries)
}
