package offers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/offer-extractor/internal/domain"
	"github.com/spherical/offer-extractor/internal/observability"
	"github.com/spherical/offer-extractor/internal/storage"
)

func newSQLiteSink(t *testing.T) *Sink {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(ctx, storage.Options{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = storage.Migrate(ctx, db, "sqlite")
	require.NoError(t, err)

	return NewSink(storage.NewOfferRepository(db), observability.NopLogger())
}

func butter() domain.OfferRecord {
	return domain.OfferRecord{
		StoreName:      "Aldi",
		ProductName:    "Butter",
		Price:          1.99,
		OfferDateStart: domain.NewDate(2025, time.January, 1),
		OfferDateEnd:   domain.NewDate(2025, time.January, 7),
	}
}

type failingStore struct {
	domain.OfferStore
	err error
}

func (f failingStore) SaveAll(context.Context, []domain.OfferRecord) error { return f.err }
func (f failingStore) FindAll(context.Context) ([]domain.OfferRecord, error) {
	return nil, f.err
}
func (f failingStore) DeleteAll(context.Context) (int64, error) { return 0, f.err }

func TestNormalizeFilename(t *testing.T) {
	nfd := "Stro\u0308er Prospekt.pdf"
	tests := []struct {
		in   string
		want string
	}{
		{"Ströer%20Prospekt.pdf", "Ströer Prospekt.pdf"},
		{"Str%C3%B6er%20Prospekt.pdf", "Ströer Prospekt.pdf"},
		{nfd, "Ströer Prospekt.pdf"},
		{"  Ströer Prospekt.pdf \n", "Ströer Prospekt.pdf"},
		{"100%.pdf", "100%.pdf"},
		{"Ströer+Prospekt.pdf", "Ströer+Prospekt.pdf"},
		{"Str%C3%B6er%2BProspekt.pdf", "Ströer+Prospekt.pdf"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeFilename(tt.in), tt.in)
	}
}

func TestPurgeBySourceKeepsPlusSign(t *testing.T) {
	ctx := context.Background()
	sink := newSQLiteSink(t)

	_, err := sink.Persist(ctx, "Ströer+Prospekt.pdf", []domain.OfferRecord{butter()})
	require.NoError(t, err)
	_, err = sink.Persist(ctx, "Ströer Prospekt.pdf", []domain.OfferRecord{butter()})
	require.NoError(t, err)

	deleted, err := sink.PurgeBySource(ctx, "Str%C3%B6er%2BProspekt.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	records, err := sink.All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Ströer Prospekt.pdf", records[0].SourceFile)
}

func TestPersistStampsSource(t *testing.T) {
	ctx := context.Background()
	sink := newSQLiteSink(t)

	in := []domain.OfferRecord{butter(), butter()}
	n, err := sink.Persist(ctx, "Str%C3%B6er Prospekt.pdf", in)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, in[0].SourceFile, "caller records are not mutated")

	all, err := sink.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, rec := range all {
		assert.Equal(t, "Ströer Prospekt.pdf", rec.SourceFile)
		assert.NotEmpty(t, rec.ID)
	}
}

func TestPersistEmptyBatch(t *testing.T) {
	sink := NewSink(failingStore{err: errors.New("must not be called")}, observability.NopLogger())

	n, err := sink.Persist(context.Background(), "a.pdf", nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = sink.Persist(context.Background(), "a.pdf", []domain.OfferRecord{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStoreErrorsArePersistenceFailures(t *testing.T) {
	ctx := context.Background()
	sink := NewSink(failingStore{err: errors.New("database is locked")}, observability.NopLogger())

	_, err := sink.Persist(ctx, "a.pdf", []domain.OfferRecord{butter()})
	assert.True(t, domain.IsType(err, domain.ErrorTypePersistence))

	_, err = sink.All(ctx)
	assert.True(t, domain.IsType(err, domain.ErrorTypePersistence))

	_, err = sink.PurgeAll(ctx)
	assert.True(t, domain.IsType(err, domain.ErrorTypePersistence))
}

func TestPurgeBySourceMatchesEncodedAndDecodedNames(t *testing.T) {
	ctx := context.Background()
	sink := newSQLiteSink(t)

	_, err := sink.Persist(ctx, "Ströer Prospekt.pdf", []domain.OfferRecord{butter(), butter()})
	require.NoError(t, err)
	_, err = sink.Persist(ctx, "lidl.pdf", []domain.OfferRecord{butter()})
	require.NoError(t, err)

	n, err := sink.PurgeBySource(ctx, "Ströer%20Prospekt.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = sink.PurgeBySource(ctx, "Stro\u0308er Prospekt.pdf")
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := sink.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "lidl.pdf", all[0].SourceFile)
}

func TestPurgeBySourceNFDVariant(t *testing.T) {
	ctx := context.Background()
	sink := newSQLiteSink(t)

	_, err := sink.Persist(ctx, "Ströer Prospekt.pdf", []domain.OfferRecord{butter()})
	require.NoError(t, err)

	n, err := sink.PurgeBySource(ctx, "Stro\u0308er Prospekt.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPurgeBySourceRequiresName(t *testing.T) {
	sink := newSQLiteSink(t)
	_, err := sink.PurgeBySource(context.Background(), "   ")
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

func TestDeleteAndPurgeAll(t *testing.T) {
	ctx := context.Background()
	sink := newSQLiteSink(t)

	_, err := sink.Persist(ctx, "a.pdf", []domain.OfferRecord{butter(), butter(), butter()})
	require.NoError(t, err)

	all, err := sink.All(ctx)
	require.NoError(t, err)
	require.NoError(t, sink.Delete(ctx, all[0].ID))
	assert.ErrorIs(t, sink.Delete(ctx, all[0].ID), ErrNotFound)

	n, err := sink.PurgeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
