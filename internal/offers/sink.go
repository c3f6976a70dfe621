// Package offers stores extracted offers with their source document.
package offers

import (
	"context"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/spherical/offer-extractor/internal/domain"
	"github.com/spherical/offer-extractor/internal/observability"
	"github.com/spherical/offer-extractor/internal/storage"
)

// ErrNotFound is returned by Delete when no offer has the given id.
var ErrNotFound = storage.ErrNotFound

// Sink is the offer store used by the pipeline and the management surfaces.
type Sink struct {
	store  domain.OfferStore
	logger *observability.Logger
}

// NewSink creates a sink over store.
func NewSink(store domain.OfferStore, logger *observability.Logger) *Sink {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Sink{store: store, logger: logger.WithOperation("offer_sink")}
}

// Persist stamps records with source and stores them in one batch.
func (s *Sink) Persist(ctx context.Context, source string, records []domain.OfferRecord) (int, error) {
	source = NormalizeFilename(source)
	if len(records) == 0 {
		s.logger.Warn().Str("source_file", source).Msg("No offers to persist")
		return 0, nil
	}

	stamped := make([]domain.OfferRecord, len(records))
	for i, rec := range records {
		stamped[i] = rec.WithSource(source)
	}

	if err := s.store.SaveAll(ctx, stamped); err != nil {
		return 0, domain.PersistenceError("save offers", err)
	}

	s.logger.Info().
		Str("source_file", source).
		Int("count", len(stamped)).
		Msg("Offers persisted")
	return len(stamped), nil
}

// All returns every stored offer.
func (s *Sink) All(ctx context.Context) ([]domain.OfferRecord, error) {
	records, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, domain.PersistenceError("list offers", err)
	}
	return records, nil
}

// Delete removes the offer with id. It returns ErrNotFound for unknown ids.
func (s *Sink) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteByID(ctx, id); err != nil {
		if storage.IsNotFound(err) {
			return ErrNotFound
		}
		return domain.PersistenceError("delete offer", err)
	}
	s.logger.Info().Str("offer_id", id).Msg("Offer deleted")
	return nil
}

// PurgeBySource removes every offer extracted from filename.
func (s *Sink) PurgeBySource(ctx context.Context, filename string) (int64, error) {
	name := NormalizeFilename(filename)
	if name == "" {
		return 0, domain.ValidationError("filename is required", nil)
	}

	n, err := s.store.DeleteBySource(ctx, name)
	if err != nil {
		return 0, domain.PersistenceError("delete offers by source", err)
	}
	s.logger.Info().Str("source_file", name).Int64("deleted", n).Msg("Offers purged for source")
	return n, nil
}

// PurgeAll removes every stored offer.
func (s *Sink) PurgeAll(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, domain.PersistenceError("delete all offers", err)
	}
	s.logger.Info().Int64("deleted", n).Msg("All offers purged")
	return n, nil
}

// NormalizeFilename percent-decodes, NFC-normalizes and trims a filename so
// that the names browsers and file systems send compare equal. A literal '+'
// is part of the name; only %20 decodes to a space.
func NormalizeFilename(name string) string {
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	return strings.TrimSpace(norm.NFC.String(name))
}
