package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/offer-extractor/internal/domain"
)

// OfferRepository handles offer persistence.
type OfferRepository struct {
	db TxDB
}

// NewOfferRepository creates a new offer repository.
func NewOfferRepository(db TxDB) *OfferRepository {
	return &OfferRepository{db: db}
}

const insertOffer = `
	INSERT INTO offers (id, store_name, product_name, brand, quantity, price, original_price,
		offer_date_start, offer_date_end, source_file, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

// SaveAll stores the records in one transaction. Missing IDs and creation
// times are filled in on the passed slice.
func (r *OfferRepository) SaveAll(ctx context.Context, records []domain.OfferRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertOffer)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}

		_, err := stmt.ExecContext(ctx,
			rec.ID, rec.StoreName, rec.ProductName, nullString(rec.Brand), nullString(rec.Quantity),
			rec.Price, nullFloat(rec.OriginalPrice), rec.OfferDateStart, rec.OfferDateEnd,
			rec.SourceFile, rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert offer %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit offers: %w", err)
	}
	return nil
}

// FindAll returns every stored offer, newest first.
func (r *OfferRepository) FindAll(ctx context.Context) ([]domain.OfferRecord, error) {
	query := `
		SELECT id, store_name, product_name, brand, quantity, price, original_price,
			offer_date_start, offer_date_end, source_file, created_at
		FROM offers
		ORDER BY created_at DESC, store_name, product_name
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	offers := []domain.OfferRecord{}
	for rows.Next() {
		var (
			rec           domain.OfferRecord
			brand         sql.NullString
			quantity      sql.NullString
			originalPrice sql.NullFloat64
		)
		if err := rows.Scan(
			&rec.ID, &rec.StoreName, &rec.ProductName, &brand, &quantity, &rec.Price, &originalPrice,
			&rec.OfferDateStart, &rec.OfferDateEnd, &rec.SourceFile, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if brand.Valid {
			rec.Brand = &brand.String
		}
		if quantity.Valid {
			rec.Quantity = &quantity.String
		}
		if originalPrice.Valid {
			rec.OriginalPrice = &originalPrice.Float64
		}
		offers = append(offers, rec)
	}
	return offers, rows.Err()
}

// DeleteByID removes one offer.
func (r *OfferRepository) DeleteByID(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM offers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBySource removes all offers extracted from filename.
func (r *OfferRepository) DeleteBySource(ctx context.Context, filename string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM offers WHERE source_file = $1`, filename)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteAll removes every offer.
func (r *OfferRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM offers`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
