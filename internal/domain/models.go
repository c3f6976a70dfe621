package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of offer validity dates.
const DateLayout = "2006-01-02"

// Date is a calendar date without time or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a Date.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// MarshalJSON renders the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts "YYYY-MM-DD".
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements sql.Scanner.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case string:
		parsed, err := ParseDate(firstTen(v))
		if err != nil {
			return err
		}
		*d = parsed
	case []byte:
		parsed, err := ParseDate(firstTen(string(v)))
		if err != nil {
			return err
		}
		*d = parsed
	case time.Time:
		*d = DateOf(v)
	case nil:
		*d = Date{}
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
	return nil
}

func firstTen(s string) string {
	if len(s) > len(DateLayout) {
		return s[:len(DateLayout)]
	}
	return s
}

// SourceDocument is an uploaded flyer held for the duration of one run.
type SourceDocument struct {
	Filename string
	Data     []byte
}

// ChunkUnit is a contiguous page range of the source written as its own PDF.
type ChunkUnit struct {
	Index     int
	FirstPage int // 0-based page of the source document
	PageCount int
	Path      string
}

// LastPage returns the 0-based index of the chunk's final source page.
func (c ChunkUnit) LastPage() int {
	return c.FirstPage + c.PageCount - 1
}

// PageImage represents a single rasterized page of a chunk
type PageImage struct {
	ChunkIndex int
	PageIndex  int // position inside the chunk
	SourcePage int // 0-based page of the source document
	Path       string
	Width      int
	Height     int
}

// OfferRecord is one extracted product offer.
type OfferRecord struct {
	ID             string    `json:"id,omitempty"`
	StoreName      string    `json:"storeName"`
	ProductName    string    `json:"productName"`
	Brand          *string   `json:"brand,omitempty"`
	Quantity       *string   `json:"quantity,omitempty"`
	Price          float64   `json:"price"`
	OriginalPrice  *float64  `json:"originalPrice,omitempty"`
	OfferDateStart Date      `json:"offerDateStart"`
	OfferDateEnd   Date      `json:"offerDateEnd"`
	SourceFile     string    `json:"sourceFile,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// WithSource returns a copy of the record stamped with its provenance.
func (o OfferRecord) WithSource(filename string) OfferRecord {
	o.SourceFile = filename
	return o
}

// State is a stage of the per-document pipeline.
type State string

const (
	StateReceived   State = "received"
	StateChunking   State = "chunking"
	StateRendering  State = "rendering"
	StateExtracting State = "extracting"
	StatePersisting State = "persisting"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// ImageFailure records one page that could not be extracted or stored.
type ImageFailure struct {
	ChunkIndex int
	PageIndex  int
	SourcePage int
	Stage      State
	Err        error
}

func (f ImageFailure) Error() string {
	return fmt.Sprintf("chunk %d page %d (source page %d) %s: %v",
		f.ChunkIndex, f.PageIndex, f.SourcePage+1, f.Stage, f.Err)
}

// ProcessResult summarises one pipeline run.
type ProcessResult struct {
	RunID       string
	Filename    string
	State       State
	Chunks      int
	Pages       int
	Images      int
	OffersSaved int
	Failures    []ImageFailure
	Err         error
	Duration    time.Duration
}

// Succeeded reports whether the run completed.
func (r *ProcessResult) Succeeded() bool {
	return r.State == StateCompleted
}

// Message returns a short human readable outcome.
func (r *ProcessResult) Message() string {
	if r.State == StateCompleted {
		if len(r.Failures) > 0 {
			return fmt.Sprintf("%s processed: %d offers saved, %d of %d pages failed",
				r.Filename, r.OffersSaved, len(r.Failures), r.Images)
		}
		return fmt.Sprintf("%s processed: %d offers saved", r.Filename, r.OffersSaved)
	}
	if r.Err != nil {
		return fmt.Sprintf("%s failed: %v", r.Filename, r.Err)
	}
	return fmt.Sprintf("%s failed", r.Filename)
}
