package pdf

import (
	"context"
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/spherical/offer-extractor/internal/domain"
	"github.com/spherical/offer-extractor/internal/observability"
)

var disableConfigDir sync.Once

// PageRange is an inclusive 0-based page range.
type PageRange struct {
	First int
	Last  int
}

// Count returns the number of pages in the range.
func (r PageRange) Count() int {
	return r.Last - r.First + 1
}

// Plan groups total pages greedily into ranges of perChunk pages; the last
// range holds the remainder.
func Plan(total, perChunk int) []PageRange {
	if total <= 0 || perChunk <= 0 {
		return nil
	}
	ranges := make([]PageRange, 0, (total+perChunk-1)/perChunk)
	for first := 0; first < total; first += perChunk {
		last := first + perChunk - 1
		if last >= total {
			last = total - 1
		}
		ranges = append(ranges, PageRange{First: first, Last: last})
	}
	return ranges
}

// Chunker splits PDFs into page groups using pdfcpu
type Chunker struct {
	validator *Validator
	logger    *observability.Logger
}

// NewChunker creates a new chunker
func NewChunker(logger *observability.Logger) *Chunker {
	disableConfigDir.Do(api.DisableConfigDir)
	return &Chunker{
		validator: NewValidator(),
		logger:    logger.WithOperation("chunk"),
	}
}

func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Split writes one PDF per page group of sourcePath. Chunk files are
// allocated from alloc and stay owned by the caller, including the ones
// written before a failure.
func (c *Chunker) Split(ctx context.Context, alloc domain.TempAllocator, sourcePath string, pagesPerChunk int) ([]domain.ChunkUnit, error) {
	if err := c.validator.ValidatePagesPerChunk(pagesPerChunk); err != nil {
		return nil, err
	}
	if err := c.validator.ValidateSource(sourcePath); err != nil {
		return nil, err
	}

	total, err := api.PageCountFile(sourcePath)
	if err != nil {
		return nil, domain.DocumentUnreadableError("Failed to read PDF", err)
	}
	if total == 0 {
		return nil, domain.DocumentUnreadableError("PDF has no pages", nil)
	}

	ranges := Plan(total, pagesPerChunk)
	c.logger.Debug().
		Int("pages", total).
		Int("pages_per_chunk", pagesPerChunk).
		Int("chunks", len(ranges)).
		Msg("Splitting PDF")

	chunks := make([]domain.ChunkUnit, 0, len(ranges))
	for i, r := range ranges {
		if err := ctx.Err(); err != nil {
			return chunks, err
		}

		path, err := alloc.Allocate(fmt.Sprintf("chunk-%03d-*.pdf", i))
		if err != nil {
			return chunks, err
		}

		selection := []string{fmt.Sprintf("%d-%d", r.First+1, r.Last+1)}
		if err := api.TrimFile(sourcePath, path, selection, newConfiguration()); err != nil {
			return chunks, domain.DocumentUnreadableError(
				fmt.Sprintf("Failed to write chunk %d (pages %d-%d)", i, r.First+1, r.Last+1), err)
		}

		chunks = append(chunks, domain.ChunkUnit{
			Index:     i,
			FirstPage: r.First,
			PageCount: r.Count(),
			Path:      path,
		})
	}

	return chunks, nil
}
