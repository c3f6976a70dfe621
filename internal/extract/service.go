// Package extract runs the flyer pipeline: chunk, render, extract, persist.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/spherical/offer-extractor/internal/artifact"
	"github.com/spherical/offer-extractor/internal/domain"
	"github.com/spherical/offer-extractor/internal/observability"
)

// Options tunes a Service.
type Options struct {
	// TempDir is the parent of per-run artifact directories; os.TempDir when empty.
	TempDir string
	// Workers bounds concurrent image extraction within a chunk. 1 or less is sequential.
	Workers int
	// Observer receives progress callbacks; optional.
	Observer Observer
}

// Observer follows a run. ImageDone may be called from several goroutines.
type Observer interface {
	ChunksPlanned(chunks []domain.ChunkUnit)
	ImageDone(img domain.PageImage, offers int, err error)
}

type nopObserver struct{}

func (nopObserver) ChunksPlanned([]domain.ChunkUnit)       {}
func (nopObserver) ImageDone(domain.PageImage, int, error) {}

// Service orchestrates the offer extraction process
type Service struct {
	chunker    domain.Chunker
	rasterizer domain.Rasterizer
	extractor  domain.Extractor
	sink       domain.OfferSink
	logger     *observability.Logger
	opts       Options
}

// NewService creates a new extraction service
func NewService(
	chunker domain.Chunker,
	rasterizer domain.Rasterizer,
	extractor domain.Extractor,
	sink domain.OfferSink,
	logger *observability.Logger,
	opts Options,
) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Service{
		chunker:    chunker,
		rasterizer: rasterizer,
		extractor:  extractor,
		sink:       sink,
		logger:     logger.WithOperation("process"),
		opts:       opts,
	}
}

// WithObserver returns a copy of s that reports progress to o.
func (s *Service) WithObserver(o Observer) *Service {
	c := *s
	if o == nil {
		o = nopObserver{}
	}
	c.opts.Observer = o
	return &c
}

// ReadDocument loads a PDF from disk as a SourceDocument named after the file.
func ReadDocument(path string) (domain.SourceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.SourceDocument{}, domain.DocumentUnreadableError(fmt.Sprintf("file not found: %s", path), err)
		}
		return domain.SourceDocument{}, domain.IOError("failed to read document", err)
	}
	return domain.SourceDocument{Filename: filepath.Base(path), Data: data}, nil
}

// Process runs one document through the pipeline. The result is always
// returned; the error is non-nil exactly when the run ended Failed.
// Every temporary artifact of the run is gone when Process returns.
func (s *Service) Process(ctx context.Context, doc domain.SourceDocument, pagesPerChunk int) (result *domain.ProcessResult, err error) {
	start := time.Now()
	runID := uuid.New().String()
	ctx = observability.ContextWithRunID(ctx, runID)
	logger := s.logger.WithContext(ctx).With().Str("source_file", doc.Filename).Logger()

	result = &domain.ProcessResult{
		RunID:    runID,
		Filename: doc.Filename,
		State:    domain.StateReceived,
	}

	defer func() {
		if r := recover(); r != nil {
			result.State = domain.StateFailed
			result.Err = fmt.Errorf("pipeline panic: %v", r)
		}
		result.Duration = time.Since(start)

		if result.State == domain.StateFailed {
			err = result.Err
			logger.Error().
				Err(result.Err).
				Int("offers_saved", result.OffersSaved).
				Int("failed_pages", len(result.Failures)).
				Dur("duration", result.Duration).
				Msg("Document processing failed")
			return
		}
		logger.Info().
			Int("chunks", result.Chunks).
			Int("pages", result.Images).
			Int("offers_saved", result.OffersSaved).
			Int("failed_pages", len(result.Failures)).
			Dur("duration", result.Duration).
			Msg("Document processed")
	}()

	logger.Info().Int("bytes", len(doc.Data)).Int("pages_per_chunk", pagesPerChunk).Msg("Processing document")

	scope, err := artifact.NewScope(s.opts.TempDir, "offers")
	if err != nil {
		fail(result, err)
		return result, err
	}
	defer func() {
		if cerr := scope.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("Failed to clean up run artifacts")
		}
	}()

	sourcePath, err := scope.WriteFile("source-*.pdf", doc.Data)
	if err != nil {
		fail(result, err)
		return result, err
	}
	defer scope.Release(sourcePath)

	transition(logger, result, domain.StateChunking)
	var chunks []domain.ChunkUnit
	err = guard(func() error {
		var splitErr error
		chunks, splitErr = s.chunker.Split(ctx, scope, sourcePath, pagesPerChunk)
		return splitErr
	})
	if err != nil {
		for _, c := range chunks {
			scope.Release(c.Path)
		}
		fail(result, err)
		return result, err
	}
	result.Chunks = len(chunks)
	s.opts.Observer.ChunksPlanned(chunks)

	for i, chunk := range chunks {
		if ctxErr := ctx.Err(); ctxErr != nil {
			fail(result, fmt.Errorf("processing cancelled: %w", ctxErr))
			return result, result.Err
		}

		if err := s.processChunk(ctx, logger, scope, doc.Filename, chunk, result); err != nil {
			for _, rest := range chunks[i:] {
				scope.Release(rest.Path)
			}
			fail(result, err)
			return result, err
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		fail(result, fmt.Errorf("processing cancelled: %w", ctxErr))
		return result, result.Err
	}

	if result.Images > 0 && len(result.Failures) == result.Images {
		errs := make([]error, 0, len(result.Failures))
		for _, f := range result.Failures {
			errs = append(errs, f)
		}
		fail(result, fmt.Errorf("all %d pages failed: %w", result.Images, errors.Join(errs...)))
		return result, result.Err
	}

	result.State = domain.StateCompleted
	return result, nil
}

// processChunk renders one chunk and extracts its images. A returned error
// aborts the document; per-image failures are recorded on result.
func (s *Service) processChunk(
	ctx context.Context,
	logger *observability.Logger,
	scope *artifact.Scope,
	source string,
	chunk domain.ChunkUnit,
	result *domain.ProcessResult,
) error {
	defer scope.Release(chunk.Path)

	transition(logger, result, domain.StateRendering)
	var images []domain.PageImage
	err := guard(func() error {
		var renderErr error
		images, renderErr = s.rasterizer.Render(ctx, scope, chunk)
		return renderErr
	})
	if err != nil {
		for _, img := range images {
			scope.Release(img.Path)
		}
		logger.Error().Err(err).Int("chunk_index", chunk.Index).Msg("Chunk rendering failed")
		return err
	}

	result.Pages += chunk.PageCount
	result.Images += len(images)

	transition(logger, result, domain.StateExtracting)

	var (
		mu       sync.Mutex
		failures []domain.ImageFailure
		saved    int
	)
	record := func(n int, f *domain.ImageFailure) {
		mu.Lock()
		defer mu.Unlock()
		saved += n
		if f != nil {
			failures = append(failures, *f)
		}
	}

	if s.opts.Workers <= 1 {
		for _, img := range images {
			record(s.processImage(ctx, logger, scope, source, img))
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.opts.Workers)
		for _, img := range images {
			g.Go(func() error {
				record(s.processImage(ctx, logger, scope, source, img))
				return nil
			})
		}
		_ = g.Wait()
	}

	sort.Slice(failures, func(i, j int) bool {
		return failures[i].PageIndex < failures[j].PageIndex
	})
	result.Failures = append(result.Failures, failures...)
	result.OffersSaved += saved
	return nil
}

// processImage extracts and persists one page. The image artifact is
// released as soon as the extraction call returns.
func (s *Service) processImage(
	ctx context.Context,
	logger *observability.Logger,
	scope *artifact.Scope,
	source string,
	img domain.PageImage,
) (saved int, failed *domain.ImageFailure) {
	defer scope.Release(img.Path)
	defer func() {
		var err error
		if failed != nil {
			err = failed.Err
		}
		s.opts.Observer.ImageDone(img, saved, err)
	}()

	pageLog := logger.With().
		Int("chunk_index", img.ChunkIndex).
		Int("page_index", img.PageIndex).
		Int("source_page", img.SourcePage+1).
		Logger()

	failure := func(stage domain.State, err error) *domain.ImageFailure {
		pageLog.Error().Err(err).Str("stage", string(stage)).Msg("Page failed")
		return &domain.ImageFailure{
			ChunkIndex: img.ChunkIndex,
			PageIndex:  img.PageIndex,
			SourcePage: img.SourcePage,
			Stage:      stage,
			Err:        err,
		}
	}

	if err := ctx.Err(); err != nil {
		return 0, failure(domain.StateExtracting, err)
	}

	var records []domain.OfferRecord
	err := guard(func() error {
		var extractErr error
		records, extractErr = s.extractor.Extract(ctx, img)
		return extractErr
	})
	if relErr := scope.Release(img.Path); relErr != nil {
		pageLog.Warn().Err(relErr).Msg("Failed to remove page image")
	}
	if err != nil {
		return 0, failure(domain.StateExtracting, err)
	}

	pageLog.Debug().Str("state", string(domain.StatePersisting)).Int("offers", len(records)).Msg("State transition")

	var n int
	err = guard(func() error {
		var persistErr error
		n, persistErr = s.sink.Persist(ctx, source, records)
		return persistErr
	})
	if err != nil {
		return 0, failure(domain.StatePersisting, err)
	}
	return n, nil
}

func transition(logger *observability.Logger, result *domain.ProcessResult, state domain.State) {
	result.State = state
	logger.Debug().Str("state", string(state)).Msg("State transition")
}

func fail(result *domain.ProcessResult, err error) {
	result.State = domain.StateFailed
	result.Err = err
}

// guard runs fn and turns a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
