package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/offer-extractor/internal/bootstrap"
	"github.com/spherical/offer-extractor/internal/domain"
	"github.com/spherical/offer-extractor/internal/extract"
)

type pageFailure struct {
	Chunk      int          `json:"chunk"`
	Page       int          `json:"page"`
	SourcePage int          `json:"sourcePage"`
	Stage      domain.State `json:"stage"`
	Error      string       `json:"error"`
}

type processSummary struct {
	RunID       string        `json:"runId,omitempty"`
	Filename    string        `json:"filename"`
	State       domain.State  `json:"state"`
	Chunks      int           `json:"chunks"`
	Pages       int           `json:"pages"`
	OffersSaved int           `json:"offersSaved"`
	FailedPages []pageFailure `json:"failedPages"`
	DurationMs  int64         `json:"durationMs"`
	Error       string        `json:"error,omitempty"`
}

func summarize(r *domain.ProcessResult) processSummary {
	s := processSummary{
		RunID:       r.RunID,
		Filename:    r.Filename,
		State:       r.State,
		Chunks:      r.Chunks,
		Pages:       r.Pages,
		OffersSaved: r.OffersSaved,
		FailedPages: make([]pageFailure, 0, len(r.Failures)),
		DurationMs:  r.Duration.Milliseconds(),
	}
	for _, f := range r.Failures {
		pf := pageFailure{
			Chunk:      f.ChunkIndex,
			Page:       f.PageIndex,
			SourcePage: f.SourcePage + 1,
			Stage:      f.Stage,
		}
		if f.Err != nil {
			pf.Error = f.Err.Error()
		}
		s.FailedPages = append(s.FailedPages, pf)
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}

func newProcessCmd() *cobra.Command {
	var (
		pagesPerChunk int
		workers       int
	)

	cmd := &cobra.Command{
		Use:   "process <flyer.pdf>...",
		Short: "Extract offers from one or more PDF flyers",
		Long: `Process splits each flyer into chunks of --pages-per-chunk pages, renders
every page, extracts the offers shown and stores them tagged with the
flyer's filename. Pages that fail are reported and skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("pages-per-chunk") {
				pagesPerChunk = cfg.Pipeline.PagesPerChunk
			}
			if pagesPerChunk < 1 {
				return domain.ValidationError("--pages-per-chunk must be at least 1", nil)
			}
			if workers > 0 {
				cfg.Pipeline.Workers = workers
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			summaries := make([]processSummary, 0, len(args))
			failed := 0
			for _, path := range args {
				if ctx.Err() != nil {
					break
				}
				summary, err := processFile(ctx, app.Service, path, pagesPerChunk)
				summaries = append(summaries, summary)
				if err != nil {
					failed++
				}
			}

			if outputJSON {
				if err := ui.JSON(summaries); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(args))
			}
			return ctx.Err()
		},
	}

	cmd.Flags().IntVarP(&pagesPerChunk, "pages-per-chunk", "k", 5, "pages per chunk")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent page extractions (default from config)")

	return cmd
}

func processFile(ctx context.Context, service *extract.Service, path string, pagesPerChunk int) (processSummary, error) {
	doc, err := extract.ReadDocument(path)
	if err != nil {
		ui.Error("%s: %v", path, err)
		return processSummary{
			Filename:    filepath.Base(path),
			State:       domain.StateFailed,
			FailedPages: []pageFailure{},
			Error:       err.Error(),
		}, err
	}

	ui.Step("Processing %s (%d pages per chunk)", doc.Filename, pagesPerChunk)
	progress := ui.newPageProgress(doc.Filename)
	result, err := service.WithObserver(progress).Process(ctx, doc, pagesPerChunk)
	progress.Close()

	summary := summarize(result)
	if err != nil {
		ui.Error("%s: %v", doc.Filename, err)
		return summary, err
	}

	ui.Success("%s: %d offers saved from %d pages in %s",
		doc.Filename, result.OffersSaved, result.Pages, FormatDuration(result.Duration))
	ui.KeyValue("Run", result.RunID)
	ui.KeyValue("Chunks", result.Chunks)
	if len(summary.FailedPages) > 0 {
		ui.Warning("%d of %d pages failed", len(summary.FailedPages), result.Images)
		rows := make([][]string, 0, len(summary.FailedPages))
		for _, f := range summary.FailedPages {
			rows = append(rows, []string{fmt.Sprint(f.SourcePage), string(f.Stage), f.Error})
		}
		ui.Table([]string{"Page", "Stage", "Error"}, rows)
	}
	return summary, nil
}
