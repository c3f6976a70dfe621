package pdf

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/offer-extractor/internal/domain"
	"github.com/spherical/offer-extractor/internal/observability"
)

// DefaultDPI is the fixed render resolution of the pipeline.
const DefaultDPI = 300

// Rasterizer renders chunk pages to RGB JPEG images using go-fitz
type Rasterizer struct {
	dpi     int
	quality int
	logger  *observability.Logger
}

// NewRasterizer creates a rasterizer rendering at dpi with the given JPEG quality
func NewRasterizer(dpi, quality int, logger *observability.Logger) (*Rasterizer, error) {
	v := NewValidator()
	if err := v.ValidateDPI(dpi); err != nil {
		return nil, err
	}
	if err := v.ValidateQuality(quality); err != nil {
		return nil, err
	}
	return &Rasterizer{
		dpi:     dpi,
		quality: quality,
		logger:  logger.WithOperation("render"),
	}, nil
}

// Render converts every page of the chunk into a JPEG in page order.
// When a page fails, the images already written are returned with the error.
func (r *Rasterizer) Render(ctx context.Context, alloc domain.TempAllocator, chunk domain.ChunkUnit) ([]domain.PageImage, error) {
	doc, err := fitz.New(chunk.Path)
	if err != nil {
		return nil, domain.RenderError(fmt.Sprintf("Failed to open chunk %d", chunk.Index), err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, domain.RenderError(fmt.Sprintf("Chunk %d has no pages", chunk.Index), nil)
	}
	if pageCount != chunk.PageCount {
		r.logger.Warn().
			Int("chunk", chunk.Index).
			Int("expected_pages", chunk.PageCount).
			Int("pages", pageCount).
			Msg("Chunk page count differs from plan")
	}

	images := make([]domain.PageImage, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return images, err
		}

		img, err := doc.ImageDPI(i, float64(r.dpi))
		if err != nil {
			return images, domain.RenderError(
				fmt.Sprintf("Failed to render page %d of chunk %d", i+1, chunk.Index), err)
		}

		path, err := alloc.Allocate(fmt.Sprintf("chunk-%03d-page-%03d-*.jpg", chunk.Index, i))
		if err != nil {
			return images, err
		}

		if err := r.writeJPEG(path, img); err != nil {
			return images, domain.RenderError(
				fmt.Sprintf("Failed to encode page %d of chunk %d", i+1, chunk.Index), err)
		}

		bounds := img.Bounds()
		images = append(images, domain.PageImage{
			ChunkIndex: chunk.Index,
			PageIndex:  i,
			SourcePage: chunk.FirstPage + i,
			Path:       path,
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
		})
	}

	return images, nil
}

func (r *Rasterizer) writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: r.quality}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
