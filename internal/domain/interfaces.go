package domain

import "context"

// TempAllocator hands out fresh artifact paths owned by the caller's scope.
type TempAllocator interface {
	Allocate(pattern string) (string, error)
}

// Chunker splits a PDF into page groups written as standalone PDFs
type Chunker interface {
	Split(ctx context.Context, alloc TempAllocator, sourcePath string, pagesPerChunk int) ([]ChunkUnit, error)
}

// Rasterizer renders every page of a chunk to an image.
// On failure the images produced so far are returned with the error.
type Rasterizer interface {
	Render(ctx context.Context, alloc TempAllocator, chunk ChunkUnit) ([]PageImage, error)
}

// Extractor turns a single page image into offer records
type Extractor interface {
	Extract(ctx context.Context, image PageImage) ([]OfferRecord, error)
}

// OfferSink stores records with their provenance.
type OfferSink interface {
	Persist(ctx context.Context, source string, records []OfferRecord) (int, error)
}

// OfferStore is the persistence layer behind the sink.
type OfferStore interface {
	SaveAll(ctx context.Context, records []OfferRecord) error
	FindAll(ctx context.Context) ([]OfferRecord, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteBySource(ctx context.Context, filename string) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}
