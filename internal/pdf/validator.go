package pdf

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spherical/offer-extractor/internal/domain"
)

var pdfMagic = []byte("%PDF-")

// Validator provides input validation for PDF files and render settings
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateSource checks that path is a readable regular file starting with
// a PDF header. A broken file is reported as an unreadable document.
func (v *Validator) ValidateSource(path string) error {
	if strings.TrimSpace(path) == "" {
		return domain.ValidationError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		return domain.DocumentUnreadableError(fmt.Sprintf("cannot access file: %s", path), err)
	}
	if info.IsDir() {
		return domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return domain.DocumentUnreadableError(fmt.Sprintf("cannot open file: %s", path), err)
	}
	defer f.Close()

	head := make([]byte, 1024)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return domain.DocumentUnreadableError("cannot read file header", err)
	}
	if !HasPDFHeader(head[:n]) {
		return domain.DocumentUnreadableError("file is not a PDF document", nil)
	}
	return nil
}

// HasPDFHeader reports whether data carries the PDF magic within its first KiB.
func HasPDFHeader(data []byte) bool {
	if len(data) > 1024 {
		data = data[:1024]
	}
	return bytes.Contains(data, pdfMagic)
}

// ValidatePagesPerChunk validates the chunk size
func (v *Validator) ValidatePagesPerChunk(n int) error {
	if n < 1 {
		return domain.ValidationError(fmt.Sprintf("pagesPerChunk must be at least 1, got %d", n), nil)
	}
	return nil
}

// ValidateQuality validates image quality parameter
func (v *Validator) ValidateQuality(quality int) error {
	if quality < 1 || quality > 100 {
		return domain.ValidationError(fmt.Sprintf("quality must be between 1 and 100, got %d", quality), nil)
	}
	return nil
}

// ValidateDPI validates the render resolution
func (v *Validator) ValidateDPI(dpi int) error {
	if dpi < 36 || dpi > 1200 {
		return domain.ValidationError(fmt.Sprintf("dpi must be between 36 and 1200, got %d", dpi), nil)
	}
	return nil
}
