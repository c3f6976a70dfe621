package pdf

import (
	"testing"

	"github.com/spherical/offer-extractor/internal/pdf/pdftest"
)

func writeTestPDF(t *testing.T, pages int) string {
	t.Helper()
	return pdftest.Write(t, pages)
}
