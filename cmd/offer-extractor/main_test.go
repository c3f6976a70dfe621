package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/offer-extractor/internal/domain"
	"github.com/spherical/offer-extractor/internal/extract"
)

var _ extract.Observer = (*pageProgress)(nil)

func TestSummarize(t *testing.T) {
	result := &domain.ProcessResult{
		RunID:       "run-1",
		Filename:    "lidl.pdf",
		State:       domain.StateCompleted,
		Chunks:      2,
		Pages:       7,
		Images:      7,
		OffersSaved: 11,
		Failures: []domain.ImageFailure{
			{ChunkIndex: 1, PageIndex: 0, SourcePage: 5, Stage: domain.StateExtracting, Err: domain.HTTPError(502, "bad gateway")},
		},
		Duration: 1500 * time.Millisecond,
	}

	s := summarize(result)
	assert.Equal(t, "lidl.pdf", s.Filename)
	assert.Equal(t, int64(1500), s.DurationMs)
	require.Len(t, s.FailedPages, 1)
	assert.Equal(t, 6, s.FailedPages[0].SourcePage)
	assert.Equal(t, domain.StateExtracting, s.FailedPages[0].Stage)
	assert.NotEmpty(t, s.FailedPages[0].Error)
	assert.Empty(t, s.Error)

	failed := summarize(&domain.ProcessResult{State: domain.StateFailed, Err: errors.New("boom")})
	assert.Equal(t, "boom", failed.Error)
	assert.NotNil(t, failed.FailedPages)
}

func TestOfferRows(t *testing.T) {
	brand := "Milsani"
	was := 2.49
	records := []domain.OfferRecord{
		{
			ID:             "0b6f1c9e-3d0c-4f8e-9a55-2f3f6c1d8e11",
			StoreName:      "Aldi",
			ProductName:    "Butter",
			Brand:          &brand,
			Price:          1.99,
			OriginalPrice:  &was,
			OfferDateStart: domain.Date{Year: 2025, Month: time.March, Day: 3},
			OfferDateEnd:   domain.Date{Year: 2025, Month: time.March, Day: 8},
			SourceFile:     "aldi.pdf",
		},
		{StoreName: "Lidl", ProductName: "Äpfel", Price: 2},
	}

	rows := offerRows(records)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], len(offerHeaders))
	assert.Equal(t, []string{
		"0b6f1c9e-3d0c-4f8e-9a55-2f3f6c1d8e11", "Aldi", "Butter", "Milsani", "-",
		"1.99", "2.49", "2025-03-03/2025-03-08", "aldi.pdf",
	}, rows[0])
	assert.Equal(t, "-", rows[1][3])
	assert.Equal(t, "2.00", rows[1][5])
	assert.Equal(t, "-", rows[1][6])
}

func TestFilterBySource(t *testing.T) {
	records := []domain.OfferRecord{
		{ProductName: "a", SourceFile: "aldi.pdf"},
		{ProductName: "b", SourceFile: "lidl.pdf"},
		{ProductName: "c", SourceFile: "aldi.pdf"},
	}

	got := filterBySource(records, "aldi.pdf")
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ProductName)
	assert.Equal(t, "c", got[1].ProductName)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1.5m"},
		{2 * time.Hour, "2.0h"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in))
	}
}

func TestPageProgressQuiet(t *testing.T) {
	p := NewUI(true, true).newPageProgress("aldi.pdf")
	assert.Nil(t, p.progress)

	p.ChunksPlanned([]domain.ChunkUnit{{Index: 0, PageCount: 3}, {Index: 1, PageCount: 1}})
	p.ImageDone(domain.PageImage{}, 2, nil)
	p.ImageDone(domain.PageImage{}, 0, errors.New("timeout"))
	p.Close()

	assert.Equal(t, 1, p.failed)
}

func TestCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "offers.db")
	t.Setenv("DATABASE_URL", "sqlite:"+dbPath)

	rootCmd.SetArgs([]string{"migrate", "--json"})
	require.NoError(t, rootCmd.Execute())
	_, err := os.Stat(dbPath)
	require.NoError(t, err)

	rootCmd.SetArgs([]string{"offers", "purge", "--json"})
	err = rootCmd.Execute()
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))

	rootCmd.SetArgs([]string{"offers", "purge", "--all", "--json"})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"offers", "delete", "0b6f1c9e-3d0c-4f8e-9a55-2f3f6c1d8e11", "--json"})
	err = rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
