package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateJSON(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2025-01-07"`), &d))
	assert.Equal(t, NewDate(2025, time.January, 7), d)

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2025-01-07"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`"07.01.2025"`), &d))
}

func TestDateScan(t *testing.T) {
	tests := []struct {
		name string
		src  any
		want Date
	}{
		{"string", "2025-03-01", NewDate(2025, time.March, 1)},
		{"bytes", []byte("2025-03-02"), NewDate(2025, time.March, 2)},
		{"timestamp text", "2025-03-03T00:00:00Z", NewDate(2025, time.March, 3)},
		{"time", time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC), NewDate(2025, time.March, 4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Date
			require.NoError(t, d.Scan(tt.src))
			assert.Equal(t, tt.want, d)
		})
	}

	var d Date
	assert.Error(t, d.Scan(42))
}

func TestWithSourceCopies(t *testing.T) {
	rec := OfferRecord{StoreName: "Aldi", ProductName: "Butter", Price: 1.99}
	stamped := rec.WithSource("flyer.pdf")

	assert.Equal(t, "flyer.pdf", stamped.SourceFile)
	assert.Empty(t, rec.SourceFile)
}

func TestProcessResultMessage(t *testing.T) {
	r := &ProcessResult{Filename: "kw02.pdf", State: StateCompleted, OffersSaved: 4, Images: 3,
		Failures: []ImageFailure{{ChunkIndex: 0, PageIndex: 1}}}
	assert.True(t, r.Succeeded())
	assert.Equal(t, "kw02.pdf processed: 4 offers saved, 1 of 3 pages failed", r.Message())

	failed := &ProcessResult{Filename: "kw02.pdf", State: StateFailed, Err: DocumentUnreadableError("not a PDF", nil)}
	assert.False(t, failed.Succeeded())
	assert.Contains(t, failed.Message(), "document_unreadable")
}
