package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/offer-extractor/internal/domain"
	"github.com/spherical/offer-extractor/internal/observability"
)

const aldiButter = `{"offers":[{"storeName":"Aldi","productName":"Butter","price":1.99,"offerDateStart":"2025-01-01","offerDateEnd":"2025-01-07"}]}`

func completion(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id": "gen-1",
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	})
	return string(body)
}

func writeImage(t *testing.T) domain.PageImage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page.jpg")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xd8, 0xff, 0xe0, 0x00}, 0o600))
	return domain.PageImage{ChunkIndex: 1, PageIndex: 2, SourcePage: 5, Path: path}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{
		BaseURL:      srv.URL + "/api/v1",
		APIKey:       "sk-or-test-key",
		Model:        "test/model",
		SystemPrompt: "Test System Prompt",
		UserPrompt:   "Test User Prompt",
		Timeout:      2 * time.Second,
		Referer:      "https://example.test",
		Title:        "Offer Test",
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := NewClient(cfg, observability.NopLogger())
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantError bool
		wantModel string
	}{
		{
			name:      "default model",
			cfg:       Config{APIKey: "sk-or-test-key", SystemPrompt: "s", UserPrompt: "u"},
			wantModel: defaultModel,
		},
		{
			name:      "custom model",
			cfg:       Config{APIKey: "sk-or-test-key", Model: "google/gemini-2.5-pro", SystemPrompt: "s", UserPrompt: "u"},
			wantModel: "google/gemini-2.5-pro",
		},
		{
			name:      "empty api key",
			cfg:       Config{SystemPrompt: "s", UserPrompt: "u"},
			wantError: true,
		},
		{
			name:      "missing prompts",
			cfg:       Config{APIKey: "sk-or-test-key"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg, observability.NopLogger())
			if tt.wantError {
				assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, client.Model())
			assert.Equal(t, defaultBaseURL+"/chat/completions", client.endpoint)
			assert.Equal(t, defaultTimeout, client.timeout)
		})
	}
}

func TestExtractSendsSchemaConstrainedRequest(t *testing.T) {
	var captured Request
	var headers http.Header
	var path string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		headers = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion(aldiButter)))
	})

	_, err := client.Extract(context.Background(), writeImage(t))
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/chat/completions", path)
	assert.Equal(t, "Bearer sk-or-test-key", headers.Get("Authorization"))
	assert.Equal(t, "https://example.test", headers.Get("HTTP-Referer"))
	assert.Equal(t, "Offer Test", headers.Get("X-Title"))

	assert.Equal(t, "test/model", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "Test System Prompt", captured.Messages[0].Content[0].Text)

	user := captured.Messages[1]
	assert.Equal(t, "user", user.Role)
	require.Len(t, user.Content, 2)
	assert.Equal(t, "Test User Prompt", user.Content[0].Text)
	assert.Equal(t, "image_url", user.Content[1].Type)
	require.NotNil(t, user.Content[1].ImageURL)
	assert.True(t, strings.HasPrefix(user.Content[1].ImageURL.URL, "data:image/jpeg;base64,/9j/"))

	require.NotNil(t, captured.ResponseFormat)
	assert.Equal(t, "json_schema", captured.ResponseFormat.Type)
	require.NotNil(t, captured.ResponseFormat.JSONSchema)
	assert.Equal(t, "extract_offers_response", captured.ResponseFormat.JSONSchema.Name)
	assert.True(t, captured.ResponseFormat.JSONSchema.Strict)
}

func TestExtractAldiButter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completion(aldiButter)))
	})

	records, err := client.Extract(context.Background(), writeImage(t))
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "Aldi", rec.StoreName)
	assert.Equal(t, "Butter", rec.ProductName)
	assert.Equal(t, 1.99, rec.Price)
	assert.Equal(t, domain.NewDate(2025, time.January, 1), rec.OfferDateStart)
	assert.Equal(t, domain.NewDate(2025, time.January, 7), rec.OfferDateEnd)
	assert.Nil(t, rec.Brand)
	assert.Nil(t, rec.Quantity)
	assert.Nil(t, rec.OriginalPrice)
	assert.Empty(t, rec.SourceFile)
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType domain.ErrorType
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"message":"upstream exploded"}}`, domain.ErrorTypeHTTP},
		{"rate limited", http.StatusTooManyRequests, `slow down`, domain.ErrorTypeHTTP},
		{"empty body", http.StatusOK, ``, domain.ErrorTypeNoResponse},
		{"no choices", http.StatusOK, `{"id":"gen-1","choices":[]}`, domain.ErrorTypeNoResponse},
		{"choice without message", http.StatusOK, `{"choices":[{"finish_reason":"error"}]}`, domain.ErrorTypeNoResponse},
		{"error object with 200", http.StatusOK, `{"error":{"message":"provider unavailable"}}`, domain.ErrorTypeHTTP},
		{"envelope not json", http.StatusOK, `<html>oops</html>`, domain.ErrorTypeMalformedPayload},
		{"empty content", http.StatusOK, completion(""), domain.ErrorTypeMalformedPayload},
		{"content not json", http.StatusOK, completion("Sorry, I cannot read this page."), domain.ErrorTypeMalformedPayload},
		{"missing offers field", http.StatusOK, completion(`{"items":[]}`), domain.ErrorTypeMalformedPayload},
		{"offers not an array", http.StatusOK, completion(`{"offers":"none"}`), domain.ErrorTypeMalformedPayload},
		{"missing price", http.StatusOK, completion(`{"offers":[{"storeName":"Aldi","productName":"Butter","offerDateStart":"2025-01-01","offerDateEnd":"2025-01-07"}]}`), domain.ErrorTypeSchemaViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			records, err := client.Extract(context.Background(), writeImage(t))
			assert.Nil(t, records)
			assert.True(t, domain.IsType(err, tt.wantType), "want %s, got %v", tt.wantType, err)
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "extraction calls are never retried")
		})
	}
}

func TestExtractHTTPErrorCapturesBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"image too large"}}`))
	})

	_, err := client.Extract(context.Background(), writeImage(t))
	var se *domain.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Contains(t, se.Body, "image too large")
}

func TestExtractTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}, func(c *Config) { c.Timeout = 50 * time.Millisecond })

	start := time.Now()
	_, err := client.Extract(context.Background(), writeImage(t))
	assert.True(t, domain.IsType(err, domain.ErrorTypeNoResponse), "got %v", err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExtractMissingImage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.Extract(context.Background(), domain.PageImage{Path: filepath.Join(t.TempDir(), "gone.jpg")})
	assert.True(t, domain.IsType(err, domain.ErrorTypeIO))
}

func TestLimiterUnlimited(t *testing.T) {
	l := NewLimiter(0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(ctx))
	}
}

func TestLimiterHonoursContext(t *testing.T) {
	l := NewLimiter(0.1, 1)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))
}
