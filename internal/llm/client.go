package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spherical/offer-extractor/internal/domain"
	"github.com/spherical/offer-extractor/internal/observability"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "openai/gpt-4o-mini"
	defaultTimeout = 60 * time.Second

	// maxErrorBody caps how much of a failed response is kept for diagnostics.
	maxErrorBody = 4 << 10
	// maxResponseBody caps a successful completion body.
	maxResponseBody = 8 << 20
)

// Config holds the client settings.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	SystemPrompt      string
	UserPrompt        string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Referer           string
	Title             string
	HTTPClient        *http.Client
}

// Client sends flyer pages to a chat completions endpoint and decodes the
// offers it returns. Calls are never retried.
type Client struct {
	endpoint     string
	apiKey       string
	model        string
	systemPrompt string
	userPrompt   string
	timeout      time.Duration
	referer      string
	title        string
	schema       Schema
	httpClient   *http.Client
	limiter      *Limiter
	logger       *observability.Logger
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL string `json:"url"`
}

// Request represents the API request structure
type Request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// Response represents the API response structure
type Response struct {
	ID      string    `json:"id"`
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

// Choice represents a single completion choice
type Choice struct {
	Message      *ResponseMessage `json:"message"`
	FinishReason string           `json:"finish_reason"`
}

// ResponseMessage is the assistant message of a choice.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Refusal string `json:"refusal,omitempty"`
}

// APIError is an error object embedded in a completion body.
type APIError struct {
	Message string `json:"message"`
}

// NewClient creates a new extraction client
func NewClient(cfg Config, logger *observability.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.ConfigError("LLM API key is not set", nil)
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" || strings.TrimSpace(cfg.UserPrompt) == "" {
		return nil, domain.ConfigError("system and user prompts must be set", nil)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		endpoint:     strings.TrimRight(baseURL, "/") + "/chat/completions",
		apiKey:       cfg.APIKey,
		model:        model,
		systemPrompt: cfg.SystemPrompt,
		userPrompt:   cfg.UserPrompt,
		timeout:      timeout,
		referer:      cfg.Referer,
		title:        cfg.Title,
		schema:       OfferSchema,
		httpClient:   httpClient,
		limiter:      NewLimiter(cfg.RequestsPerSecond, cfg.Burst),
		logger:       logger.WithOperation("extract"),
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Extract sends one page image to the model and returns the decoded offers.
func (c *Client) Extract(ctx context.Context, image domain.PageImage) ([]domain.OfferRecord, error) {
	req, err := c.buildRequest(image.Path)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, domain.MalformedPayloadError("Failed to marshal request", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	content, err := c.send(ctx, body)
	if err != nil {
		return nil, err
	}

	records, err := ParseContent(content, c.schema)
	if err != nil {
		return nil, err
	}

	c.logger.WithContext(ctx).Info().
		Int("chunk", image.ChunkIndex).
		Int("page", image.PageIndex).
		Int("offers", len(records)).
		Dur("latency", time.Since(start)).
		Msg("Offers received")

	return records, nil
}

// buildRequest constructs the API request with the image
func (c *Client) buildRequest(imagePath string) (*Request, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, domain.IOError("Failed to read image", err)
	}

	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imageData)
	format := c.schema.ResponseFormat()

	return &Request{
		Model: c.model,
		Messages: []Message{
			{
				Role:    "system",
				Content: []ContentPart{{Type: "text", Text: c.systemPrompt}},
			},
			{
				Role: "user",
				Content: []ContentPart{
					{Type: "text", Text: c.userPrompt},
					{Type: "image_url", ImageURL: &ImageURL{URL: imageURL}},
				},
			},
		},
		ResponseFormat: &format,
	}, nil
}

// send posts the request and returns the first choice's message content.
func (c *Client) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", domain.NoResponseError("Failed to create request", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", domain.NoResponseError(fmt.Sprintf("no response within %s", c.timeout), err)
		}
		return "", domain.NoResponseError("Failed to send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("body", string(errBody)).
			Msg("Model endpoint returned an error")
		return "", domain.HTTPError(resp.StatusCode, string(errBody))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", domain.NoResponseError("Failed to read response body", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return "", domain.NoResponseError("model endpoint returned an empty body", nil)
	}

	var parsed Response
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", domain.MalformedPayloadError("response is not a completion object", err)
	}
	if parsed.Error != nil {
		return "", domain.HTTPError(resp.StatusCode, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message == nil {
		return "", domain.NoResponseError("completion has no message", nil)
	}

	msg := parsed.Choices[0].Message
	if msg.Refusal != "" && strings.TrimSpace(msg.Content) == "" {
		return "", domain.MalformedPayloadError("model refused: "+msg.Refusal, nil)
	}
	return msg.Content, nil
}
