package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"dailybrief/internal/types"
)

// perplexityAPIBase is the default Perplexity API base URL.
// Overridable in tests via PerplexityClientConfig.BaseURL.
const perplexityAPIBase = "https://api.perplexity.ai"

// PerplexityClientConfig holds the configuration for creating a
// PerplexityClient. Sampling defaults are tuned for the newsletter: low
// temperature for deterministic-leaning output and a recency filter so the
// provider searches recent material rather than stale results.
type PerplexityClientConfig struct {
	APIKey        string
	Model         string
	Temperature   float64
	TopP          float64
	RecencyFilter string
	BaseURL       string // Override for testing; defaults to perplexityAPIBase
	Logger        *slog.Logger
}

// chatCompletionRequest is the Perplexity chat-completions request body.
// Citations are requested for search grounding but never surfaced to the
// recipient; images and related questions are suppressed outright.
type chatCompletionRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	Temperature      float64       `json:"temperature"`
	TopP             float64       `json:"top_p"`
	TopK             int           `json:"top_k"`
	Stream           bool          `json:"stream"`
	ReturnCitations  bool          `json:"return_citations"`
	ReturnImages     bool          `json:"return_images"`
	ReturnRelated    bool          `json:"return_related_questions"`
	RecencyFilter    string        `json:"search_recency_filter,omitempty"`
	PresencePenalty  float64       `json:"presence_penalty"`
	FrequencyPenalty float64       `json:"frequency_penalty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionResponse is the subset of the Perplexity response the worker
// consumes: the first choice's assistant message.
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// PerplexityClient implements CompletionProvider by making direct HTTP calls
// to the Perplexity chat-completions API through BaseClient. Like the mail
// path, completions are wired single-attempt: one recipient, one generation
// call, outcome recorded.
type PerplexityClient struct {
	base    *BaseClient
	cfg     PerplexityClientConfig
	baseURL string
	logger  *slog.Logger
}

// NewPerplexityClient creates a new PerplexityClient. The httpClient timeout
// should cover a full completion round trip (generation is the slowest call
// in the pipeline).
func NewPerplexityClient(
	httpClient *http.Client,
	cfg PerplexityClientConfig,
) *PerplexityClient {
	base := NewBaseClient(
		httpClient,
		"perplexity",
		SingleAttemptPolicy(),
		"DailyBrief/1.0",
		WithSleepFunc(time.Sleep),
	)

	return NewPerplexityClientWithBase(base, cfg)
}

// NewPerplexityClientWithBase creates a PerplexityClient with a
// pre-configured BaseClient. Useful in tests to control retry behavior.
func NewPerplexityClientWithBase(
	base *BaseClient,
	cfg PerplexityClientConfig,
) *PerplexityClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = perplexityAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PerplexityClient{
		base:    base,
		cfg:     cfg,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Complete performs one non-streaming chat completion and returns the raw
// assistant message content.
//
// Failure mapping:
//   - transport failure / 5xx / 429 -> ErrCodeUpstreamGeneration (via BaseClient)
//   - non-2xx -> ErrCodeUpstreamGeneration
//   - empty choices or missing message content -> ErrCodeGenerationMalformed
func (c *PerplexityClient) Complete(ctx context.Context, compReq types.CompletionRequest) (string, error) {
	reqBody := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: compReq.System},
			{Role: "user", Content: compReq.User},
		},
		Temperature:      c.cfg.Temperature,
		TopP:             c.cfg.TopP,
		TopK:             0,
		Stream:           false,
		ReturnCitations:  true,
		ReturnImages:     false,
		ReturnRelated:    false,
		RecencyFilter:    c.cfg.RecencyFilter,
		PresencePenalty:  0,
		FrequencyPenalty: 1,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal chat completion request",
			err,
		)
	}

	reqURL := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create chat completion request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	c.logger.InfoContext(ctx, "requesting chat completion",
		"model", c.cfg.Model,
		"recency_filter", c.cfg.RecencyFilter,
	)

	resp, err := c.base.Do(req)
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok {
			// Preserve the transport detail but reclassify under the
			// generation taxonomy so the dispatcher records it as a
			// generation failure.
			return "", types.NewAppError(
				types.ErrCodeUpstreamGeneration,
				appErr.Message,
				appErr,
			)
		}
		return "", types.NewAppError(
			types.ErrCodeUpstreamGeneration,
			fmt.Sprintf("Complete: Perplexity request failed: %v", err),
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", types.NewAppError(
			types.ErrCodeUpstreamGeneration,
			fmt.Sprintf("Complete: Perplexity returned %d: %s", resp.StatusCode, truncateBody(body)),
			nil,
		)
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", types.NewAppError(
			types.ErrCodeGenerationMalformed,
			"Complete: failed to decode Perplexity response",
			err,
		)
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", types.NewAppError(
			types.ErrCodeGenerationMalformed,
			"Complete: Perplexity response has no message content",
			nil,
		)
	}

	return parsed.Choices[0].Message.Content, nil
}

// truncateBody bounds an error body for inclusion in error messages.
func truncateBody(body []byte) string {
	const maxLen = 512
	if len(body) > maxLen {
		return string(body[:maxLen]) + "..."
	}
	return string(body)
}

// Compile-time assertion that PerplexityClient satisfies CompletionProvider.
var _ CompletionProvider = (*PerplexityClient)(nil)
