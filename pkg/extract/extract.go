// Package extract infers structured items from a source text blob using a
// chat model. Model failures never surface as run failures: an unusable
// response yields a single low-confidence review item so the source is
// still captured in the sheet.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/reelsheet/reelsheet/internal/model"
)

// Extractor infers candidate items from a source blob.
type Extractor interface {
	Infer(ctx context.Context, sourceBlob string) ([]model.Item, error)
}

// Config configures the model-backed extractor.
type Config struct {
	Model              string
	Temperature        float32
	MaxSourceChars     int
	FallbackConfidence float64
	MaxRetries         int
}

// OpenAIExtractor calls the chat completions API and parses the response
// into items.
type OpenAIExtractor struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

const systemPrompt = `You extract structured items from social media video content.
Given a caption, transcript, and on-screen text, return a JSON array of the
distinct places, hotels, products, or services mentioned. Each element:
{"item_index": 1, "type": "place|hotel|product|service|other",
 "item_name": "...", "brand_or_category": "...", "city": "...",
 "state": "...", "country": "...", "price": "...", "price_source": "...",
 "purchase_link": "...", "key_specs": "...", "notes": "...",
 "confidence": 0.0-1.0}
Omit fields you cannot determine. Return only the JSON array.`

// NewOpenAIExtractor creates an extractor.
func NewOpenAIExtractor(apiKey string, cfg Config, logger *slog.Logger) (*OpenAIExtractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("item extraction requires OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxSourceChars <= 0 {
		cfg.MaxSourceChars = 18000
	}
	if cfg.FallbackConfidence <= 0 {
		cfg.FallbackConfidence = 0.3
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIExtractor{
		client: openai.NewClient(apiKey),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Infer implements Extractor. An empty blob yields an empty list; any
// model or parse failure yields the single fallback review item.
func (e *OpenAIExtractor) Infer(ctx context.Context, sourceBlob string) ([]model.Item, error) {
	blob := strings.TrimSpace(sourceBlob)
	if blob == "" {
		return nil, nil
	}
	if len(blob) > e.cfg.MaxSourceChars {
		blob = blob[:e.cfg.MaxSourceChars]
	}

	raw, err := e.complete(ctx, blob)
	if err != nil {
		e.logger.Warn("extract.model.failed", "error", err)
		return e.fallback(blob), nil
	}

	items, err := parseItems(raw)
	if err != nil {
		e.logger.Warn("extract.parse.failed", "error", err, "response_chars", len(raw))
		return e.fallback(blob), nil
	}

	normalizeItems(items)
	e.logger.Info("extract.done", "items", len(items))
	return items, nil
}

// complete calls the chat API with exponential backoff and jitter.
// Context cancellation and auth failures stop the retry loop immediately.
func (e *OpenAIExtractor) complete(ctx context.Context, blob string) (string, error) {
	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
			delay := backoff + jitter - backoff/4
			e.logger.Debug("extract.retry", "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			backoff *= 2
		}

		resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       e.cfg.Model,
			Temperature: e.cfg.Temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: blob},
			},
		})
		if err != nil {
			lastErr = err
			if !isTransient(err) {
				return "", err
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("empty completion")
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("model call failed after %d attempts: %w", e.cfg.MaxRetries, lastErr)
}

// isTransient reports whether an API error is worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if ok := asAPIError(err, &apiErr); ok {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	// Network-level errors have no status; retry them.
	return true
}

func asAPIError(err error, target **openai.APIError) bool {
	for err != nil {
		if e, ok := err.(*openai.APIError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// parseItems unmarshals a cleaned model response. A single object is
// accepted and treated as a one-element batch.
func parseItems(raw string) ([]model.Item, error) {
	cleaned := CleanJSON(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("no JSON payload in response")
	}

	var items []model.Item
	if err := json.Unmarshal([]byte(cleaned), &items); err == nil {
		return items, nil
	}

	var single model.Item
	if err := json.Unmarshal([]byte(cleaned), &single); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return []model.Item{single}, nil
}

// normalizeItems fills the defaults the model tends to omit.
func normalizeItems(items []model.Item) {
	for i := range items {
		if items[i].ItemIndex <= 0 {
			items[i].ItemIndex = i + 1
		}
		if items[i].Confidence <= 0 {
			items[i].Confidence = 0.5
		}
		if items[i].Status == "" {
			items[i].Status = model.StatusReview
		}
		items[i].Type = model.ParseItemType(string(items[i].Type))
	}
}

// ReviewExtractor is the no-model extractor used when LLM extraction is
// disabled. Every non-empty source blob yields a single review item
// carrying the excerpt, so the post still reaches the sheet.
type ReviewExtractor struct {
	Confidence float64
}

// Infer implements Extractor.
func (r *ReviewExtractor) Infer(ctx context.Context, sourceBlob string) ([]model.Item, error) {
	blob := strings.TrimSpace(sourceBlob)
	if blob == "" {
		return nil, nil
	}
	conf := r.Confidence
	if conf <= 0 {
		conf = 0.3
	}
	excerpt := blob
	if len(excerpt) > 200 {
		excerpt = excerpt[:200]
	}
	return []model.Item{{
		ItemIndex:  1,
		Type:       model.TypeOther,
		Name:       "NEEDS REVIEW",
		Notes:      "model extraction disabled; review source text",
		SourceText: excerpt,
		Confidence: conf,
		Status:     model.StatusReview,
	}}, nil
}

// fallback produces the single needs-review item used when the model
// output is unusable.
func (e *OpenAIExtractor) fallback(blob string) []model.Item {
	excerpt := blob
	if len(excerpt) > 200 {
		excerpt = excerpt[:200]
	}
	return []model.Item{{
		ItemIndex:  1,
		Type:       model.TypeOther,
		Name:       "NEEDS REVIEW",
		Notes:      "automatic extraction failed; review source text",
		SourceText: excerpt,
		Confidence: e.cfg.FallbackConfidence,
		Status:     model.StatusReview,
	}}
}
