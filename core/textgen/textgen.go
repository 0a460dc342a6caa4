// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package textgen produces text with Gemini models.

Keys are taken from a [keypool.Pool]; a key that is throttled or rejected is
benched and the request is retried with the next one.
*/
package textgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"codeberg.org/quickai/quickai/core/audit"
	"codeberg.org/quickai/quickai/core/keypool"
	"codeberg.org/quickai/quickai/core/requests"
)

// ErrEmptyResponse is returned when the model answered without any text.
var ErrEmptyResponse = errors.New("AI did not return any content")

// Options configure a Generator.
type Options struct {
	Model       string
	Temperature float32
	// BaseURL overrides the Gemini endpoint. Empty means the SDK default.
	BaseURL    string
	HTTPClient *http.Client
}

// Generator calls Gemini's generateContent with pooled keys.
type Generator struct {
	pool    *keypool.Pool
	opts    Options
	mu      sync.Mutex
	clients map[string]*genai.Client
}

// New returns a Generator. The HTTP client defaults to one that logs
// spans to Gemini.
func New(pool *keypool.Pool, opts Options) *Generator {
	if opts.HTTPClient == nil {
		opts.HTTPClient = requests.NewClient(audit.ToGemini)
	}

	return &Generator{
		pool:    pool,
		opts:    opts,
		clients: make(map[string]*genai.Client),
	}
}

// Generate returns the model's answer to prompt, capped at maxTokens output tokens.
func (g *Generator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := g.GenerateContent(ctx, g.opts.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.opts.Temperature),
		MaxOutputTokens: int32(maxTokens), // #nosec G115 -- bounded by request validation
	})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(ResponseText(resp))
	if text == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}

// GenerateContent sends contents to model, rotating keys on retryable
// failures. It is shared with the Gemini image provider.
func (g *Generator) GenerateContent(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	var lastErr error

	for attempt := range g.pool.MaxRetries() {
		key, err := g.pool.Acquire()
		if err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("gemini: %w (last error: %w)", err, lastErr)
			}

			return nil, fmt.Errorf("gemini: %w", err)
		}

		client, err := g.client(ctx, key.Value)
		if err != nil {
			return nil, err
		}

		resp, err := client.Models.GenerateContent(ctx, model, contents, config)
		if err == nil {
			g.pool.MarkKeyStatus(key, keypool.Good)

			return resp, nil
		}

		if requests.IsContextCanceled(err) {
			return nil, err
		}

		code := StatusCode(err)
		if keypool.StatusForCode(code) == keypool.Good {
			return nil, fmt.Errorf("gemini: %w", err)
		}

		g.pool.MarkKeyStatus(key, keypool.TimedOut)

		log.Ctx(ctx).Warn().
			Err(err).
			Int("status_code", code).
			Int("attempt", attempt+1).
			Msg("Gemini key benched, retrying with another key")

		lastErr = err
	}

	return nil, fmt.Errorf("gemini: retries exhausted: %w", lastErr)
}

// client returns a cached SDK client for key.
func (g *Generator) client(ctx context.Context, key string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.clients[key]; ok {
		return c, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.opts.HTTPClient,
	}

	if g.opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimSuffix(g.opts.BaseURL, "/") + "/"}
	}

	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	g.clients[key] = c

	return c, nil
}

// ResponseText concatenates the text parts of the first candidate.
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder

	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}

		b.WriteString(part.Text)
	}

	return b.String()
}

// StatusCode extracts the HTTP status from a Gemini SDK error, or 0.
func StatusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}

	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}

	return 0
}
