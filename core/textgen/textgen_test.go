// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package textgen

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"google.golang.org/genai"

	"codeberg.org/quickai/quickai/core/keypool"
)

const okBody = `{"candidates":[{"content":{"role":"model","parts":[{"text":"  Ten tips for better sleep  "}]},"finishReason":"STOP"}]}`

// fakeGemini answers generateContent calls per API key.
type fakeGemini struct {
	mu       sync.Mutex
	bodies   []string
	keysSeen map[string]int
	status   map[string]int
	reply    string
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("x-goog-api-key")
	if key == "" {
		key = r.URL.Query().Get("key")
	}

	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.keysSeen[key]++
	f.bodies = append(f.bodies, string(body))
	status := f.status[key]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if !strings.HasSuffix(r.URL.Path, ":generateContent") {
		w.WriteHeader(http.StatusNotFound)

		return
	}

	if status != 0 {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"error":{"code":`+strconv.Itoa(status)+`,"message":"nope","status":"UNAVAILABLE"}}`)

		return
	}

	_, _ = io.WriteString(w, f.reply)
}

func (f *fakeGemini) seen(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.keysSeen[key]
}

func (f *fakeGemini) sentBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.bodies...)
}

func newFake(reply string) *fakeGemini {
	return &fakeGemini{keysSeen: map[string]int{}, status: map[string]int{}, reply: reply}
}

func newGenerator(server *httptest.Server, keys ...string) *Generator {
	pool := keypool.New(keys, len(keys), time.Minute, time.Hour, keypool.RoundRobin)

	return New(pool, Options{
		Model:       "gemini-2.0-flash",
		Temperature: 0.7,
		BaseURL:     server.URL,
		HTTPClient:  server.Client(),
	})
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	fake := newFake(okBody)
	server := httptest.NewServer(fake)
	defer server.Close()

	gen := newGenerator(server, "key-a")

	text, err := gen.Generate(context.Background(), "Write an article about sleep", 800)
	require.NoError(t, err)
	assert.Equal(t, "Ten tips for better sleep", text)

	bodies := fake.sentBodies()
	require.Len(t, bodies, 1)
	sent := gjson.Parse(bodies[0])
	assert.Equal(t, "Write an article about sleep", sent.Get("contents.0.parts.0.text").String())
	assert.Equal(t, int64(800), sent.Get("generationConfig.maxOutputTokens").Int())
	assert.InDelta(t, 0.7, sent.Get("generationConfig.temperature").Float(), 0.001)
}

func TestGenerateEmptyResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(newFake(`{"candidates":[{"content":{"role":"model","parts":[{"text":"   "}]}}]}`))
	defer server.Close()

	_, err := newGenerator(server, "key-a").Generate(context.Background(), "x", 100)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGenerateRotatesThrottledKey(t *testing.T) {
	t.Parallel()

	fake := newFake(okBody)
	fake.status["key-a"] = http.StatusTooManyRequests

	server := httptest.NewServer(fake)
	defer server.Close()

	gen := newGenerator(server, "key-a", "key-b")

	text, err := gen.Generate(context.Background(), "x", 100)
	require.NoError(t, err)
	assert.Equal(t, "Ten tips for better sleep", text)

	seenA := fake.seen("key-a")
	assert.Positive(t, seenA)
	assert.Positive(t, fake.seen("key-b"))

	// key-a is benched, so the next call goes straight to key-b
	_, err = gen.Generate(context.Background(), "y", 100)
	require.NoError(t, err)
	assert.Equal(t, seenA, fake.seen("key-a"))
}

func TestGenerateDoesNotRetryBadRequest(t *testing.T) {
	t.Parallel()

	fake := newFake(okBody)
	fake.status["key-a"] = http.StatusBadRequest

	server := httptest.NewServer(fake)
	defer server.Close()

	gen := newGenerator(server, "key-a", "key-b")

	_, err := gen.Generate(context.Background(), "x", 100)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	assert.Zero(t, fake.seen("key-b"))
}

func TestGenerateAllKeysFailing(t *testing.T) {
	t.Parallel()

	fake := newFake(okBody)
	fake.status["key-a"] = http.StatusServiceUnavailable

	server := httptest.NewServer(fake)
	defer server.Close()

	_, err := newGenerator(server, "key-a").Generate(context.Background(), "x", 100)
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
}

func TestResponseText(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ResponseText(nil))
	assert.Empty(t, ResponseText(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: "Hello, "},
				{Text: "world"},
			}},
		}},
	}
	assert.Equal(t, "Hello, world", ResponseText(resp))
}
