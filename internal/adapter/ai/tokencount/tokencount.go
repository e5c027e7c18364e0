// Package tokencount sizes chat requests for the question providers.
//
// Counting uses tiktoken-go. When an encoding cannot be loaded (offline
// hosts, unknown models) the counter falls back to a chars/4 estimate.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Per-question completion budget and bounds for max_tokens.
const (
	tokensPerQuestion = 220
	minCompletion     = 1024
	maxCompletion     = 8000
)

// Counter counts prompt tokens per model family.
type Counter struct {
	mu    sync.RWMutex
	cache map[string]*tiktoken.Tiktoken
	// load resolves an encoding for a normalized model name.
	load func(model string) (*tiktoken.Tiktoken, error)
}

// NewCounter returns a counter backed by tiktoken encodings.
func NewCounter() *Counter {
	return &Counter{cache: make(map[string]*tiktoken.Tiktoken), load: loadEncoding}
}

// NewEstimatingCounter never loads an encoding and always estimates.
func NewEstimatingCounter() *Counter {
	return &Counter{cache: make(map[string]*tiktoken.Tiktoken), load: nil}
}

func loadEncoding(model string) (*tiktoken.Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err == nil {
		return enc, nil
	}
	return tiktoken.GetEncoding("cl100k_base")
}

func (c *Counter) encoding(model string) *tiktoken.Tiktoken {
	if c == nil || c.load == nil {
		return nil
	}
	key := normalizeModelName(model)
	c.mu.RLock()
	enc, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return enc
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.cache[key]; ok {
		return enc
	}
	enc, err := c.load(key)
	if err != nil {
		slog.Debug("token encoding unavailable, estimating", slog.String("model", model), slog.Any("error", err))
		enc = nil
	}
	// nil is cached too so a failing load is not retried on every call
	c.cache[key] = enc
	return enc
}

// normalizeModelName maps provider model ids onto tiktoken model names.
// OpenRouter ids carry a vendor prefix and sometimes a ":free" suffix.
func normalizeModelName(model string) string {
	model = strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	model = strings.TrimSuffix(model, ":free")
	if strings.Contains(model, "gpt-3.5") {
		return "gpt-3.5-turbo"
	}
	// llama, mixtral, gemma, gemini and the rest are close enough to cl100k
	return "gpt-4"
}

// Estimate returns prompt and text lengths in chars/4 tokens.
func Estimate(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		return 1
	}
	return n
}

// CountChat counts a system+user chat prompt including message framing.
func (c *Counter) CountChat(system, user, model string) int {
	enc := c.encoding(model)
	if enc == nil {
		return Estimate(system) + Estimate(user) + 11
	}
	// 3 framing + 1 role per message, 3 for the assistant primer
	n := 3
	for _, part := range [][2]string{{"system", system}, {"user", user}} {
		n += 4 + len(enc.Encode(part[0], nil, nil)) + len(enc.Encode(part[1], nil, nil))
	}
	return n
}

// MaxTokens sizes the completion budget for a request producing questions.
func MaxTokens(questions int) int {
	n := questions * tokensPerQuestion
	switch {
	case n < minCompletion:
		return minCompletion
	case n > maxCompletion:
		return maxCompletion
	}
	return n
}
