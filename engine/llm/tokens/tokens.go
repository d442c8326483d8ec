// Package tokens estimates token counts for prompt budgeting. It prefers
// tiktoken encodings and degrades to a character heuristic when the
// encoding data is unavailable (offline environments, unknown encodings),
// so budget trimming never becomes a hard failure.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const (
	defaultEncoding = "cl100k_base"
	// Rough chars-per-token ratio for English prose, used when no
	// encoding can be loaded.
	heuristicCharsPerToken = 4
)

// Counter estimates token counts for a single encoding.
type Counter struct {
	mu       sync.RWMutex
	encoding string
	tke      *tiktoken.Tiktoken
}

// NewCounter builds a counter for the named encoding or model. Resolution
// order: encoding name, then model name, then the default encoding, then
// the heuristic.
func NewCounter(encodingOrModel string) *Counter {
	if encodingOrModel == "" {
		encodingOrModel = defaultEncoding
	}
	c := &Counter{encoding: encodingOrModel}
	if tke, err := tiktoken.GetEncoding(encodingOrModel); err == nil {
		c.tke = tke
		return c
	}
	if tke, err := tiktoken.EncodingForModel(encodingOrModel); err == nil {
		c.tke = tke
		return c
	}
	if tke, err := tiktoken.GetEncoding(defaultEncoding); err == nil {
		c.encoding = defaultEncoding
		c.tke = tke
	}
	return c
}

// Count estimates the token count of text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.mu.RLock()
	tke := c.tke
	c.mu.RUnlock()
	if tke == nil {
		return heuristicCount(text)
	}
	return len(tke.Encode(text, nil, nil))
}

// Encoding reports the encoding in use, or "heuristic" when none loaded.
func (c *Counter) Encoding() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tke == nil {
		return "heuristic"
	}
	return c.encoding
}

func heuristicCount(text string) int {
	n := len(text)
	count := n / heuristicCharsPerToken
	if n%heuristicCharsPerToken != 0 {
		count++
	}
	return count
}
