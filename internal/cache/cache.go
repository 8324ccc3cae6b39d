package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache stores decided answers so repeated questions skip the provider fan-out.
type Cache interface {
	// GetAnswer returns nil on a miss.
	GetAnswer(ctx context.Context, key string) (*Answer, error)

	SetAnswer(ctx context.Context, key string, answer *Answer, ttl time.Duration) error

	// Flush drops every cached answer, e.g. after the provider set or bonus table changes.
	Flush(ctx context.Context) error

	Close() error
}

// Answer is the cached shape of a decide response.
type Answer struct {
	Answer     string   `json:"answer"`
	Source     string   `json:"source"`
	Confidence float64  `json:"confidence"`
	AllSources []string `json:"all_sources"`
	Category   string   `json:"category"`
}

// Key derives a cache key from the question. Case and whitespace differences share a key.
func Key(question string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(question), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
