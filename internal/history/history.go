// Package history keeps the append-only log of routing decisions.
package history

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"answer-router/internal/classify"
	"answer-router/internal/provider"
	"answer-router/internal/scoring"
)

// DefaultWindow is the number of recent records Stats looks at when no window is given.
const DefaultWindow = 100

// Record is one completed selection pass. Records are never mutated after Append.
type Record struct {
	ID        uuid.UUID         `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Question  string            `json:"question"`
	Category  classify.Category `json:"category"`
	Results   []provider.Result `json:"results"`
	Winner    scoring.Scored    `json:"winner"`
}

// AllSources lists the sources of every considered result, in query order.
func (r Record) AllSources() []string {
	out := make([]string, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.Source
	}
	return out
}

// clone deep-copies the results and their metadata so stored records share nothing with callers.
func (r Record) clone() Record {
	out := r
	if r.Results != nil {
		out.Results = make([]provider.Result, len(r.Results))
		for i, res := range r.Results {
			out.Results[i] = cloneResult(res)
		}
	}
	out.Winner.Result = cloneResult(r.Winner.Result)
	return out
}

func cloneResult(res provider.Result) provider.Result {
	res.Metadata = maps.Clone(res.Metadata)
	return res
}

// Sink receives a copy of every appended record, e.g. for durable storage.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Write(ctx context.Context, rec Record) error { return f(ctx, rec) }

// Stats summarizes recent decisions.
type Stats struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"by_category"`
	BySource   map[string]int `json:"by_source"`
	TopSource  string         `json:"top_source"`
	// CacheHits counts answers served from the cache. They are not decisions and are not in Total.
	CacheHits  int            `json:"cache_hits"`
}

// Store is an in-memory append-only decision log, safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	records    []Record
	total      int
	cacheHits  int
	maxRecords int
}

// NewStore returns a Store keeping at most maxRecords records (0 keeps all).
// Evicted records still count toward Stats.Total.
func NewStore(maxRecords int) *Store {
	if maxRecords < 0 {
		maxRecords = 0
	}
	return &Store{maxRecords: maxRecords}
}

// Append adds a copy of rec at the end of the log.
func (s *Store) Append(rec Record) {
	rec = rec.clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	s.total++
	if s.maxRecords > 0 && len(s.records) > s.maxRecords {
		drop := len(s.records) - s.maxRecords
		s.records = slices.Delete(s.records, 0, drop)
	}
}

// NoteCacheHit counts an answer served without a new decision.
func (s *Store) NoteCacheHit() {
	s.mu.Lock()
	s.cacheHits++
	s.mu.Unlock()
}

// Len returns the number of retained records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Recent returns a copy of the last n retained records, oldest first.
func (s *Store) Recent(n int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.records) {
		n = len(s.records)
	}
	src := s.records[len(s.records)-n:]
	out := make([]Record, len(src))
	for i, rec := range src {
		out[i] = rec.clone()
	}
	return out
}

// Stats reports totals and histograms over the most recent window records.
func (s *Store) Stats(window int) Stats {
	if window <= 0 {
		window = DefaultWindow
	}
	s.mu.RLock()
	total := s.total
	cacheHits := s.cacheHits
	start := max(len(s.records)-window, 0)
	recent := s.records[start:]
	byCategory := make(map[string]int)
	bySource := make(map[string]int)
	for _, rec := range recent {
		byCategory[string(rec.Category)]++
		bySource[rec.Winner.Result.Source]++
	}
	s.mu.RUnlock()

	return Stats{
		Total:      total,
		ByCategory: byCategory,
		BySource:   bySource,
		TopSource:  topKey(bySource),
		CacheHits:  cacheHits,
	}
}

// topKey returns the key with the highest count, ties broken alphabetically.
func topKey(counts map[string]int) string {
	var best string
	bestCount := 0
	for k, c := range counts {
		if c > bestCount || (c == bestCount && k < best) {
			best, bestCount = k, c
		}
	}
	return best
}
