// Package scoring ranks provider results with cheap heuristics and picks a winner.
package scoring

import (
	"unicode/utf8"

	"answer-router/internal/classify"
	"answer-router/internal/provider"
)

// FallbackSource is the source of the synthetic answer returned when nothing is usable.
const FallbackSource = "system"

// FallbackText is the apology returned with the fallback answer.
const FallbackText = "I apologize, but all AI services are currently unavailable. Please try again later."

// Weights are the tunable constants of the scoring formula.
type Weights struct {
	// LengthWeight scales the saturating length bonus.
	LengthWeight float64
	// LengthScale is the text length (in runes) at which the length bonus saturates.
	LengthScale float64
	// ConfidenceFloor narrows candidates to confident results when at least one clears it.
	ConfidenceFloor float64
}

// DefaultWeights returns the canonical constants.
func DefaultWeights() Weights {
	return Weights{LengthWeight: 0.1, LengthScale: 1000, ConfidenceFloor: 0.5}
}

// Scored is a result with its score and the parts it was derived from.
type Scored struct {
	Result        provider.Result `json:"result"`
	Score         float64         `json:"score"`
	LengthBonus   float64         `json:"length_bonus"`
	CategoryBonus float64         `json:"category_bonus"`
}

// IsFallback reports whether s is the synthetic system answer.
func (s Scored) IsFallback() bool {
	return s.Result.Source == FallbackSource
}

// Scorer computes scores and selects winners. It holds no mutable state.
type Scorer struct {
	weights Weights
	bonuses BonusTable
}

// New returns a Scorer. Non-positive length scale falls back to the default.
func New(w Weights, bonuses BonusTable) *Scorer {
	if w.LengthScale <= 0 {
		w.LengthScale = DefaultWeights().LengthScale
	}
	if w.LengthWeight < 0 {
		w.LengthWeight = 0
	}
	return &Scorer{weights: w, bonuses: bonuses}
}

// Score computes confidence + min(len/scale, 1)*weight + bonus(category, source).
func (s *Scorer) Score(r provider.Result, category classify.Category) Scored {
	ratio := float64(utf8.RuneCountInString(r.Text)) / s.weights.LengthScale
	if ratio > 1 {
		ratio = 1
	}
	length := ratio * s.weights.LengthWeight
	bonus := s.bonuses.Bonus(category, r.Source)
	return Scored{
		Result:        r,
		Score:         r.Confidence + length + bonus,
		LengthBonus:   length,
		CategoryBonus: bonus,
	}
}

// Rank scores every result, preserving input order.
func (s *Scorer) Rank(results []provider.Result, category classify.Category) []Scored {
	out := make([]Scored, len(results))
	for i, r := range results {
		out[i] = s.Score(r, category)
	}
	return out
}

// Select picks the best usable result. Zero-confidence results never win; if any
// usable result reaches the confidence floor only those compete; ties keep the
// earliest result. With nothing usable the system fallback is returned.
func (s *Scorer) Select(results []provider.Result, category classify.Category) Scored {
	var usable []provider.Result
	confident := false
	for _, r := range results {
		if !r.Usable() {
			continue
		}
		usable = append(usable, r)
		if r.Confidence >= s.weights.ConfidenceFloor {
			confident = true
		}
	}
	if len(usable) == 0 {
		return Fallback()
	}

	var best Scored
	found := false
	for _, r := range usable {
		if confident && r.Confidence < s.weights.ConfidenceFloor {
			continue
		}
		sc := s.Score(r, category)
		if !found || sc.Score > best.Score {
			best = sc
			found = true
		}
	}
	return best
}

// Fallback is the synthetic answer used when no provider produced anything usable.
func Fallback() Scored {
	return Scored{Result: provider.Unavailable(FallbackSource, FallbackText)}
}
