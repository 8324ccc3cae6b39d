package scoring

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"answer-router/internal/classify"
)

// MaxBonus caps any single category bonus.
const MaxBonus = 0.25

// BonusTable maps (category, source) to an additive score bonus in [0, MaxBonus].
type BonusTable map[classify.Category]map[string]float64

// Bonus returns the configured bonus, or 0 when the pair is absent.
func (t BonusTable) Bonus(category classify.Category, source string) float64 {
	if t == nil {
		return 0
	}
	b := t[category][source]
	if math.IsNaN(b) {
		return 0
	}
	return b
}

// Validate rejects unknown categories and bonuses outside [0, MaxBonus], including NaN.
func (t BonusTable) Validate() error {
	for category, sources := range t {
		if !category.Valid() {
			return fmt.Errorf("unknown category %q", category)
		}
		for source, bonus := range sources {
			if math.IsNaN(bonus) || bonus < 0 || bonus > MaxBonus {
				return fmt.Errorf("bonus for %s/%s out of range [0, %.2f]: %v", category, source, MaxBonus, bonus)
			}
		}
	}
	return nil
}

// DefaultBonusTable favors search-backed sources for current events and
// general-purpose chat models for code and prose.
func DefaultBonusTable() BonusTable {
	return BonusTable{
		classify.Coding:        {"openai": 0.15, "gemini": 0.05},
		classify.Explanation:   {"openai": 0.10, "gemini": 0.10, "perplexity": 0.05},
		classify.Tutorial:      {"openai": 0.10, "gemini": 0.05},
		classify.Creative:      {"openai": 0.10, "gemini": 0.15},
		classify.Navigation:    {"gemini": 0.10, "perplexity": 0.10},
		classify.CurrentEvents: {"perplexity": 0.25},
	}
}

// LoadBonusTable reads a YAML document of the form
//
//	coding:
//	  openai: 0.15
//	current_events:
//	  perplexity: 0.25
func LoadBonusTable(path string) (BonusTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bonus table: %w", err)
	}
	return ParseBonusTable(data)
}

// ParseBonusTable decodes and validates a YAML bonus table.
func ParseBonusTable(data []byte) (BonusTable, error) {
	var raw map[string]map[string]float64
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode bonus table: %w", err)
	}
	table := make(BonusTable, len(raw))
	for name, sources := range raw {
		category, ok := classify.Parse(name)
		if !ok {
			return nil, fmt.Errorf("unknown category %q", name)
		}
		table[category] = sources
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}
