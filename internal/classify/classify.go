// Package classify maps a question to a coarse topic category used to bias selection.
package classify

import (
	"strings"
	"unicode"
)

// Category is one of a fixed, closed set of question topics.
type Category string

const (
	Coding        Category = "coding"
	Explanation   Category = "explanation"
	Tutorial      Category = "tutorial"
	Creative      Category = "creative"
	Navigation    Category = "navigation"
	CurrentEvents Category = "current_events"
	General       Category = "general"
)

// All lists every category, general last.
var All = []Category{Coding, Explanation, Tutorial, Creative, Navigation, CurrentEvents, General}

// Valid reports whether c belongs to the closed category set.
func (c Category) Valid() bool {
	for _, known := range All {
		if c == known {
			return true
		}
	}
	return false
}

// Parse converts a string into a Category.
func Parse(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	return c, c.Valid()
}

type rule struct {
	category Category
	keywords []string
}

// rules are evaluated in order; the first category with a matching keyword wins.
var rules = []rule{
	{Coding, []string{
		"code", "coding", "program", "programming", "function", "debug", "bug", "compile", "compiler",
		"algorithm", "python", "javascript", "typescript", "golang", "java", "rust", "sql", "regex",
		"api", "script", "syntax", "stack trace", "unit test",
	}},
	{Explanation, []string{
		"explain", "explanation", "what is", "what are", "why", "how does", "how do", "meaning",
		"define", "definition", "difference between",
	}},
	{Tutorial, []string{
		"how to", "tutorial", "step by step", "guide", "teach me", "walkthrough", "learn", "instructions",
	}},
	{Creative, []string{
		"poem", "story", "creative", "imagine", "lyrics", "joke", "haiku", "song", "write a", "fiction",
	}},
	{Navigation, []string{
		"directions", "route", "navigate", "navigation", "map", "distance", "near me", "how far",
		"nearest", "get to",
	}},
	{CurrentEvents, []string{
		"news", "latest", "today", "current", "recent", "breaking", "this week", "headlines",
		"election", "stock price", "weather",
	}},
}

// Classify returns the category of question. It is a pure function of the
// lower-cased text and never returns anything outside the closed set.
func Classify(question string) Category {
	words := normalize(question)
	if len(words) == 0 {
		return General
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	padded := " " + strings.Join(words, " ") + " "

	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(kw, " ") {
				if strings.Contains(padded, " "+kw+" ") {
					return r.category
				}
				continue
			}
			if _, ok := set[kw]; ok {
				return r.category
			}
		}
	}
	return General
}

// normalize lower-cases text and splits it on anything that is not a letter or digit.
func normalize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
