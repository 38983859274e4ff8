package memory

import (
	"math"
	"strings"
	"unicode/utf8"
)

// baseImportance is the starting score for each known record type.
var baseImportance = map[Type]float64{
	TypeImportantInfo: 0.9,
	TypeFact:          0.8,
	TypePreference:    0.7,
	TypeTask:          0.7,
	TypeConversation:  0.6,
}

const defaultBaseImportance = 0.5

// importanceKeywords signal that the user wants something kept.
// Matching is case-insensitive substring, so "dislike" also hits "like".
var importanceKeywords = []string{
	"remember", "important", "save", "note", "preference",
	"like", "dislike", "love", "hate", "always",
	"never", "favorite", "critical", "urgent", "birthday",
}

var questionIndicators = []string{
	"how", "what", "when", "where", "why", "can you", "help", "explain",
}

// Score computes the importance of content stored as type t.
//
// Base by type, +0.1 per distinct keyword, clamp to 1.0, then a length
// penalty (x0.8 under 10 runes, x0.9 over 500), rounded to 2 decimals.
func Score(content string, t Type) float64 {
	score, ok := baseImportance[t]
	if !ok {
		score = defaultBaseImportance
	}
	score += keywordBonus(content)
	score = math.Min(score, 1.0)

	switch n := utf8.RuneCountInString(content); {
	case n < 10:
		score *= 0.8
	case n > 500:
		score *= 0.9
	}
	return round2(score)
}

// ScoreConversation computes the importance of a user/assistant exchange.
func ScoreConversation(user, assistant string) float64 {
	score := baseImportance[TypeConversation]
	score += keywordBonus(user)

	lower := strings.ToLower(user)
	for _, q := range questionIndicators {
		if strings.Contains(lower, q) {
			score += 0.1
			break
		}
	}
	if utf8.RuneCountInString(assistant) > 100 {
		score += 0.1
	}
	return round2(math.Min(score, 1.0))
}

// HasImportanceKeyword reports whether text contains any importance keyword.
func HasImportanceKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range importanceKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func keywordBonus(text string) float64 {
	lower := strings.ToLower(text)
	var bonus float64
	for _, kw := range importanceKeywords {
		if strings.Contains(lower, kw) {
			bonus += 0.1
		}
	}
	return bonus
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
