package symptom

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// AnswerSet maps symptom ids to presence for one request.
type AnswerSet map[string]bool

// Vector is the numeric feature row handed to the classifier.
type Vector []float32

// Encode reindexes answers into schema order. Unknown keys are ignored and
// missing symptoms are 0.
func Encode(answers AnswerSet, schema *Schema) Vector {
	vec := make(Vector, schema.Len())
	for i, sym := range schema.symptoms {
		if answers[sym.ID] {
			vec[i] = 1
		}
	}
	return vec
}

// Present returns the ids of present symptoms in schema order.
func Present(answers AnswerSet, schema *Schema) []string {
	var out []string
	for _, sym := range schema.symptoms {
		if answers[sym.ID] {
			out = append(out, sym.ID)
		}
	}
	return out
}

// ParsePresence converts a user answer to a boolean.
func ParsePresence(raw string) (bool, error) {
	switch strings.ToLower(normalize(raw)) {
	case "present", "yes", "y", "true", "1", "on":
		return true, nil
	case "absent", "no", "n", "false", "0", "off", "":
		return false, nil
	default:
		return false, fmt.Errorf("unrecognized answer %q", raw)
	}
}

// NormalizeID folds a key such as "Chest Pain" or "chest-pain" into the
// canonical id form "chest_pain".
func NormalizeID(raw string) string {
	s := strings.ToLower(normalize(raw))
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return '_'
		}
		return r
	}, s)
}

func normalize(text string) string {
	normed := strings.TrimSpace(norm.NFKC.String(text))
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, normed)
}
