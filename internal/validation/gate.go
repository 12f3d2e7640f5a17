// Package validation implements the publish-readiness gate for drafts.
// The gate is pure and deterministic: re-validating an unmodified draft
// always yields the same result, and nothing here has side effects.
package validation

import (
	"strings"
	"unicode"

	"github.com/listforge/listforge/internal/domain"
)

const (
	// MaxTitleLength is the title character limit enforced by the gate.
	MaxTitleLength = 70
	// MinHashtags is the minimum number of hashtags on a publishable draft.
	MinHashtags = 3
	// MaxHashtags is the maximum number of hashtags on a publishable draft.
	MaxHashtags = 5
)

// Field identifiers reported in ValidationResult.MissingFields.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldHashtags    = "hashtags"
	FieldSize        = "size"
	FieldCondition   = "condition"
	FieldPrice       = "price"
	FieldPhotos      = "photos"
)

// superlatives are marketing tokens that disqualify a title or description.
// Matching is case-insensitive on word boundaries.
var superlatives = []string{
	"amazing", "awesome", "best", "incredible", "perfect",
	"stunning", "unbeatable", "must-have", "must have", "wow",
	"gorgeous", "fabulous", "epic",
}

// Validate runs the full rule set against a draft and returns the
// publish-readiness result. The returned MissingFields lists every rule
// that failed, not just the first.
func Validate(d *domain.Draft) domain.ValidationResult {
	var missing []string

	if !titleOK(d.Title) {
		missing = append(missing, FieldTitle)
	}
	if !descriptionOK(d.Description) {
		missing = append(missing, FieldDescription)
	}
	if len(d.Hashtags) < MinHashtags || len(d.Hashtags) > MaxHashtags {
		missing = append(missing, FieldHashtags)
	}
	if strings.TrimSpace(d.Size) == "" {
		missing = append(missing, FieldSize)
	}
	if strings.TrimSpace(d.Condition) == "" {
		missing = append(missing, FieldCondition)
	}
	if !d.Price.Ordered() {
		missing = append(missing, FieldPrice)
	}
	if len(d.PhotoRefs) == 0 {
		missing = append(missing, FieldPhotos)
	}

	return domain.ValidationResult{
		Ready:         len(missing) == 0,
		MissingFields: missing,
	}
}

func titleOK(title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}
	if len([]rune(title)) > MaxTitleLength {
		return false
	}
	return !ContainsForbiddenTokens(title)
}

func descriptionOK(desc string) bool {
	if strings.TrimSpace(desc) == "" {
		return false
	}
	return !ContainsForbiddenTokens(desc)
}

// ContainsForbiddenTokens reports whether s contains emoji or marketing
// superlatives. Shared with the draft generator, which scrubs content
// before handing off; the gate re-checks independently.
func ContainsForbiddenTokens(s string) bool {
	if containsEmoji(s) {
		return true
	}

	lower := strings.ToLower(s)
	for _, word := range superlatives {
		if containsWord(lower, word) {
			return true
		}
	}
	return false
}

// containsEmoji detects emoji and pictographic runes.
func containsEmoji(s string) bool {
	for _, r := range s {
		switch {
		case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, emoticons, symbols
			return true
		case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
			return true
		case r == 0xFE0F: // variation selector used by emoji sequences
			return true
		}
	}
	return false
}

// containsWord reports whether lower contains word bounded by non-letters.
func containsWord(lower, word string) bool {
	idx := 0
	for {
		i := strings.Index(lower[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)

		beforeOK := start == 0 || !isWordRune(rune(lower[start-1]))
		afterOK := end == len(lower) || !isWordRune(rune(lower[end]))
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
