package draftgen

import (
	"fmt"
	"strings"

	"github.com/listforge/listforge/internal/validation"
)

// Descriptive defaults substituted when an attribute is visually
// indeterminate. Required attributes are never left empty.
const (
	defaultSize      = "one size – check measurements in photos"
	defaultCondition = "good"
)

// scrubTitle bounds the title to the policy limit and falls back to a
// synthesized factual title when the model's title violates policy.
func scrubTitle(title, brand, category, color, size, condition string) string {
	title = strings.TrimSpace(title)

	if title == "" || validation.ContainsForbiddenTokens(title) {
		title = synthesizeTitle(brand, category, color, size, condition)
	}

	return truncateAtWord(title, validation.MaxTitleLength)
}

func synthesizeTitle(brand, category, color, size, condition string) string {
	parts := make([]string, 0, 4)
	if brand != "" {
		parts = append(parts, brand)
	}
	if color != "" {
		parts = append(parts, color)
	}
	if category != "" {
		parts = append(parts, strings.TrimSuffix(category, "s"))
	}
	base := strings.Join(parts, " ")
	if base == "" {
		base = "Clothing item"
	}
	return fmt.Sprintf("%s size %s – %s condition", base, size, condition)
}

// scrubDescription strips emoji runes and drops sentences containing
// superlative marketing tokens, keeping the description factual.
func scrubDescription(desc string) string {
	desc = stripEmoji(strings.TrimSpace(desc))
	if desc == "" {
		return "See photos for details on material, fit and wear."
	}

	if !validation.ContainsForbiddenTokens(desc) {
		return desc
	}

	sentences := strings.Split(desc, ". ")
	kept := sentences[:0]
	for _, s := range sentences {
		if !validation.ContainsForbiddenTokens(s) {
			kept = append(kept, s)
		}
	}
	cleaned := strings.Join(kept, ". ")
	if strings.TrimSpace(cleaned) == "" {
		return "See photos for details on material, fit and wear."
	}
	return cleaned
}

func stripEmoji(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 0x1F300 && r <= 0x1FAFF:
		case r >= 0x2600 && r <= 0x27BF:
		case r == 0xFE0F:
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// normalizeHashtags guarantees 3-5 well-formed hashtags, synthesizing from
// the garment's attributes when the model returned too few.
func normalizeHashtags(tags []string, brand, category, color string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, validation.MaxHashtags)

	add := func(tag string) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		tag = strings.ReplaceAll(tag, " ", "")
		if tag == "" || tag == "#" {
			return
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		if seen[tag] || len(out) >= validation.MaxHashtags {
			return
		}
		seen[tag] = true
		out = append(out, tag)
	}

	for _, t := range tags {
		add(t)
	}
	for _, t := range []string{brand, category, color, "secondhand", "preloved", "wardrobe"} {
		if len(out) >= validation.MinHashtags {
			break
		}
		add(t)
	}
	return out
}

// truncateAtWord shortens s to at most max runes, cutting at the last word
// boundary that fits.
func truncateAtWord(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}

	cut := string(runes[:max])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,.-–")
}
