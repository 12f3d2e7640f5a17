package draftgen

import (
	"strings"

	"github.com/listforge/listforge/internal/domain"
)

// Base second-hand prices per category, in the marketplace currency.
var basePrices = map[string]float64{
	"tshirts":     8,
	"shirts":      12,
	"hoodies":     18,
	"sweaters":    16,
	"jackets":     30,
	"coats":       40,
	"jeans":       20,
	"trousers":    15,
	"dresses":     18,
	"skirts":      12,
	"shoes":       25,
	"accessories": 10,
	"other":       10,
}

const defaultBasePrice = 10

// brandTiers maps well-known brands to a price multiplier. Unlisted brands
// fall into the default tier.
var brandTiers = map[string]float64{
	"stone island":   3.5,
	"moncler":        3.5,
	"burberry":       3.0,
	"ralph lauren":   2.0,
	"lacoste":        1.8,
	"tommy hilfiger": 1.6,
	"carhartt":       1.8,
	"the north face": 1.8,
	"patagonia":      1.8,
	"nike":           1.4,
	"adidas":         1.4,
	"levi's":         1.5,
	"levis":          1.5,
	"zara":           0.9,
	"h&m":            0.7,
	"shein":          0.5,
	"primark":        0.5,
}

const defaultBrandTier = 1.0

var conditionMultipliers = map[string]float64{
	"new with tags": 1.4,
	"very good":     1.0,
	"good":          0.8,
	"fair":          0.55,
}

const defaultConditionMultiplier = 0.8

// Spread of the price band around the recommended target.
const (
	minFactor = 0.75
	maxFactor = 1.3
)

// SuggestPrice computes the price triple for a garment from its category
// base price, brand tier and condition. Target is the recommended list
// price; the band satisfies min <= target <= max.
func SuggestPrice(category, brand, condition string) domain.PriceRange {
	base, ok := basePrices[strings.ToLower(strings.TrimSpace(category))]
	if !ok {
		base = defaultBasePrice
	}

	tier, ok := brandTiers[strings.ToLower(strings.TrimSpace(brand))]
	if !ok {
		tier = defaultBrandTier
	}

	cond, ok := conditionMultipliers[strings.ToLower(strings.TrimSpace(condition))]
	if !ok {
		cond = defaultConditionMultiplier
	}

	target := roundPrice(base * tier * cond)
	return domain.PriceRange{
		Min:    roundPrice(target * minFactor),
		Target: target,
		Max:    roundPrice(target * maxFactor),
	}
}

// roundPrice rounds to a half-unit with a floor of 1.
func roundPrice(v float64) float64 {
	rounded := float64(int(v*2+0.5)) / 2
	if rounded < 1 {
		return 1
	}
	return rounded
}
