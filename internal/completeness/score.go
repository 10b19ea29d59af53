// Package completeness scores how much of the business profile a user has
// filled in, so the builder can nudge them before generating.
package completeness

import (
	"math"
	"sort"
	"strings"

	"github.com/raysh454/sitegen/internal/model"
)

// Level is a coarse bucket of the score.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// minDescriptionLen is where a description earns full credit.
const minDescriptionLen = 50

// FeatureWeights maps profile features to their contribution out of 100.
var FeatureWeights = map[string]float64{
	"company_name":     15,
	"description":      15,
	"products":         15,
	"contact":          10,
	"logo":             8,
	"export_markets":   7,
	"industry":         5,
	"country":          5,
	"certifications":   5,
	"hero_image":       5,
	"catalog":          5,
	"address":          3,
	"year_established": 2,
}

var featureDescriptions = map[string]string{
	"company_name":     "Company name",
	"description":      "A company description of at least 50 characters",
	"products":         "At least three products with descriptions",
	"contact":          "Contact email and phone number",
	"logo":             "Company logo",
	"export_markets":   "Export markets",
	"industry":         "Industry",
	"country":          "Country",
	"certifications":   "Certifications",
	"hero_image":       "Hero image",
	"catalog":          "Product catalog (PDF)",
	"address":          "Business address",
	"year_established": "Year established",
}

// DescribeFeature returns a human-readable label, or name itself.
func DescribeFeature(name string) string {
	if d, ok := featureDescriptions[name]; ok {
		return d
	}
	return name
}

// Missing is a feature that did not earn its full weight.
type Missing struct {
	Feature     string  `json:"feature"`
	Description string  `json:"description"`
	Lost        float64 `json:"lost"`
}

// Result is the outcome of Score.
type Result struct {
	Score   int       `json:"score"`
	Level   Level     `json:"level"`
	Missing []Missing `json:"missing,omitempty"`
}

// LevelFor buckets a 0–100 score: low below 40, high from 75.
func LevelFor(score int) Level {
	switch {
	case score < 40:
		return LevelLow
	case score < 75:
		return LevelMedium
	default:
		return LevelHigh
	}
}

// Score rates info from 0 to 100. Missing is ordered by lost weight, largest
// first.
func Score(info model.BusinessInfo) Result {
	credit := features(info)

	var total float64
	var missing []Missing
	for name, weight := range FeatureWeights {
		c := math.Max(0, math.Min(1, credit[name]))
		total += weight * c
		if c < 1 {
			missing = append(missing, Missing{Feature: name, Description: DescribeFeature(name), Lost: weight * (1 - c)})
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		if missing[i].Lost == missing[j].Lost {
			return missing[i].Feature < missing[j].Feature
		}
		return missing[i].Lost > missing[j].Lost
	})

	score := int(math.Round(total))
	return Result{Score: score, Level: LevelFor(score), Missing: missing}
}

// features returns the fraction (0..1) of each feature's weight earned.
func features(info model.BusinessInfo) map[string]float64 {
	f := make(map[string]float64, len(FeatureWeights))

	f["company_name"] = present(info.CompanyName)

	desc := len([]rune(strings.TrimSpace(info.Description)))
	switch {
	case desc >= minDescriptionLen:
		f["description"] = 1
	case desc > 0:
		f["description"] = 0.5
	}

	var products float64
	for _, p := range info.Products {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		if strings.TrimSpace(p.Description) != "" {
			products++
		} else {
			products += 0.5
		}
	}
	f["products"] = products / 3

	f["contact"] = 0.5*present(info.ContactEmail) + 0.5*present(info.ContactPhone)
	f["logo"] = present(info.LogoURL)
	f["export_markets"] = nonEmpty(info.ExportMarkets)
	f["industry"] = present(info.Industry)
	f["country"] = present(info.Country)
	f["certifications"] = nonEmpty(info.Certifications)
	f["hero_image"] = present(info.HeroImageURL)
	f["catalog"] = present(info.CatalogURL)
	f["address"] = present(info.Address)
	if info.YearEstablished > 0 {
		f["year_established"] = 1
	}
	return f
}

func present(s string) float64 {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	return 1
}

func nonEmpty(xs []string) float64 {
	for _, x := range xs {
		if strings.TrimSpace(x) != "" {
			return 1
		}
	}
	return 0
}
