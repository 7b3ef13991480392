package mapping

import (
	"sort"
	"strings"
)

// Candidate is a canonical field proposed for a vendor field.
type Candidate struct {
	CanonicalField string  `json:"canonical_field"`
	Score          float64 `json:"score"`
}

// Suggest ranks canonical fields by name similarity to vendorField: 0.99 for
// a case-insensitive match, 0.7 when one name contains the other, otherwise
// the share of distinct characters in common, kept only above 0.5.
func Suggest(vendorField string, canonicalFields []string) []Candidate {
	vendor := strings.ToLower(vendorField)
	var out []Candidate

	for _, canonical := range canonicalFields {
		target := strings.ToLower(canonical)
		switch {
		case vendor == target:
			out = append(out, Candidate{CanonicalField: canonical, Score: 0.99})
		case strings.Contains(vendor, target) || strings.Contains(target, vendor):
			out = append(out, Candidate{CanonicalField: canonical, Score: 0.7})
		default:
			if score := Similarity(vendor, target); score > 0.5 {
				out = append(out, Candidate{CanonicalField: canonical, Score: score})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].CanonicalField < out[j].CanonicalField
	})
	return out
}

// Similarity is the number of distinct characters shared by a and b divided
// by the length of the longer string.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	set := make(map[rune]bool)
	for _, r := range a {
		set[r] = true
	}
	common := make(map[rune]bool)
	for _, r := range b {
		if set[r] {
			common[r] = true
		}
	}
	longest := len([]rune(a))
	if n := len([]rune(b)); n > longest {
		longest = n
	}
	return float64(len(common)) / float64(longest)
}
