// Package reconcile finds rows that describe the same record.
package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rpattn/vendorflow/internal/domain"
)

// Policy decides which members of a duplicate group are marked.
type Policy string

const (
	// KeepFirst marks every member except the first occurrence.
	KeepFirst Policy = "keep_first"
	// MarkAll marks every member of the group.
	MarkAll Policy = "mark_all"
)

const (
	DuplicateField = "_deduplicate"
	DuplicateRule  = "duplicate"
)

// ParsePolicy accepts the configured policy name; empty means KeepFirst.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(name) {
	case "", KeepFirst:
		return KeepFirst, nil
	case MarkAll:
		return MarkAll, nil
	default:
		return "", fmt.Errorf("unknown dedup policy %q", name)
	}
}

// Key hashes the lower-cased, trimmed key values joined by "|". Each field
// reads its canonical value first and its raw value second; a field with no
// value keeps its slot as an empty part. The second result is false when
// every part is empty.
func Key(row domain.RowRecord, keyFields []string) (string, bool) {
	parts := make([]string, len(keyFields))
	nonEmpty := false
	for i, field := range keyFields {
		value, ok := row.Value(field)
		if !ok {
			continue
		}
		parts[i] = strings.ToLower(strings.TrimSpace(fmt.Sprint(value)))
		if parts[i] != "" {
			nonEmpty = true
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:]), nonEmpty
}

// Group is a set of row indices sharing a key, in input order.
type Group struct {
	Key     string
	Indices []int
}

// FindDuplicates returns groups with more than one member, ordered by the
// index of their first member. Rows without any key value are ignored.
func FindDuplicates(rows []domain.RowRecord, keyFields []string) []Group {
	byKey := make(map[string]int)
	var groups []Group

	for i, row := range rows {
		key, ok := Key(row, keyFields)
		if !ok {
			continue
		}
		if g, seen := byKey[key]; seen {
			groups[g].Indices = append(groups[g].Indices, i)
			continue
		}
		byKey[key] = len(groups)
		groups = append(groups, Group{Key: key, Indices: []int{i}})
	}

	dups := groups[:0]
	for _, g := range groups {
		if len(g.Indices) > 1 {
			dups = append(dups, g)
		}
	}
	return dups
}

// MarkDuplicates appends a duplicate violation to the affected rows in
// place. Existing violations are kept. It returns the groups found.
func MarkDuplicates(rows []domain.RowRecord, keyFields []string, policy Policy) []Group {
	groups := FindDuplicates(rows, keyFields)
	for _, g := range groups {
		first := g.Indices[0]
		marked := g.Indices
		if policy != MarkAll {
			marked = g.Indices[1:]
		}
		message := fmt.Sprintf("Duplicate of row %d (line %d)", first, rows[first].LineNumber)
		for _, idx := range marked {
			rows[idx].AddViolation(domain.NewViolation(DuplicateRule, message, DuplicateField))
		}
	}
	return groups
}

// FuzzyMatch compares two strings case-insensitively. Strings whose lengths
// differ by more than 30% never match; otherwise the share of characters of
// a found anywhere in b must reach threshold.
func FuzzyMatch(a, b string, threshold float64) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}

	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	diff := len(ra) - len(rb)
	if diff < 0 {
		diff = -diff
	}
	if float64(diff) > float64(longest)*0.3 {
		return false
	}

	common := 0
	for _, r := range ra {
		if strings.ContainsRune(b, r) {
			common++
		}
	}
	return float64(common)/float64(longest) >= threshold
}
