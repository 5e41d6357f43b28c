package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// CategoryPolicy carries per-category settings. Keys are matched case
// insensitively.
type CategoryPolicy struct {
	QuantityTracked map[string]bool
	Prefixes        map[string]string
}

func categoryKey(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

// IsQuantityTracked implements CategoryTracking.
func (p CategoryPolicy) IsQuantityTracked(category string) bool {
	return p.QuantityTracked[categoryKey(category)]
}

// Prefix returns the item code prefix for category: the configured one, or
// the first two letters of the category in upper case.
func (p CategoryPolicy) Prefix(category string) string {
	if prefix, ok := p.Prefixes[categoryKey(category)]; ok && prefix != "" {
		return strings.ToUpper(prefix)
	}
	var letters []rune
	for _, r := range category {
		if unicode.IsLetter(r) {
			letters = append(letters, unicode.ToUpper(r))
			if len(letters) == 2 {
				break
			}
		}
	}
	if len(letters) < 2 {
		return "IT"
	}
	return string(letters)
}

// nextCode allocates "<prefix>-NNN" one past the highest existing number.
func nextCode(prefix string, items []Item) string {
	highest := 0
	for _, item := range items {
		rest, ok := strings.CutPrefix(item.ID, prefix+"-")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil {
			continue
		}
		highest = max(highest, n)
	}
	return fmt.Sprintf("%s-%03d", prefix, highest+1)
}
