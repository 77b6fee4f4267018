// Package classifier guesses a product category by keyword substring matching.
package classifier

import (
	"sort"
	"strings"
)

const Uncategorized = "other"

// DefaultCategories is used when no categories are configured.
var DefaultCategories = map[string][]string{
	"grains":     {"rice", "wheat", "flour", "oat", "pasta", "bread", "bulgur"},
	"dairy":      {"milk", "cheese", "butter", "yogurt", "cream"},
	"produce":    {"apple", "banana", "tomato", "potato", "onion", "lettuce", "carrot", "pepper"},
	"meat":       {"beef", "chicken", "lamb", "fish", "meat"},
	"beverages":  {"water", "juice", "soda", "coffee", "tea"},
	"condiments": {"salt", "sugar", "oil", "vinegar", "spice", "sauce"},
	"cleaning":   {"soap", "detergent", "bleach"},
}

type Keyword struct {
	categories []string // deterministik sıra
	keywords   map[string][]string
}

// New builds a classifier from category -> keywords. Keywords are lower-cased.
func New(categories map[string][]string) *Keyword {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	k := &Keyword{keywords: make(map[string][]string, len(categories))}
	for cat, words := range categories {
		cat = strings.TrimSpace(cat)
		if cat == "" {
			continue
		}
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				k.keywords[cat] = append(k.keywords[cat], w)
			}
		}
		k.categories = append(k.categories, cat)
	}
	sort.Strings(k.categories)
	return k
}

// Classify returns the first category (alphabetical) with a keyword contained in name.
func (k *Keyword) Classify(name string) string {
	n := strings.ToLower(name)
	for _, cat := range k.categories {
		for _, w := range k.keywords[cat] {
			if strings.Contains(n, w) {
				return cat
			}
		}
	}
	return Uncategorized
}

func (k *Keyword) Categories() []string {
	return append([]string(nil), k.categories...)
}
