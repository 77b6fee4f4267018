package ledger

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"stockledger/internal/models"
)

const maxNameLength = 100

// Units: kabul edilen birim sözlüğü
var Units = []string{"kg", "g", "liter", "ml", "package", "piece", "box", "dozen", "bottle", "can"}

var unitAliases = map[string]string{
	"kgs":      "kg",
	"kilogram": "kg",
	"gram":     "g",
	"grams":    "g",
	"l":        "liter",
	"litre":    "liter",
	"liters":   "liter",
	"litres":   "liter",
	"pkg":      "package",
	"pack":     "package",
	"pc":       "piece",
	"pcs":      "piece",
	"pieces":   "piece",
	"boxes":    "box",
	"dozens":   "dozen",
	"bottles":  "bottle",
	"cans":     "can",
}

// NormalizeName trims, collapses inner whitespace and lower-cases the name.
func NormalizeName(name string) (string, error) {
	n := strings.ToLower(strings.Join(strings.Fields(name), " "))
	if n == "" {
		return "", &ValidationError{Field: "name", Reason: "ürün adı zorunlu"}
	}
	if utf8.RuneCountInString(n) > maxNameLength {
		return "", &ValidationError{Field: "name", Reason: "ürün adı en fazla 100 karakter olabilir"}
	}
	for _, r := range n {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ' ' {
			return "", &ValidationError{Field: "name", Reason: "ürün adı sadece harf, rakam ve boşluk içerebilir"}
		}
	}
	return n, nil
}

// NormalizeUnit resolves aliases and checks the unit against the vocabulary.
func NormalizeUnit(unit string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(unit))
	if alias, ok := unitAliases[u]; ok {
		u = alias
	}
	for _, known := range Units {
		if u == known {
			return u, nil
		}
	}
	return "", &ValidationError{Field: "unit", Reason: "geçersiz birim: " + unit}
}

// NewProductKey builds a normalized key or returns a *ValidationError.
func NewProductKey(name, unit string) (models.ProductKey, error) {
	n, err := NormalizeName(name)
	if err != nil {
		return models.ProductKey{}, err
	}
	u, err := NormalizeUnit(unit)
	if err != nil {
		return models.ProductKey{}, err
	}
	return models.ProductKey{Name: n, Unit: u}, nil
}
