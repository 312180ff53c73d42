// Package komoditas holds the fixed commodity set the forecasting backend
// knows about and the single normalization rule every caller must use.
package komoditas

import (
	"strings"
	"unicode"
)

// All lists the commodities in display form, in the order the backend
// reports them.
var All = []string{
	"Bawang Merah",
	"Bawang Putih",
	"Beras Medium",
	"Beras Premium",
	"Cabai Merah Keriting",
	"Cabai Rawit Merah",
	"Daging Ayam Ras",
	"Daging Sapi",
	"Gula Pasir",
	"Kedelai",
	"Telur Ayam Ras",
}

var normalized = func() map[string]string {
	m := make(map[string]string, len(All))
	for _, name := range All {
		m[Normalize(name)] = name
	}
	return m
}()

// Normalize converts a display name to the backend key form:
// lowercase, spaces and hyphens replaced by underscores.
// "Cabai Merah Keriting" -> "cabai_merah_keriting".
func Normalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "_")
	return strings.ReplaceAll(s, "-", "_")
}

// DisplayName converts a normalized key back to title-cased words.
func DisplayName(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// Lookup resolves either form of a commodity name to its display name.
func Lookup(name string) (string, bool) {
	display, ok := normalized[Normalize(name)]
	return display, ok
}

// Valid reports whether name (either form) is one of the known commodities.
func Valid(name string) bool {
	_, ok := Lookup(name)
	return ok
}

// Keys returns the normalized key of every commodity.
func Keys() []string {
	keys := make([]string, len(All))
	for i, name := range All {
		keys[i] = Normalize(name)
	}
	return keys
}
