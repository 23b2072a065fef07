// Package keys builds the Redis key space for cached layer results.
// Every key embeds the layer name, the cell resolution, and the cell
// the query point quantizes to, so invalidation can address a cell
// without knowing which radii were queried: the per-cell index key
// lists the result keys stored under it.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Result returns the key for one cached layer result. The radius is
// part of the identity: the same cell queried at 5 mi and 25 mi holds
// two independent entries. The hash disambiguates radii whose
// sanitized text collides.
func Result(layer string, res int, cell string, radiusMiles float64) string {
	q := fmt.Sprintf("rad=%.3f", radiusMiles)
	sum := xxhash.Sum64String(q)
	return fmt.Sprintf("enrich:%s:%d:%s:%s:q=%016x", sanitize(layer), res, cell, sanitize(q), sum)
}

// CellIndex returns the key of the per-cell index listing every
// Result key cached under (layer, res, cell).
func CellIndex(layer string, res int, cell string) string {
	return fmt.Sprintf("enrich-idx:%s:%d:%s", sanitize(layer), res, cell)
}

// sanitize maps a free-form name onto the safe key alphabet:
// whitespace runs become one '_', anything outside [A-Za-z0-9:_-=]
// becomes '-', and repeated separators collapse.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-' || r == '=':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
