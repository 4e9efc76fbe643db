// Package suggest offers "did you mean" hints for mistyped flags and config
// keys using Levenshtein distance.
package suggest

import (
	"sort"
	"strings"
)

// levenshtein calculates the edit distance between two strings
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// Closest returns up to three candidates near unknown, best first. Leading
// dashes are ignored on both sides.
func Closest(unknown string, candidates []string) []string {
	unknown = strings.ToLower(strings.TrimLeft(unknown, "-"))

	type scored struct {
		value string
		dist  int
	}
	var hits []scored
	maxDist := max(2, len(unknown)/3)
	for _, c := range candidates {
		d := levenshtein(unknown, strings.ToLower(strings.TrimLeft(c, "-")))
		if d <= maxDist {
			hits = append(hits, scored{c, d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	var out []string
	for i := 0; i < len(hits) && i < 3; i++ {
		out = append(out, hits[i].value)
	}
	return out
}

// flagAliases maps words people reach for to the flag that does the job.
var flagAliases = map[string]string{
	"supplier":  "--provider",
	"vendor":    "--provider",
	"proveedor": "--provider",
	"sucursal":  "--branch",
	"store":     "--branch",
	"fecha":     "--date",
	"product":   "--item CODE:NAME:QTY",
	"qty":       "--item CODE:NAME:QTY",
	"quantity":  "--item CODE:NAME:QTY",
	"items":     "--item (repeat the flag)",
	"user":      "orders use the logged-in user; see ferreteria login",
	"offline":   "use: ferreteria offline on",
}

// FlagHint returns a hint for a commonly misused flag, or "".
func FlagHint(flag string) string {
	return flagAliases[strings.ToLower(strings.TrimLeft(flag, "-"))]
}
