// Package dates reduces date values to their year.
package dates

import (
	"strings"

	"phi-sanitizer/internal/document"
)

// YearLength is the width of the year prefix kept by Coarsen.
const YearLength = 4

// Coarsen keeps the first four characters of values longer than that.
// Shorter values, including malformed ones, are returned unchanged.
func Coarsen(v string) string {
	if len(v) <= YearLength {
		return v
	}
	return v[:YearLength]
}

// CoarsenFields coarsens every field in place and returns how many
// changed.
func CoarsenFields(fields []document.Field) int {
	n := 0
	for _, f := range fields {
		v := strings.TrimSpace(f.Value())
		if out := Coarsen(v); out != v {
			f.SetValue(out)
			n++
		}
	}
	return n
}
