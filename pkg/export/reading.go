package export

import (
	"strconv"
	"strings"

	"github.com/solarpull/solarpull/pkg/types"
)

// nullSpellings are the ways the portal writes a missing value once the
// surrounding parentheses are gone. Matching is case-insensitive.
var nullSpellings = map[string]bool{
	"":     true,
	"null": true,
	"nan":  true,
	"n/a":  true,
	"na":   true,
	"-":    true,
	"--":   true,
}

// ParseReading converts one cell to a Reading. ok is false when the cell is
// neither a number nor a recognised null, in which case the Null reading is
// returned.
func ParseReading(cell string) (r types.Reading, ok bool) {
	s := strings.TrimSpace(cell)
	if nullSpellings[strings.ToLower(s)] {
		return types.Null, true
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return types.Null, false
	}
	return types.Val(v), true
}
