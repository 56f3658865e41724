package types

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// InverterLabel is the identity the portal packs into an inverter block
// label. Two spellings are in the wild:
//
//	inv#3  - 1012841547503  (PVI 36TL)
//	inv#4  - Inverter #4  (1013821711010 PVI 60TL)
type InverterLabel struct {
	Order          int
	ManufacturerID string
	Model          string
}

var (
	invOrderRe  = regexp.MustCompile(`(?i)^\s*inv\s*#\s*(\d+)`)
	invParensRe = regexp.MustCompile(`\(([^)]*)\)\s*$`)
	invDigitsRe = regexp.MustCompile(`^\d{6,}$`)
)

// ParseInverterLabel splits a block label into its order, manufacturer id and
// model.
func ParseInverterLabel(label string) (InverterLabel, error) {
	m := invOrderRe.FindStringSubmatch(label)
	if m == nil {
		return InverterLabel{}, fmt.Errorf("inverter label missing inv# prefix: %q", label)
	}
	order, err := strconv.Atoi(m[1])
	if err != nil {
		return InverterLabel{}, fmt.Errorf("invalid inverter order in %q: %w", label, err)
	}

	rest := label[len(m[0]):]
	var inner string
	if pm := invParensRe.FindStringSubmatchIndex(rest); pm != nil {
		inner = strings.TrimSpace(rest[pm[2]:pm[3]])
		rest = rest[:pm[0]]
	}
	middle := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(rest), "-"))

	out := InverterLabel{Order: order}
	if invDigitsRe.MatchString(middle) {
		out.ManufacturerID = middle
		out.Model = inner
	} else {
		fields := strings.Fields(inner)
		if len(fields) > 0 && invDigitsRe.MatchString(fields[0]) {
			out.ManufacturerID = fields[0]
			out.Model = strings.Join(fields[1:], " ")
		} else {
			out.Model = inner
		}
	}
	if out.ManufacturerID == "" {
		return out, fmt.Errorf("inverter label missing manufacturer id: %q", label)
	}
	return out, nil
}
