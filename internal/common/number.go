package common

import (
	"math"
	"strconv"
	"strings"
)

// magnitudeSuffixes maps the compact suffixes used on quote pages to multipliers.
var magnitudeSuffixes = map[byte]float64{
	'K': 1e3,
	'M': 1e6,
	'B': 1e9,
}

// ParseNumber converts a human-formatted cell ("24.89M", "+3.5%", "72,239,400")
// into a float. The boolean is false for placeholders ("", "--", "N/A") and for
// anything that does not parse; the function never fails its caller.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "--" || s == "N/A" {
		return 0, false
	}

	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}

	multiplier := 1.0
	if strings.HasSuffix(s, "%") {
		s = s[:len(s)-1]
	} else if m, ok := magnitudeSuffixes[s[len(s)-1]]; ok {
		multiplier = m
		s = s[:len(s)-1]
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}

	v *= multiplier
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseNumberPtr is ParseNumber returning nil for absence.
func ParseNumberPtr(s string) *float64 {
	v, ok := ParseNumber(s)
	if !ok {
		return nil
	}
	return &v
}

// ParseIntPtr parses a volume-style cell and rounds it to an integer.
func ParseIntPtr(s string) *int64 {
	v, ok := ParseNumber(s)
	if !ok {
		return nil
	}
	n := int64(math.Round(v))
	return &n
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
