package core

import (
	"regexp"
	"strings"
)

var (
	camelBoundary   = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	separatorRun    = regexp.MustCompile(`[\s\v\x1c-\x1f\p{Z}\x{85}-]+`)
	disallowedChars = regexp.MustCompile(`[^0-9a-z_]+`)
	underscoreRun   = regexp.MustCompile(`_+`)
)

// Normalize maps a raw column name to its comparison key.
//
// "AnnualRev", "annual_rev", " Annual-Rev " and "annual  rev" all map to
// "annual_rev". The result is empty when the name has no ASCII letters or
// digits; see GroupKey for the fallback used when clustering.
func Normalize(name string) string {
	s := strings.TrimSpace(name)
	s = camelBoundary.ReplaceAllString(s, "${1}_${2}")
	s = strings.ToLower(s)
	s = separatorRun.ReplaceAllString(s, "_")
	s = disallowedChars.ReplaceAllString(s, "")
	s = underscoreRun.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// GroupKey returns the key a raw name is clustered under: its normalized form,
// or the raw name itself when normalization leaves nothing. A fallback key can
// never equal a normalized key because normalized keys always contain a
// letter or digit.
func GroupKey(name string) string {
	if key := Normalize(name); key != "" {
		return key
	}
	return name
}
