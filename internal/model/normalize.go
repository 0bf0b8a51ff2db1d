package model

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// NormalizeName standardizes a provider name for exact-match
// de-duplication:
//  1. Unicode NFC normalization (composed accents)
//  2. Trimming and case folding
//  3. Stripping periods and commas (Dr. / M.D. style punctuation)
//  4. Collapsing runs of whitespace
//
// This is byte-level canonicalization only; no fuzzy matching.
func NormalizeName(name string) string {
	name = norm.NFC.String(name)
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = strings.ToUpper(name)
	name = strings.NewReplacer(
		",", "",
		".", "",
	).Replace(name)

	name = multiSpaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}
