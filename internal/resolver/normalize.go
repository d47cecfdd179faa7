// Package resolver matches incoming batch records against a tenant's
// master-data entities using name and registration-code similarity.
package resolver

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes lists common legal entity suffixes to strip during name
// normalization.
var legalSuffixes = []string{
	" LLC", " L.L.C.", " L.L.C",
	" INC", " INC.", " INCORPORATED",
	" CORP", " CORP.", " CORPORATION",
	" LTD", " LTD.", " LIMITED",
	" LP", " L.P.", " L.P",
	" LLP", " L.L.P.", " L.L.P",
	" CO", " CO.",
	" PLC", " P.L.C.",
	" GMBH", " S.A.", " B.V.",
	" COMPANY", " GROUP", " HOLDINGS",
}

var (
	parentheticalRe = regexp.MustCompile(`[(（][^)）]*[)）]`)
	multiSpaceRe    = regexp.MustCompile(`\s{2,}`)
)

// NormalizeName standardizes an entity name for matching by:
//  1. Removing parenthetical content (branch/region annotations)
//  2. Trimming whitespace and converting to uppercase
//  3. Removing common legal suffixes (LLC, Inc, Corp, etc.)
//  4. Stripping punctuation (commas, periods, dashes, ampersands)
//  5. Collapsing multiple spaces into single spaces
func NormalizeName(name string) string {
	name = parentheticalRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = strings.ToUpper(name)

	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}

	name = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"&", "AND",
		"-", " ",
	).Replace(name)

	name = multiSpaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Transliterate folds a name to its closest ASCII form by decomposing and
// dropping combining marks, so that accented spellings compare phonetically
// equal to their plain-ASCII variants.
func Transliterate(name string) string {
	out, _, err := transform.String(asciiFold, name)
	if err != nil {
		return name
	}
	return out
}
