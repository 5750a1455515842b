// Package address turns free-text formatted addresses into structured
// fields. The shipped parser is tuned to the "street, postal+city,
// state-province, country" segment ordering the geocoder produces for
// Spanish listings; alternate locale orderings plug in behind Parser.
package address

import (
	"regexp"
	"strings"

	"github.com/sells-group/listings-cli/internal/model"
)

// Parser extracts structured fields from a formatted address. Parsing is
// best effort: malformed input yields possibly-empty fields, never an error.
type Parser interface {
	Parse(formatted string) model.Address
}

var (
	// Spanish postal codes are exactly five digits.
	postalToken = regexp.MustCompile(`\d{5}\b`)
	postalRun   = regexp.MustCompile(`\b\d{5}\b`)
)

// SpanishParser parses addresses ordered most-specific first, e.g.
// "Calle Mayor 5, 28013 Madrid, Madrid, España".
type SpanishParser struct{}

// NewSpanishParser returns the Spanish-locale parser.
func NewSpanishParser() SpanishParser {
	return SpanishParser{}
}

// Parse classifies the comma-separated segments from least specific
// (country) to most specific (street). A segment carrying the postal code
// also contributes its remainder as the city candidate; the country, state,
// and city slots fill in that order, the city extending when a later segment
// contains it; everything else accumulates into the street address.
func (SpanishParser) Parse(formatted string) model.Address {
	var country, state, city, postal string
	var streetParts []string

	segments := strings.Split(formatted, ",")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := strings.TrimSpace(segments[i])

		if postal == "" && postalToken.MatchString(seg) {
			sub := strings.SplitN(seg, " ", 2)
			postal = sub[0]
			if len(sub) == 2 {
				city = sub[1]
			}
		}

		switch {
		case country == "":
			country = seg
		case state == "":
			state = seg
		case city == "" || strings.Contains(seg, city):
			city = seg
		default:
			streetParts = append(streetParts, seg)
		}
	}

	// Postal codes glued onto a slot value are stripped after the fact.
	country = stripPostal(country)
	state = stripPostal(state)
	city = stripPostal(city)

	// streetParts were collected least-specific first; restore the
	// original ordering for the street address.
	for i, j := 0, len(streetParts)-1; i < j; i, j = i+1, j-1 {
		streetParts[i], streetParts[j] = streetParts[j], streetParts[i]
	}
	for i, p := range streetParts {
		streetParts[i] = stripPostal(p)
	}

	if city == "" {
		city = state
	}

	return model.Address{
		Country:    country,
		State:      state,
		City:       city,
		Street:     strings.Join(streetParts, ", "),
		PostalCode: postal,
	}
}

func stripPostal(s string) string {
	return strings.TrimSpace(postalRun.ReplaceAllString(s, ""))
}
