package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Station is read-only reference data supplied by the station repository
type Station struct {
	Code       string     `json:"code"`
	ShortName  string     `json:"shortName"`
	MediumName string     `json:"mediumName,omitempty"`
	LongName   string     `json:"longName"`
	Position   Coordinate `json:"position"`
	Country    string     `json:"country"`
}

// SameStation compares stations by code. Nil stations never match.
func SameStation(a, b *Station) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Code == b.Code
}

func (s *Station) String() string {
	if s == nil {
		return "unknown"
	}
	return s.ShortName
}

// SimplifyName folds a station name into a lookup key: accents are stripped,
// letters upper-cased and everything outside [A-Z0-9] dropped.
// "'s-Hertogenbosch Oost" becomes "SHERTOGENBOSCHOOST".
func SimplifyName(name string) string {
	decomposed := norm.NFD.String(name)

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if r > unicode.MaxASCII {
			continue
		}
		r = unicode.ToUpper(r)
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
