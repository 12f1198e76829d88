// Package jurisdiction resolves project addresses to their Authority Having
// Jurisdiction (AHJ) and loads that authority's declarative rule pack.
package jurisdiction

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Key identifies one governing authority, hierarchically:
// "country/state/locality", e.g. "us/md/gaithersburg". Keys are opaque to
// callers and serve as the lookup key into the pack loader.
type Key string

// String returns the string representation of the key.
func (k Key) String() string {
	return string(k)
}

// ErrUnsupportedJurisdiction is returned when an address lies in a state the
// system has no coverage for.
var ErrUnsupportedJurisdiction = errors.New("jurisdiction not supported")

// montgomeryCountyKey is the catch-all authority for unincorporated Maryland
// areas within the modeled coverage (Germantown included).
const montgomeryCountyKey Key = "us/md/montgomery_county"

// cityOverrides maps incorporated cities, which run their own permit offices,
// to their dedicated authority keys. Lookups are by normalized city name.
var cityOverrides = map[string]Key{
	"gaithersburg": "us/md/gaithersburg",
	"rockville":    "us/md/rockville",
}

// Resolve maps a city/state pair to the key of its governing authority.
//
// Matching is case-insensitive and whitespace-trimmed. Within a supported
// state any city not in the incorporated-city table resolves to the county
// authority rather than failing: county coverage is total, so an unknown city
// name is never an error. Note this also means a misspelled city silently
// lands on the county key.
func Resolve(city, state string) (Key, error) {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "md", "maryland":
	default:
		return "", fmt.Errorf("%w: %s, %s", ErrUnsupportedJurisdiction, city, state)
	}

	normalized := strings.ToLower(strings.TrimSpace(city))
	if key, ok := cityOverrides[normalized]; ok {
		return key, nil
	}

	return montgomeryCountyKey, nil
}

// KnownCities returns the incorporated city names with dedicated authorities,
// sorted. Callers can use it to warn about near-miss spellings before the
// county fallback swallows them.
func KnownCities() []string {
	cities := make([]string, 0, len(cityOverrides))
	for city := range cityOverrides {
		cities = append(cities, city)
	}
	sort.Strings(cities)
	return cities
}
