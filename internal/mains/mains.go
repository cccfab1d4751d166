// Package mains estimates the local electrical mains frequency, which is the default
// fundamental searched by the mains_hum measurement.
package mains

import (
	"strings"

	tz "github.com/medama-io/go-timezone-country"
	"github.com/thlib/go-timezone-local/tzlocal"
)

// DefaultHz is used when no country can be associated with the host.
const DefaultHz = 50.0

// Sources of an Estimate.
const (
	SourceOverride = "override"
	SourceTimezone = "timezone"
	SourceDefault  = "default"
)

// Estimate is a mains frequency with how it was obtained.
type Estimate struct {
	Hz       float64 `json:"hz"`
	Source   string  `json:"source"`
	Timezone string  `json:"timezone,omitempty"`
	Country  string  `json:"country,omitempty"`
}

// Resolve returns override when it is positive, otherwise the host estimate.
func Resolve(override float64) Estimate {
	if override > 0 {
		return Estimate{Hz: override, Source: SourceOverride}
	}
	return Detect()
}

// Detect estimates the mains frequency from the host timezone.
func Detect() Estimate {
	timezone, err := tzlocal.RuntimeTZ()
	if err != nil {
		return Estimate{Hz: DefaultHz, Source: SourceDefault}
	}
	return ForTimezone(timezone)
}

// ForTimezone estimates the mains frequency for an IANA timezone.
func ForTimezone(timezone string) Estimate {
	est := Estimate{Hz: DefaultHz, Source: SourceDefault, Timezone: timezone}
	// UTC and the Etc zones carry no country.
	if timezone == "UTC" || timezone == "GMT" || strings.HasPrefix(timezone, "Etc/") {
		return est
	}

	tzMap, err := tz.NewTimezoneCountryMap()
	if err != nil {
		return est
	}
	country, err := tzMap.GetCountry(timezone)
	if err != nil {
		return est
	}

	est.Country = country
	est.Source = SourceTimezone
	est.Hz = frequencyForCountry(country)
	return est
}

// frequencyForCountry maps a country name to its mains frequency. Japan is split by
// region; the 50 Hz east is the more populous half.
func frequencyForCountry(country string) float64 {
	if hz60Countries[country] {
		return 60
	}
	return DefaultHz
}

// hz60Countries holds the 60 Hz grids, keyed by the country names used by the
// timezone map. https://en.wikipedia.org/wiki/Mains_electricity_by_country
var hz60Countries = map[string]bool{
	// North America
	"United States": true,
	"Canada":        true,
	"Mexico":        true,

	// Central America
	"Belize":      true,
	"Costa Rica":  true,
	"El Salvador": true,
	"Guatemala":   true,
	"Honduras":    true,
	"Nicaragua":   true,
	"Panama":      true,

	// Caribbean
	"Bahamas":             true,
	"Barbados":            true,
	"Cayman Islands":      true,
	"Cuba":                true,
	"Dominican Republic":  true,
	"Haiti":               true,
	"Jamaica":             true,
	"Puerto Rico":         true,
	"Trinidad and Tobago": true,
	"U.S. Virgin Islands": true,

	// South America
	"Brazil":    true, // mixed, mostly 60 Hz
	"Colombia":  true,
	"Ecuador":   true,
	"Guyana":    true,
	"Peru":      true,
	"Suriname":  true,
	"Venezuela": true,

	// Asia
	"South Korea":  true,
	"Taiwan":       true,
	"Philippines":  true,
	"Saudi Arabia": true,

	// Pacific
	"Guam":             true,
	"American Samoa":   true,
	"Marshall Islands": true,
	"Micronesia":       true,
	"Palau":            true,
}
