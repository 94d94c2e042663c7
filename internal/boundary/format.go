// Package boundary fetches county boundary polygons from the two TIGER/Line
// vintages (per-state legacy archives at the epoch year, one nationwide
// archive per later year) and harmonizes them into a single record type.
package boundary

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Default year range and archive URL templates. {fips} is replaced with the
// jurisdiction code and {year} with the reference year.
const (
	DefaultEpochYear  = 2010
	DefaultMaxYear    = 2018
	DefaultLegacyURL  = "https://www2.census.gov/geo/tiger/TIGER2010/COUNTY/2010/tl_2010_{fips}_county10.zip"
	DefaultCurrentURL = "https://www2.census.gov/geo/tiger/TIGER{year}/COUNTY/tl_{year}_us_county.zip"
)

// ErrYearOutOfRange is returned for reference years outside [epoch, max].
var ErrYearOutOfRange = eris.New("boundary: reference year out of range")

// Format is a TIGER/Line county schema vintage.
type Format int

// Supported vintages.
const (
	Legacy  Format = iota // one archive per jurisdiction, year-suffixed columns
	Current               // one nationwide archive per year, plain columns
)

func (f Format) String() string {
	switch f {
	case Legacy:
		return "legacy"
	case Current:
		return "current"
	default:
		return "unknown"
	}
}

// Schema names the attribute columns a vintage stores each unified field in.
type Schema struct {
	StateFP  string
	CountyFP string
	GEOID    string
	Name     string
}

// Columns lists the schema's column names.
func (s Schema) Columns() []string {
	return []string{s.StateFP, s.CountyFP, s.GEOID, s.Name}
}

var schemas = map[Format]Schema{
	Legacy:  {StateFP: "STATEFP10", CountyFP: "COUNTYFP10", GEOID: "GEOID10", Name: "NAME10"},
	Current: {StateFP: "STATEFP", CountyFP: "COUNTYFP", GEOID: "GEOID", Name: "NAME"},
}

// Schema returns the vintage's column layout.
func (f Format) Schema() Schema {
	return schemas[f]
}

// Options configures the year range and archive locations.
type Options struct {
	EpochYear  int
	MaxYear    int
	LegacyURL  string
	CurrentURL string
}

// DefaultOptions returns the Census Bureau TIGER/Line defaults.
func DefaultOptions() Options {
	return Options{
		EpochYear:  DefaultEpochYear,
		MaxYear:    DefaultMaxYear,
		LegacyURL:  DefaultLegacyURL,
		CurrentURL: DefaultCurrentURL,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.EpochYear == 0 {
		o.EpochYear = d.EpochYear
	}
	if o.MaxYear == 0 {
		o.MaxYear = d.MaxYear
	}
	if o.LegacyURL == "" {
		o.LegacyURL = d.LegacyURL
	}
	if o.CurrentURL == "" {
		o.CurrentURL = d.CurrentURL
	}
	return o
}

// SelectFormat picks the vintage for year. Years outside the inclusive
// [EpochYear, MaxYear] range are rejected.
func (o Options) SelectFormat(year int) (Format, error) {
	o = o.withDefaults()
	if year < o.EpochYear || year > o.MaxYear {
		return 0, eris.Wrapf(ErrYearOutOfRange, "%d not in [%d, %d]", year, o.EpochYear, o.MaxYear)
	}
	if year == o.EpochYear {
		return Legacy, nil
	}
	return Current, nil
}

// ArchiveURL expands a URL template.
func ArchiveURL(template, stateFIPS string, year int) string {
	return strings.NewReplacer("{fips}", stateFIPS, "{year}", strconv.Itoa(year)).Replace(template)
}
