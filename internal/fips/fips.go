// Package fips maps jurisdiction short codes to FIPS codes and derives the
// numeric county identifier shared by the county table, the mobility matrix,
// and the boundary file.
package fips

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Jurisdiction is a modeled state or territory.
type Jurisdiction struct {
	Abbr string // postal abbreviation, e.g. "NY"
	FIPS string // 2-digit FIPS code, e.g. "36"
}

// Codes maps postal abbreviation to 2-digit FIPS code for the 50 states, DC,
// and the inhabited territories.
var Codes = map[string]string{
	"AL": "01", "AK": "02", "AZ": "04", "AR": "05", "CA": "06",
	"CO": "08", "CT": "09", "DE": "10", "DC": "11", "FL": "12",
	"GA": "13", "HI": "15", "ID": "16", "IL": "17", "IN": "18",
	"IA": "19", "KS": "20", "KY": "21", "LA": "22", "ME": "23",
	"MD": "24", "MA": "25", "MI": "26", "MN": "27", "MS": "28",
	"MO": "29", "MT": "30", "NE": "31", "NV": "32", "NH": "33",
	"NJ": "34", "NM": "35", "NY": "36", "NC": "37", "ND": "38",
	"OH": "39", "OK": "40", "OR": "41", "PA": "42", "RI": "44",
	"SC": "45", "SD": "46", "TN": "47", "TX": "48", "UT": "49",
	"VT": "50", "VA": "51", "WA": "53", "WV": "54", "WI": "55",
	"WY": "56", "AS": "60", "GU": "66", "MP": "69", "PR": "72",
	"VI": "78",
}

var abbrByFIPS map[string]string

func init() {
	abbrByFIPS = make(map[string]string, len(Codes))
	for abbr, code := range Codes {
		abbrByFIPS[code] = abbr
	}
}

// Lookup returns the jurisdiction for a postal abbreviation (case-insensitive).
func Lookup(abbr string) (Jurisdiction, bool) {
	abbr = strings.ToUpper(strings.TrimSpace(abbr))
	code, ok := Codes[abbr]
	if !ok {
		return Jurisdiction{}, false
	}
	return Jurisdiction{Abbr: abbr, FIPS: code}, true
}

// AbbrFromFIPS returns the postal abbreviation for a FIPS code.
func AbbrFromFIPS(code string) (string, bool) {
	abbr, ok := abbrByFIPS[NormalizeState(code)]
	return abbr, ok
}

// Resolve looks up every abbreviation, keeping the caller's order. Unknown or
// repeated abbreviations are errors.
func Resolve(abbrs []string) ([]Jurisdiction, error) {
	out := make([]Jurisdiction, 0, len(abbrs))
	seen := make(map[string]bool, len(abbrs))
	for _, a := range abbrs {
		j, ok := Lookup(a)
		if !ok {
			return nil, eris.Errorf("fips: unknown jurisdiction %q", a)
		}
		if seen[j.Abbr] {
			return nil, eris.Errorf("fips: jurisdiction %q listed twice", j.Abbr)
		}
		seen[j.Abbr] = true
		out = append(out, j)
	}
	return out, nil
}

// AbbrByFIPS indexes jurisdictions by FIPS code.
func AbbrByFIPS(js []Jurisdiction) map[string]string {
	m := make(map[string]string, len(js))
	for _, j := range js {
		m[j.FIPS] = j.Abbr
	}
	return m
}

// AllAbbrs returns a sorted list of every known abbreviation.
func AllAbbrs() []string {
	abbrs := make([]string, 0, len(Codes))
	for abbr := range Codes {
		abbrs = append(abbrs, abbr)
	}
	sort.Strings(abbrs)
	return abbrs
}

// NormalizeState normalizes a state FIPS code to 2 digits with zero-padding.
func NormalizeState(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	if len(code) == 1 {
		return "0" + code
	}
	return code
}

// NormalizeCounty normalizes a county FIPS code to 3 digits with zero-padding.
func NormalizeCounty(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	for len(code) < 3 {
		code = "0" + code
	}
	return code
}

// Combine combines state and county FIPS codes into a 5-digit code.
func Combine(state, county string) string {
	s := NormalizeState(state)
	c := NormalizeCounty(county)
	if s == "" || c == "" {
		return ""
	}
	return s + c
}

// CountyID is the one place a numeric county identifier is derived: the
// state and county parts are concatenated and parsed as an integer.
func CountyID(state, county string) (int64, error) {
	code := Combine(state, county)
	if len(code) != 5 {
		return 0, eris.Errorf("fips: invalid county code %q+%q", state, county)
	}
	id, err := strconv.ParseInt(code, 10, 64)
	if err != nil || id < 0 {
		return 0, eris.Errorf("fips: non-numeric county code %q", code)
	}
	return id, nil
}

// SplitFull splits a full geographic identifier (at least 5 characters, e.g. a
// tract or block-group GEOID) into its state and county parts.
func SplitFull(full string) (state, county string, err error) {
	full = strings.TrimSpace(full)
	if len(full) < 5 {
		return "", "", eris.Errorf("fips: identifier %q shorter than 5 characters", full)
	}
	return full[:2], full[2:5], nil
}

// FormatCountyID renders a numeric county identifier as its 5-digit code.
func FormatCountyID(id int64) string {
	return fmt.Sprintf("%05d", id)
}

// StateOf returns the 2-digit state part of a numeric county identifier.
func StateOf(id int64) string {
	return fmt.Sprintf("%02d", id/1000)
}
