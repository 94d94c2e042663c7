package fips

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	j, ok := Lookup("ny")
	require.True(t, ok)
	assert.Equal(t, Jurisdiction{Abbr: "NY", FIPS: "36"}, j)

	j, ok = Lookup(" PR ")
	require.True(t, ok)
	assert.Equal(t, "72", j.FIPS)

	_, ok = Lookup("XX")
	assert.False(t, ok)
}

func TestAbbrFromFIPS(t *testing.T) {
	abbr, ok := AbbrFromFIPS("6")
	require.True(t, ok)
	assert.Equal(t, "CA", abbr)

	_, ok = AbbrFromFIPS("99")
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	js, err := Resolve([]string{"NJ", "ny"})
	require.NoError(t, err)
	assert.Equal(t, []Jurisdiction{{"NJ", "34"}, {"NY", "36"}}, js)

	_, err = Resolve([]string{"NY", "ZZ"})
	assert.Error(t, err)

	_, err = Resolve([]string{"NY", "NY"})
	assert.Error(t, err)
}

func TestAbbrByFIPS(t *testing.T) {
	m := AbbrByFIPS([]Jurisdiction{{"NJ", "34"}, {"NY", "36"}})
	assert.Equal(t, map[string]string{"34": "NJ", "36": "NY"}, m)
}

func TestAllAbbrs(t *testing.T) {
	abbrs := AllAbbrs()
	assert.Len(t, abbrs, len(Codes))
	assert.IsIncreasing(t, abbrs)
}

func TestCombine(t *testing.T) {
	tests := []struct {
		state, county, want string
	}{
		{"36", "061", "36061"},
		{"6", "37", "06037"},
		{"01", "1", "01001"},
		{"", "001", ""},
		{"01", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Combine(tt.state, tt.county), "%s+%s", tt.state, tt.county)
	}
}

func TestCountyID(t *testing.T) {
	id, err := CountyID("01", "001")
	require.NoError(t, err)
	assert.Equal(t, int64(1001), id)

	id, err = CountyID("36", "061")
	require.NoError(t, err)
	assert.Equal(t, int64(36061), id)

	_, err = CountyID("3A", "061")
	assert.Error(t, err)

	_, err = CountyID("36", "0610")
	assert.Error(t, err)

	_, err = CountyID("", "061")
	assert.Error(t, err)
}

func TestSplitFull(t *testing.T) {
	st, co, err := SplitFull("360610001001")
	require.NoError(t, err)
	assert.Equal(t, "36", st)
	assert.Equal(t, "061", co)

	_, _, err = SplitFull("3606")
	assert.Error(t, err)
}

func TestFormatAndStateOf(t *testing.T) {
	assert.Equal(t, "01001", FormatCountyID(1001))
	assert.Equal(t, "01", StateOf(1001))
	assert.Equal(t, "36", StateOf(36061))
}
