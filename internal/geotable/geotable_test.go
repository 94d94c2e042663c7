package geotable

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spatial-prep/internal/population"
)

var abbrs = map[string]string{"36": "NY", "34": "NJ", "01": "AL"}

func TestBuild_SortsAndMapsAbbreviations(t *testing.T) {
	rows := []population.Row{
		{State: "36", County: "061", Population: "1585873"},
		{State: "01", County: "001", Population: "54571"},
		{State: "34", County: "003", Population: "905116"},
	}

	table, err := Build(rows, abbrs)
	require.NoError(t, err)
	assert.Equal(t, Table{
		{GEOID: 1001, Population: 54571, StateUSPS: "AL"},
		{GEOID: 34003, Population: 905116, StateUSPS: "NJ"},
		{GEOID: 36061, Population: 1585873, StateUSPS: "NY"},
	}, table)
	assert.Equal(t, []int64{1001, 34003, 36061}, table.IDs())
}

func TestBuild_FloatRenderedCount(t *testing.T) {
	table, err := Build([]population.Row{{State: "36", County: "061", Population: "42.0"}}, abbrs)
	require.NoError(t, err)
	assert.Equal(t, int64(42), table[0].Population)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		rows []population.Row
		want error
	}{
		{"duplicate", []population.Row{
			{State: "36", County: "061", Population: "1"},
			{State: "36", County: "061", Population: "2"},
		}, ErrDuplicateCounty},
		{"negative", []population.Row{{State: "36", County: "061", Population: "-5"}}, ErrInvalidRecord},
		{"fractional", []population.Row{{State: "36", County: "061", Population: "1.5"}}, ErrInvalidRecord},
		{"non-numeric", []population.Row{{State: "36", County: "061", Population: "n/a"}}, ErrInvalidRecord},
		{"bad county", []population.Row{{State: "36", County: "x1", Population: "1"}}, ErrInvalidRecord},
		{"unmodeled", []population.Row{{State: "09", County: "001", Population: "1"}}, ErrInvalidRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.rows, abbrs)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCSV_RoundTrip(t *testing.T) {
	table := Table{
		{GEOID: 1001, Population: 54571, StateUSPS: "AL"},
		{GEOID: 36061, Population: 1585873, StateUSPS: "NY"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, table))
	assert.Equal(t, "geoid,pop2010,stateUSPS\n1001,54571,AL\n36061,1585873,NY\n", buf.String())

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, table, got)
}

func TestReadCSV_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":      "",
		"bad header": "id,pop,state\n1001,1,AL\n",
		"bad geoid":  "geoid,pop2010,stateUSPS\nabc,1,AL\n",
		"duplicate":  "geoid,pop2010,stateUSPS\n1001,1,AL\n1001,2,AL\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(data))
			require.Error(t, err)
		})
	}
}
