// Package geotable builds the per-county reference table (identifier,
// population, jurisdiction abbreviation) and reads and writes its CSV form.
package geotable

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spatial-prep/internal/fips"
	"github.com/sells-group/spatial-prep/internal/population"
)

// Errors returned by Build and ReadCSV.
var (
	ErrDuplicateCounty = eris.New("geotable: duplicate county")
	ErrInvalidRecord   = eris.New("geotable: invalid record")
)

// Header is the column layout of the county table file.
var Header = []string{"geoid", "pop2010", "stateUSPS"}

// CountyRecord is one row of the county table.
type CountyRecord struct {
	GEOID      int64
	Population int64
	StateUSPS  string
}

// Table is a county table ordered by ascending GEOID.
type Table []CountyRecord

// IDs returns the county identifiers in table order.
func (t Table) IDs() []int64 {
	ids := make([]int64, len(t))
	for i, r := range t {
		ids[i] = r.GEOID
	}
	return ids
}

// Build converts population rows into a sorted county table. abbrByFIPS maps
// each modeled jurisdiction code to its abbreviation; rows from any other
// jurisdiction are rejected.
func Build(rows []population.Row, abbrByFIPS map[string]string) (Table, error) {
	out := make(Table, 0, len(rows))
	seen := make(map[int64]bool, len(rows))

	for _, r := range rows {
		id, err := fips.CountyID(r.State, r.County)
		if err != nil {
			return nil, eris.Wrapf(ErrInvalidRecord, "county %s%s: %v", r.State, r.County, err)
		}
		if seen[id] {
			return nil, eris.Wrapf(ErrDuplicateCounty, "%s", fips.FormatCountyID(id))
		}
		seen[id] = true

		abbr, ok := abbrByFIPS[fips.NormalizeState(r.State)]
		if !ok {
			return nil, eris.Wrapf(ErrInvalidRecord, "county %s: jurisdiction %q not modeled", fips.FormatCountyID(id), r.State)
		}

		pop, err := parsePopulation(r.Population)
		if err != nil {
			return nil, eris.Wrapf(err, "county %s", fips.FormatCountyID(id))
		}

		out = append(out, CountyRecord{GEOID: id, Population: pop, StateUSPS: abbr})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].GEOID < out[j].GEOID })
	return out, nil
}

func parsePopulation(s string) (int64, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some ACS vintages render counts as floats ("1585873.0").
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, eris.Wrapf(ErrInvalidRecord, "population %q", s)
		}
		v = int64(f)
	}
	if v < 0 {
		return 0, eris.Wrapf(ErrInvalidRecord, "negative population %d", v)
	}
	return v, nil
}

// WriteCSV writes the table with its header row.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return eris.Wrap(err, "geotable: write header")
	}
	for _, r := range t {
		rec := []string{
			strconv.FormatInt(r.GEOID, 10),
			strconv.FormatInt(r.Population, 10),
			r.StateUSPS,
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "geotable: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "geotable: flush")
}

// ReadCSV reads a table written by WriteCSV.
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	recs, err := cr.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "geotable: read csv")
	}
	if len(recs) == 0 {
		return nil, eris.Wrap(ErrInvalidRecord, "missing header")
	}
	for i, h := range Header {
		if len(recs[0]) != len(Header) || strings.TrimPrefix(recs[0][i], "\ufeff") != h {
			return nil, eris.Wrapf(ErrInvalidRecord, "unexpected header %v", recs[0])
		}
	}

	out := make(Table, 0, len(recs)-1)
	seen := make(map[int64]bool, len(recs)-1)
	for n, rec := range recs[1:] {
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, eris.Wrapf(ErrInvalidRecord, "line %d: geoid %q", n+2, rec[0])
		}
		if seen[id] {
			return nil, eris.Wrapf(ErrDuplicateCounty, "line %d: %d", n+2, id)
		}
		seen[id] = true
		pop, err := parsePopulation(rec[1])
		if err != nil {
			return nil, eris.Wrapf(err, "line %d", n+2)
		}
		out = append(out, CountyRecord{GEOID: id, Population: pop, StateUSPS: rec[2]})
	}
	return out, nil
}
