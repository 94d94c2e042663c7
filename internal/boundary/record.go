package boundary

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/spatial-prep/internal/fips"
)

// Data-shape errors raised during harmonization.
var (
	ErrMalformedRecord = eris.New("boundary: malformed record")
	ErrDuplicateCounty = eris.New("boundary: duplicate county")
)

// Record is one harmonized county boundary.
type Record struct {
	GEOID     int64 // same identifier space as the county table
	StateFP   string
	CountyFP  string
	Name      string // "<county> County, <ST>"
	StateAbbr string
	Geometry  *geom.MultiPolygon
}

// DisplayName builds the human-readable county label.
func DisplayName(county, abbr string) string {
	return county + " County, " + abbr
}

func harmonize(raw rawRecord, abbr string) (Record, error) {
	if len(raw.GEOID) != 5 {
		return Record{}, eris.Wrapf(ErrMalformedRecord, "county geoid %q", raw.GEOID)
	}
	state, county, err := fips.SplitFull(raw.GEOID)
	if err != nil {
		return Record{}, eris.Wrapf(ErrMalformedRecord, "%v", err)
	}
	if state != fips.NormalizeState(raw.StateFP) {
		return Record{}, eris.Wrapf(ErrMalformedRecord, "geoid %s outside state %s", raw.GEOID, raw.StateFP)
	}
	id, err := fips.CountyID(state, county)
	if err != nil {
		return Record{}, eris.Wrapf(ErrMalformedRecord, "%v", err)
	}
	return Record{
		GEOID:     id,
		StateFP:   state,
		CountyFP:  county,
		Name:      DisplayName(raw.Name, abbr),
		StateAbbr: abbr,
		Geometry:  raw.Geometry,
	}, nil
}

// Write writes records to path. A .shp path produces a shapefile; .geojson
// and .json produce a GeoJSON FeatureCollection.
func Write(path string, recs []Record) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return WriteShapefile(path, recs)
	case ".geojson", ".json":
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "boundary: create %s", path)
		}
		if err := WriteGeoJSON(f, recs); err != nil {
			_ = f.Close()
			return err
		}
		return eris.Wrapf(f.Close(), "boundary: close %s", path)
	default:
		return eris.Errorf("boundary: unsupported boundary file type %q", path)
	}
}

// Read reads a boundary file written by Write.
func Read(path string) ([]Record, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return ReadShapefile(path)
	case ".geojson", ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "boundary: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadGeoJSON(f)
	default:
		return nil, eris.Errorf("boundary: unsupported boundary file type %q", path)
	}
}

// Files lists every file Write produces for path.
func Files(path string) []string {
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		return ShapefileParts(path)
	}
	return []string{path}
}
