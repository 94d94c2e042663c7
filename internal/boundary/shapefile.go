package boundary

import (
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

// ErrMissingColumn is returned when a shapefile lacks a column its schema requires.
var ErrMissingColumn = eris.New("boundary: missing column")

// Column names of the harmonized boundary file.
const (
	ColGEOID     = "GEOID"
	ColStateFP   = "STATEFP"
	ColCountyFP  = "COUNTYFP"
	ColName      = "NAME"
	ColStateAbbr = "STATE_ABBR"
)

// nad83PRJ is the projection definition shipped with TIGER/Line shapefiles.
const nad83PRJ = `GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137,298.257222101]],PRIMEM["Greenwich",0],UNIT["Degree",0.017453292519943295]]`

// rawRecord is one county as read from a TIGER archive, before harmonization.
type rawRecord struct {
	StateFP  string
	CountyFP string
	GEOID    string
	Name     string
	Geometry *geom.MultiPolygon
}

// readTIGER reads every polygon record of a TIGER county shapefile using the
// vintage's column layout.
func readTIGER(shpPath string, schema Schema) ([]rawRecord, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	idx, err := fieldIndex(reader.Fields(), schema.Columns()...)
	if err != nil {
		return nil, err
	}

	var out []rawRecord
	for reader.Next() {
		_, shape := reader.Shape()
		g, err := toMultiPolygon(shape)
		if err != nil {
			return nil, err
		}
		out = append(out, rawRecord{
			StateFP:  attribute(reader, idx[schema.StateFP]),
			CountyFP: attribute(reader, idx[schema.CountyFP]),
			GEOID:    attribute(reader, idx[schema.GEOID]),
			Name:     attribute(reader, idx[schema.Name]),
			Geometry: g,
		})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "boundary: read shapefile %s", shpPath)
	}

	zap.L().Debug("boundary: parsed shapefile", zap.String("path", shpPath), zap.Int("records", len(out)))
	return out, nil
}

func fieldIndex(fields []shp.Field, required ...string) (map[string]int, error) {
	byName := make(map[string]int, len(fields))
	for i, f := range fields {
		byName[strings.ToUpper(strings.TrimSpace(f.String()))] = i
	}
	idx := make(map[string]int, len(required))
	for _, col := range required {
		i, ok := byName[strings.ToUpper(col)]
		if !ok {
			return nil, eris.Wrapf(ErrMissingColumn, "%s", col)
		}
		idx[col] = i
	}
	return idx, nil
}

// attribute reads a DBF value. Values that are not valid UTF-8 come from
// Latin-1 encoded tables and are transcoded.
func attribute(r *shp.Reader, i int) string {
	v := strings.TrimSpace(strings.TrimRight(r.Attribute(i), "\x00"))
	if utf8.ValidString(v) {
		return v
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().String(v)
	if err != nil {
		return v
	}
	return decoded
}

// WriteShapefile writes records as a polygon shapefile (.shp, .shx, .dbf,
// .prj) at path, which must end in .shp.
func WriteShapefile(path string, recs []Record) error {
	if !strings.HasSuffix(strings.ToLower(path), ".shp") {
		return eris.Errorf("boundary: shapefile path %q must end in .shp", path)
	}

	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "boundary: create shapefile %s", path)
	}
	fields := []shp.Field{
		shp.NumberField(ColGEOID, 10),
		shp.StringField(ColStateFP, 2),
		shp.StringField(ColCountyFP, 3),
		shp.StringField(ColName, 128),
		shp.StringField(ColStateAbbr, 2),
	}
	if err := w.SetFields(fields); err != nil {
		w.Close()
		return eris.Wrap(err, "boundary: set dbf fields")
	}

	for _, r := range recs {
		row := int(w.Write(toShape(r.Geometry)))
		values := []any{int(r.GEOID), r.StateFP, r.CountyFP, r.Name, r.StateAbbr}
		for i, v := range values {
			if err := w.WriteAttribute(row, i, v); err != nil {
				w.Close()
				return eris.Wrapf(err, "boundary: write %s of %d", fields[i].String(), r.GEOID)
			}
		}
	}
	w.Close()

	if err := os.WriteFile(PRJPath(path), []byte(nad83PRJ), 0o644); err != nil {
		return eris.Wrap(err, "boundary: write prj")
	}
	return nil
}

// ReadShapefile reads a boundary file written by WriteShapefile.
func ReadShapefile(path string) ([]Record, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	idx, err := fieldIndex(reader.Fields(), ColGEOID, ColStateFP, ColCountyFP, ColName, ColStateAbbr)
	if err != nil {
		return nil, err
	}

	var out []Record
	for reader.Next() {
		_, shape := reader.Shape()
		g, err := toMultiPolygon(shape)
		if err != nil {
			return nil, err
		}
		raw := attribute(reader, idx[ColGEOID])
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, eris.Wrapf(ErrMalformedRecord, "geoid %q", raw)
		}
		out = append(out, Record{
			GEOID:     id,
			StateFP:   attribute(reader, idx[ColStateFP]),
			CountyFP:  attribute(reader, idx[ColCountyFP]),
			Name:      attribute(reader, idx[ColName]),
			StateAbbr: attribute(reader, idx[ColStateAbbr]),
			Geometry:  g,
		})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "boundary: read shapefile %s", path)
	}
	return out, nil
}

// ShapefileParts lists the files a shapefile at path consists of.
func ShapefileParts(path string) []string {
	base := path
	if strings.HasSuffix(strings.ToLower(path), ".shp") {
		base = path[:len(path)-4]
	}
	return []string{base + ".shp", base + ".shx", base + ".dbf", base + ".prj"}
}

// PRJPath returns the projection file path for a .shp path.
func PRJPath(path string) string {
	return ShapefileParts(path)[3]
}
