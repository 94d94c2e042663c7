package boundary

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTIGER_LegacyColumns(t *testing.T) {
	path := writeTIGER(t, t.TempDir(), "tl_2010_35_county10", Legacy.Schema(), []county{
		{state: "35", county: "013", name: "Do\xf1a Ana"},
		{state: "35", county: "001", name: "Bernalillo"},
	})

	raws, err := readTIGER(path, Legacy.Schema())
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Equal(t, "35", raws[0].StateFP)
	assert.Equal(t, "013", raws[0].CountyFP)
	assert.Equal(t, "35013", raws[0].GEOID)
	assert.Equal(t, "Doña Ana", raws[0].Name, "latin-1 attribute transcoded")
	assert.Equal(t, 1, raws[0].Geometry.NumPolygons())
}

func TestReadTIGER_MissingColumn(t *testing.T) {
	// A current-vintage file read with the legacy layout lacks the suffixed columns.
	path := writeTIGER(t, t.TempDir(), "tl_2015_us_county", Current.Schema(), []county{
		{state: "36", county: "061", name: "New York"},
	})

	_, err := readTIGER(path, Legacy.Schema())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func sampleRecords() []Record {
	p := shp.Polygon(*shp.NewPolyLine([][]shp.Point{square(0, 0)}))
	g1, _ := toMultiPolygon(&p)
	q := shp.Polygon(*shp.NewPolyLine([][]shp.Point{square(2, 0), square(4, 0)}))
	g2, _ := toMultiPolygon(&q)
	return []Record{
		{GEOID: 35013, StateFP: "35", CountyFP: "013", Name: "Doña Ana County, NM", StateAbbr: "NM", Geometry: g1},
		{GEOID: 36061, StateFP: "36", CountyFP: "061", Name: "New York County, NY", StateAbbr: "NY", Geometry: g2},
	}
}

func assertSameRecords(t *testing.T, want, got []Record) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].GEOID, got[i].GEOID)
		assert.Equal(t, want[i].StateFP, got[i].StateFP)
		assert.Equal(t, want[i].CountyFP, got[i].CountyFP)
		assert.Equal(t, want[i].Name, got[i].Name)
		assert.Equal(t, want[i].StateAbbr, got[i].StateAbbr)
		assert.Equal(t, want[i].Geometry.Coords(), got[i].Geometry.Coords())
		assert.Equal(t, SRID, got[i].Geometry.SRID())
	}
}

func TestShapefile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counties.shp")
	want := sampleRecords()
	require.NoError(t, Write(path, want))

	for _, f := range Files(path) {
		assert.FileExists(t, f)
	}
	prj, err := os.ReadFile(PRJPath(path))
	require.NoError(t, err)
	assert.Contains(t, string(prj), "North_American_1983")

	got, err := Read(path)
	require.NoError(t, err)
	assertSameRecords(t, want, got)
}

func TestWriteShapefile_ExactFileSet(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteShapefile(filepath.Join(dir, "counties.shp"), sampleRecords()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"counties.dbf", "counties.prj", "counties.shp", "counties.shx"}, names)
}

func TestShapefile_NameTooLong(t *testing.T) {
	recs := sampleRecords()
	recs[0].Name = string(bytes.Repeat([]byte("x"), 200))
	err := WriteShapefile(filepath.Join(t.TempDir(), "counties.shp"), recs)
	require.Error(t, err)
}

func TestGeoJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counties.geojson")
	want := sampleRecords()
	require.NoError(t, Write(path, want))
	assert.Equal(t, []string{path}, Files(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"FeatureCollection"`)
	assert.Contains(t, string(data), `"id":"35013"`)

	got, err := Read(path)
	require.NoError(t, err)
	assertSameRecords(t, want, got)
}

func TestReadGeoJSON_Errors(t *testing.T) {
	tests := map[string]string{
		"not json":      `{`,
		"point":         `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"GEOID":1001}}]}`,
		"missing geoid": `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"MultiPolygon","coordinates":[]},"properties":{}}]}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadGeoJSON(bytes.NewBufferString(data))
			require.Error(t, err)
		})
	}
}

func TestWrite_UnsupportedExtension(t *testing.T) {
	require.Error(t, Write(filepath.Join(t.TempDir(), "counties.kml"), nil))
	_, err := Read("counties.kml")
	require.Error(t, err)
}

func TestShapefileParts(t *testing.T) {
	assert.Equal(t,
		[]string{"out/c.shp", "out/c.shx", "out/c.dbf", "out/c.prj"},
		ShapefileParts("out/c.shp"))
}
