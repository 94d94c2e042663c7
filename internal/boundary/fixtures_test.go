package boundary

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

type county struct {
	state, county, name string
	rings               [][]shp.Point
}

// square returns a clockwise ring of side 1 at (x, y).
func square(x, y float64) []shp.Point {
	return []shp.Point{{X: x, Y: y}, {X: x, Y: y + 1}, {X: x + 1, Y: y + 1}, {X: x + 1, Y: y}, {X: x, Y: y}}
}

// writeTIGER writes a county shapefile in the given vintage's layout and
// returns the .shp path.
func writeTIGER(t *testing.T, dir, base string, schema Schema, counties []county) string {
	t.Helper()
	path := filepath.Join(dir, base+".shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField(schema.StateFP, 2),
		shp.StringField(schema.CountyFP, 3),
		shp.StringField(schema.GEOID, 5),
		shp.StringField(schema.Name, 100),
	}))
	for i, c := range counties {
		rings := c.rings
		if rings == nil {
			rings = [][]shp.Point{square(float64(i), 0)}
		}
		p := shp.Polygon(*shp.NewPolyLine(rings))
		row := int(w.Write(&p))
		require.NoError(t, w.WriteAttribute(row, 0, c.state))
		require.NoError(t, w.WriteAttribute(row, 1, c.county))
		require.NoError(t, w.WriteAttribute(row, 2, c.state+c.county))
		require.NoError(t, w.WriteAttribute(row, 3, c.name))
	}
	w.Close()
	return path
}

// tigerZIP builds a TIGER-style archive holding one county shapefile.
func tigerZIP(t *testing.T, base string, schema Schema, counties []county) []byte {
	t.Helper()
	dir := t.TempDir()
	writeTIGER(t, dir, base, schema, counties)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		data, err := os.ReadFile(filepath.Join(dir, base+ext))
		require.NoError(t, err)
		fw, err := zw.Create(base + ext)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
