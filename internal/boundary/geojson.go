package boundary

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/spatial-prep/internal/fips"
)

// WriteGeoJSON encodes records as a FeatureCollection.
func WriteGeoJSON(w io.Writer, recs []Record) error {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(recs))}
	for _, r := range recs {
		g := r.Geometry
		if g == nil {
			g = geom.NewMultiPolygon(geom.XY)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       fips.FormatCountyID(r.GEOID),
			Geometry: g,
			Properties: map[string]any{
				ColGEOID:     r.GEOID,
				ColStateFP:   r.StateFP,
				ColCountyFP:  r.CountyFP,
				ColName:      r.Name,
				ColStateAbbr: r.StateAbbr,
			},
		})
	}
	data, err := json.Marshal(&fc)
	if err != nil {
		return eris.Wrap(err, "boundary: encode geojson")
	}
	_, err = w.Write(data)
	return eris.Wrap(err, "boundary: write geojson")
}

// ReadGeoJSON decodes a FeatureCollection written by WriteGeoJSON.
func ReadGeoJSON(r io.Reader) ([]Record, error) {
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "boundary: decode geojson")
	}

	out := make([]Record, 0, len(fc.Features))
	for i, f := range fc.Features {
		mp, ok := f.Geometry.(*geom.MultiPolygon)
		if !ok {
			return nil, eris.Wrapf(ErrMalformedRecord, "feature %d: geometry %T", i, f.Geometry)
		}
		if mp.Layout() == geom.NoLayout {
			mp = geom.NewMultiPolygon(geom.XY)
		}
		mp.SetSRID(SRID)

		id, err := int64Property(f.Properties, ColGEOID)
		if err != nil {
			return nil, eris.Wrapf(err, "feature %d", i)
		}
		out = append(out, Record{
			GEOID:     id,
			StateFP:   stringProperty(f.Properties, ColStateFP),
			CountyFP:  stringProperty(f.Properties, ColCountyFP),
			Name:      stringProperty(f.Properties, ColName),
			StateAbbr: stringProperty(f.Properties, ColStateAbbr),
			Geometry:  mp,
		})
	}
	return out, nil
}

func int64Property(props map[string]any, key string) (int64, error) {
	switch v := props[key].(type) {
	case float64:
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, eris.Wrapf(ErrMalformedRecord, "%s %q", key, v)
		}
		return id, nil
	default:
		return 0, eris.Wrapf(ErrMalformedRecord, "%s missing", key)
	}
}

func stringProperty(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}
