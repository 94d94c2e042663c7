package boundary

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// SRID is the spatial reference of TIGER/Line geometries (NAD83).
const SRID = 4269

// toMultiPolygon converts a shapefile polygon to a MultiPolygon. Clockwise
// rings start a new polygon; counter-clockwise rings are holes of the
// polygon before them. Null shapes yield an empty MultiPolygon.
func toMultiPolygon(shape shp.Shape) (*geom.MultiPolygon, error) {
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(SRID)

	var p *shp.Polygon
	switch s := shape.(type) {
	case *shp.Polygon:
		p = s
	case *shp.Null, nil:
		return mp, nil
	default:
		return nil, eris.Errorf("boundary: unsupported shape type %T", shape)
	}

	var cur *geom.Polygon
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || start >= end {
			zap.L().Debug("boundary: skipping empty polygon ring", zap.Int32("part", i))
			continue
		}

		flat := make([]float64, 0, 2*(end-start))
		for _, pt := range p.Points[start:end] {
			flat = append(flat, pt.X, pt.Y)
		}

		if cur == nil || signedArea(flat) <= 0 {
			if cur != nil {
				if err := mp.Push(cur); err != nil {
					return nil, eris.Wrap(err, "boundary: push polygon")
				}
			}
			cur = geom.NewPolygon(geom.XY)
		}
		if err := cur.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
			return nil, eris.Wrap(err, "boundary: push ring")
		}
	}
	if cur != nil {
		if err := mp.Push(cur); err != nil {
			return nil, eris.Wrap(err, "boundary: push polygon")
		}
	}
	return mp, nil
}

// toShape converts a MultiPolygon back to a shapefile polygon, one part per ring.
func toShape(mp *geom.MultiPolygon) *shp.Polygon {
	var parts [][]shp.Point
	if mp != nil {
		for i := 0; i < mp.NumPolygons(); i++ {
			poly := mp.Polygon(i)
			for j := 0; j < poly.NumLinearRings(); j++ {
				flat := poly.LinearRing(j).FlatCoords()
				ring := make([]shp.Point, 0, len(flat)/2)
				for k := 0; k+1 < len(flat); k += 2 {
					ring = append(ring, shp.Point{X: flat[k], Y: flat[k+1]})
				}
				parts = append(parts, ring)
			}
		}
	}
	p := shp.Polygon(*shp.NewPolyLine(parts))
	return &p
}

// signedArea is the shoelace area of a closed ring; negative means clockwise.
func signedArea(flat []float64) float64 {
	var sum float64
	n := len(flat) / 2
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return sum / 2
}
