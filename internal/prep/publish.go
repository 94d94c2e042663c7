package prep

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-prep/internal/boundary"
	"github.com/sells-group/spatial-prep/internal/db"
	"github.com/sells-group/spatial-prep/internal/geotable"
	"github.com/sells-group/spatial-prep/internal/mobility"
	"github.com/sells-group/spatial-prep/internal/publish"
)

// ErrNothingToPublish is returned when no artifact has been written yet.
var ErrNothingToPublish = eris.New("prep: no artifacts to publish")

// PublishResult counts the rows loaded per table.
type PublishResult struct {
	Counties   int64
	Edges      int64
	Boundaries int64
}

// Publish reads the written artifacts back and loads them into PostGIS.
// Artifacts that do not exist yet are skipped.
func (r *Runner) Publish(ctx context.Context, pool db.Pool) (*PublishResult, error) {
	log := zap.L().With(zap.String("component", "prep.publish"))
	p := publish.New(pool, r.cfg.PostGIS.Schema)
	res := &PublishResult{}

	haveTable := exists(r.cfg.GeodataPath())
	haveBounds := exists(r.cfg.ShapefilePath())
	if !haveTable && !haveBounds {
		return nil, ErrNothingToPublish
	}

	if err := p.Migrate(ctx); err != nil {
		return nil, err
	}

	if haveTable {
		table, err := readTable(r.cfg.GeodataPath())
		if err != nil {
			return nil, err
		}
		if res.Counties, err = p.Counties(ctx, table); err != nil {
			return nil, err
		}

		if exists(r.cfg.MobilityPath()) {
			if !r.cfg.Mobility.AlignToGeodata {
				return nil, eris.New("prep: publishing the matrix requires mobility.align_to_geodata")
			}
			m, err := readMatrix(r.cfg.MobilityPath(), table.IDs())
			if err != nil {
				return nil, err
			}
			if res.Edges, err = p.Mobility(ctx, m); err != nil {
				return nil, err
			}
		}
	} else {
		log.Info("county table not found, skipping", zap.String("path", r.cfg.GeodataPath()))
	}

	if haveBounds {
		recs, err := boundary.Read(r.cfg.ShapefilePath())
		if err != nil {
			return nil, err
		}
		if res.Boundaries, err = p.Boundaries(ctx, recs); err != nil {
			return nil, err
		}
	} else {
		log.Info("boundary file not found, skipping", zap.String("path", r.cfg.ShapefilePath()))
	}

	return res, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

func readTable(path string) (geotable.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "prep: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return geotable.ReadCSV(f)
}

func readMatrix(path string, ids []int64) (*mobility.Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "prep: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return mobility.ReadText(f, ids)
}
