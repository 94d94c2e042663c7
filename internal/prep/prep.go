// Package prep runs the mobility and shapefile builds end to end: fetch
// through a cache scope, assemble in memory, then commit every artifact of a
// run together.
package prep

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-prep/internal/boundary"
	"github.com/sells-group/spatial-prep/internal/cache"
	"github.com/sells-group/spatial-prep/internal/commute"
	"github.com/sells-group/spatial-prep/internal/config"
	"github.com/sells-group/spatial-prep/internal/fetcher"
	"github.com/sells-group/spatial-prep/internal/fips"
	"github.com/sells-group/spatial-prep/internal/geotable"
	"github.com/sells-group/spatial-prep/internal/manifest"
	"github.com/sells-group/spatial-prep/internal/mobility"
	"github.com/sells-group/spatial-prep/internal/population"
	"github.com/sells-group/spatial-prep/pkg/census"
)

// Artifact names recorded in the run manifest.
const (
	GeodataArtifact   = "geodata"
	MobilityArtifact  = "mobility"
	ShapefileArtifact = "shapefile"
)

// Runner executes builds for one configuration.
type Runner struct {
	cfg      *config.Config
	fetcher  fetcher.Fetcher
	useCache bool
}

// NewRunner creates a Runner. useCache selects the persistent cache over a
// scratch directory removed when the run ends.
func NewRunner(cfg *config.Config, f fetcher.Fetcher, useCache bool) *Runner {
	return &Runner{cfg: cfg, fetcher: f, useCache: useCache}
}

// NewFetcher builds the scheme router from the fetch settings.
func NewFetcher(cfg *config.Config) *fetcher.Router {
	return fetcher.NewRouter(
		fetcher.HTTPOptions{
			UserAgent:    cfg.Fetch.UserAgent,
			Timeout:      cfg.Fetch.Timeout(),
			MaxAttempts:  cfg.Fetch.MaxAttempts,
			RateLimiters: fetcher.DefaultRateLimiters(),
		},
		fetcher.FTPOptions{Timeout: cfg.Fetch.Timeout()},
	)
}

// MobilityResult summarizes a mobility build.
type MobilityResult struct {
	Counties      int
	FlowsSeen     int
	FlowsKept     int
	FlowsDropped  int
	MatrixSize    int
	GeodataPath   string
	MobilityPath  string
	Jurisdictions []string
}

// ShapefileResult summarizes a shapefile build.
type ShapefileResult struct {
	Format   boundary.Format
	Counties int
	Path     string
	Files    []string
}

func (r *Runner) cacheOptions() cache.Options {
	return cache.Options{
		Persist: r.useCache,
		Dir:     r.cfg.Cache.Dir,
		TTL:     r.cfg.Cache.TTL(),
	}
}

func (r *Runner) prepare() ([]fips.Jurisdiction, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	return r.cfg.Jurisdictions()
}

// Mobility builds the county table and mobility matrix and writes both.
func (r *Runner) Mobility(ctx context.Context) (*MobilityResult, error) {
	js, err := r.prepare()
	if err != nil {
		return nil, err
	}
	year := r.cfg.SpatialSetup.CensusYear
	log := zap.L().With(zap.String("component", "prep.mobility"), zap.Int("year", year))
	run := manifest.NewRun("mobility", year, r.cfg.SpatialSetup.ModeledStates)

	var (
		table geotable.Table
		agg   = commute.NewAggregator(js)
	)
	err = cache.With(ctx, r.cacheOptions(), func(d *cache.Dir) error {
		client := census.NewClient(r.fetcher, census.Options{
			BaseURL: r.cfg.Census.BaseURL,
			Dataset: r.cfg.Census.Dataset,
			Key:     r.cfg.Importation.CensusAPIKey,
		})
		rows, err := population.New(client, d).WithVariable(r.cfg.Census.Variable).FetchAll(ctx, js, year)
		if err != nil {
			return err
		}
		if table, err = geotable.Build(rows, fips.AbbrByFIPS(js)); err != nil {
			return err
		}

		opts := commute.SourceOptions{
			Columns: commute.Columns{
				Origin:      r.cfg.Commute.OriginColumn,
				Destination: r.cfg.Commute.DestinationColumn,
				Flow:        r.cfg.Commute.FlowColumn,
			},
			Sheet: r.cfg.Commute.Sheet,
		}
		return commute.Load(ctx, r.cfg.Importation.CommuteData, r.fetcher, d, opts, agg)
	})
	if err != nil {
		return nil, err
	}

	m := mobility.Build(agg.Pairs())
	dropped := 0
	if r.cfg.Mobility.AlignToGeodata {
		m, dropped = m.Reindex(table.IDs())
		if dropped > 0 {
			log.Warn("flows outside the county table dropped", zap.Int("entries", dropped))
		}
	}

	res := &MobilityResult{
		Counties:      len(table),
		FlowsDropped:  dropped,
		MatrixSize:    m.Size(),
		GeodataPath:   r.cfg.GeodataPath(),
		MobilityPath:  r.cfg.MobilityPath(),
		Jurisdictions: r.cfg.SpatialSetup.ModeledStates,
	}
	res.FlowsSeen, res.FlowsKept = agg.Stats()

	st, err := newStaging(r.cfg.SpatialSetup.BasePath)
	if err != nil {
		return nil, err
	}
	defer st.cleanup()

	if err := st.write(res.GeodataPath, func(w io.Writer) error { return geotable.WriteCSV(w, table) }); err != nil {
		return nil, err
	}
	if err := st.write(res.MobilityPath, m.WriteText); err != nil {
		return nil, err
	}
	if err := st.commit(res.GeodataPath, res.MobilityPath); err != nil {
		return nil, err
	}

	log.Info("mobility artifacts written",
		zap.String("geodata", res.GeodataPath),
		zap.String("mobility", res.MobilityPath),
		zap.Int("counties", res.Counties),
		zap.Int("matrix_size", res.MatrixSize),
	)

	geoArt, err := manifest.Describe(GeodataArtifact, res.Counties, res.GeodataPath)
	if err != nil {
		return nil, err
	}
	mobArt, err := manifest.Describe(MobilityArtifact, res.MatrixSize, res.MobilityPath)
	if err != nil {
		return nil, err
	}
	if err := r.record(run, geoArt, mobArt); err != nil {
		return nil, err
	}
	return res, nil
}

// Shapefile harmonizes boundaries for the census year and writes them.
func (r *Runner) Shapefile(ctx context.Context) (*ShapefileResult, error) {
	js, err := r.prepare()
	if err != nil {
		return nil, err
	}
	year := r.cfg.SpatialSetup.CensusYear
	opts := boundary.Options{
		EpochYear:  r.cfg.Boundary.EpochYear,
		MaxYear:    r.cfg.Boundary.MaxYear,
		LegacyURL:  r.cfg.Boundary.LegacyURL,
		CurrentURL: r.cfg.Boundary.CurrentURL,
	}
	format, err := opts.SelectFormat(year)
	if err != nil {
		return nil, err
	}
	run := manifest.NewRun("shapefile", year, r.cfg.SpatialSetup.ModeledStates)

	var recs []boundary.Record
	err = cache.With(ctx, r.cacheOptions(), func(d *cache.Dir) error {
		var err error
		recs, err = boundary.NewHarmonizer(r.fetcher, d, opts).Harmonize(ctx, year, js)
		return err
	})
	if err != nil {
		return nil, err
	}

	res := &ShapefileResult{
		Format:   format,
		Counties: len(recs),
		Path:     r.cfg.ShapefilePath(),
		Files:    boundary.Files(r.cfg.ShapefilePath()),
	}

	st, err := newStaging(r.cfg.SpatialSetup.BasePath)
	if err != nil {
		return nil, err
	}
	defer st.cleanup()

	staged, err := st.path(res.Path)
	if err != nil {
		return nil, err
	}
	if err := boundary.Write(staged, recs); err != nil {
		return nil, err
	}
	if err := st.commit(res.Files...); err != nil {
		return nil, err
	}

	zap.L().With(zap.String("component", "prep.shapefile")).Info("boundary file written",
		zap.String("path", res.Path),
		zap.Stringer("format", format),
		zap.Int("counties", res.Counties),
	)

	art, err := manifest.Describe(ShapefileArtifact, res.Counties, res.Files...)
	if err != nil {
		return nil, err
	}
	if err := r.record(run, art); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Runner) record(run manifest.Run, artifacts ...manifest.Artifact) error {
	path := r.cfg.ManifestPath()
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	m.Record(run, artifacts...)
	return eris.Wrap(m.Save(path), "prep: update run manifest")
}
