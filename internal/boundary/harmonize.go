package boundary

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-prep/internal/cache"
	"github.com/sells-group/spatial-prep/internal/fetcher"
	"github.com/sells-group/spatial-prep/internal/fips"
)

// Harmonizer fetches boundary archives through the cache and produces
// harmonized records for the modeled jurisdictions.
type Harmonizer struct {
	fetcher fetcher.Fetcher
	cache   *cache.Dir
	opts    Options
}

// NewHarmonizer creates a Harmonizer.
func NewHarmonizer(f fetcher.Fetcher, dir *cache.Dir, opts Options) *Harmonizer {
	return &Harmonizer{fetcher: f, cache: dir, opts: opts.withDefaults()}
}

// LegacyCacheKey is the cache entry name for a jurisdiction's legacy archive.
func LegacyCacheKey(abbr string, year int) string {
	return fmt.Sprintf("boundary_%s_%d.zip", abbr, year)
}

// CurrentCacheKey is the cache entry name for a year's nationwide archive.
func CurrentCacheKey(year int) string {
	return fmt.Sprintf("boundary_all_%d.zip", year)
}

// Harmonize returns one record per county of the modeled jurisdictions,
// sorted by GEOID. The year is validated before any fetch.
func (h *Harmonizer) Harmonize(ctx context.Context, year int, js []fips.Jurisdiction) ([]Record, error) {
	format, err := h.opts.SelectFormat(year)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(
		zap.String("component", "boundary"),
		zap.Int("year", year),
		zap.Stringer("format", format),
	)

	var recs []Record
	switch format {
	case Legacy:
		recs, err = h.legacy(ctx, year, js, log)
	case Current:
		recs, err = h.current(ctx, year, js, log)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].GEOID < recs[j].GEOID })
	for i := 1; i < len(recs); i++ {
		if recs[i].GEOID == recs[i-1].GEOID {
			return nil, eris.Wrapf(ErrDuplicateCounty, "%s", fips.FormatCountyID(recs[i].GEOID))
		}
	}

	log.Info("boundaries harmonized", zap.Int("counties", len(recs)))
	return recs, nil
}

func (h *Harmonizer) legacy(ctx context.Context, year int, js []fips.Jurisdiction, log *zap.Logger) ([]Record, error) {
	var out []Record
	for _, j := range js {
		url := ArchiveURL(h.opts.LegacyURL, j.FIPS, year)
		raws, err := h.load(ctx, LegacyCacheKey(j.Abbr, year), url, Legacy, log.With(zap.String("state", j.Abbr)))
		if err != nil {
			return nil, eris.Wrapf(err, "boundary: %s", j.Abbr)
		}
		for _, raw := range raws {
			rec, err := harmonize(raw, j.Abbr)
			if err != nil {
				return nil, eris.Wrapf(err, "boundary: %s", j.Abbr)
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func (h *Harmonizer) current(ctx context.Context, year int, js []fips.Jurisdiction, log *zap.Logger) ([]Record, error) {
	url := ArchiveURL(h.opts.CurrentURL, "", year)
	raws, err := h.load(ctx, CurrentCacheKey(year), url, Current, log)
	if err != nil {
		return nil, err
	}

	abbrs := fips.AbbrByFIPS(js)
	out := make([]Record, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		abbr, ok := abbrs[fips.NormalizeState(raw.StateFP)]
		if !ok {
			dropped++
			continue
		}
		rec, err := harmonize(raw, abbr)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	log.Debug("joined nationwide boundaries", zap.Int("kept", len(out)), zap.Int("dropped", dropped))
	return out, nil
}

// load returns the archive's raw records. A cached archive that cannot be
// extracted is discarded and fetched again.
func (h *Harmonizer) load(ctx context.Context, key, url string, format Format, log *zap.Logger) ([]rawRecord, error) {
	path, cached, err := h.archive(ctx, key, url, log)
	if err != nil {
		return nil, err
	}
	shpPath, cleanup, err := extract(path)
	if err != nil && cached {
		log.Warn("cached boundary archive unreadable, refetching", zap.String("key", key), zap.Error(err))
		if err := h.cache.Remove(ctx, key); err != nil {
			return nil, err
		}
		if path, _, err = h.archive(ctx, key, url, log); err != nil {
			return nil, err
		}
		shpPath, cleanup, err = extract(path)
	}
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return readTIGER(shpPath, format.Schema())
}

func (h *Harmonizer) archive(ctx context.Context, key, url string, log *zap.Logger) (string, bool, error) {
	path, ok, err := h.cache.Lookup(ctx, key)
	if err != nil {
		return "", false, err
	}
	if ok {
		log.Info("boundary archive cache hit", zap.String("key", key))
		return path, true, nil
	}

	log.Info("downloading boundary archive", zap.String("url", fetcher.Redact(url)))
	body, err := h.fetcher.Download(ctx, url)
	if err != nil {
		return "", false, eris.Wrap(err, "boundary: download archive")
	}
	defer body.Close() //nolint:errcheck

	path, err = h.cache.Store(ctx, key, url, body)
	if err != nil {
		return "", false, err
	}
	return path, false, nil
}

// extract unpacks a ZIP archive into a temporary directory and returns the
// .shp path inside it plus a cleanup func.
func extract(zipPath string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "boundary-*")
	if err != nil {
		return "", nil, eris.Wrap(err, "boundary: create extract dir")
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	paths, err := fetcher.ExtractZIP(zipPath, dir)
	if err != nil {
		cleanup()
		return "", nil, eris.Wrap(err, "boundary: extract archive")
	}
	shpPath, err := fetcher.FindFileByExt(paths, ".shp")
	if err != nil {
		cleanup()
		return "", nil, eris.Wrap(err, "boundary: find shapefile")
	}
	return shpPath, cleanup, nil
}
