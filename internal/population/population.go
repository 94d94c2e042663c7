// Package population fetches county population rows for each modeled
// jurisdiction through a read-through cache keyed by jurisdiction and year.
package population

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-prep/internal/cache"
	"github.com/sells-group/spatial-prep/internal/fetcher"
	"github.com/sells-group/spatial-prep/internal/fips"
	"github.com/sells-group/spatial-prep/pkg/census"
)

// ErrMalformedRow marks a population row missing a required field.
var ErrMalformedRow = eris.New("population: malformed row")

// Row is one county's raw population record.
type Row struct {
	State      string // 2-digit jurisdiction part
	County     string // 3-digit county part
	Population string // string-encoded count, as the API returns it
}

// Source is the population query capability.
type Source interface {
	StateCounty(ctx context.Context, variable, stateFIPS, countySel string, year int) ([]map[string]string, error)
}

// Fetcher pulls population rows, preferring cached responses.
type Fetcher struct {
	src      Source
	cache    *cache.Dir
	variable string
}

// New creates a Fetcher for the ACS total population variable.
func New(src Source, dir *cache.Dir) *Fetcher {
	return &Fetcher{src: src, cache: dir, variable: census.PopulationVariable}
}

// WithVariable queries v instead of the total population estimate.
func (f *Fetcher) WithVariable(v string) *Fetcher {
	if v != "" {
		f.variable = v
	}
	return f
}

// CacheKey is the cache entry name for a jurisdiction's population rows.
func CacheKey(abbr string, year int) string {
	return fmt.Sprintf("population_%s_%d.json", abbr, year)
}

// FetchAll returns the combined rows of every jurisdiction, in jurisdiction
// order. A fetch failure for any uncached jurisdiction aborts the whole call.
func (f *Fetcher) FetchAll(ctx context.Context, js []fips.Jurisdiction, year int) ([]Row, error) {
	var all []Row
	for _, j := range js {
		rows, err := f.fetchOne(ctx, j, year)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	zap.L().Info("population rows collected",
		zap.String("component", "population"),
		zap.Int("jurisdictions", len(js)),
		zap.Int("rows", len(all)),
	)
	return all, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, j fips.Jurisdiction, year int) ([]Row, error) {
	log := zap.L().With(
		zap.String("component", "population"),
		zap.String("state", j.Abbr),
		zap.Int("year", year),
	)
	key := CacheKey(j.Abbr, year)

	path, ok, err := f.cache.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		rows, readErr := f.readCached(ctx, path, j)
		if readErr == nil {
			log.Debug("population cache hit", zap.Int("rows", len(rows)))
			return rows, nil
		}
		log.Warn("malformed population cache entry, refetching", zap.Error(readErr))
	}

	log.Info("population not cached, querying Census API")
	raw, err := f.src.StateCounty(ctx, f.variable, j.FIPS, census.AllCounties, year)
	if err != nil {
		return nil, eris.Wrapf(err, "population: fetch %s %d", j.Abbr, year)
	}

	rows, err := f.toRows(raw, j)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, eris.Wrap(err, "population: encode cache entry")
	}
	if _, err := f.cache.Store(ctx, key, "census:"+j.FIPS, bytes.NewReader(data)); err != nil {
		return nil, err
	}

	return rows, nil
}

func (f *Fetcher) readCached(ctx context.Context, path string, j fips.Jurisdiction) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "population: open cache entry")
	}
	defer file.Close() //nolint:errcheck

	raw, err := fetcher.CollectJSONArray[map[string]string](ctx, file)
	if err != nil {
		return nil, err
	}
	return f.toRows(raw, j)
}

// toRows validates raw API rows. There must be at least one, and every row
// must carry the jurisdiction part, the county part, and the population
// figure, and belong to j.
func (f *Fetcher) toRows(raw []map[string]string, j fips.Jurisdiction) ([]Row, error) {
	if len(raw) == 0 {
		return nil, eris.Wrapf(ErrMalformedRow, "%s: no county rows", j.Abbr)
	}
	rows := make([]Row, 0, len(raw))
	for i, m := range raw {
		r := Row{State: m["state"], County: m["county"], Population: m[f.variable]}
		if r.State == "" || r.County == "" || r.Population == "" {
			return nil, eris.Wrapf(ErrMalformedRow, "%s row %d: %v", j.Abbr, i, m)
		}
		if fips.NormalizeState(r.State) != j.FIPS {
			return nil, eris.Wrapf(ErrMalformedRow, "%s row %d: state %q does not match %s", j.Abbr, i, r.State, j.FIPS)
		}
		rows = append(rows, r)
	}
	return rows, nil
}
