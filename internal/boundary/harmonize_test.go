package boundary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spatial-prep/internal/cache"
	"github.com/sells-group/spatial-prep/internal/fetcher"
	"github.com/sells-group/spatial-prep/internal/fips"
)

var (
	ny = fips.Jurisdiction{Abbr: "NY", FIPS: "36"}
	nj = fips.Jurisdiction{Abbr: "NJ", FIPS: "34"}
)

// archiveServer serves zip archives by path and records every request.
type archiveServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []string
}

func newArchiveServer(t *testing.T, archives map[string][]byte) *archiveServer {
	t.Helper()
	s := &archiveServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.URL.Path)
		s.mu.Unlock()
		data, ok := archives[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(data)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *archiveServer) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *archiveServer) options() Options {
	return Options{
		EpochYear:  2010,
		MaxYear:    2018,
		LegacyURL:  s.URL + "/legacy/tl_2010_{fips}_county10.zip",
		CurrentURL: s.URL + "/TIGER{year}/tl_{year}_us_county.zip",
	}
}

func legacyArchives(t *testing.T) map[string][]byte {
	return map[string][]byte{
		"/legacy/tl_2010_36_county10.zip": tigerZIP(t, "tl_2010_36_county10", Legacy.Schema(), []county{
			{state: "36", county: "061", name: "New York"},
			{state: "36", county: "047", name: "Kings"},
		}),
		"/legacy/tl_2010_34_county10.zip": tigerZIP(t, "tl_2010_34_county10", Legacy.Schema(), []county{
			{state: "34", county: "003", name: "Bergen"},
		}),
	}
}

func nationwideArchive(t *testing.T, year string) map[string][]byte {
	return map[string][]byte{
		"/TIGER" + year + "/tl_" + year + "_us_county.zip": tigerZIP(t, "tl_"+year+"_us_county", Current.Schema(), []county{
			{state: "09", county: "001", name: "Fairfield"},
			{state: "36", county: "061", name: "New York"},
			{state: "34", county: "003", name: "Bergen"},
			{state: "06", county: "037", name: "Los Angeles"},
		}),
	}
}

func runHarmonizer(t *testing.T, srv *archiveServer, cacheOpts cache.Options, year int, js []fips.Jurisdiction) ([]Record, error) {
	t.Helper()
	var recs []Record
	err := cache.With(context.Background(), cacheOpts, func(d *cache.Dir) error {
		h := NewHarmonizer(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{}), d, srv.options())
		var err error
		recs, err = h.Harmonize(context.Background(), year, js)
		return err
	})
	return recs, err
}

func TestHarmonize_LegacyFetchesPerJurisdiction(t *testing.T) {
	srv := newArchiveServer(t, legacyArchives(t))

	recs, err := runHarmonizer(t, srv, cache.Options{}, 2010, []fips.Jurisdiction{ny, nj})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"/legacy/tl_2010_36_county10.zip",
		"/legacy/tl_2010_34_county10.zip",
	}, srv.Requests())

	require.Len(t, recs, 3)
	assert.Equal(t, int64(34003), recs[0].GEOID)
	assert.Equal(t, "Bergen County, NJ", recs[0].Name)
	assert.Equal(t, int64(36047), recs[1].GEOID)
	assert.Equal(t, "Kings County, NY", recs[1].Name)
	assert.Equal(t, int64(36061), recs[2].GEOID)
	assert.Equal(t, "36", recs[2].StateFP)
	assert.Equal(t, "061", recs[2].CountyFP)
	assert.Equal(t, "NY", recs[2].StateAbbr)
	assert.Equal(t, 1, recs[2].Geometry.NumPolygons())
}

func TestHarmonize_CurrentFetchesOnceAndJoins(t *testing.T) {
	srv := newArchiveServer(t, nationwideArchive(t, "2015"))

	recs, err := runHarmonizer(t, srv, cache.Options{}, 2015, []fips.Jurisdiction{ny, nj})
	require.NoError(t, err)

	assert.Equal(t, []string{"/TIGER2015/tl_2015_us_county.zip"}, srv.Requests())
	require.Len(t, recs, 2, "unmodeled jurisdictions dropped")
	assert.Equal(t, int64(34003), recs[0].GEOID)
	assert.Equal(t, "Bergen County, NJ", recs[0].Name)
	assert.Equal(t, int64(36061), recs[1].GEOID)
	assert.Equal(t, "New York County, NY", recs[1].Name)
}

func TestHarmonize_YearOutOfRangeBeforeNetwork(t *testing.T) {
	srv := newArchiveServer(t, nil)
	for _, year := range []int{2009, 2019} {
		_, err := runHarmonizer(t, srv, cache.Options{}, year, []fips.Jurisdiction{ny})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrYearOutOfRange)
	}
	assert.Empty(t, srv.Requests())
}

func TestHarmonize_PersistentCacheSkipsNetwork(t *testing.T) {
	srv := newArchiveServer(t, legacyArchives(t))
	opts := cache.Options{Persist: true, Dir: t.TempDir()}

	first, err := runHarmonizer(t, srv, opts, 2010, []fips.Jurisdiction{ny, nj})
	require.NoError(t, err)
	require.Len(t, srv.Requests(), 2)
	assert.FileExists(t, filepath.Join(opts.Dir, LegacyCacheKey("NY", 2010)))
	assert.FileExists(t, filepath.Join(opts.Dir, LegacyCacheKey("NJ", 2010)))

	second, err := runHarmonizer(t, srv, opts, 2010, []fips.Jurisdiction{ny, nj})
	require.NoError(t, err)
	assert.Len(t, srv.Requests(), 2, "served from cache")
	assert.Equal(t, len(first), len(second))
}

func TestHarmonize_PrepopulatedCacheEntry(t *testing.T) {
	dir := t.TempDir()
	archives := nationwideArchive(t, "2016")
	require.NoError(t, os.WriteFile(filepath.Join(dir, CurrentCacheKey(2016)), archives["/TIGER2016/tl_2016_us_county.zip"], 0o644))

	srv := newArchiveServer(t, nil)
	recs, err := runHarmonizer(t, srv, cache.Options{Persist: true, Dir: dir}, 2016, []fips.Jurisdiction{ny})
	require.NoError(t, err)
	assert.Empty(t, srv.Requests())
	require.Len(t, recs, 1)
	assert.Equal(t, int64(36061), recs[0].GEOID)
}

func TestHarmonize_CorruptCachedArchiveRefetched(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CurrentCacheKey(2015)), []byte("not a zip"), 0o644))

	srv := newArchiveServer(t, nationwideArchive(t, "2015"))
	recs, err := runHarmonizer(t, srv, cache.Options{Persist: true, Dir: dir}, 2015, []fips.Jurisdiction{ny, nj})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Len(t, srv.Requests(), 1)
}

func TestHarmonize_FetchFailureIsFatal(t *testing.T) {
	archives := legacyArchives(t)
	delete(archives, "/legacy/tl_2010_34_county10.zip")
	srv := newArchiveServer(t, archives)

	recs, err := runHarmonizer(t, srv, cache.Options{}, 2010, []fips.Jurisdiction{ny, nj})
	require.Error(t, err)
	assert.Nil(t, recs)
	assert.True(t, strings.Contains(err.Error(), "NJ"))
}

func TestHarmonize_MissingColumn(t *testing.T) {
	// A legacy-year archive that uses the current layout.
	srv := newArchiveServer(t, map[string][]byte{
		"/legacy/tl_2010_36_county10.zip": tigerZIP(t, "tl_2010_36_county10", Current.Schema(), []county{
			{state: "36", county: "061", name: "New York"},
		}),
	})
	_, err := runHarmonizer(t, srv, cache.Options{}, 2010, []fips.Jurisdiction{ny})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestHarmonize_DuplicateCounty(t *testing.T) {
	srv := newArchiveServer(t, map[string][]byte{
		"/TIGER2012/tl_2012_us_county.zip": tigerZIP(t, "tl_2012_us_county", Current.Schema(), []county{
			{state: "36", county: "061", name: "New York"},
			{state: "36", county: "061", name: "New York"},
		}),
	})
	_, err := runHarmonizer(t, srv, cache.Options{}, 2012, []fips.Jurisdiction{ny})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateCounty)
}

func TestHarmonizeRecord(t *testing.T) {
	rec, err := harmonize(rawRecord{StateFP: "01", CountyFP: "001", GEOID: "01001", Name: "Autauga"}, "AL")
	require.NoError(t, err)
	assert.Equal(t, int64(1001), rec.GEOID)
	assert.Equal(t, "Autauga County, AL", rec.Name)

	for _, raw := range []rawRecord{
		{StateFP: "01", GEOID: "0100"},
		{StateFP: "02", GEOID: "01001"},
		{StateFP: "01", GEOID: "01x01"},
	} {
		_, err := harmonize(raw, "AL")
		assert.ErrorIs(t, err, ErrMalformedRecord, "%+v", raw)
	}
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "boundary_NY_2010.zip", LegacyCacheKey("NY", 2010))
	assert.Equal(t, "boundary_all_2015.zip", CurrentCacheKey(2015))
}
