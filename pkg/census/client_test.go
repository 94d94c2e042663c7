package census

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spatial-prep/internal/fetcher"
)

func TestStateCountyURL(t *testing.T) {
	c := NewClient(nil, Options{Key: "k"})
	raw := c.StateCountyURL(PopulationVariable, "36", AllCounties, 2010)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "api.census.gov", u.Host)
	assert.Equal(t, "/data/2010/acs/acs5", u.Path)
	assert.Equal(t, "B01003_001E", u.Query().Get("get"))
	assert.Equal(t, "county:*", u.Query().Get("for"))
	assert.Equal(t, "state:36", u.Query().Get("in"))
	assert.Equal(t, "k", u.Query().Get("key"))

	noKey := NewClient(nil, Options{BaseURL: "http://x/data/", Dataset: "/acs/acs1/"})
	u, err = url.Parse(noKey.StateCountyURL("V", "01", "001", 2015))
	require.NoError(t, err)
	assert.Equal(t, "/data/2015/acs/acs1", u.Path)
	assert.False(t, u.Query().Has("key"))
}

func TestStateCounty_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/2010/acs/acs5", r.URL.Path)
		assert.Equal(t, "state:34", r.URL.Query().Get("in"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[["B01003_001E","state","county"],
			["905116","34","003"],
			["634266","34","013"]]`)
	}))
	defer srv.Close()

	c := NewClient(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{}), Options{BaseURL: srv.URL + "/data"})
	rows, err := c.StateCounty(context.Background(), PopulationVariable, "34", AllCounties, 2010)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]string{"B01003_001E": "905116", "state": "34", "county": "003"}, rows[0])
	assert.Equal(t, "013", rows[1]["county"])
}

func TestStateCounty_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{}), Options{BaseURL: srv.URL})
	_, err := c.StateCounty(context.Background(), PopulationVariable, "34", AllCounties, 2010)
	assert.Error(t, err)
}

func TestStateCounty_NonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "<html>Invalid Key</html>")
	}))
	defer srv.Close()

	c := NewClient(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{}), Options{BaseURL: srv.URL})
	_, err := c.StateCounty(context.Background(), PopulationVariable, "34", AllCounties, 2010)
	assert.Error(t, err)
}

func TestRowsFromTable(t *testing.T) {
	rows, err := rowsFromTable([][]string{{"a", "b"}})
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = rowsFromTable(nil)
	assert.Error(t, err)

	_, err = rowsFromTable([][]string{{"a", "b"}, {"1"}})
	assert.Error(t, err)
}
