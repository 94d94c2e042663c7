// Package census queries the Census Bureau data API.
package census

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-prep/internal/fetcher"
)

const (
	DefaultBaseURL = "https://api.census.gov/data"
	DefaultDataset = "acs/acs5"
	// PopulationVariable is the ACS total population estimate.
	PopulationVariable = "B01003_001E"
	// AllCounties selects every county in a state.
	AllCounties = "*"
)

// Options configures the Census API client.
type Options struct {
	BaseURL string
	Dataset string
	Key     string
}

// Client issues Census API queries through a Fetcher.
type Client struct {
	f    fetcher.Fetcher
	opts Options
}

// NewClient creates a Client. Empty options fall back to the ACS 5-year defaults.
func NewClient(f fetcher.Fetcher, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Dataset == "" {
		opts.Dataset = DefaultDataset
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	opts.Dataset = strings.Trim(opts.Dataset, "/")
	return &Client{f: f, opts: opts}
}

// StateCountyURL builds the query URL for a variable across the counties of one state.
func (c *Client) StateCountyURL(variable, stateFIPS, countySel string, year int) string {
	params := url.Values{
		"get": {variable},
		"for": {"county:" + countySel},
		"in":  {"state:" + stateFIPS},
	}
	if c.opts.Key != "" {
		params.Set("key", c.opts.Key)
	}
	return fmt.Sprintf("%s/%d/%s?%s", c.opts.BaseURL, year, c.opts.Dataset, params.Encode())
}

// StateCounty fetches variable for the counties matching countySel in a state.
// Each returned row maps column name to value, e.g.
// {"B01003_001E": "1585873", "state": "36", "county": "061"}.
func (c *Client) StateCounty(ctx context.Context, variable, stateFIPS, countySel string, year int) ([]map[string]string, error) {
	reqURL := c.StateCountyURL(variable, stateFIPS, countySel, year)
	zap.L().Debug("census: query",
		zap.String("url", fetcher.Redact(reqURL)),
		zap.String("state", stateFIPS),
		zap.Int("year", year),
	)

	body, err := c.f.Download(ctx, reqURL)
	if err != nil {
		return nil, eris.Wrapf(err, "census: query state %s", stateFIPS)
	}
	defer body.Close() //nolint:errcheck

	table, err := fetcher.CollectJSONArray[[]string](ctx, body)
	if err != nil {
		return nil, eris.Wrapf(err, "census: parse response for state %s", stateFIPS)
	}

	return rowsFromTable(table)
}

// rowsFromTable converts the API's header-first array of arrays into row maps.
func rowsFromTable(table [][]string) ([]map[string]string, error) {
	if len(table) == 0 {
		return nil, eris.New("census: empty response")
	}
	header := table[0]
	rows := make([]map[string]string, 0, len(table)-1)
	for i, rec := range table[1:] {
		if len(rec) != len(header) {
			return nil, eris.Errorf("census: row %d has %d columns, header has %d", i+1, len(rec), len(header))
		}
		row := make(map[string]string, len(header))
		for j, col := range header {
			row[col] = rec[j]
		}
		rows = append(rows, row)
	}
	return rows, nil
}
