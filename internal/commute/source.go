package commute

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-prep/internal/cache"
	"github.com/sells-group/spatial-prep/internal/fetcher"
)

// Columns names the origin, destination, and volume columns of a flow table.
type Columns struct {
	Origin      string
	Destination string
	Flow        string
}

// DefaultColumns are the column names of the commuting table the simulator ships with.
var DefaultColumns = Columns{Origin: "OFIPS", Destination: "DFIPS", Flow: "FLOW"}

// SourceOptions configures how a flow table is read.
type SourceOptions struct {
	Columns Columns
	Sheet   string // XLSX sheet name; empty = first sheet
}

func (o SourceOptions) withDefaults() SourceOptions {
	if o.Columns.Origin == "" {
		o.Columns.Origin = DefaultColumns.Origin
	}
	if o.Columns.Destination == "" {
		o.Columns.Destination = DefaultColumns.Destination
	}
	if o.Columns.Flow == "" {
		o.Columns.Flow = DefaultColumns.Flow
	}
	return o
}

// Load reads every flow in src into agg. src is a local path, a file:// URL,
// or an http(s)/ftp URL; remote sources are fetched once into the cache.
// Files ending in .xlsx are read as workbooks, anything else as CSV.
func Load(ctx context.Context, src string, f fetcher.Fetcher, dir *cache.Dir, opts SourceOptions, agg *Aggregator) error {
	opts = opts.withDefaults()
	log := zap.L().With(zap.String("component", "commute"), zap.String("source", fetcher.Redact(src)))

	local, err := localize(ctx, src, f, dir)
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(local), ".xlsx") {
		err = ReadXLSX(local, opts, agg)
	} else {
		var file *os.File
		file, err = os.Open(local)
		if err != nil {
			return eris.Wrapf(err, "commute: open %s", local)
		}
		defer file.Close() //nolint:errcheck
		err = ReadCSV(ctx, file, opts, agg)
	}
	if err != nil {
		return err
	}

	seen, kept := agg.Stats()
	log.Info("commuting flows loaded", zap.Int("rows", seen), zap.Int("kept", kept))
	return nil
}

// CacheKey is the cache entry name for a remote commuting source.
func CacheKey(src string) string {
	name := src
	if u, err := url.Parse(src); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		name = "data"
	}
	return "commute_" + name
}

func localize(ctx context.Context, src string, f fetcher.Fetcher, dir *cache.Dir) (string, error) {
	if !fetcher.IsRemote(src) {
		if strings.HasPrefix(src, "file://") {
			u, err := url.Parse(src)
			if err != nil {
				return "", eris.Wrap(err, "commute: parse source")
			}
			return u.Path, nil
		}
		return src, nil
	}

	key := CacheKey(src)
	if p, ok, err := dir.Lookup(ctx, key); err != nil {
		return "", err
	} else if ok {
		return p, nil
	}

	body, err := f.Download(ctx, src)
	if err != nil {
		return "", eris.Wrap(err, "commute: download source")
	}
	defer body.Close() //nolint:errcheck

	return dir.Store(ctx, key, src, body)
}

// ReadCSV streams a CSV flow table into agg. The first row is the header.
func ReadCSV(ctx context.Context, r io.Reader, opts SourceOptions, agg *Aggregator) error {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{HasHeader: true, HeaderCh: headerCh, TrimSpace: true})

	var idx *columnIndex
	line := 1
	for row := range rowCh {
		line++
		if idx == nil {
			var err error
			if idx, err = resolveColumns(<-headerCh, opts.Columns); err != nil {
				stop(cancel, rowCh)
				return err
			}
		}
		flow, err := idx.parse(row)
		if err != nil {
			stop(cancel, rowCh)
			return eris.Wrapf(err, "line %d", line)
		}
		if err := agg.Add(flow); err != nil {
			stop(cancel, rowCh)
			return eris.Wrapf(err, "line %d", line)
		}
	}
	if err := <-errCh; err != nil {
		return eris.Wrap(err, "commute: read csv")
	}
	if idx == nil {
		// Header-only tables still have their columns checked.
		select {
		case header := <-headerCh:
			_, err := resolveColumns(header, opts.Columns)
			return err
		default:
			return eris.Wrap(ErrMalformedFlow, "empty flow table")
		}
	}
	return nil
}

// ReadXLSX reads a flow workbook into agg. The header is the first row that
// contains the origin column name, so title rows above it are skipped.
func ReadXLSX(path string, opts SourceOptions, agg *Aggregator) error {
	opts = opts.withDefaults()
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: opts.Sheet})
	if err != nil {
		return eris.Wrap(err, "commute: read xlsx")
	}

	start := -1
	var idx *columnIndex
	for i, row := range rows {
		if containsFold(row, opts.Columns.Origin) {
			if idx, err = resolveColumns(row, opts.Columns); err != nil {
				return err
			}
			start = i + 1
			break
		}
	}
	if idx == nil {
		return eris.Wrapf(ErrMalformedFlow, "no header row with column %q", opts.Columns.Origin)
	}

	for i, row := range rows[start:] {
		if isBlank(row) {
			continue
		}
		flow, err := idx.parse(row)
		if err != nil {
			return eris.Wrapf(err, "row %d", start+i+1)
		}
		if err := agg.Add(flow); err != nil {
			return eris.Wrapf(err, "row %d", start+i+1)
		}
	}
	return nil
}

type columnIndex struct {
	origin, destination, flow int
}

func resolveColumns(header []string, cols Columns) (*columnIndex, error) {
	find := func(name string) (int, error) {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i, nil
			}
		}
		return 0, eris.Wrapf(ErrMalformedFlow, "missing column %q", name)
	}
	o, err := find(cols.Origin)
	if err != nil {
		return nil, err
	}
	d, err := find(cols.Destination)
	if err != nil {
		return nil, err
	}
	f, err := find(cols.Flow)
	if err != nil {
		return nil, err
	}
	return &columnIndex{origin: o, destination: d, flow: f}, nil
}

func (c *columnIndex) parse(row []string) (Flow, error) {
	maxIdx := max(c.origin, c.destination, c.flow)
	if len(row) <= maxIdx {
		return Flow{}, eris.Wrapf(ErrMalformedFlow, "row has %d columns, need %d", len(row), maxIdx+1)
	}
	raw := strings.ReplaceAll(strings.TrimSpace(row[c.flow]), ",", "")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Flow{}, eris.Wrapf(ErrMalformedFlow, "volume %q", row[c.flow])
	}
	return Flow{
		Origin:      strings.TrimSpace(row[c.origin]),
		Destination: strings.TrimSpace(row[c.destination]),
		Volume:      v,
	}, nil
}

func containsFold(row []string, name string) bool {
	for _, v := range row {
		if strings.EqualFold(strings.TrimSpace(v), name) {
			return true
		}
	}
	return false
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// stop cancels the reader goroutine and waits for it to close ch.
func stop(cancel context.CancelFunc, ch <-chan []string) {
	cancel()
	for range ch {
	}
}
