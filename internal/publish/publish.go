// Package publish loads the county table, mobility matrix, and harmonized
// boundaries into PostGIS tables.
package publish

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-prep/internal/boundary"
	"github.com/sells-group/spatial-prep/internal/db"
	"github.com/sells-group/spatial-prep/internal/geotable"
	"github.com/sells-group/spatial-prep/internal/mobility"
)

// Table names inside the target schema.
const (
	CountiesTable   = "counties"
	MobilityTable   = "mobility"
	BoundariesTable = "county_boundaries"
)

// Column lists, in COPY order.
var (
	CountyColumns   = []string{"geoid", "population", "state_usps"}
	MobilityColumns = []string{"origin", "destination", "flow"}
	BoundaryColumns = []string{"geoid", "statefp", "countyfp", "name", "state_abbr", "the_geom"}
)

// Publisher writes artifacts into one schema.
type Publisher struct {
	pool      db.Pool
	schema    string
	batchSize int
}

// New creates a Publisher for schema.
func New(pool db.Pool, schema string) *Publisher {
	return &Publisher{pool: pool, schema: schema}
}

// Migrate creates the schema and tables if absent.
func (p *Publisher) Migrate(ctx context.Context) error {
	s := pgx.Identifier{p.schema}.Sanitize()
	return db.ExecAll(ctx, p.pool,
		"CREATE EXTENSION IF NOT EXISTS postgis",
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", s),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	geoid BIGINT PRIMARY KEY,
	population BIGINT NOT NULL,
	state_usps TEXT NOT NULL
)`, s, CountiesTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	origin BIGINT NOT NULL,
	destination BIGINT NOT NULL,
	flow DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (origin, destination)
)`, s, MobilityTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	geoid BIGINT PRIMARY KEY,
	statefp TEXT NOT NULL,
	countyfp TEXT NOT NULL,
	name TEXT NOT NULL,
	state_abbr TEXT NOT NULL,
	the_geom geometry(MultiPolygon, %d)
)`, s, BoundariesTable, boundary.SRID),
	)
}

// Counties replaces the county table.
func (p *Publisher) Counties(ctx context.Context, t geotable.Table) (int64, error) {
	rows := make([][]any, len(t))
	for i, r := range t {
		rows[i] = []any{r.GEOID, r.Population, r.StateUSPS}
	}
	return p.replace(ctx, CountiesTable, CountyColumns, rows)
}

// Mobility replaces the mobility edges with the matrix's non-zero upper triangle.
func (p *Publisher) Mobility(ctx context.Context, m *mobility.Matrix) (int64, error) {
	pairs := m.UpperTriangle()
	rows := make([][]any, len(pairs))
	for i, pf := range pairs {
		rows[i] = []any{pf.Origin, pf.Destination, pf.Flow}
	}
	return p.replace(ctx, MobilityTable, MobilityColumns, rows)
}

// Boundaries replaces the boundary table.
func (p *Publisher) Boundaries(ctx context.Context, recs []boundary.Record) (int64, error) {
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		wkb, err := encodeGeometry(r.Geometry)
		if err != nil {
			return 0, eris.Wrapf(err, "publish: county %d", r.GEOID)
		}
		rows = append(rows, []any{r.GEOID, r.StateFP, r.CountyFP, r.Name, r.StateAbbr, wkb})
	}
	return p.replace(ctx, BoundariesTable, BoundaryColumns, rows)
}

func (p *Publisher) replace(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if err := db.Truncate(ctx, p.pool, p.schema, table); err != nil {
		return 0, err
	}
	n, err := db.CopyFromSchema(ctx, p.pool, p.schema, table, columns, rows, p.batchSize)
	if err != nil {
		return n, err
	}
	zap.L().With(zap.String("component", "publish")).Info("table loaded",
		zap.String("table", p.schema+"."+table),
		zap.Int64("rows", n),
	)
	return n, nil
}

// encodeGeometry returns EWKB for g, or nil for an empty geometry.
func encodeGeometry(g *geom.MultiPolygon) ([]byte, error) {
	if g == nil || g.NumPolygons() == 0 {
		return nil, nil
	}
	if g.SRID() == 0 {
		g = g.Clone().SetSRID(boundary.SRID)
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "publish: encode EWKB")
	}
	return data, nil
}
