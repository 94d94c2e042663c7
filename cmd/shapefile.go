package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spatial-prep/internal/prep"
)

var shapefileCmd = &cobra.Command{
	Use:   "shapefile",
	Short: "Build harmonized county boundaries",
	Long: `Downloads TIGER/Line county boundaries for the census year, renames the
vintage-specific columns to one schema, and writes the modeled counties to
spatial_setup.shapefile (.shp, .geojson or .json).

Years from boundary.epoch_year to boundary.max_year are supported; the epoch
year uses one archive per jurisdiction, later years one nationwide archive.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		zap.L().With(zap.String("command", "shapefile")).Info("starting boundary build",
			zap.Int("year", cfg.SpatialSetup.CensusYear),
			zap.Strings("states", cfg.SpatialSetup.ModeledStates),
			zap.Bool("use_cache", useCache(cmd)),
		)

		res, err := prep.NewRunner(cfg, prep.NewFetcher(cfg), useCache(cmd)).Shapefile(ctx)
		if err != nil {
			return eris.Wrap(err, "shapefile")
		}

		fmt.Printf("Format:   %s\n", res.Format)
		fmt.Printf("Counties: %d\n", res.Counties)
		fmt.Printf("Wrote %s\n", res.Path)
		return nil
	},
}

func init() {
	addCacheFlags(shapefileCmd)
	rootCmd.AddCommand(shapefileCmd)
}
