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

var mobilityCmd = &cobra.Command{
	Use:   "mobility",
	Short: "Build the county table and mobility matrix",
	Long: `Fetches county population for every modeled jurisdiction, aggregates the
commuting flow table into county pairs, and writes the county table and the
symmetric mobility matrix under spatial_setup.base_path. Both files are
replaced together or not at all.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log := zap.L().With(zap.String("command", "mobility"))
		log.Info("starting mobility build",
			zap.Int("year", cfg.SpatialSetup.CensusYear),
			zap.Strings("states", cfg.SpatialSetup.ModeledStates),
			zap.Bool("use_cache", useCache(cmd)),
		)

		res, err := prep.NewRunner(cfg, prep.NewFetcher(cfg), useCache(cmd)).Mobility(ctx)
		if err != nil {
			return eris.Wrap(err, "mobility")
		}

		fmt.Printf("Counties:     %d\n", res.Counties)
		fmt.Printf("Flows:        %d read, %d kept\n", res.FlowsSeen, res.FlowsKept)
		if res.FlowsDropped > 0 {
			fmt.Printf("Dropped:      %d matrix entries outside the county table\n", res.FlowsDropped)
		}
		fmt.Printf("Matrix:       %dx%d\n", res.MatrixSize, res.MatrixSize)
		fmt.Printf("Wrote %s and %s\n", res.GeodataPath, res.MobilityPath)
		return nil
	},
}

func init() {
	addCacheFlags(mobilityCmd)
	rootCmd.AddCommand(mobilityCmd)
}
