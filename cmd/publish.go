package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/spatial-prep/internal/db"
	"github.com/sells-group/spatial-prep/internal/prep"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Load written artifacts into PostGIS",
	Long: `Reads the county table, mobility matrix, and boundary file back from
spatial_setup.base_path and replaces the contents of the counties, mobility,
and county_boundaries tables in postgis.schema. Artifacts not yet built are
skipped.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if url, _ := cmd.Flags().GetString("database-url"); url != "" {
			cfg.PostGIS.DatabaseURL = url
		}
		if schema, _ := cmd.Flags().GetString("schema"); schema != "" {
			cfg.PostGIS.Schema = schema
		}

		pool, err := db.Connect(ctx, cfg.PostGIS.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		res, err := prep.NewRunner(cfg, nil, false).Publish(ctx, pool)
		if err != nil {
			return eris.Wrap(err, "publish")
		}

		fmt.Printf("%-20s %10s\n", "Table", "Rows")
		fmt.Printf("%-20s %10d\n", cfg.PostGIS.Schema+".counties", res.Counties)
		fmt.Printf("%-20s %10d\n", cfg.PostGIS.Schema+".mobility", res.Edges)
		fmt.Printf("%-20s %10d\n", cfg.PostGIS.Schema+".county_boundaries", res.Boundaries)
		return nil
	},
}

func init() {
	publishCmd.Flags().String("database-url", "", "PostgreSQL connection string (default: postgis.database_url)")
	publishCmd.Flags().String("schema", "", "target schema (default: postgis.schema)")
	rootCmd.AddCommand(publishCmd)
}
