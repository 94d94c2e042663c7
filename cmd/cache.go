package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/spatial-prep/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the persistent fetch cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List cached entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var entries []cache.Entry
		err := cache.With(cmd.Context(), cache.Options{Persist: true, Dir: cfg.Cache.Dir, TTL: cfg.Cache.TTL()}, func(d *cache.Dir) error {
			var err error
			entries, err = d.Entries(cmd.Context())
			return err
		})
		if err != nil {
			return eris.Wrap(err, "cache status")
		}

		if len(entries) == 0 {
			fmt.Printf("No cached entries in %s\n", cfg.Cache.Dir)
			return nil
		}

		fmt.Printf("%-40s %12s %-17s %s\n", "Key", "Bytes", "Fetched At", "Source")
		fmt.Println(strings.Repeat("-", 100))
		for _, e := range entries {
			fmt.Printf("%-40s %12d %-17s %s\n", e.Key, e.Size, e.FetchedAt.Format("2006-01-02 15:04"), e.Source)
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the persistent cache directory",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := cache.Clear(cfg.Cache.Dir, cfg.SpatialSetup.BasePath); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", cfg.Cache.Dir)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
