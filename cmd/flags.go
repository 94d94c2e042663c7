package main

import "github.com/spf13/cobra"

// addCacheFlags registers --use-cache and its negation on cmd.
func addCacheFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("use-cache", false, "keep fetched data in the persistent cache directory and reuse it")
	cmd.Flags().Bool("no-use-cache", false, "fetch into a scratch directory removed after the run (default)")
	cmd.MarkFlagsMutuallyExclusive("use-cache", "no-use-cache")
}

// useCache reports whether the persistent cache was requested.
func useCache(cmd *cobra.Command) bool {
	on, _ := cmd.Flags().GetBool("use-cache")
	off, _ := cmd.Flags().GetBool("no-use-cache")
	return on && !off
}
