package cmd

import (
	"fmt"
	"time"

	"ai-productivity-app/assistant/pkg/di"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cachePruneCmd)
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the local attachment cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, di.Options{}, func(e *env) error {
			fmt.Fprintln(e.out, e.container.Cache.Dir())
			return nil
		})
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete cached attachments whose expiry has passed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, di.Options{}, func(e *env) error {
			n, err := e.container.Cache.PruneExpired(time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "removed %d file(s)\n", n)
			return nil
		})
	},
}
