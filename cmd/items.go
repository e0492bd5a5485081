package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-cli/internal/store"
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Inspect stored items",
}

// -- items show --

var itemsShowCmd = &cobra.Command{
	Use:   "show <item-id>",
	Short: "Show an item with its images, specifications and price tiers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := store.Snapshot(ctx, st, args[0])
		if err != nil {
			return eris.Wrap(err, "items show")
		}
		formatSnapshot(os.Stdout, snap, newPriceFormatter(cfg.Pricing))
		return nil
	},
}

// -- items tasks --

var itemsTasksCmd = &cobra.Command{
	Use:   "tasks <item-id>",
	Short: "List archived background tasks of an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		tasks, err := st.ListArchivedTasks(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "items tasks")
		}
		if len(tasks) == 0 {
			fmt.Fprintln(os.Stderr, "No archived tasks found.")
			return nil
		}
		formatTasks(os.Stdout, tasks)
		return nil
	},
}

func init() {
	itemsCmd.AddCommand(itemsShowCmd)
	itemsCmd.AddCommand(itemsTasksCmd)
	rootCmd.AddCommand(itemsCmd)
}
