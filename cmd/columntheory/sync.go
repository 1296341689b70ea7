package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/theory-cloud/columntheory/pkg/core"
)

func newSyncCmd(g *globals) *cobra.Command {
	var (
		force bool
		drop  bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Create the table of every defined entity",
		Long: `Create missing tables for the entities in --definitions.

Examples:
  columntheory sync -d entities.yaml --dsn local.db
  columntheory sync -d entities.yaml --dsn local.db --force   # drop and recreate
  columntheory sync -d entities.yaml --dsn local.db --drop    # drop only
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, gw, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer gw.Close()

			ctx := commandContext(cmd)
			if drop {
				if err := db.Drop(ctx); err != nil {
					return err
				}
			} else if err := db.Sync(ctx, core.SyncOptions{Force: force}); err != nil {
				return err
			}

			ok := color.New(color.FgGreen, color.Bold)
			for _, e := range db.Registry().Entities() {
				ref := db.Schema().TableRef(e)
				if drop {
					ok.Fprintf(cmd.OutOrStdout(), "dropped %s\n", ref)
				} else {
					ok.Fprintf(cmd.OutOrStdout(), "synced  %s\n", ref)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "drop existing tables before creating them")
	cmd.Flags().BoolVar(&drop, "drop", false, "drop every table instead of creating")
	return cmd
}
