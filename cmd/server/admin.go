package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/scheduling-engine/factory"
	"github.com/warp/scheduling-engine/generic"
	"github.com/warp/scheduling-engine/store/sqlite"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// New migrates on open.
			store, err := sqlite.New(a.cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", a.cfg.DBPath)
			return nil
		},
	}
}

// newReconcileCommand runs one sweep. Evictions notify nobody here: the
// mail pipeline only runs inside serve.
func newReconcileCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Evict allocations beyond each request's quantity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.New(a.cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			engine := generic.NewEngine(store, nil, a.cfg.Settings)
			evicted, err := engine.ReconcileAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "evicted %d commitments\n", evicted)
			return nil
		},
	}
}

func newScenariosCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the built-in demo scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := factory.Scenarios()
			if err != nil {
				return err
			}
			for _, s := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s: %s\n", s.ID, s.Name, s.Description)
			}
			return nil
		},
	}
}
