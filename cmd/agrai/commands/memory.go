package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/agrai/agrai-go/internal/logging"
)

// NewMemoryCmd constructs the `agrai memory` command group for operator
// access to the semantic memory store.
func NewMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and administer the semantic memory store",
	}

	cmd.AddCommand(
		newMemoryStatsCmd(),
		newMemoryForgetCmd(),
	)

	return cmd
}

// newMemoryStatsCmd constructs `agrai memory stats`, printing record and
// owner counts.
func newMemoryStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print memory store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			mem, resolved, err := openMemoryStore(ctx, log)
			if err != nil {
				return fmt.Errorf("memory stats: %w", err)
			}

			stats := mem.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "model:      %s (%d dimensions)\n", resolved.Model, resolved.Dimensions)
			fmt.Fprintf(out, "records:    %d\n", stats.TotalRecords)
			fmt.Fprintf(out, "owners:     %d\n", stats.TotalOwners)

			owners := make([]string, 0, len(stats.PerOwner))
			for o := range stats.PerOwner {
				owners = append(owners, o)
			}
			sort.Strings(owners)
			for _, o := range owners {
				fmt.Fprintf(out, "  %-20s %d\n", o, stats.PerOwner[o])
			}
			return nil
		},
	}
}

// newMemoryForgetCmd constructs `agrai memory forget <owner>`, deleting every
// memory record belonging to the owner.
func newMemoryForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget [owner]",
		Short: "Delete all memory records for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			mem, _, err := openMemoryStore(ctx, log)
			if err != nil {
				return fmt.Errorf("memory forget: %w", err)
			}

			owner := args[0]
			deleted, err := mem.DeleteOwner(owner)
			if err != nil {
				return fmt.Errorf("memory forget: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "forgot %d exchanges for %s\n", deleted, owner)
			return nil
		},
	}
}
