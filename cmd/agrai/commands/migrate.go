package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/agrai/agrai-go/internal/logging"
	"github.com/agrai/agrai-go/internal/store"
)

// migrateProgressEvery is how often (in rows) migration progress is logged.
const migrateProgressEvery = 25

// NewMigrateCmd constructs the `agrai migrate` command, which bulk-loads the
// SQLite conversation log into semantic memory.
func NewMigrateCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Load existing conversations into semantic memory",
		Long: `Read every exchange from the SQLite conversation log and embed it into
the semantic memory store. Each memory record is linked back to its source
row via the log's row id.

Run this once when enabling semantic memory over an existing conversation
history. Re-running embeds the same exchanges again — the store does not
deduplicate.

Examples:
  agrai migrate
  agrai migrate --db ~/.agrai/history.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if dbPath == "" {
				var err error
				dbPath, err = store.DefaultDBPath()
				if err != nil {
					return fmt.Errorf("migrate: resolve conversation log path: %w", err)
				}
			}
			hs, err := store.Open(dbPath)
			if err != nil {
				return fmt.Errorf("migrate: open conversation log: %w", err)
			}
			defer func() { _ = hs.Close() }()

			mem, _, err := openMemoryStore(ctx, log)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			exchanges, err := hs.All(ctx)
			if err != nil {
				return fmt.Errorf("migrate: read conversation log: %w", err)
			}
			log.Info("migrate: starting",
				slog.String("db", dbPath),
				slog.Int("exchanges", len(exchanges)),
			)

			migrated, failed := 0, 0
			for i, e := range exchanges {
				id := e.ID
				if _, err := mem.Add(ctx, e.Owner, e.Question, e.Answer, &id); err != nil {
					log.Warn("migrate: failed to embed exchange",
						slog.Int64("id", e.ID),
						slog.String("owner", e.Owner),
						slog.Any("error", err),
					)
					failed++
					continue
				}
				migrated++
				if (i+1)%migrateProgressEvery == 0 {
					log.Info("migrate: progress",
						slog.Int("done", i+1),
						slog.Int("total", len(exchanges)),
					)
				}
			}

			stats := mem.Stats()
			log.Info("migrate: finished",
				slog.Int("migrated", migrated),
				slog.Int("failed", failed),
				slog.Int("total_records", stats.TotalRecords),
				slog.Int("total_owners", stats.TotalOwners),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d of %d exchanges (%d owners in memory)\n",
				migrated, len(exchanges), stats.TotalOwners)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Path to the SQLite conversation log (default: ~/.agrai/history.db)")

	return cmd
}
