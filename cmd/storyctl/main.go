// Command storyctl administers the story analytics store: schema migration,
// verification, JSON backups, markdown imports and HTML exports.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/analytics/cache"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/archive"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/logger"
	pkgredis "github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/redis"
)

var version = "dev"

var (
	configPath string
	cfg        *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "storyctl",
	Short:        "Administer the story analytics store",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger.Setup(cfg.Logging.Level, "text")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/development.yaml", "path to config file")

	backupCmd.Flags().String("out", "backups", "directory to write the backup into")
	importCmd.Flags().String("dir", ".", "directory holding stories.json and story/")
	exportCmd.Flags().String("out", "public", "directory to write story pages into")

	rootCmd.AddCommand(migrateCmd, verifyCmd, backupCmd, importCmd, exportCmd)
}

// withStore opens the configured store, migrates it and runs fn against it.
func withStore(ctx context.Context, fn func(*storage.SQLStore, *storage.PGProcedures) error) error {
	store, procs, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer closeStore()
	if err := storage.Migrate(ctx, store.DB(), store.Dialect()); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return fn(store, procs)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create tables, indexes and delegated procedures",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(store *storage.SQLStore, _ *storage.PGProcedures) error {
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", store.Dialect())
			return nil
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check tables, a probe read round trip and the delegated procedures",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(store *storage.SQLStore, procs *storage.PGProcedures) error {
			report := storage.Verify(cmd.Context(), store, procs)
			report.Print(cmd.OutOrStdout())
			if !report.OK() {
				return fmt.Errorf("verification failed")
			}
			return nil
		})
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Dump stories and story_reads to JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		return withStore(cmd.Context(), func(store *storage.SQLStore, _ *storage.PGProcedures) error {
			meta, err := archive.Backup(cmd.Context(), store, out, time.Now().UTC())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "backup %s written to %s\n", meta.BackupID, out)
			for _, table := range meta.TablesBackedUp {
				fmt.Fprintf(w, "  %-12s %d records\n", table, meta.RecordCounts[table])
			}
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Insert the stories listed in stories.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		return withStore(cmd.Context(), func(store *storage.SQLStore, _ *storage.PGProcedures) error {
			result, err := archive.Import(cmd.Context(), store, dir)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "imported %d of %d stories\n", result.Succeeded, result.Total)
			for _, f := range result.Failures {
				fmt.Fprintf(w, "  failed: %s (%s)\n", f.Title, f.Reason)
			}

			stories, err := store.ListStories(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing catalog: %w", err)
			}
			fmt.Fprintf(w, "\ncatalog (%d stories):\n", len(stories))
			for _, s := range stories {
				fmt.Fprintf(w, "  %4d  %-40s %s\n", s.ID, s.Title, s.Filename)
			}
			if len(result.Failures) > 0 {
				slog.Warn("import finished with failures", "failed", len(result.Failures))
			}
			if result.Succeeded > 0 {
				dropCachedReports(cmd.Context())
			}
			return nil
		})
	},
}

// dropCachedReports clears the api's report cache so new stories show up
// in summaries right away. A missing Redis is only logged.
func dropCachedReports(ctx context.Context) {
	if !cfg.Redis.Enabled {
		return
	}
	rc, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("report cache not cleared", "error", err)
		return
	}
	defer rc.Close()
	if err := cache.New(rc, cfg.Redis.CacheTTL, nil).InvalidateAll(ctx); err != nil {
		slog.Warn("report cache not cleared", "error", err)
	}
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render every story as a standalone HTML page",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		return withStore(cmd.Context(), func(store *storage.SQLStore, _ *storage.PGProcedures) error {
			n, err := archive.Export(cmd.Context(), store, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d pages written to %s\n", n, out)
			return nil
		})
	},
}
