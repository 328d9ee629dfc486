package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/mongoadmin/indexsync/internal/app"
	"github.com/mongoadmin/indexsync/internal/indexsync"
)

func newRebuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild INDEX",
		Short: "Run one rebuild pass and exit",
		Long: `Re-index the documents of INDEX without starting the API server.

An incremental pass (the default) only visits documents still waiting for the
index. A full pass recreates the index and visits every document.`,
		Args: cobra.ExactArgs(1),
		RunE: runRebuild,
	}

	cmd.Flags().String("mode", indexsync.ModeIncremental, "Rebuild mode (full or incremental)")
	cmd.Flags().Int64("max-docs", 0, "Maximum number of documents to visit, 0 for all")
	cmd.Flags().Duration("timeout", time.Hour, "Maximum duration of the pass")
	return cmd
}

func runRebuild(cmd *cobra.Command, args []string) error {
	mode, _ := cmd.Flags().GetString("mode")
	maxDocs, _ := cmd.Flags().GetInt64("max-docs")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	if mode != indexsync.ModeFull && mode != indexsync.ModeIncremental {
		return fmt.Errorf("mode must be %s or %s, got %q", indexsync.ModeFull, indexsync.ModeIncremental, mode)
	}
	if maxDocs < 0 {
		return fmt.Errorf("max-docs must not be negative")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// the background rebuild would race with this pass
	cfg.Indexing.RebuildInterval = "0"

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	indexSyncApp, err := app.NewIndexSyncApp(ctx, app.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	defer func() {
		if err := indexSyncApp.Stop(defaultGracefulTimeout); err != nil {
			slog.Error("Failed to stop application", "error", err)
		}
	}()

	result, err := indexSyncApp.Rebuild(ctx, args[0], mode, maxDocs)
	if result != nil {
		output, marshalErr := json.MarshalIndent(result, "", "  ")
		if marshalErr != nil {
			return fmt.Errorf("failed to format rebuild result: %w", marshalErr)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(output))
	}
	if err != nil {
		return fmt.Errorf("rebuild of %s failed: %w", args[0], err)
	}
	return nil
}
