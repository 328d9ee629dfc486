package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mongoadmin/indexsync/internal/app"
	"github.com/mongoadmin/indexsync/internal/config"
)

const defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the index sync API server",
		Long: `Start the API server and the background rebuild.

The configuration file (--config) names the MongoDB deployment, the
Elasticsearch cluster, the lock backend and the collections feeding each
index. See the examples/ directory for sample configurations.`,
		RunE: runServe,
	}

	cmd.Flags().String("address", ":8080", "Address to listen on")
	cmd.Flags().Duration("request-timeout", 60*time.Second, "Maximum duration of one request, rebuilds included")
	cmd.Flags().Duration("shutdown-timeout", defaultGracefulTimeout, "Time allowed for in-flight requests and jobs on shutdown")

	for _, name := range []string{"address", "request-timeout", "shutdown-timeout"} {
		if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			slog.Error("Failed to bind flag", "flag", name, "error", err)
		}
	}
	return cmd
}

// loadConfig reads the file named by --config or INDEXSYNC_CONFIG
func loadConfig() (*config.Config, error) {
	v := viper.GetViper()
	v.SetEnvPrefix(config.EnvPrefix)
	_ = v.BindEnv("config")

	path := v.GetString("config")
	if path == "" {
		return nil, fmt.Errorf("a configuration file is required: set --config or %s_CONFIG", config.EnvPrefix)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", path,
		"storage", cfg.GetStorage(),
		"indexes", len(cfg.Indexes))
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	indexSyncApp, err := app.NewIndexSyncApp(ctx,
		app.WithConfig(cfg),
		app.WithAddress(viper.GetString("address")),
		app.WithRequestTimeout(viper.GetDuration("request-timeout")),
	)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- indexSyncApp.Start()
	}()

	// Wait for interrupt signal or a server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errChan:
		if stopErr := indexSyncApp.Stop(viper.GetDuration("shutdown-timeout")); stopErr != nil {
			slog.Error("Failed to stop application", "error", stopErr)
		}
		return err
	case sig := <-quit:
		slog.Info("Received signal", "signal", sig.String())
	}

	return indexSyncApp.Stop(viper.GetDuration("shutdown-timeout"))
}
