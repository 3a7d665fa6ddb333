// Command searchchat serves the search-gated chat API and offers terminal
// helpers around the same orchestration.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"searchchat/backend/internal/config"
	"searchchat/backend/internal/db"
	"searchchat/backend/internal/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
	}

	rootCmd := &cobra.Command{
		Use:           "searchchat",
		Short:         "Chat with an Ollama model that searches the web when it has to",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(runsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type deps struct {
	cfg      config.Config
	logger   *zap.Logger
	database *sql.DB
}

func loadRuntime(ctx context.Context, withDatabase bool) (deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return deps{}, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return deps{}, err
	}

	rt := deps{cfg: cfg, logger: logger}
	if withDatabase && strings.TrimSpace(cfg.DatabaseURL) != "" {
		database, err := db.Open(ctx, cfg)
		if err != nil {
			_ = logger.Sync()
			return deps{}, fmt.Errorf("open db: %w", err)
		}
		rt.database = database
	}
	return rt, nil
}

func (rt deps) Close() {
	if rt.database != nil {
		_ = rt.database.Close()
	}
	_ = rt.logger.Sync()
}
