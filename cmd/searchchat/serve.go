package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"searchchat/backend/internal/httpapi"
	"searchchat/backend/internal/service"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := loadRuntime(ctx, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			svc := service.New(rt.cfg, rt.database, rt.logger)
			srv := &http.Server{
				Addr:        rt.cfg.ListenAddress(),
				Handler:     httpapi.NewRouter(rt.cfg, svc, rt.logger),
				ReadTimeout: 15 * time.Second,
				// Covers the single-call routes. /api/chat clears it and relies on
				// the per-stage upstream deadlines.
				WriteTimeout: rt.cfg.UpstreamTimeout + 10*time.Second,
				IdleTimeout:  60 * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				rt.logger.Info("api listening",
					zap.String("addr", rt.cfg.ListenAddress()),
					zap.String("mode", string(rt.cfg.Mode)),
					zap.String("host", rt.cfg.OllamaHost),
					zap.Bool("search_enabled", rt.cfg.SearchConfigured()),
					zap.Bool("run_log", svc.Runs.Enabled()),
				)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case err := <-serveErr:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				rt.logger.Warn("shutdown error", zap.Error(err))
			}
			return nil
		},
	}
}
