package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AngelCh415/insights-sync/internal/httpx"
	"github.com/AngelCh415/insights-sync/internal/session"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the insights, hierarchy, lead sync and prospect endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		handler := httpx.NewRouter(httpx.Deps{
			Log:            logger.Named("http"),
			Observer:       a.collector,
			Sessions:       session.HeaderProvider{},
			Platform:       func(token string) httpx.Platform { return a.client.WithToken(token) },
			Periods:        a.periods,
			Hierarchy:      a.cache,
			Reports:        a.reconciler,
			Sync:           a.syncer,
			Prospects:      a.prospects,
			Ready:          a.store,
			MetricsHandler: promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
			AllowedOrigins: cfg.Server.AllowedOrigins,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("shutdown", zap.Error(err))
			}
		}()

		logger.Info("starting server", zap.Int("port", port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
