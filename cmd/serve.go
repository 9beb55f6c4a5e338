package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mailscan/internal/api"
	"mailscan/internal/api/handler/v1handler"
	"mailscan/pkg/discovery/buildin"
	"mailscan/pkg/logger"
	"mailscan/pkg/metrics"
)

func setupServer(ctx context.Context, a *app) (func(ctx context.Context), error) {
	mp, err := metrics.NewMeterProvider(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("could not create meter provider: %w", err)
	}
	recorder, err := metrics.NewRecorder(mp)
	if err != nil {
		return nil, fmt.Errorf("could not create metrics recorder: %w", err)
	}

	sc, err := a.newScanner(a.cfg, recorder)
	if err != nil {
		return nil, fmt.Errorf("could not create scanner: %w", err)
	}
	table, err := buildin.Default()
	if err != nil {
		return nil, fmt.Errorf("could not load builtin provider table: %w", err)
	}

	server := api.NewServer(api.Deps{Deps: v1handler.Deps{
		Scanner:   sc,
		Providers: table,
	}}, api.NewOptions(a.cfg))

	go func() {
		logger.Info(ctx, "starting webserver...", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logger.Error(ctx, "could not start webserver", zap.Error(err))
			}
		}
	}()

	return func(ctx context.Context) {
		logger.Info(ctx, "stopping webserver...")
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(ctx, "could not stop webserver", zap.Error(err))
		}
		if err := mp.Shutdown(ctx); err != nil {
			logger.Warn(ctx, "could not stop meter provider", zap.Error(err))
		}
	}, nil
}

func serveCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the scan API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			stopWebserver, err := setupServer(ctx, a)
			if err != nil {
				return err
			}

			// wait for interrupt
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
			defer cancel()

			stopWebserver(shutdownCtx)

			return nil
		},
	}

	return cmd
}
