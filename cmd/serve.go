package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"qrscanner/internal/api"
	"qrscanner/internal/api/handler"
	"qrscanner/internal/config"
	"qrscanner/internal/pdfscan"
	"qrscanner/internal/pushhub"
	"qrscanner/internal/scanner"
	"qrscanner/internal/uploads"
	"qrscanner/internal/worker"
	"qrscanner/pkg/aiextract"
	"qrscanner/pkg/aiextract/gemini"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/logger"
	"qrscanner/pkg/metrics"
	"qrscanner/pkg/urlcheck/httpcheck"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// openPDF opens stored uploads for the scanner.
func openPDF(path string) (scanner.Document, error) {
	doc, err := pdfscan.Open(path, pdfscan.QRDetector{})
	if err != nil {
		return nil, err
	}

	return doc, nil
}

func newExtractor(ctx context.Context, cfg *config.Config) aiextract.Extractor {
	if cfg.AI.APIKey == "" {
		logger.Warn(ctx, "AI_API_KEY is not set, AI extraction is disabled")

		return aiextract.Disabled{}
	}

	return gemini.New(&http.Client{Timeout: cfg.AI.Timeout}, cfg.AI.BaseURL, cfg.AI.Model, cfg.AI.APIKey)
}

func setupServer(ctx context.Context, cfg *config.Config, deps api.Deps) func(ctx context.Context) {
	opts, err := api.NewOptions(cfg)
	if err != nil {
		logger.Fatal(ctx, "could not create webserver options", zap.Error(err))
	}
	server := api.NewServer(deps, opts)

	go func() {
		logger.Info(ctx, "starting webserver...", zap.String("addr", opts.Addr))
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
	}
}

func serveCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts API server, push channel and background workers",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := a.cfg
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mp, err := metrics.Setup(prometheus.DefaultRegisterer)
			if err != nil {
				logger.Fatal(ctx, "could not setup metrics", zap.Error(err))
			}
			instruments, err := metrics.New(mp)
			if err != nil {
				logger.Fatal(ctx, "could not create instruments", zap.Error(err))
			}

			strg, closeStrg := getPostgres(ctx, cfg)
			defer closeStrg()

			store, err := uploads.New(cfg.Uploads.Dir, cfg.HTTP.MaxUploadSize)
			if err != nil {
				logger.Fatal(ctx, "could not create uploads store", zap.Error(err))
			}
			extractor := newExtractor(ctx, cfg)

			// the hub starts scans and the scanner publishes on the hub
			var s scanner.Scanner
			hub := pushhub.New(pushhub.NewOptions(cfg), func(ctx context.Context, id domain.ScanID) error {
				return s.Start(ctx, id)
			}, instruments)
			s = scanner.New(scanner.Dependencies{
				Storage:   strg,
				Uploads:   store,
				Open:      openPDF,
				Checker:   httpcheck.New(&http.Client{}, cfg.Scanner.UserAgent),
				Extractor: extractor,
				Publisher: hub,
				Metrics:   instruments,
			}, scanner.NewOptions(cfg))

			riverClient, err := worker.Start(ctx, strg.Pool, s, worker.NewOptions(cfg))
			if err != nil {
				logger.Fatal(ctx, "could not start workers", zap.Error(err))
			}

			stopWebserver := setupServer(ctx, cfg, api.Deps{
				Deps: handler.Deps{Scanner: s, Extractor: extractor},
				Push: hub,
			})

			// wait for interrupt
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
			defer cancel()

			stopWebserver(shutdownCtx)
			if err := hub.Close(shutdownCtx); err != nil {
				logger.Warn(shutdownCtx, "could not close push channel", zap.Error(err))
			}
			logger.Info(shutdownCtx, "stopping workers...")
			if err := riverClient.Stop(shutdownCtx); err != nil {
				logger.Error(shutdownCtx, "could not stop workers", zap.Error(err))
			}
			if err := mp.Shutdown(shutdownCtx); err != nil {
				logger.Warn(shutdownCtx, "could not stop meter provider", zap.Error(err))
			}
		},
	}

	return cmd
}
