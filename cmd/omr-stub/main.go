package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"omraudit/internal/adapters/memory"
	"omraudit/internal/adapters/stubapi"
	"omraudit/internal/config"
	"omraudit/internal/logging"
	"omraudit/internal/workers/sheetreader"
)

func main() {
	var configPath string
	root := &cobra.Command{
		Use:           "omr-stub",
		Short:         "In-memory stand-in for the OMR audit backend",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return fmt.Errorf("logging: %w", err)
			}
			return run(cfg, log)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "YAML config file")
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "omr-stub: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.New(clockwork.NewRealClock(), log)
	processor := sheetreader.Synthetic{Questions: cfg.Stub.Questions}
	srv := stubapi.New(store, store, store, processor, stubapi.Options{
		Templates: cfg.Stub.Templates,
		Token:     cfg.Stub.Token,
		Workers:   cfg.Stub.Workers,
	}, log)

	r := chi.NewRouter()
	r.Mount("/", srv.Routes())
	httpSrv := &http.Server{
		Addr:              cfg.Stub.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	log.Info("listening", "addr", cfg.Stub.ListenAddr, "templates", cfg.Stub.Templates,
		"workers", cfg.Stub.Workers, "token_required", cfg.Stub.Token != "")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}
