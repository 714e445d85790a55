package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/starledger/api"
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (overrides http.addr)")
	serveCmd.Flags().Bool("settle", false, "run the settlement scheduler in this process")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}
	if settle, _ := cmd.Flags().GetBool("settle"); settle {
		cfg.Settlement.Enabled = true
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			a.logger.Error("shutdown failed", "error", err)
		}
	}()

	if err := a.ledger.Start(ctx); err != nil {
		return err
	}

	opts := []api.Option{
		api.WithLogger(a.logger),
		api.WithTimeout(cfg.HTTP.Timeout),
		api.WithBasePath(cfg.HTTP.BasePath),
	}
	if cfg.HTTP.Metrics {
		opts = append(opts, api.WithMetrics(a.registry))
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewServer(a.ledger, opts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Settlement.Enabled {
		r, err := a.runner()
		if err != nil {
			return err
		}
		go func() {
			if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("settlement scheduler stopped", "error", err)
			}
		}()
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("http listening", "addr", cfg.HTTP.Addr, "base_path", cfg.HTTP.BasePath)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	a.logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
