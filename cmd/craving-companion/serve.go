package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/CravingCompanion/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Addr = addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e, err := newEngine(ctx, cfg)
		if err != nil {
			return err
		}

		st, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeStore(); err != nil {
				slog.Error("serve: failed to close store", "error", err)
			}
		}()

		// A broken script does not stop startup; turns and /api/health/script report it.
		if doc, err := e.scripts.Load(ctx); err != nil {
			slog.Warn("serve: script document not loaded", "path", e.scripts.Path(), "error", err)
		} else {
			slog.Info("serve: script document ready", "version", doc.Version)
		}

		srv := api.NewServer(e.orch, e.scripts, e.registry, st, buildAPIOptions(cfg, e)...)
		slog.Info("Bootstrapping Craving Companion", "addr", cfg.Addr, "default_provider", cfg.LLMProvider)
		if err := srv.Run(ctx); err != nil {
			return err
		}
		slog.Info("Craving Companion exited successfully")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides API_ADDR and PORT)")
	rootCmd.AddCommand(serveCmd)
}
