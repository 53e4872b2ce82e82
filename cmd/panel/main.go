// Command panel connects to the lift backend and serves the operator panel
// API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	"github.com/git-eri/smart-lift/internal/app"
	"github.com/git-eri/smart-lift/internal/config"
	"github.com/git-eri/smart-lift/internal/logger"
)

func main() {
	cmd := &cli.Command{
		Name:  "panel",
		Usage: "remote-control panel for building lifts",
		Flags: append(config.ConnectionFlags(),
			&cli.StringFlag{Name: config.FlagCodec, Usage: "wire format, json or legacy (LIFT_CODEC)"},
			&cli.StringFlag{Name: config.FlagListen, Usage: "panel API listen address (LIFT_PANEL_ADDR)"},
		),
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.FromCommand(cmd)
	if err != nil {
		return err
	}
	log, err := logger.New(os.Stderr, cfg.LogLevel, logger.Format(cfg.LogFormat))
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)

	p, err := app.NewPanel(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create panel: %w", err)
	}
	defer p.Close()

	log.Info().
		Str("session_id", p.Session.ID()).
		Str("url", p.Session.URL()).
		Msg("starting panel")
	if err := p.Start(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.PanelAddr,
		Handler:           p.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.PanelAddr).Msg("serving panel API")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("panel API: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
