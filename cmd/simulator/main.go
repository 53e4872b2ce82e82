// Command simulator plays a lift controller against the backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/git-eri/smart-lift/internal/app"
	"github.com/git-eri/smart-lift/internal/config"
	"github.com/git-eri/smart-lift/internal/logger"
)

func main() {
	cmd := &cli.Command{
		Name:  "simulator",
		Usage: "fake lift controller that echoes every move",
		Flags: append(config.ConnectionFlags(),
			&cli.StringFlag{Name: config.FlagLifts, Usage: `served lifts, e.g. "0-4" or "1,3" (LIFT_SIM_LIFTS)`},
			&cli.IntFlag{Name: config.FlagPower, Usage: "power state announced in hello, -1 to omit (LIFT_SIM_POWER)"},
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

	sim, err := app.NewSimulator(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create simulator: %w", err)
	}
	defer sim.Close()

	log.Info().
		Str("session_id", sim.Session.ID()).
		Str("url", sim.Session.URL()).
		Interface("lifts", sim.Simulator.Lifts()).
		Msg("starting simulator")
	if err := sim.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutting down")
	return nil
}
