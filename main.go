package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/aviv1ron1/the-commuter-il/internal/config"
)

var CLI struct {
	Config   string `help:"Path to config file" default:"config.yaml" type:"path"`
	LogLevel string `help:"Override the configured log level" name:"log-level"`

	Plan struct {
		ArriveBy    ArriveByCmd    `cmd:"" name:"arrive-by" help:"Trains that get you to the office by a deadline"`
		DepartAfter DepartAfterCmd `cmd:"" name:"depart-after" help:"Trains you can still catch leaving home now or later"`
		Return      ReturnCmd      `cmd:"" help:"Trains from the office back to where you parked"`
	} `cmd:"" help:"Plan a journey"`

	Locate   LocateCmd   `cmd:"" help:"Work out where you are"`
	Go       GoCmd       `cmd:"" help:"Locate, pick the obvious trip and plan it"`
	Stations StationsCmd `cmd:"" help:"List the candidate stations"`

	Remind struct {
		Set    RemindSetCmd    `cmd:"" help:"Plan a trip and set the leave reminder for one option"`
		Cancel RemindCancelCmd `cmd:"" help:"Cancel the active reminder"`
		Status RemindStatusCmd `cmd:"" help:"Show the active reminder"`
	} `cmd:"" help:"Manage the leave reminder"`

	Serve ServeCmd `cmd:"" help:"Run the HTTP API and the reminder scheduler"`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("commuter"),
		kong.Description("Door-to-door train commute planner."),
		kong.UsageOnError(),
	)

	// Setup structured logging with logfmt
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})

	// A missing file is fine: every setting has a default.
	cfg, err := config.Load(CLI.Config, true)
	if err != nil {
		logger.WithField("error", err).Fatal("failed to load config")
	}
	if CLI.LogLevel != "" {
		cfg.LogLevel = CLI.LogLevel
	}
	logger.SetLevel(cfg.Level())

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig).Info("received signal, shutting down")
		cancel()
	}()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.WithField("error", err).Fatal("failed to start")
	}
	defer app.Close()

	kctx.BindTo(ctx, (*context.Context)(nil))
	if err := kctx.Run(app); err != nil {
		logger.WithField("error", err).Error("command failed")
		app.Close()
		os.Exit(1)
	}
}
