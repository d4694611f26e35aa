package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wfm/internal/app/server"
	"wfm/internal/platform/config"
	"wfm/internal/platform/logging"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connect := func(ctx context.Context) (services, func(), error) {
		app, err := server.Build(ctx, cfg)
		if err != nil {
			return services{}, nil, err
		}
		return services{Payroll: app.Payroll, Wages: app.Wages, Jobs: app.Jobs}, app.DB.Close, nil
	}

	if err := newRootCmd(connect, cfg.Location(), os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
