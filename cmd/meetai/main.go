package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/vango-go/meetai/internal/cli"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := &cli.Dependencies{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	if err := cli.NewRootCmd(deps).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "meetai: %v\n", err)
		stop()
		os.Exit(1)
	}
}
