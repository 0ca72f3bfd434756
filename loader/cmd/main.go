package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"chunker/config"
	"chunker/loader"
	"chunker/logger"
	"chunker/workbench/client"
)

func main() {
	cfg, err := config.LoadLoader()
	if err != nil {
		log.Fatal("error loading config: ", err)
	}
	l := logger.Setup(cfg.LogLevel, cfg.LogJSON, "loader")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := client.New(cfg.ChunkerURL, cfg.RequestTimeout, l)
	if err := svc.Healthy(ctx); err != nil {
		l.Warn("chunking service is not reachable", "url", cfg.ChunkerURL, "error", err)
	}

	if err := loader.New(cfg, svc, l).Run(ctx); err != nil {
		l.Error("loader exited", "error", err)
		os.Exit(1)
	}
}
