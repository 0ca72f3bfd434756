package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"chunker/app/server"
	"chunker/config"
	"chunker/logger"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal("error loading config: ", err)
	}
	l := logger.Setup(cfg.LogLevel, cfg.LogJSON, "chunker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.NewServer(cfg, l).Run(ctx); err != nil {
		l.Error("server exited", "error", err)
		os.Exit(1)
	}
}
