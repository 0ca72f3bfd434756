package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"chunker/config"
	"chunker/logger"
	"chunker/workbench"
	"chunker/workbench/client"
	"chunker/workbench/notify"
)

func main() {
	cfg, err := config.LoadWorkbench()
	if err != nil {
		log.Fatal("error loading config: ", err)
	}
	l := logger.Setup(cfg.LogLevel, cfg.LogJSON, "workbench")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := client.New(cfg.ChunkerURL, cfg.RequestTimeout, l)
	if err := svc.Healthy(ctx); err != nil {
		l.Warn("chunking service is not reachable", "url", cfg.ChunkerURL, "error", err)
	}

	wb := workbench.New(svc, notify.Logged(l, notify.NewWriter(os.Stdout)), l)
	sh := newShell(wb, cfg.ExportDir, os.Stdout)
	sh.Run(ctx, os.Stdin)

	log.Println("shutting down, waiting for pending requests...")
	wb.Close()
}
