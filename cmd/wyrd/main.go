package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	wyrdcmd "github.com/wyrdlabs/wyrd/internal/cmd/wyrd"
)

func main() {
	cfg, err := wyrdcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[WYRD] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := wyrdcmd.Run(ctx, cfg, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("failed to run: %v", err)
	}
}
