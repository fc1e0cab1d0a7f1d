package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	authcmd "github.com/louisbranch/guildverify/internal/cmd/auth"
	"github.com/louisbranch/guildverify/internal/platform/config"
	"github.com/spf13/pflag"
)

func main() {
	cfg, err := authcmd.ParseConfig(pflag.CommandLine, os.Args[1:])
	config.ExitOnError("parse flags", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.ExitOnError("serve", authcmd.Run(ctx, cfg))
}
