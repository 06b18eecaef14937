// Package main запускает консольный клиент витрины: корзину, вход и оформление заказа.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/apiclient"
	"github.com/mmeshcher/storefront/internal/clientcache"
	"github.com/mmeshcher/storefront/internal/config"
)

const usage = `usage: storefront-cli [flags] <command> [args]

commands:
  cart add <product-id> <name> <price> [variant=value ...]
  cart remove <product-id> [variant=value ...]
  cart qty <product-id> <delta> [variant=value ...]
  cart show | cart clear
  register <name> <email> <password>
  login <email> <password>
  login-google <id-token>
  logout
  otp send <email>
  otp verify <email> <code> [name]
  checkout -name .. -email .. -phone .. -address .. -city .. -pay UPI|COD [-utr ..] [-qr file.png]
  orders
  sync
  theme [light|dark]
`

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	_ = godotenv.Load()

	fs := flag.NewFlagSet("storefront-cli", flag.ExitOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage); fs.PrintDefaults() }

	cfg, args, err := config.ParseClient(fs, os.Args[1:])
	if err != nil {
		logger.Fatal("configuration error", zap.Error(err))
	}
	if len(args) == 0 {
		fs.Usage()
		os.Exit(2)
	}

	cache, err := clientcache.OpenDir(cfg.CacheDir)
	if err != nil {
		logger.Fatal("failed to open client cache", zap.String("dir", cfg.CacheDir), zap.Error(err))
	}
	defer cache.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, cache, apiclient.NewClient(cfg.APIAddress), logger, os.Stdout)
	if err != nil {
		logger.Fatal("failed to start client", zap.Error(err))
	}

	if err := app.run(ctx, args); err != nil {
		logger.Error("command failed", zap.String("command", args[0]), zap.Error(err))
		os.Exit(1)
	}
}
