package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/posprint/internal/auth"
	"github.com/iurnickita/posprint/internal/cache"
	"github.com/iurnickita/posprint/internal/config"
	"github.com/iurnickita/posprint/internal/handler"
	"github.com/iurnickita/posprint/internal/logger"
	"github.com/iurnickita/posprint/internal/receipt"
	"github.com/iurnickita/posprint/internal/service"
	"github.com/iurnickita/posprint/internal/service/printclient"
	"github.com/iurnickita/posprint/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}
	defer zaplog.Sync()

	// цены в JSON - числа, как их присылает клиент
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	// общий токен для нескольких экземпляров, если задан Redis
	var tokens printclient.TokenStore
	if cfg.Cache.Addr != "" {
		redisTokens, err := cache.NewRedisTokenStore(cfg.Cache)
		if err != nil {
			return err
		}
		defer redisTokens.Close()
		tokens = redisTokens
		zaplog.Info("access token shared via redis", zap.String("addr", cfg.Cache.Addr))
	}

	printer, err := printclient.NewClient(cfg.Print, tokens, zaplog)
	if err != nil {
		return err
	}

	formatter, err := receipt.NewFormatter(cfg.Receipt)
	if err != nil {
		return err
	}

	service, err := service.NewService(cfg.Service, store, printer, formatter, zaplog)
	if err != nil {
		return err
	}
	auth := auth.NewAuth(cfg.Auth, zaplog)

	return handler.Serve(ctx, cfg.Handler, auth, service, zaplog)
}
