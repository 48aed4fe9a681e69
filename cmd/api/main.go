package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/auth"
	"storefront/internal/config"
	"storefront/internal/db"
	internalhttp "storefront/internal/http"
	"storefront/internal/logger"
	"storefront/internal/notify"
	"storefront/internal/payments"
	"storefront/internal/pricing"
	"storefront/internal/services"
	"storefront/internal/store"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN, db.Options{MaxConns: cfg.DB.MaxConns, MinConns: cfg.DB.MinConns}, log)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer pool.Close()

	st := store.New(pool)
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)
	hub := notify.NewHub(log.With(zap.String("component", "notify")))
	gateway := payments.Gateway{
		FormURL:    cfg.Idram.FormURL,
		RecAccount: cfg.Idram.RecAccount,
		SecretKey:  cfg.Idram.SecretKey,
		Language:   cfg.Idram.Language,
	}
	if !gateway.Configured() {
		log.Warn("idram credentials missing; online payments will be refused")
	}

	orderSvc := &services.OrderService{Store: st, Pricing: pricing.Service{}, Log: log.With(zap.String("component", "orders"))}
	paymentSvc := &services.PaymentService{
		Store:    st,
		Gateway:  gateway,
		Checksum: payments.MD5Checksummer{},
		Pricing:  pricing.Service{},
		Notifier: hub,
		Log:      log.With(zap.String("component", "payments")),
	}
	accountSvc := &services.AccountService{Store: st, Tokens: tokens, Log: log.With(zap.String("component", "accounts"))}

	h := internalhttp.NewHandler(orderSvc, paymentSvc, accountSvc, hub, log.With(zap.String("component", "http")))
	srv := internalhttp.NewServer(h, tokens)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("api listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
}
