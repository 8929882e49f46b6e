package main

import (
	"net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/alekpr/dksh-e-market-api/internal/config"
	"github.com/alekpr/dksh-e-market-api/internal/orderstore"
	"github.com/alekpr/dksh-e-market-api/internal/orderview"
	"github.com/alekpr/dksh-e-market-api/internal/router"
	"github.com/alekpr/dksh-e-market-api/internal/ws"
)

func main() {
	// .env is optional; real deployments configure via the environment.
	_ = godotenv.Load()

	cfg := config.Load()

	var logger *zap.Logger
	var err error
	if cfg.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	store := orderstore.NewClient(cfg.OrderStoreURL, cfg.OrderStoreToken, logger)
	mgr := orderview.NewManager(store, logger)

	hub := ws.NewHub()
	go hub.Run()

	r := router.New(cfg, mgr, hub, logger)

	logger.Info("starting server",
		zap.String("port", cfg.Port),
		zap.String("order_store", cfg.OrderStoreURL))
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
