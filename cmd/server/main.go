package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chaintrack/tracking-service/internal/chain"
	"github.com/chaintrack/tracking-service/internal/config"
	"github.com/chaintrack/tracking-service/internal/handler"
	"github.com/chaintrack/tracking-service/internal/metrics"
	"github.com/chaintrack/tracking-service/internal/repository"
	"github.com/chaintrack/tracking-service/internal/service"
	"github.com/chaintrack/tracking-service/internal/session"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	store, err := repository.NewPostgresStore(cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer store.Close()

	cache, err := repository.NewRedisCache(cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer cache.Close()

	var provider chain.Provider = chain.Disconnected{}
	if cfg.Chain.GatewayURL != "" {
		gateway := chain.NewGateway(cfg.Chain.GatewayURL)
		if addr, err := gateway.Connect(context.Background()); err != nil {
			// Demo usability wins: run without a chain identity and use
			// locally generated hashes.
			logger.Warn("chain gateway unavailable, using local hashes", zap.Error(err))
		} else {
			logger.Info("chain gateway connected", zap.String("address", addr))
			provider = gateway
		}
	}

	sessions := session.NewJWTProvider(cfg.Auth.JWTSecret)
	svc := service.NewDeliveryService(store, cache, provider, sessions, logger)

	metrics.Register()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), handler.Instrument())

	h := handler.New(svc, logger)
	h.Register(router, handler.Auth(sessions))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server shutdown complete")
}
