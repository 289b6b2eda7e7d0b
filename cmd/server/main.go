// Command server runs the WeChat OAuth bridge: a service that fronts
// WeChat's official-account and open-platform login dialects with a
// standard OAuth2 authorization-code / OIDC-userinfo surface.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/appleboy/graceful"
	ginslog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/go-training/wechat-oauth-bridge/pkg/bridge"
	"github.com/go-training/wechat-oauth-bridge/pkg/config"
	"github.com/go-training/wechat-oauth-bridge/pkg/flow"
	"github.com/go-training/wechat-oauth-bridge/pkg/logger"
	"github.com/go-training/wechat-oauth-bridge/pkg/wechat"
)

func main() {
	var addr string
	var appsConfig string
	var clientsConfig string
	var basePath string
	var externalURL string
	var logLevel string
	var bridgeType string
	var redisAddr string
	var redisPassword string
	var redisDB int
	flag.StringVar(&addr, "addr", ":3000", "address to listen on")
	flag.StringVar(&appsConfig, "wechat", "./wechatapps.toml", "path to the WeChat application config")
	flag.StringVar(&clientsConfig, "clients", "./clients.toml", "path to the relying-party client config")
	flag.StringVar(&basePath, "base-path", "", "fixed path prefix for all endpoints")
	flag.StringVar(&externalURL, "external-url", "", "public base URL for callback derivation (defaults to per-request derivation)")
	flag.StringVar(&logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR). Defaults to DEBUG in development, INFO in production")
	flag.StringVar(&bridgeType, "store", "memory", "State store backend: memory or redis")
	flag.StringVar(&redisAddr, "redis-addr", "localhost:6379", "Redis address (only used when store=redis)")
	flag.StringVar(&redisPassword, "redis-password", "", "Redis password (only used when store=redis)")
	flag.IntVar(&redisDB, "redis-db", 0, "Redis database (only used when store=redis)")
	flag.Parse()

	logger.NewWithLevel(logLevel)

	registry, err := config.Load(appsConfig, clientsConfig)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Configuration loaded",
		"apps", registry.AppCount(),
		"clients", registry.ClientCount(),
	)

	bridgeConfig := bridge.Config{
		Backend: bridge.ParseType(bridgeType),
		Redis: bridge.RedisOptions{
			Addr:     redisAddr,
			Password: redisPassword,
			DB:       redisDB,
		},
	}
	stateBridge, err := bridge.New(bridgeConfig)
	if err != nil {
		slog.Error("Failed to create state bridge", "type", bridgeType, "error", err)
		os.Exit(1)
	}
	switch bridgeConfig.Backend {
	case bridge.TypeMemory:
		slog.Info("Using in-memory state bridge")
	case bridge.TypeRedis:
		slog.Info("Using Redis state bridge", "addr", redisAddr, "db", redisDB)
		if redisBridge, ok := stateBridge.(*bridge.RedisBridge); ok {
			defer redisBridge.Close()
		}
	}

	controller := flow.New(registry, stateBridge, wechat.NewClient(),
		flow.WithBasePath(basePath),
		flow.WithExternalURL(externalURL),
	)

	if os.Getenv("ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginslog.SetLogger())
	router.Use(gin.Recovery())
	router.Use(flow.CORSMiddleware())
	router.Use(flow.RequestIDMiddleware())
	controller.RegisterRoutes(routeTarget(router, basePath))

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	m := graceful.NewManager()
	m.AddRunningJob(func(_ context.Context) error {
		slog.Info("HTTP server listening", "addr", addr, "base_path", basePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	m.AddShutdownJob(func() error {
		slog.Info("Shutdown signal received, shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})

	<-m.Done()
	slog.Info("Server shutdown gracefully")
}

// routeTarget mounts the endpoints at the root or under the base path.
func routeTarget(router *gin.Engine, basePath string) gin.IRouter {
	if basePath == "" {
		return router
	}
	return router.Group(basePath)
}
