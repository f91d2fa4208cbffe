package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dropforge/config"
	"dropforge/core"
	"dropforge/observability/logging"
	"dropforge/rpc"
	"dropforge/rpc/middleware"
	"dropforge/storage"
)

const operatorSecretEnv = "DROPFORGE_OPERATOR_SECRET"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	allowMigrateFlag := flag.Bool("allow-migrate", false, "Allow starting with a mismatched state schema (manual migrations only)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("DROPFORGE_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	var fileCfg *logging.FileConfig
	if strings.TrimSpace(cfg.LogFile) != "" {
		fileCfg = &logging.FileConfig{
			Path:       cfg.LogFile,
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		}
	}
	logger := logging.Setup("dropforged", env, fileCfg)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	node, err := core.NewNode(db, cfg.ChainID, *allowMigrateFlag)
	if err != nil {
		panic(fmt.Sprintf("Failed to create node: %v", err))
	}

	secret := strings.TrimSpace(os.Getenv(operatorSecretEnv))
	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:    secret != "",
		HMACSecret: secret,
		Issuer:     cfg.OperatorIssuer,
		Audience:   cfg.OperatorAudience,
	})
	if secret == "" {
		logger.Warn("operator authentication disabled; configuration methods are open",
			slog.String("hint", "set "+operatorSecretEnv))
	}

	rpcServer := rpc.NewServer(node, logger, auth, middleware.RateLimit{
		RequestsPerMinute: cfg.RatePerMinute,
		Burst:             cfg.RateBurst,
	})

	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           rpcServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	logger.Info("dropforged initialised and running",
		slog.String("address", cfg.RPCAddress),
		slog.String("network", cfg.NetworkName),
		slog.Uint64("chainId", node.ChainID()),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", slog.Any("error", err))
			os.Exit(1)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server terminated", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
