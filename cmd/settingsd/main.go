package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"settingshub/internal/api"
	"settingshub/internal/config"
	"settingshub/internal/observability/metrics"
	"settingshub/internal/settings"
	"settingshub/pkg/logger"
)

// main 是配置中心守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("settingsd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return err
	}
	defer logger.Sync()
	appLog := logger.Named("settingsd")

	registry := metrics.Default()
	deps, err := buildDependencies(ctx, cfg, registry)
	if err != nil {
		return err
	}
	defer deps.Close()

	service := settings.NewService(deps.repository, settings.WithPublisher(deps.publisher))
	server := api.NewServer(cfg.Server.Address, service,
		api.WithMetrics(registry, cfg.Server.MetricsAddress == ""),
		api.WithAlerts(deps.alerts),
		api.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return server.Start(groupCtx) })
	if cfg.Server.MetricsAddress != "" {
		group.Go(func() error { return metrics.StartServer(groupCtx, cfg.Server.MetricsAddress) })
	}
	if deps.localEvents != nil {
		group.Go(func() error { return drainLocalEvents(groupCtx, deps.localEvents, appLog) })
	}

	appLog.Info("settingsd 已启动",
		"storage", cfg.Storage.Driver, "events", cfg.Events.Driver, "address", cfg.Server.Address)
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	appLog.Info("settingsd 已停止")
	return nil
}

// configPath 优先使用 SETTINGSHUB_CONFIG；默认文件不存在时只使用环境变量。
func configPath() string {
	if path := os.Getenv("SETTINGSHUB_CONFIG"); path != "" {
		return path
	}
	path := filepath.Join("configs", "settingshub.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
