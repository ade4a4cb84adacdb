package main

import (
	"QueryAegis/internal/adapter/snapshot/sqlite"
	"QueryAegis/internal/aegconf"
	"QueryAegis/internal/aegobserve"
	"QueryAegis/internal/service"
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// app 是一次命令执行所需的全部组件
type app struct {
	cfg      *aegconf.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	svc      *service.DatasetService
}

// openApp 加载配置，初始化日志、指标与数据集服务，并从快照目录重建数据集。
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := aegconf.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Storage.DataDir = flagDataDir
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = flagLogLevel
	}
	if err := aegconf.Validate(cfg); err != nil {
		return nil, err
	}

	logger := aegobserve.InitLogger(cfg.Log.Level, cfg.Log.Format)

	registry := prometheus.NewRegistry()
	metrics := aegobserve.NewMetrics()
	if err := metrics.Register(registry); err != nil {
		return nil, err
	}

	snapshots, err := sqlite.NewManager(cfg.Storage.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("打开快照目录失败: %w", err)
	}
	svc, err := service.NewDatasetService(snapshots, service.Options{
		MaxResults:   cfg.Query.MaxResults,
		CacheEntries: cfg.Query.CacheEntries,
		CacheTTL:     cfg.Query.CacheTTL,
		RateLimit:    cfg.Query.RateLimit,
		RateBurst:    cfg.Query.RateBurst,
		PoolSize:     cfg.Worker.PoolSize,
		Logger:       logger,
		Metrics:      metrics,

		DatasetRateLimit: cfg.Query.DatasetRateLimit,
		DatasetRateBurst: cfg.Query.DatasetRateBurst,
	})
	if err != nil {
		_ = snapshots.Close()
		return nil, err
	}
	if err := svc.Init(contextOf(cmd)); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("加载已有数据集失败: %w", err)
	}
	return &app{cfg: cfg, logger: logger, registry: registry, svc: svc}, nil
}

func (a *app) Close() {
	if err := a.svc.Close(); err != nil {
		printWarning("关闭数据集服务失败: %v", err)
	}
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
