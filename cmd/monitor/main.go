// Package main 监控器入口
//
// 启动流程：
//  1. 加载配置（.env + configs/{env}.yaml + 环境变量覆盖）
//  2. 构造熔断器注册表（显式注入，不使用全局状态）
//  3. 启动事件流客户端附着到指定 Run
//  4. 启动快照发布循环（WebSocket 广播 + Redis 镜像）
//  5. 启动 HTTP 服务（进度查询 + 熔断器管理 + 指标）
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"songwatch/internal/api"
	"songwatch/internal/breaker"
	"songwatch/internal/cache/redis"
	"songwatch/internal/config"
	"songwatch/internal/metrics"
	"songwatch/internal/progress"
	"songwatch/internal/stream"
	"songwatch/pkg/logging"
)

func main() {
	runID := flag.String("run", "", "要监控的 Run ID（必填）")
	backendURL := flag.String("backend", "", "后端基地址（覆盖配置）")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Component: "monitor",
	})

	if *runID == "" {
		logger.Error("missing -run flag")
		os.Exit(1)
	}
	if *backendURL != "" {
		cfg.BackendURL = *backendURL
	}

	logger.Info("starting monitor", "config", cfg.String(), "run_id", *runID)

	// 熔断器注册表：进程内唯一，显式传递给所有调用方
	registry := breaker.NewRegistry()

	// 事件流客户端
	streamCfg := stream.DefaultConfig(cfg.BackendURL, *runID)
	streamCfg.DialTimeout = cfg.Stream.DialTimeout
	streamCfg.InitialBackoff = cfg.Stream.InitialBackoff
	streamCfg.MaxBackoff = cfg.Stream.MaxBackoff
	streamCfg.PingInterval = cfg.Stream.PingInterval
	streamCfg.ReadTimeout = cfg.Stream.ReadTimeout
	streamCfg.Breaker = cfg.BreakerConfig()

	eventLog := stream.NewEventLog()
	client := stream.NewClient(streamCfg, registry, eventLog, logger)
	m := metrics.New("songwatch", *runID, nil)
	client.SetMetrics(m)

	view := progress.NewView(eventLog)

	// Redis 快照镜像（可选）
	var mirror *redis.Store
	if cfg.RedisAddr != "" {
		mirror = redis.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := mirror.Ping(context.Background()); err != nil {
			logger.WithError(err).Warn("redis not available, snapshot mirror disabled")
			mirror = nil
		} else {
			defer mirror.Close()
		}
	}

	handler := api.NewHandler(*runID, view, client, registry, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutting down monitor")
		cancel()
	}()

	// 快照发布循环：每条事件到达后重算快照并向外发布
	go publishLoop(ctx, client, view, handler.Gateway(), mirror, m, *runID, logger)

	// HTTP 服务
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: handler.Router(),
	}
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("http server failed")
			cancel()
		}
	}()

	// 驱动事件流直到 ctx 取消或 Run 终止
	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("stream client stopped")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}

// publishLoop 订阅事件流，在每次快照重算后广播并镜像
func publishLoop(ctx context.Context, client *stream.Client, view *progress.View, gateway *api.Gateway, mirror *redis.Store, m *metrics.Metrics, runID string, logger *logging.Logger) {
	events, unsubscribe := client.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}

			snap := view.Snapshot()
			m.SnapshotRecomputes.Inc()
			m.PhaseReversals.Set(float64(snap.PhaseReversals))
			gateway.Broadcast(snap)

			if mirror != nil {
				mirrorCtx, mirrorCancel := context.WithTimeout(ctx, 2*time.Second)
				if err := mirror.SetProgress(mirrorCtx, runID, snap); err != nil {
					logger.WithError(err).Warn("snapshot mirror write failed")
				}
				mirrorCancel()
			}
		}
	}
}
