package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"anggaran/internal/config"
	"anggaran/internal/handler"
	"anggaran/internal/infrastructure/cache"
	"anggaran/internal/infrastructure/database"
	"anggaran/internal/infrastructure/mq"
	"anggaran/internal/infrastructure/storage"
	"anggaran/internal/job"
	"anggaran/internal/logger"
	"anggaran/internal/repository"
	"anggaran/internal/service"
	"anggaran/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	var (
		configPath string
		nodeID     int64
	)

	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Budget and expense tracking API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, nodeID)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config/config.yaml", "Config file path")
	cmd.Flags().Int64Var(&nodeID, "node", 1, "Snowflake node id, unique per instance")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string, nodeID int64) error {
	// 加载配置
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	// 初始化 ID 生成器，多实例部署时节点ID必须不同
	idgen.Init(nodeID)

	// 读操作的限流重试策略
	repository.SetRetryPolicy(database.NewRetryPolicy(cfg.Business.DBRetryAttempts, cfg.Business.DBRetryBaseDelayMs))

	// 初始化 MySQL
	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		return err
	}

	// 初始化 Redis（可选）
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.InitRedis(&cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	} else {
		log.Warn().Msg("Redis 未启用，汇总缓存与预算分布式锁关闭")
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := initStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// 初始化 Kafka（可选），未启用时事件保留在 outbox 表中
	if cfg.Kafka.Enabled {
		publisher, err := mq.InitKafka(&cfg.Kafka)
		if err != nil {
			return err
		}
		defer publisher.Close()

		outboxSender := job.NewOutboxSender(db, publisher, cfg, log)
		go outboxSender.Start(ctx)
	} else {
		log.Warn().Msg("Kafka 未启用，预算事件暂存在 outbox 表")
	}

	// 启动后台任务
	receiptCleanup := job.NewStagedReceiptCleanupJob(service.NewReceiptService(db, store, cfg, log), log)
	go receiptCleanup.Start(ctx)

	historyBackfill := job.NewUsageHistoryBackfillJob(db, log)
	go historyBackfill.Start(ctx)

	// 设置路由
	router := handler.SetupRouter(db, redisClient, store, cfg, log)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("服务启动")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("服务启动失败")
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("服务关闭异常")
	}

	log.Info().Msg("服务已关闭")
	return nil
}

// initStorage 配置了 bucket 时使用 GCS，否则使用进程内存储（仅用于本地开发）
func initStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storage.ObjectStore, func(), error) {
	if cfg.Storage.Bucket == "" {
		log.Warn().Msg("未配置 storage.bucket，收据保存在内存中")
		return storage.NewMemoryStore(cfg.Storage.PublicBaseURL), func() {}, nil
	}

	gcs, err := storage.NewGCSStore(ctx, &cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	return gcs, func() {
		if err := gcs.Close(); err != nil {
			log.Warn().Err(err).Msg("关闭 GCS 客户端失败")
		}
	}, nil
}
