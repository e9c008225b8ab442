package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailsink/backend/internal/auth"
	jwtpkg "mailsink/backend/internal/auth/jwt"
	"mailsink/backend/internal/config"
	"mailsink/backend/internal/health"
	"mailsink/backend/internal/logger"
	"mailsink/backend/internal/monitoring"
	"mailsink/backend/internal/relay"
	"mailsink/backend/internal/security"
	"mailsink/backend/internal/service"
	"mailsink/backend/internal/smtp"
	"mailsink/backend/internal/storage"
	"mailsink/backend/internal/storage/hybrid"
	"mailsink/backend/internal/storage/memory"
	"mailsink/backend/internal/storage/postgres"
	storagesql "mailsink/backend/internal/storage/sql"
	httptransport "mailsink/backend/internal/transport/http"
	"mailsink/backend/internal/websocket"
)

// main 启动同时包含 HTTP API 与 SMTP 直收的综合服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     "",
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting mailsink server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.Bool("relay_permissive", cfg.Relay.Permissive),
	)

	// 初始化存储层
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = hybrid.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			storagesqlOptions(cfg),
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PublicCacheTTL,
		)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using hybrid storage",
			zap.String("type", cfg.Database.Type),
			zap.String("redis", cfg.Redis.Address),
		)
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close()

	// 初始化监控与健康检查
	metrics := monitoring.NewMetrics()
	healthChecker := health.New(store, log)

	// PostgreSQL 独立探针，连接池状态不受业务负载影响
	if cfg.Database.Type == "postgres" && cfg.Database.DSN != "" {
		pgProbe, err := postgres.New(&cfg.Database, log)
		if err != nil {
			log.Warn("postgres probe unavailable", zap.Error(err))
		} else {
			defer pgProbe.Close()
			healthChecker.AddReadinessCheck("postgres", func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				return pgProbe.Ping(ctx)
			})
		}
	}

	// 初始化服务层
	addressService := service.NewAddressService(store, cfg)
	addressService.SetMetrics(metrics)
	messageService := service.NewMessageService(store)

	verifier := relay.NewVerifier(cfg.Relay.SigningKey, cfg.Relay.Permissive)
	ingestService := service.NewIngestService(verifier, store, store, log)
	ingestService.SetMetrics(metrics)
	ingestService.SetScreener(security.NewScreener())

	// 初始化认证服务
	jwtManager := jwtpkg.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authService := auth.NewService(store, jwtManager)

	// 创建 WebSocket Hub 并接入新邮件通知
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, jwtManager, store, log)
	ingestService.SetNotifier(wsHub)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		AddressService: addressService,
		MessageService: messageService,
		IngestService:  ingestService,
		AuthService:    authService,
		JWTManager:     jwtManager,
		WebSocketHub:   wsHub,
		Store:          store,
		Metrics:        metrics,
		Health:         healthChecker,
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 创建 SMTP 服务器
	smtpBackend := smtp.NewBackend(addressService, ingestService, cfg, log)
	smtpServer := smtp.NewServer(smtpBackend, cfg)
	smtpServer.ReadTimeout = 10 * time.Second
	smtpServer.WriteTimeout = 10 * time.Second

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting SMTP server",
			zap.String("address", cfg.SMTP.BindAddr),
			zap.String("domain", cfg.SMTP.Domain),
		)
		if err := smtpServer.ListenAndServe(); err != nil {
			// 关闭监听器会让 ListenAndServe 返回错误，停机时不算失败
			if groupCtx.Err() != nil {
				return nil
			}
			log.Error("SMTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 定时清理过期地址 goroutine
	group.Go(func() error {
		ticker := time.NewTicker(cfg.Address.SweepInterval)
		defer ticker.Stop()

		log.Info("starting expired address sweep task",
			zap.Duration("interval", cfg.Address.SweepInterval))

		for {
			select {
			case <-groupCtx.Done():
				log.Info("sweep task stopped")
				return nil
			case <-ticker.C:
				count, err := addressService.SweepExpired()
				if err != nil {
					log.Error("failed to sweep expired addresses", zap.Error(err))
				} else if count > 0 {
					metrics.AddressesExpired.Add(float64(count))
					log.Info("expired addresses swept", zap.Int("count", count))
				}
			}
		}
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		if err := smtpServer.Close(); err != nil {
			log.Warn("SMTP server close warning", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// storagesqlOptions 从配置提取数据库连接池参数。
func storagesqlOptions(cfg *config.Config) storagesql.Options {
	return storagesql.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
}
