package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailsink/backend/internal/auth"
	jwtpkg "mailsink/backend/internal/auth/jwt"
	"mailsink/backend/internal/config"
	"mailsink/backend/internal/health"
	"mailsink/backend/internal/middleware"
	"mailsink/backend/internal/monitoring"
	"mailsink/backend/internal/service"
	"mailsink/backend/internal/storage"
	"mailsink/backend/internal/websocket"
)

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	addresses *service.AddressService
	messages  *service.MessageService
	ingest    *service.IngestService
	cacheTTL  time.Duration
	log       *zap.Logger
}

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	AddressService *service.AddressService
	MessageService *service.MessageService
	IngestService  *service.IngestService
	AuthService    *auth.Service
	JWTManager     *jwtpkg.Manager
	WebSocketHub   *websocket.Hub      // 可选：新邮件推送
	Store          storage.Store       // 限流计数等共享存储
	Metrics        *monitoring.Metrics // 可选：Prometheus 指标
	Health         *health.Checker     // 可选：存活/就绪探针
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	// 使用自定义中间件替代默认中间件
	router.Use(middleware.RecoveryHandler(log, deps.Metrics))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	if deps.Metrics != nil {
		router.Use(middleware.HTTPMetrics(deps.Metrics))
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 创建处理器
	handler := &Handler{
		addresses: deps.AddressService,
		messages:  deps.MessageService,
		ingest:    deps.IngestService,
		cacheTTL:  deps.Config.Redis.PublicCacheTTL,
		log:       log,
	}

	authHandler := NewAuthHandler(deps.AuthService, log)

	// 创建中间件
	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, log)
	botDetector := middleware.NewBotDetector(log)

	// 限流计数走共享存储；不支持计数的存储跳过限流
	createAddressChain := []gin.HandlerFunc{botDetector.Detect()}
	if repo, ok := deps.Store.(storage.RateLimitRepository); ok {
		rateLimiter := middleware.NewRateLimiter(repo, &deps.Config.RateLimit, deps.Metrics, log)
		createAddressChain = append([]gin.HandlerFunc{rateLimiter.LimitAddressCreate()}, createAddressChain...)
	}

	// 普通 API 与入站 webhook 使用不同的请求体限额
	apiBodyLimit := middleware.BodySizeLimit(middleware.DefaultBodyLimit)
	inboundBodyLimit := middleware.BodySizeLimit(middleware.InboundBodyLimit)

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}

	// Prometheus 指标
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// V1 API
	v1 := router.Group("/v1")
	{
		// ========== Inbound Routes（中继 webhook，响应形态对齐中继协议） ==========
		inboundRoutes := v1.Group("/inbound", inboundBodyLimit)
		{
			inboundRoutes.POST("/relay", handler.relayInbound)
		}

		// ========== Public Routes（无需认证的公开API） ==========
		publicRoutes := v1.Group("/public", apiBodyLimit)
		{
			publicRoutes.GET("/domains", handler.listDomains)                        // 可用域名列表
			publicRoutes.GET("/addresses/:email/messages", handler.listPublicMessages) // 公开的按地址读信
		}

		// ========== Auth Routes ==========
		authRoutes := v1.Group("/auth", apiBodyLimit)
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh", authHandler.Refresh)
			authRoutes.GET("/me", jwtAuth.RequireAuth(), authHandler.Me)
		}

		// ========== Address Routes ==========
		addressRoutes := v1.Group("/addresses", apiBodyLimit, jwtAuth.OptionalAuth())
		{
			// 地址创建限流 + 机器人识别
			addressRoutes.POST("", append(createAddressChain, handler.createAddress)...)
			addressRoutes.GET("", jwtAuth.RequireAuth(), handler.listAddresses)

			addressRoutes.GET("/:id", handler.getAddress)
			addressRoutes.DELETE("/:id", handler.deleteAddress)

			// 邮件相关端点
			addressRoutes.GET("/:id/messages", handler.listMessages)
			addressRoutes.GET("/:id/messages/:messageId", handler.getMessage)
			addressRoutes.POST("/:id/messages/:messageId/flags", handler.updateMessageFlags)
			addressRoutes.DELETE("/:id/messages/:messageId", handler.deleteMessage)

			// 附件下载端点
			addressRoutes.GET("/:id/messages/:messageId/attachments/:attachmentId", handler.downloadAttachment)
		}

		// ========== WebSocket Routes ==========
		if deps.WebSocketHub != nil {
			v1.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
		}
	}

	return router
}
