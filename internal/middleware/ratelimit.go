package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailsink/backend/internal/config"
	"mailsink/backend/internal/monitoring"
	"mailsink/backend/internal/storage"
)

// RateLimiter 基于共享计数的固定窗口限流。
//
// 计数放在 storage.RateLimitRepository（生产为 Redis）里而不是
// 进程内，多副本部署时限流额度才是全局一致的。
type RateLimiter struct {
	repo    storage.RateLimitRepository
	cfg     *config.RateLimitConfig
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewRateLimiter 创建限流中间件
func NewRateLimiter(repo storage.RateLimitRepository, cfg *config.RateLimitConfig, metrics *monitoring.Metrics, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{
		repo:    repo,
		cfg:     cfg,
		metrics: metrics,
		log:     log,
	}
}

// LimitAddressCreate 限制单 IP 在窗口内创建地址的次数
func (rl *RateLimiter) LimitAddressCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("ratelimit:address_create:%s", c.ClientIP())

		count, err := rl.repo.IncrementRateLimit(key, rl.cfg.Window)
		if err != nil {
			// 限流存储不可用时放行，核心功能优先于限流
			rl.log.Error("rate limit store unavailable", zap.Error(err))
			c.Next()
			return
		}

		if count > int64(rl.cfg.AddressCreatePerIP) {
			rl.log.Warn("address create rate limited",
				zap.String("ip", c.ClientIP()),
				zap.Int64("count", count),
			)
			if rl.metrics != nil {
				rl.metrics.RateLimitBlocks.WithLabelValues("address_create").Inc()
			}

			c.Header("Retry-After", fmt.Sprintf("%d", int(rl.cfg.Window.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "too many addresses created, retry later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
