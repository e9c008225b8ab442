package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 常见爬虫和自动化客户端的 UA 片段
var botAgentFragments = []string{
	"bot",
	"crawler",
	"spider",
	"curl/",
	"wget/",
	"python-requests",
	"go-http-client",
	"scrapy",
	"headless",
}

// BotDetector 识别疑似机器人的地址创建请求。
//
// 只做启发式标记，不直接拒绝：命中后由处理器返回占位地址，
// 响应形态与正常创建一致，避免给爬虫提供可探测的信号。
type BotDetector struct {
	log *zap.Logger
}

// NewBotDetector 创建机器人检测中间件
func NewBotDetector(log *zap.Logger) *BotDetector {
	if log == nil {
		log = zap.NewNop()
	}
	return &BotDetector{log: log}
}

// Detect 标记疑似机器人请求
func (bd *BotDetector) Detect() gin.HandlerFunc {
	return func(c *gin.Context) {
		if bd.isBot(c) {
			bd.log.Info("bot heuristic matched",
				zap.String("ip", c.ClientIP()),
				zap.String("user_agent", c.Request.UserAgent()),
			)
			c.Set("suspectedBot", true)
		}
		c.Next()
	}
}

// isBot 根据请求特征判断是否疑似机器人
func (bd *BotDetector) isBot(c *gin.Context) bool {
	ua := strings.ToLower(c.Request.UserAgent())

	// 浏览器都会带 UA，缺失本身就是强信号
	if ua == "" {
		return true
	}

	for _, fragment := range botAgentFragments {
		if strings.Contains(ua, fragment) {
			return true
		}
	}

	// 正常浏览器会携带 Accept-Language
	if c.GetHeader("Accept-Language") == "" {
		return true
	}

	return false
}

// IsSuspectedBot 读取检测结果
func IsSuspectedBot(c *gin.Context) bool {
	v, exists := c.Get("suspectedBot")
	if !exists {
		return false
	}
	b, _ := v.(bool)
	return b
}
