package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// AddressConfig 定义一次性地址的生命周期配置
type AddressConfig struct {
	AllowedDomains   []string      // 允许签发地址的域名列表
	AnonymousTTL     time.Duration // 匿名/公开地址的生存时间，默认 48h
	OwnerTTL         time.Duration // 认证用户地址的生存时间，默认 1440h（约两个月）
	SweepInterval    time.Duration // 过期地址清理周期，默认 1h
	PlaceholderEmail string        // 机器人请求返回的占位地址
}

// RelayConfig 定义邮件中继 webhook 的验签配置
type RelayConfig struct {
	SigningKey string // 与中继共享的签名密钥
	Permissive bool   // true 时验签失败仅记录警告并继续（仅限本地测试）
}

// SMTPConfig 定义 SMTP 直收服务器的配置
type SMTPConfig struct {
	BindAddr string // SMTP 服务监听地址，格式 "host:port"，默认 ":25"
	Domain   string // SMTP 服务器域名，用于 HELO/EHLO 响应
	MaxConns int    // 最大并发连接数
	MaxRate  int    // 每秒最大新建连接数
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 缓存服务配置
type RedisConfig struct {
	Address        string        // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password       string        // Redis 认证密码，留空表示无密码
	DB             int           // Redis 数据库编号，默认 0
	PublicCacheTTL time.Duration // 公开读取接口的缓存时长，默认 15s
}

// JWTConfig 定义 JWT 认证相关配置
type JWTConfig struct {
	Secret        string        // JWT 签名密钥，必须至少 32 字符
	Issuer        string        // JWT 签发者标识，默认 "mailsink"
	AccessExpiry  time.Duration // 访问令牌有效期，默认 15 分钟
	RefreshExpiry time.Duration // 刷新令牌有效期，默认 7 天
}

// RateLimitConfig 定义基于 Redis 固定窗口的限流配置
type RateLimitConfig struct {
	AddressCreatePerIP int           // 窗口内单 IP 最多创建的地址数量
	Window             time.Duration // 固定窗口长度
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server    ServerConfig    // HTTP 服务器配置
	Address   AddressConfig   // 地址生命周期配置
	Relay     RelayConfig     // 中继 webhook 配置
	SMTP      SMTPConfig      // SMTP 直收配置
	CORS      CORSConfig      // 跨域配置
	Log       LogConfig       // 日志配置
	Database  DatabaseConfig  // 数据库配置
	Redis     RedisConfig     // Redis 配置
	JWT       JWTConfig       // JWT 认证配置
	RateLimit RateLimitConfig // 限流配置
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//   1. 系统环境变量（最高优先级）
//   2. .env 文件（如果存在）
//   3. 默认值
//
// 环境变量前缀: MAILSINK_
// 例如: MAILSINK_SERVER_HOST, MAILSINK_RELAY_SIGNING_KEY
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("mailsink")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("address.allowed_domains", "sink.mail")
	viper.SetDefault("address.anonymous_ttl", "48h")
	viper.SetDefault("address.owner_ttl", "1440h")
	viper.SetDefault("address.sweep_interval", "1h")
	viper.SetDefault("address.placeholder_email", "postmaster@sink.mail")
	viper.SetDefault("relay.signing_key", "")
	viper.SetDefault("relay.permissive", false)
	viper.SetDefault("smtp.bind_addr", ":25")
	viper.SetDefault("smtp.domain", "sink.mail")
	viper.SetDefault("smtp.max_conns", 100)
	viper.SetDefault("smtp.max_rate", 20)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.public_cache_ttl", "15s")
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.issuer", "mailsink")
	viper.SetDefault("jwt.access_expiry", "15m")
	viper.SetDefault("jwt.refresh_expiry", "168h")
	viper.SetDefault("ratelimit.address_create_per_ip", 30)
	viper.SetDefault("ratelimit.window", "1h")

	anonymousTTL, err := time.ParseDuration(viper.GetString("address.anonymous_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid address.anonymous_ttl: %w", err)
	}

	ownerTTL, err := time.ParseDuration(viper.GetString("address.owner_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid address.owner_ttl: %w", err)
	}

	sweepInterval, err := time.ParseDuration(viper.GetString("address.sweep_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid address.sweep_interval: %w", err)
	}

	domainList := parseDomains(viper.GetString("address.allowed_domains"))
	if len(domainList) == 0 {
		return nil, fmt.Errorf("address.allowed_domains must not be empty")
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	publicCacheTTL, err := time.ParseDuration(viper.GetString("redis.public_cache_ttl"))
	if err != nil {
		publicCacheTTL = 15 * time.Second
	}

	accessExpiry, err := time.ParseDuration(viper.GetString("jwt.access_expiry"))
	if err != nil {
		accessExpiry = 15 * time.Minute
	}

	refreshExpiry, err := time.ParseDuration(viper.GetString("jwt.refresh_expiry"))
	if err != nil {
		refreshExpiry = 7 * 24 * time.Hour
	}

	rateWindow, err := time.ParseDuration(viper.GetString("ratelimit.window"))
	if err != nil {
		rateWindow = time.Hour
	}

	relayKey := viper.GetString("relay.signing_key")
	relayPermissive := viper.GetBool("relay.permissive")

	// 安全检查：严格模式下必须配置签名密钥，否则所有入站邮件都会被拒绝
	if relayKey == "" && !relayPermissive {
		return nil, fmt.Errorf("SECURITY ERROR: relay signing key is required unless MAILSINK_RELAY_PERMISSIVE=true is explicitly set (test-only)")
	}

	jwtSecret := viper.GetString("jwt.secret")

	// 安全检查：禁止使用默认的 JWT secret
	if jwtSecret == "change-me-in-production" {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret cannot be the default value. Please set MAILSINK_JWT_SECRET environment variable")
	}

	// JWT secret 必须至少 32 字符
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Address: AddressConfig{
			AllowedDomains:   domainList,
			AnonymousTTL:     anonymousTTL,
			OwnerTTL:         ownerTTL,
			SweepInterval:    sweepInterval,
			PlaceholderEmail: viper.GetString("address.placeholder_email"),
		},
		Relay: RelayConfig{
			SigningKey: relayKey,
			Permissive: relayPermissive,
		},
		SMTP: SMTPConfig{
			BindAddr: viper.GetString("smtp.bind_addr"),
			Domain:   viper.GetString("smtp.domain"),
			MaxConns: viper.GetInt("smtp.max_conns"),
			MaxRate:  viper.GetInt("smtp.max_rate"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:        viper.GetString("redis.address"),
			Password:       viper.GetString("redis.password"),
			DB:             viper.GetInt("redis.db"),
			PublicCacheTTL: publicCacheTTL,
		},
		JWT: JWTConfig{
			Secret:        jwtSecret,
			Issuer:        viper.GetString("jwt.issuer"),
			AccessExpiry:  accessExpiry,
			RefreshExpiry: refreshExpiry,
		},
		RateLimit: RateLimitConfig{
			AddressCreatePerIP: viper.GetInt("ratelimit.address_create_per_ip"),
			Window:             rateWindow,
		},
	}

	return cfg, nil
}

// parseDomains 将逗号分隔的域名字符串解析为小写域名数组
func parseDomains(value string) []string {
	out := parseList(value)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//   1. 当前目录的 .env
//   2. 父目录的 .env（用于从 backend/ 子目录运行的情况）
//
// 注意：
//   - 如果文件不存在，静默失败（.env 是可选的）
//   - 环境变量不会被覆盖（已存在的环境变量优先级更高）
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
