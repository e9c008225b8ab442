package hybrid

import (
	"fmt"
	"time"

	"mailsink/backend/internal/domain"
	"mailsink/backend/internal/storage/redis"
	"mailsink/backend/internal/storage/sql"
)

// Store 混合存储实现，SQL 数据库为事实来源，Redis 负责
// 公共接口的邮件列表缓存与写入后的失效。
type Store struct {
	sql   *sql.Store
	redis *redis.Cache

	// 公共接口列表缓存的保留时长，很短，只为压制轮询放大
	listTTL time.Duration
}

// NewStore 创建混合存储实例
func NewStore(driverName, dsn string, opts sql.Options, redisAddr, redisPassword string, redisDB int, listTTL time.Duration) (*Store, error) {
	dbStore, err := sql.NewStore(driverName, dsn, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	redisCache, err := redis.NewCache(redisAddr, redisPassword, redisDB)
	if err != nil {
		dbStore.Close()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	return &Store{
		sql:     dbStore,
		redis:   redisCache,
		listTTL: listTTL,
	}, nil
}

// ========== Address Repository ==========

// CreateAddress 插入新地址
func (s *Store) CreateAddress(address *domain.Address) error {
	return s.sql.CreateAddress(address)
}

// GetAddress 根据 ID 获取地址
func (s *Store) GetAddress(id string) (*domain.Address, error) {
	return s.sql.GetAddress(id)
}

// GetLiveAddressByEmail 按规范化地址查找未过期的地址
func (s *Store) GetLiveAddressByEmail(email string) (*domain.Address, error) {
	return s.sql.GetLiveAddressByEmail(email)
}

// ListAddressesByOwnerID 返回指定用户的全部有效地址
func (s *Store) ListAddressesByOwnerID(ownerID string) []domain.Address {
	return s.sql.ListAddressesByOwnerID(ownerID)
}

// DeleteAddress 删除指定地址及其邮件和附件
func (s *Store) DeleteAddress(id string) error {
	if err := s.sql.DeleteAddress(id); err != nil {
		return err
	}
	s.redis.InvalidateMessageList(id)
	return nil
}

// DeleteExpiredAddresses 级联删除过期地址，返回删除数量
func (s *Store) DeleteExpiredAddresses() (int, error) {
	return s.sql.DeleteExpiredAddresses()
}

// ========== Message Repository ==========

// SaveMessageWithAttachments 写入邮件及附件并使列表缓存失效
func (s *Store) SaveMessageWithAttachments(message *domain.Message, attachments []*domain.Attachment) error {
	if err := s.sql.SaveMessageWithAttachments(message, attachments); err != nil {
		return err
	}
	// 缓存失效失败不影响写入结果，旧列表最多再活一个 TTL
	s.redis.InvalidateMessageList(message.AddressID)
	return nil
}

// ListMessages 返回邮件列表，优先命中 Redis 缓存
func (s *Store) ListMessages(addressID string) ([]domain.Message, error) {
	if cached, err := s.redis.GetCachedMessageList(addressID); err == nil {
		return cached, nil
	}

	messages, err := s.sql.ListMessages(addressID)
	if err != nil {
		return nil, err
	}

	s.redis.CacheMessageList(addressID, messages, s.listTTL)
	return messages, nil
}

// GetMessage 获取单封邮件
func (s *Store) GetMessage(addressID, messageID string) (*domain.Message, error) {
	return s.sql.GetMessage(addressID, messageID)
}

// UpdateMessageFlags 更新邮件标记
func (s *Store) UpdateMessageFlags(addressID, messageID string, flags domain.MessageFlags) error {
	if err := s.sql.UpdateMessageFlags(addressID, messageID, flags); err != nil {
		return err
	}
	s.redis.InvalidateMessageList(addressID)
	return nil
}

// GetAttachment 获取邮件附件
func (s *Store) GetAttachment(messageID, attachmentID string) (*domain.Attachment, error) {
	return s.sql.GetAttachment(messageID, attachmentID)
}

// DeleteMessage 删除指定邮件
func (s *Store) DeleteMessage(addressID, messageID string) error {
	if err := s.sql.DeleteMessage(addressID, messageID); err != nil {
		return err
	}
	s.redis.InvalidateMessageList(addressID)
	return nil
}

// ========== User Repository ==========

// CreateUser 创建用户
func (s *Store) CreateUser(user *domain.User) error {
	return s.sql.CreateUser(user)
}

// GetUserByID 根据 ID 获取用户
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	return s.sql.GetUserByID(id)
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	return s.sql.GetUserByEmail(email)
}

// UpdateLastLogin 更新最近登录时间
func (s *Store) UpdateLastLogin(userID string) error {
	return s.sql.UpdateLastLogin(userID)
}

// ========== Rate Limit Repository ==========

// IncrementRateLimit 增加限流计数（跨实例共享）
func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	return s.redis.IncrementRateLimit(key, window)
}

// GetRateLimit 获取限流计数
func (s *Store) GetRateLimit(key string) (int64, error) {
	return s.redis.GetRateLimit(key)
}

// ========== 工具方法 ==========

// Close 关闭数据库和 Redis 连接
func (s *Store) Close() error {
	s.redis.Close()
	return s.sql.Close()
}

// Health 检查底层存储健康状态
func (s *Store) Health() error {
	if err := s.sql.Health(); err != nil {
		return fmt.Errorf("database unhealthy: %w", err)
	}
	if err := s.redis.Health(); err != nil {
		return fmt.Errorf("redis unhealthy: %w", err)
	}
	return nil
}
