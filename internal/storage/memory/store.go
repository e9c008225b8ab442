package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"mailsink/backend/internal/domain"
)

// Store 使用内存保存地址与邮件数据，主要用于开发验证和测试。
//
// 行为上对齐 SQL 存储：规范化地址的唯一性、邮件+附件写入的
// 全有或全无语义、过期地址的级联删除都在这里等价实现。
type Store struct {
	mu          sync.RWMutex
	addresses   map[string]*domain.Address
	byEmail     map[string]string                        // 规范化地址 -> addressID（唯一索引等价物）
	messages    map[string]map[string]*domain.Message    // addressID -> messageID -> message
	attachments map[string]map[string]*domain.Attachment // messageID -> attachmentID -> attachment
	users       map[string]*domain.User
	byUserEmail map[string]string

	// 速率限制（仅开发模式；生产环境走 Redis 共享计数）
	rateLimits map[string]*rateLimitEntry
}

// rateLimitEntry 速率限制条目
type rateLimitEntry struct {
	Count     int64
	ExpiresAt time.Time
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		addresses:   make(map[string]*domain.Address),
		byEmail:     make(map[string]string),
		messages:    make(map[string]map[string]*domain.Message),
		attachments: make(map[string]map[string]*domain.Attachment),
		users:       make(map[string]*domain.User),
		byUserEmail: make(map[string]string),
		rateLimits:  make(map[string]*rateLimitEntry),
	}
}

// ========== Address Repository ==========

// CreateAddress 插入新地址。
//
// byEmail 映射模拟数据库的唯一索引：已有同名地址（包括已过期但
// 尚未清理的记录）时返回 domain.ErrAddressExists，由上层做冲突恢复。
func (s *Store) CreateAddress(address *domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.byEmail[address.Email]; ok {
		existing := s.addresses[existingID]
		if existing != nil && existing.IsLive(time.Now()) {
			return domain.ErrAddressExists
		}
		// 过期残留：让位给新记录
		s.deleteAddressLocked(existingID)
	}

	s.addresses[address.ID] = address
	s.byEmail[address.Email] = address.ID
	return nil
}

// GetAddress 根据 ID 获取地址。
func (s *Store) GetAddress(id string) (*domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	address, ok := s.addresses[id]
	if !ok {
		return nil, domain.ErrAddressNotFound
	}
	return address, nil
}

// GetLiveAddressByEmail 按规范化地址查找未过期的地址。
func (s *Store) GetLiveAddressByEmail(email string) (*domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, domain.ErrAddressNotFound
	}

	address := s.addresses[id]
	if address == nil || !address.IsLive(time.Now()) {
		return nil, domain.ErrAddressNotFound
	}
	return address, nil
}

// ListAddressesByOwnerID 返回指定用户的全部有效地址。
func (s *Store) ListAddressesByOwnerID(ownerID string) []domain.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	out := make([]domain.Address, 0)
	for _, address := range s.addresses {
		if address.OwnerID != nil && *address.OwnerID == ownerID && address.IsLive(now) {
			out = append(out, *address)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// DeleteAddress 删除指定地址及其邮件和附件。
func (s *Store) DeleteAddress(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.addresses[id]; !ok {
		return domain.ErrAddressNotFound
	}
	s.deleteAddressLocked(id)
	return nil
}

// DeleteExpiredAddresses 级联删除过期地址，返回删除数量。
func (s *Store) DeleteExpiredAddresses() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	expired := make([]string, 0)
	for id, address := range s.addresses {
		if !address.IsLive(now) {
			expired = append(expired, id)
		}
	}

	for _, id := range expired {
		s.deleteAddressLocked(id)
	}
	return len(expired), nil
}

// deleteAddressLocked 在持锁状态下级联删除地址。
func (s *Store) deleteAddressLocked(id string) {
	if address, ok := s.addresses[id]; ok {
		if s.byEmail[address.Email] == id {
			delete(s.byEmail, address.Email)
		}
	}
	for messageID := range s.messages[id] {
		delete(s.attachments, messageID)
	}
	delete(s.messages, id)
	delete(s.addresses, id)
}

// ========== Message Repository ==========

// SaveMessageWithAttachments 写入邮件及其全部附件。
//
// 与 SQL 存储的事务语义保持一致：先校验全部记录，任何一条会失败
// 就整体放弃，不做部分写入。
func (s *Store) SaveMessageWithAttachments(message *domain.Message, attachments []*domain.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.addresses[message.AddressID]; !ok {
		return fmt.Errorf("address %s does not exist", message.AddressID)
	}
	if byID := s.messages[message.AddressID]; byID != nil {
		if _, ok := byID[message.ID]; ok {
			return fmt.Errorf("message %s already exists", message.ID)
		}
	}

	seen := make(map[string]struct{}, len(attachments))
	for _, att := range attachments {
		if att.ID == "" {
			return fmt.Errorf("attachment without id for message %s", message.ID)
		}
		if _, dup := seen[att.ID]; dup {
			return fmt.Errorf("duplicate attachment id %s", att.ID)
		}
		seen[att.ID] = struct{}{}
	}

	if s.messages[message.AddressID] == nil {
		s.messages[message.AddressID] = make(map[string]*domain.Message)
	}
	s.messages[message.AddressID][message.ID] = message

	if len(attachments) > 0 {
		byID := make(map[string]*domain.Attachment, len(attachments))
		for _, att := range attachments {
			att.MessageID = message.ID
			byID[att.ID] = att
		}
		s.attachments[message.ID] = byID
	}
	return nil
}

// ListMessages 返回某个地址下的全部邮件，按接收时间倒序。
func (s *Store) ListMessages(addressID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := s.messages[addressID]
	out := make([]domain.Message, 0, len(byID))
	for _, message := range byID {
		out = append(out, *message)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	return out, nil
}

// GetMessage 获取单封邮件，附带附件列表。
func (s *Store) GetMessage(addressID, messageID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := s.messages[addressID]
	message, ok := byID[messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}

	copied := *message
	copied.Attachments = make([]*domain.Attachment, 0, len(s.attachments[messageID]))
	for _, att := range s.attachments[messageID] {
		copied.Attachments = append(copied.Attachments, att)
	}
	sort.Slice(copied.Attachments, func(i, j int) bool {
		return copied.Attachments[i].ID < copied.Attachments[j].ID
	})
	return &copied, nil
}

// UpdateMessageFlags 更新邮件标记，nil 字段保持原值。
func (s *Store) UpdateMessageFlags(addressID, messageID string, flags domain.MessageFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.messages[addressID]
	message, ok := byID[messageID]
	if !ok {
		return domain.ErrMessageNotFound
	}

	if flags.IsRead != nil {
		message.IsRead = *flags.IsRead
	}
	if flags.IsStarred != nil {
		message.IsStarred = *flags.IsStarred
	}
	if flags.IsArchived != nil {
		message.IsArchived = *flags.IsArchived
	}
	if flags.IsSpam != nil {
		message.IsSpam = *flags.IsSpam
	}
	return nil
}

// GetAttachment 获取邮件附件。
func (s *Store) GetAttachment(messageID, attachmentID string) (*domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	att, ok := s.attachments[messageID][attachmentID]
	if !ok {
		return nil, domain.ErrAttachmentNotFound
	}
	return att, nil
}

// DeleteMessage 删除指定邮件及其附件。
func (s *Store) DeleteMessage(addressID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.messages[addressID]
	if _, ok := byID[messageID]; !ok {
		return domain.ErrMessageNotFound
	}
	delete(byID, messageID)
	delete(s.attachments, messageID)
	return nil
}

// ========== User Repository ==========

// CreateUser 创建用户。
func (s *Store) CreateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUserEmail[user.Email]; ok {
		return domain.ErrEmailTaken
	}
	s.users[user.ID] = user
	s.byUserEmail[user.Email] = user.ID
	return nil
}

// GetUserByID 根据 ID 获取用户。
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// GetUserByEmail 根据邮箱获取用户。
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUserEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return s.users[id], nil
}

// UpdateLastLogin 更新最近登录时间。
func (s *Store) UpdateLastLogin(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	now := time.Now().UTC()
	user.LastLoginAt = &now
	return nil
}

// ========== Rate Limit Repository ==========

// IncrementRateLimit 增加固定窗口计数，窗口过期后重新计数。
func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry, ok := s.rateLimits[key]
	if !ok || now.After(entry.ExpiresAt) {
		entry = &rateLimitEntry{ExpiresAt: now.Add(window)}
		s.rateLimits[key] = entry
	}
	entry.Count++
	return entry.Count, nil
}

// GetRateLimit 读取当前窗口计数。
func (s *Store) GetRateLimit(key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.rateLimits[key]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return 0, nil
	}
	return entry.Count, nil
}

// ========== 工具方法 ==========

// Close 关闭存储（内存实现为空操作）。
func (s *Store) Close() error { return nil }

// Health 健康检查（内存实现恒为健康）。
func (s *Store) Health() error { return nil }
