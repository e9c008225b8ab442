package storage

import (
	"time"

	"mailsink/backend/internal/domain"
)

// AddressRepository 定义一次性地址的数据存取操作。
type AddressRepository interface {
	// CreateAddress 插入新地址；规范化地址触发唯一约束时返回 domain.ErrAddressExists。
	CreateAddress(address *domain.Address) error
	GetAddress(id string) (*domain.Address, error)
	// GetLiveAddressByEmail 按规范化地址查找未过期的地址。
	GetLiveAddressByEmail(email string) (*domain.Address, error)
	ListAddressesByOwnerID(ownerID string) []domain.Address
	DeleteAddress(id string) error
	// DeleteExpiredAddresses 级联删除过期地址及其邮件和附件，返回删除数量。
	DeleteExpiredAddresses() (int, error)
}

// MessageRepository 定义邮件数据存取操作。
type MessageRepository interface {
	// SaveMessageWithAttachments 在单个事务中写入邮件及其全部附件。
	// 任一写入失败则整体回滚，不会留下没有附件的半成品邮件。
	SaveMessageWithAttachments(message *domain.Message, attachments []*domain.Attachment) error
	ListMessages(addressID string) ([]domain.Message, error)
	GetMessage(addressID, messageID string) (*domain.Message, error)
	UpdateMessageFlags(addressID, messageID string, flags domain.MessageFlags) error
	GetAttachment(messageID, attachmentID string) (*domain.Attachment, error)
	DeleteMessage(addressID, messageID string) error
}

// UserRepository 定义用户数据存取操作。
type UserRepository interface {
	CreateUser(user *domain.User) error
	GetUserByID(id string) (*domain.User, error)
	GetUserByEmail(email string) (*domain.User, error)
	UpdateLastLogin(userID string) error
}

// RateLimitRepository 定义固定窗口限流计数操作。
//
// 入库服务可能多实例部署，计数必须放在共享存储（Redis）而不是进程内。
type RateLimitRepository interface {
	IncrementRateLimit(key string, window time.Duration) (int64, error)
	GetRateLimit(key string) (int64, error)
}

// Store 定义完整的存储接口。
type Store interface {
	AddressRepository
	MessageRepository
	UserRepository

	Close() error
	Health() error
}
