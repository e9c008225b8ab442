package sql

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mailsink/backend/internal/domain"
)

// Store 关系型数据库存储实现（支持 PostgreSQL 和 MySQL 5.7+）
type Store struct {
	db *gorm.DB
}

// Options 连接池参数
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultOptions 默认连接池参数
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// NewStore 根据驱动名创建存储实例
func NewStore(driverName, dsn string, opts Options) (*Store, error) {
	switch driverName {
	case "postgres":
		return NewStoreWithDialector(postgres.Open(dsn), opts)
	case "mysql":
		return NewStoreWithDialector(mysql.Open(dsn), opts)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, mysql)", driverName)
	}
}

// NewStoreWithDialector 使用指定的 GORM dialector 创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, opts Options) (*Store, error) {
	// TranslateError 把各数据库的唯一约束冲突统一成 gorm.ErrDuplicatedKey
	config := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	store := &Store{db: db}

	// 自动迁移数据库表
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 自动迁移数据库表结构
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.User{},
		&domain.Address{},
		&domain.Message{},
		&domain.Attachment{},
	)
}

// ========== Address Repository ==========

// CreateAddress 插入新地址。
//
// email 列的唯一索引覆盖所有行，已过期但尚未被清理任务删掉的
// 残留会占住索引，这里先在同一事务内级联清掉残留再插入。
// 并发创建同一有效地址时，后到的插入收到唯一冲突并转换为
// domain.ErrAddressExists，由调用方重新查询已存在的记录。
func (s *Store) CreateAddress(address *domain.Address) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var stale []domain.Address
		if err := tx.Where("email = ? AND expires_at <= ?", address.Email, time.Now()).
			Find(&stale).Error; err != nil {
			return err
		}
		for _, old := range stale {
			if err := deleteAddressDataLocked(tx, old.ID); err != nil {
				return err
			}
			if err := tx.Where("id = ?", old.ID).Delete(&domain.Address{}).Error; err != nil {
				return err
			}
		}
		return tx.Create(address).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrAddressExists
	}
	return err
}

// GetAddress 根据 ID 获取地址
func (s *Store) GetAddress(id string) (*domain.Address, error) {
	var address domain.Address
	err := s.db.Where("id = ?", id).First(&address).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAddressNotFound
		}
		return nil, err
	}
	return &address, nil
}

// GetLiveAddressByEmail 按规范化地址查找未过期的地址
func (s *Store) GetLiveAddressByEmail(email string) (*domain.Address, error) {
	var address domain.Address
	err := s.db.Where("email = ? AND expires_at > ?", email, time.Now()).First(&address).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAddressNotFound
		}
		return nil, err
	}
	return &address, nil
}

// ListAddressesByOwnerID 返回指定用户的全部有效地址
func (s *Store) ListAddressesByOwnerID(ownerID string) []domain.Address {
	var addresses []domain.Address
	s.db.Where("owner_id = ? AND expires_at > ?", ownerID, time.Now()).
		Order("created_at DESC").
		Find(&addresses)
	return addresses
}

// DeleteAddress 删除指定地址及其邮件和附件
func (s *Store) DeleteAddress(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var address domain.Address
		if err := tx.Where("id = ?", id).First(&address).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrAddressNotFound
			}
			return err
		}

		if err := deleteAddressDataLocked(tx, id); err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Address{}).Error
	})
}

// DeleteExpiredAddresses 级联删除过期地址，返回删除数量
func (s *Store) DeleteExpiredAddresses() (int, error) {
	var count int64

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var expired []domain.Address
		if err := tx.Where("expires_at <= ?", time.Now()).Find(&expired).Error; err != nil {
			return err
		}

		count = int64(len(expired))
		if count == 0 {
			return nil
		}

		for _, addr := range expired {
			if err := deleteAddressDataLocked(tx, addr.ID); err != nil {
				return err
			}
		}

		return tx.Where("expires_at <= ?", time.Now()).Delete(&domain.Address{}).Error
	})

	return int(count), err
}

// deleteAddressDataLocked 在事务内删除地址下的邮件和附件
func deleteAddressDataLocked(tx *gorm.DB, addressID string) error {
	if err := tx.Where("message_id IN (SELECT id FROM messages WHERE address_id = ?)", addressID).
		Delete(&domain.Attachment{}).Error; err != nil {
		return err
	}
	return tx.Where("address_id = ?", addressID).Delete(&domain.Message{}).Error
}

// ========== Message Repository ==========

// SaveMessageWithAttachments 在单个事务内写入邮件及其全部附件。
// 任何一条附件写入失败都会回滚整笔写入，不留下孤儿邮件。
func (s *Store) SaveMessageWithAttachments(message *domain.Message, attachments []*domain.Attachment) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}

		for _, att := range attachments {
			att.MessageID = message.ID
			if err := tx.Create(att).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ListMessages 返回某个地址下的全部邮件，按接收时间倒序
func (s *Store) ListMessages(addressID string) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.db.Where("address_id = ?", addressID).Order("received_at DESC").Find(&messages).Error
	return messages, err
}

// GetMessage 获取单封邮件，附带附件列表
func (s *Store) GetMessage(addressID, messageID string) (*domain.Message, error) {
	var message domain.Message
	err := s.db.Where("id = ? AND address_id = ?", messageID, addressID).First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}

	if err := s.db.Where("message_id = ?", messageID).Order("id").Find(&message.Attachments).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// UpdateMessageFlags 更新邮件标记，nil 字段保持原值
func (s *Store) UpdateMessageFlags(addressID, messageID string, flags domain.MessageFlags) error {
	updates := map[string]interface{}{}
	if flags.IsRead != nil {
		updates["is_read"] = *flags.IsRead
	}
	if flags.IsStarred != nil {
		updates["is_starred"] = *flags.IsStarred
	}
	if flags.IsArchived != nil {
		updates["is_archived"] = *flags.IsArchived
	}
	if flags.IsSpam != nil {
		updates["is_spam"] = *flags.IsSpam
	}
	if len(updates) == 0 {
		return nil
	}

	result := s.db.Model(&domain.Message{}).
		Where("id = ? AND address_id = ?", messageID, addressID).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// 可能是记录不存在，也可能是值没有变化；区分这两种情况
		var count int64
		if err := s.db.Model(&domain.Message{}).
			Where("id = ? AND address_id = ?", messageID, addressID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrMessageNotFound
		}
	}
	return nil
}

// GetAttachment 获取邮件附件
func (s *Store) GetAttachment(messageID, attachmentID string) (*domain.Attachment, error) {
	var attachment domain.Attachment
	err := s.db.Where("id = ? AND message_id = ?", attachmentID, messageID).First(&attachment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAttachmentNotFound
		}
		return nil, err
	}
	return &attachment, nil
}

// DeleteMessage 删除指定邮件及其附件
func (s *Store) DeleteMessage(addressID, messageID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND address_id = ?", messageID, addressID).Delete(&domain.Message{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrMessageNotFound
		}
		return tx.Where("message_id = ?", messageID).Delete(&domain.Attachment{}).Error
	})
}

// ========== User Repository ==========

// CreateUser 创建新用户
func (s *Store) CreateUser(user *domain.User) error {
	err := s.db.Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrEmailTaken
	}
	return err
}

// GetUserByID 根据 ID 获取用户
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	var user domain.User
	err := s.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	var user domain.User
	err := s.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin 更新用户最后登录时间
func (s *Store) UpdateLastLogin(userID string) error {
	return s.db.Model(&domain.User{}).
		Where("id = ?", userID).
		Update("last_login_at", time.Now().UTC()).Error
}

// ========== 工具方法 ==========

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
