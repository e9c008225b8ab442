package domain

import "time"

// Message 表示一封已入库的邮件。
type Message struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AddressID   string    `json:"addressId" gorm:"type:varchar(36);index;not null"`
	FromAddress string    `json:"fromAddress" gorm:"type:varchar(255)"`
	Subject     string    `json:"subject" gorm:"type:varchar(500)"`
	HTMLBody    string    `json:"htmlBody" gorm:"type:text"`
	TextBody    string    `json:"textBody" gorm:"type:text"`
	ReceivedAt  time.Time `json:"receivedAt"`
	// 状态标记，由地址所有者修改，不参与入库流程
	IsRead     bool `json:"isRead" gorm:"default:false;index"`
	IsStarred  bool `json:"isStarred" gorm:"default:false"`
	IsArchived bool `json:"isArchived" gorm:"default:false"`
	IsSpam     bool `json:"isSpam" gorm:"default:false"`

	Attachments []*Attachment `json:"attachments,omitempty" gorm:"-"` // 附件列表，与邮件同事务写入
}

// MessageFlags 描述一次标记更新。nil 字段表示保持原值。
type MessageFlags struct {
	IsRead     *bool `json:"isRead,omitempty"`
	IsStarred  *bool `json:"isStarred,omitempty"`
	IsArchived *bool `json:"isArchived,omitempty"`
	IsSpam     *bool `json:"isSpam,omitempty"`
}
