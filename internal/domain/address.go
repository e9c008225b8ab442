package domain

import (
	"strings"
	"time"
)

// Address 表示一次性邮箱地址的业务实体。
//
// Email 字段保存规范化（小写、去空白）后的完整地址，数据库层通过唯一索引
// 保证同一地址最多存在一条记录；历史上过期的记录由清理任务删除。
type Address struct {
	ID        string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email     string     `json:"email" gorm:"type:varchar(255);uniqueIndex"`
	OwnerID   *string    `json:"ownerId,omitempty" gorm:"type:varchar(36);index"` // 关联的用户ID（匿名地址为nil）
	DomainID  string     `json:"domainId" gorm:"type:varchar(36);index"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt" gorm:"index"`
}

// IsLive 判断地址在指定时刻是否仍然有效。
func (a *Address) IsLive(now time.Time) bool {
	return a.ExpiresAt.After(now)
}

// NormalizeEmail 规范化邮箱地址：去空白并转小写。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeRecipient 规范化收件人字符串。
//
// 邮件中继转发的收件人可能是 "Name <addr@example.com>" 的显示形式，
// 此时提取尖括号内的地址；否则仅做去空白和小写处理。
func NormalizeRecipient(raw string) string {
	if start := strings.Index(raw, "<"); start >= 0 {
		if end := strings.Index(raw[start:], ">"); end > 0 {
			raw = raw[start+1 : start+end]
		}
	}
	return NormalizeEmail(raw)
}
