package domain

// Attachment 表示邮件附件，与所属邮件在同一事务中写入。
type Attachment struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(36)"`            // 附件唯一标识
	MessageID   string `json:"messageId" gorm:"type:varchar(36);index;not null"` // 所属邮件ID
	Filename    string `json:"filename" gorm:"type:varchar(255)"`                // 文件名（缺失时由分类器合成）
	ContentType string `json:"contentType" gorm:"type:varchar(100)"`             // MIME类型
	Content     []byte `json:"-"`                                                // 解码后的附件内容
	Size        int64  `json:"size"`                                             // 大小（字节）
	IsInline    bool   `json:"isInline" gorm:"default:false"`                    // 是否内联展示
}
