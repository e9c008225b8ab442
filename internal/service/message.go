package service

import (
	"mailsink/backend/internal/domain"
	"mailsink/backend/internal/storage"
)

// MessageService 封装邮件的读取与标记操作。
type MessageService struct {
	repo storage.MessageRepository
}

// NewMessageService 创建邮件业务服务。
func NewMessageService(repo storage.MessageRepository) *MessageService {
	return &MessageService{repo: repo}
}

// List 列出指定地址下的邮件。
func (s *MessageService) List(addressID string) ([]domain.Message, error) {
	return s.repo.ListMessages(addressID)
}

// Get 获取单封邮件详情，附带附件列表。
func (s *MessageService) Get(addressID, messageID string) (*domain.Message, error) {
	return s.repo.GetMessage(addressID, messageID)
}

// UpdateFlags 更新邮件标记，未指定的字段保持原值。
func (s *MessageService) UpdateFlags(addressID, messageID string, flags domain.MessageFlags) error {
	return s.repo.UpdateMessageFlags(addressID, messageID, flags)
}

// GetAttachment 获取邮件附件，先确认邮件归属再取附件。
func (s *MessageService) GetAttachment(addressID, messageID, attachmentID string) (*domain.Attachment, error) {
	if _, err := s.repo.GetMessage(addressID, messageID); err != nil {
		return nil, err
	}
	return s.repo.GetAttachment(messageID, attachmentID)
}

// Delete 删除指定邮件。
func (s *MessageService) Delete(addressID, messageID string) error {
	return s.repo.DeleteMessage(addressID, messageID)
}
