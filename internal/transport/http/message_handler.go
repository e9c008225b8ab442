package httptransport

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailsink/backend/internal/domain"
)

type attachmentInfo struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	IsInline    bool   `json:"isInline"`
}

type messageResponse struct {
	ID          string           `json:"id"`
	AddressID   string           `json:"addressId"`
	From        string           `json:"from"`
	Subject     string           `json:"subject"`
	HTML        string           `json:"html"`
	Text        string           `json:"text"`
	ReceivedAt  time.Time        `json:"receivedAt"`
	IsRead      bool             `json:"isRead"`
	IsStarred   bool             `json:"isStarred"`
	IsArchived  bool             `json:"isArchived"`
	IsSpam      bool             `json:"isSpam"`
	Attachments []attachmentInfo `json:"attachments,omitempty"` // 附件列表（不包含内容）
}

type messageListResponse struct {
	Items []messageResponse `json:"items"`
	Count int               `json:"count"`
}

// listMessages 返回地址下的全部邮件，按接收时间倒序。
func (h *Handler) listMessages(c *gin.Context) {
	address, ok := h.authorizedAddress(c)
	if !ok {
		return
	}

	messages, err := h.messages.List(address.ID)
	if err != nil {
		h.log.Error("failed to list messages", zap.Error(err))
		InternalError(c, MsgMessageListFailed)
		return
	}

	Success(c, toMessageListResponse(messages))
}

// getMessage 查看单封邮件内容，附带附件元数据。
func (h *Handler) getMessage(c *gin.Context) {
	address, ok := h.authorizedAddress(c)
	if !ok {
		return
	}

	message, err := h.messages.Get(address.ID, c.Param("messageId"))
	if err != nil {
		if err == domain.ErrMessageNotFound {
			NotFound(c, MsgMessageNotFound)
		} else {
			h.log.Error("failed to get message", zap.Error(err))
			InternalError(c, MsgMessageGetFailed)
		}
		return
	}

	Success(c, toMessageResponse(message))
}

// updateMessageFlags 更新邮件标记，未出现的字段保持原值。
func (h *Handler) updateMessageFlags(c *gin.Context) {
	address, ok := h.authorizedAddress(c)
	if !ok {
		return
	}

	var flags domain.MessageFlags
	if err := c.ShouldBindJSON(&flags); err != nil {
		BadRequest(c, MsgInvalidFlags)
		return
	}

	if err := h.messages.UpdateFlags(address.ID, c.Param("messageId"), flags); err != nil {
		if err == domain.ErrMessageNotFound {
			NotFound(c, MsgMessageNotFound)
		} else {
			h.log.Error("failed to update message flags", zap.Error(err))
			InternalError(c, MsgMessageFlagFailed)
		}
		return
	}

	message, err := h.messages.Get(address.ID, c.Param("messageId"))
	if err != nil {
		NotFound(c, MsgMessageNotFound)
		return
	}

	Success(c, toMessageResponse(message))
}

// deleteMessage 删除指定邮件。
func (h *Handler) deleteMessage(c *gin.Context) {
	address, ok := h.authorizedAddress(c)
	if !ok {
		return
	}

	if err := h.messages.Delete(address.ID, c.Param("messageId")); err != nil {
		if err == domain.ErrMessageNotFound {
			NotFound(c, MsgMessageNotFound)
		} else {
			h.log.Error("failed to delete message", zap.Error(err))
			InternalError(c, MsgMessageDeleteFailed)
		}
		return
	}
	NoContent(c)
}

// downloadAttachment 下载邮件附件。
func (h *Handler) downloadAttachment(c *gin.Context) {
	address, ok := h.authorizedAddress(c)
	if !ok {
		return
	}

	attachment, err := h.messages.GetAttachment(address.ID, c.Param("messageId"), c.Param("attachmentId"))
	if err != nil {
		if err == domain.ErrMessageNotFound {
			NotFound(c, MsgMessageNotFound)
		} else {
			NotFound(c, MsgAttachmentNotFound)
		}
		return
	}

	// 附件下载不使用统一响应格式，直接返回二进制流
	c.Header("Content-Disposition", "attachment; filename=\""+attachment.Filename+"\"")
	c.Header("Content-Length", fmt.Sprintf("%d", attachment.Size))
	c.Data(http.StatusOK, attachment.ContentType, attachment.Content)
}

// listPublicMessages 公开的按地址读信端点。
//
// 只接受有效地址的规范化邮箱，短缓存由 CDN/浏览器层消化轮询压力。
func (h *Handler) listPublicMessages(c *gin.Context) {
	address, err := h.addresses.GetLiveByEmail(c.Param("email"))
	if err != nil {
		NotFound(c, MsgAddressNotFound)
		return
	}

	messages, err := h.messages.List(address.ID)
	if err != nil {
		h.log.Error("failed to list public messages", zap.Error(err))
		InternalError(c, MsgMessageListFailed)
		return
	}

	c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", int(h.cacheTTL.Seconds())))
	Success(c, toMessageListResponse(messages))
}

func toMessageListResponse(messages []domain.Message) messageListResponse {
	items := make([]messageResponse, 0, len(messages))
	for i := range messages {
		items = append(items, toMessageResponse(&messages[i]))
	}
	return messageListResponse{Items: items, Count: len(items)}
}

// toMessageResponse 转换邮件实体为响应体。
func toMessageResponse(message *domain.Message) messageResponse {
	attachments := make([]attachmentInfo, 0, len(message.Attachments))
	for _, att := range message.Attachments {
		attachments = append(attachments, attachmentInfo{
			ID:          att.ID,
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        att.Size,
			IsInline:    att.IsInline,
		})
	}

	return messageResponse{
		ID:          message.ID,
		AddressID:   message.AddressID,
		From:        message.FromAddress,
		Subject:     message.Subject,
		HTML:        message.HTMLBody,
		Text:        message.TextBody,
		ReceivedAt:  message.ReceivedAt,
		IsRead:      message.IsRead,
		IsStarred:   message.IsStarred,
		IsArchived:  message.IsArchived,
		IsSpam:      message.IsSpam,
		Attachments: attachments,
	}
}
