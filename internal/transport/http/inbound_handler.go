package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailsink/backend/internal/domain"
	"mailsink/backend/internal/relay"
	"mailsink/backend/internal/service"
)

// relayInbound 处理中继的入站 webhook 投递。
//
// 中继按自己的协议解读响应，这里不使用内部的统一响应格式：
// 2xx 表示投递完成，4xx 表示永久失败（中继不应重试），
// 5xx 才会触发中继的重试。错误信息保持笼统，不向外泄露内部细节。
func (h *Handler) relayInbound(c *gin.Context) {
	payload, err := buildRelayPayload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	message, err := h.ingest.IngestRelay(payload)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSignatureRejected):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		case errors.Is(err, service.ErrNoRecipient):
			c.JSON(http.StatusBadRequest, gin.H{"error": "no recipient"})
		case errors.Is(err, domain.ErrAddressNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown recipient"})
		default:
			h.log.Error("relay ingestion failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	recipient := ""
	if address, err := h.addresses.Get(message.AddressID); err == nil {
		recipient = address.Email
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "delivered",
		"emailId":   message.ID,
		"recipient": recipient,
	})
}

// buildRelayPayload 按请求形态填充中继载荷。
//
// 表单（urlencoded/multipart）进 Form，JSON 对象进 JSON，
// 其余内容原样放进 RawBody 交给原始 MIME 提取器兜底。
func buildRelayPayload(c *gin.Context) (*relay.Payload, error) {
	payload := &relay.Payload{
		Header: c.Request.Header,
		Form:   map[string]string{},
		JSON:   map[string]any{},
	}

	contentType := c.ContentType()
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, err
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &payload.JSON); err != nil {
				// 非对象的 JSON 正文按原始内容兜底
				payload.JSON = map[string]any{}
				payload.RawBody = string(body)
			}
		}

	case strings.HasPrefix(contentType, "application/x-www-form-urlencoded"),
		strings.HasPrefix(contentType, "multipart/form-data"):
		if err := c.Request.ParseMultipartForm(middlewareInboundMemory); err != nil &&
			!errors.Is(err, http.ErrNotMultipart) {
			return nil, err
		}
		for key, values := range c.Request.Form {
			if len(values) > 0 {
				payload.Form[key] = values[0]
			}
		}

	default:
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, err
		}
		payload.RawBody = string(body)
	}

	return payload, nil
}

// multipart 表单解析的内存上限，超出部分落临时文件
const middlewareInboundMemory = 8 << 20
