package httptransport

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailsink/backend/internal/domain"
	"mailsink/backend/internal/middleware"
	"mailsink/backend/internal/service"
)

type createAddressRequest struct {
	Prefix   string `json:"prefix"`
	Domain   string `json:"domain"`
	Email    string `json:"email"`    // 完整地址形式，等价于 prefix + domain
	DomainID string `json:"domainId"` // domain 的别名，兼容旧客户端
}

// normalize 把两种请求形式归并为 prefix + domain。
func (r *createAddressRequest) normalize() (prefix, domainName string) {
	prefix = r.Prefix
	domainName = r.Domain
	if domainName == "" {
		domainName = r.DomainID
	}
	if prefix == "" && r.Email != "" {
		if at := strings.Index(r.Email, "@"); at >= 0 {
			prefix = r.Email[:at]
			if domainName == "" {
				domainName = r.Email[at+1:]
			}
		} else {
			prefix = r.Email
		}
	}
	return prefix, domainName
}

type addressResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	DomainID  string    `json:"domainId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type addressListResponse struct {
	Items []addressResponse `json:"items"`
	Count int               `json:"count"`
}

// createAddress 创建一次性地址，同名有效地址直接复用。
//
// 空请求体按全随机地址处理。疑似机器人流量拿到占位地址，
// 响应形态与正常创建一致，不落库。
func (h *Handler) createAddress(c *gin.Context) {
	var req createAddressRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, MsgInvalidRequest)
			return
		}
	}

	if middleware.IsSuspectedBot(c) {
		Created(c, toAddressResponse(h.addresses.PlaceholderAddress()))
		return
	}

	// 提取用户ID（如果已认证）
	var ownerID *string
	if userIDVal, exists := c.Get("userID"); exists {
		if uid, ok := userIDVal.(string); ok {
			ownerID = &uid
		}
	}

	prefix, domainName := req.normalize()
	address, err := h.addresses.CreateOrReuse(service.CreateAddressInput{
		Prefix:  prefix,
		Domain:  domainName,
		OwnerID: ownerID,
	})
	if err != nil {
		switch err {
		case service.ErrDomainNotAllowed, service.ErrPrefixInvalid:
			BadRequest(c, GetErrorMessage(err))
		default:
			h.log.Error("failed to create address", zap.Error(err))
			InternalError(c, MsgAddressCreateFailed)
		}
		return
	}

	Created(c, toAddressResponse(address))
}

// listAddresses 返回当前用户的全部有效地址。
func (h *Handler) listAddresses(c *gin.Context) {
	userID := c.GetString("userID")

	addresses := h.addresses.ListByOwnerID(userID)

	items := make([]addressResponse, 0, len(addresses))
	for i := range addresses {
		items = append(items, toAddressResponse(&addresses[i]))
	}

	Success(c, addressListResponse{
		Items: items,
		Count: len(items),
	})
}

// getAddress 获取地址详情。
func (h *Handler) getAddress(c *gin.Context) {
	address, ok := h.authorizedAddress(c)
	if !ok {
		return
	}
	Success(c, toAddressResponse(address))
}

// deleteAddress 删除地址及其全部邮件。
func (h *Handler) deleteAddress(c *gin.Context) {
	address, ok := h.authorizedAddress(c)
	if !ok {
		return
	}

	if err := h.addresses.Delete(address.ID); err != nil {
		if err == domain.ErrAddressNotFound {
			NotFound(c, MsgAddressNotFound)
		} else {
			h.log.Error("failed to delete address", zap.Error(err))
			InternalError(c, MsgAddressDeleteFailed)
		}
		return
	}
	NoContent(c)
}

// listDomains 返回允许签发地址的域名列表。
func (h *Handler) listDomains(c *gin.Context) {
	domains := h.addresses.Domains()
	Success(c, gin.H{
		"domains": domains,
		"count":   len(domains),
	})
}

// authorizedAddress 加载路径中的地址并做归属校验。
//
// 匿名地址凭 ID 即可访问（ID 即凭证）；有归属的地址只有
// 所有者可见，归属不符按不存在处理，不向外暴露地址是否签发过。
func (h *Handler) authorizedAddress(c *gin.Context) (*domain.Address, bool) {
	address, err := h.addresses.Get(c.Param("id"))
	if err != nil {
		NotFound(c, MsgAddressNotFound)
		return nil, false
	}

	if address.OwnerID != nil && *address.OwnerID != "" {
		if c.GetString("userID") != *address.OwnerID {
			NotFound(c, MsgAddressNotFound)
			return nil, false
		}
	}

	return address, true
}

// toAddressResponse 转换实体为响应体。
func toAddressResponse(address *domain.Address) addressResponse {
	return addressResponse{
		ID:        address.ID,
		Email:     address.Email,
		DomainID:  address.DomainID,
		CreatedAt: address.CreatedAt,
		ExpiresAt: address.ExpiresAt,
	}
}
