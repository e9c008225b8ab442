package httptransport

import (
	"mailsink/backend/internal/domain"
	"mailsink/backend/internal/service"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// Address 错误
	service.ErrDomainNotAllowed: "域名不在允许列表中",
	service.ErrPrefixInvalid:    "地址前缀格式无效",
	domain.ErrAddressNotFound:   "地址不存在或已过期",

	// Message 错误
	domain.ErrMessageNotFound:    "邮件不存在",
	domain.ErrAttachmentNotFound: "附件不存在",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	return err.Error()
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest   = "请求参数格式错误"
	MsgInvalidFlags     = "标记字段格式无效"
	MsgRequestBodyEmpty = "请求体不能为空"

	// 认证相关
	MsgAuthRequired       = "需要登录认证"
	MsgInvalidCredentials = "邮箱或密码错误"
	MsgTokenExpired       = "登录已过期，请重新登录"
	MsgTokenInvalid       = "无效的访问令牌"

	// 地址相关
	MsgAddressCreateFailed = "创建地址失败"
	MsgAddressNotFound     = "地址不存在或已过期"
	MsgAddressDeleteFailed = "删除地址失败"
	MsgAddressListFailed   = "获取地址列表失败"

	// 邮件相关
	MsgMessageNotFound       = "邮件不存在"
	MsgMessageListFailed     = "获取邮件列表失败"
	MsgMessageGetFailed      = "获取邮件详情失败"
	MsgMessageFlagFailed     = "更新邮件标记失败"
	MsgMessageDeleteFailed   = "删除邮件失败"

	// 附件相关
	MsgAttachmentNotFound = "附件不存在"

	// 用户相关
	MsgUserNotFound  = "用户不存在"
	MsgUserGetFailed = "获取用户信息失败"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
