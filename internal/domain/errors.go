package domain

import "errors"

var (
	// ErrAddressNotFound 表示收件人没有对应的有效地址。
	// 对过期或从未签发的邮箱而言这是预期结果，不作为服务端错误处理。
	ErrAddressNotFound = errors.New("address not found")
	// ErrAddressExists 表示规范化地址触发了唯一约束。
	ErrAddressExists = errors.New("address already exists")
	// ErrMessageNotFound 邮件不存在。
	ErrMessageNotFound = errors.New("message not found")
	// ErrAttachmentNotFound 附件不存在。
	ErrAttachmentNotFound = errors.New("attachment not found")
	// ErrUserNotFound 用户不存在。
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken 注册邮箱已被占用。
	ErrEmailTaken = errors.New("email already registered")
)
