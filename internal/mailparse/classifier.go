package mailparse

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"

	"mailsink/backend/internal/domain"
)

// Classified 表示按内容类型归类后的邮件内容。
type Classified struct {
	HTML        string
	Text        string
	Attachments []*domain.Attachment
}

// Classify 将解析出的片段归类为 HTML 正文、纯文本正文和附件。
//
// 归类策略：
//   - content-type 含 text/html 的片段为 HTML 正文，首个匹配生效；
//   - content-type 含 text/plain 的片段为纯文本正文，首个匹配生效；
//   - image/ 或 application/ 开头的片段视为附件，文件名缺失时合成。
//
// 仅有纯文本时合成 HTML 正文：先转义再包进保留空白的容器，
// 文本来自外部发件人，不能未转义直接做换行替换。
func Classify(parts []Part) Classified {
	var out Classified

	for _, part := range parts {
		ct := strings.ToLower(part.ContentType)

		switch {
		case strings.Contains(ct, "text/html"):
			if out.HTML == "" {
				out.HTML = part.Content
			}
		case strings.Contains(ct, "text/plain"):
			if out.Text == "" {
				out.Text = part.Content
			}
		case strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "application/"):
			out.Attachments = append(out.Attachments, toAttachment(part))
		}
	}

	if out.HTML == "" && out.Text != "" {
		out.HTML = synthesizeHTML(out.Text)
	}

	return out
}

// toAttachment 将片段转换为附件实体。
func toAttachment(part Part) *domain.Attachment {
	filename := part.Filename
	if filename == "" {
		filename = fmt.Sprintf("attachment-%d", time.Now().UnixNano())
	}

	content := []byte(part.Content)

	return &domain.Attachment{
		ID:          uuid.NewString(),
		Filename:    filename,
		ContentType: part.ContentType,
		Content:     content,
		Size:        int64(len(content)),
		IsInline:    strings.HasPrefix(strings.ToLower(part.ContentType), "image/"),
	}
}

// synthesizeHTML 从纯文本合成 HTML 正文。
func synthesizeHTML(text string) string {
	return `<div style="white-space: pre-wrap;">` + html.EscapeString(text) + `</div>`
}
