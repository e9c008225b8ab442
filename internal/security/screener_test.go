package security

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mailsink/backend/internal/domain"
)

func TestScreener(t *testing.T) {
	screener := NewScreener()

	t.Run("普通邮件不打标", func(t *testing.T) {
		spam, reason := screener.Screen(&domain.Message{
			Subject:  "会议纪要",
			TextBody: "附件是今天的会议纪要，请查收。",
			HTMLBody: "<p>附件是今天的会议纪要。</p>",
		})
		assert.False(t, spam)
		assert.Empty(t, reason)
	})

	t.Run("正文命中垃圾关键词", func(t *testing.T) {
		spam, reason := screener.Screen(&domain.Message{
			Subject:  "Hot deal",
			TextBody: "Free money for everyone, act now!",
		})
		assert.True(t, spam)
		assert.Contains(t, reason, "spam keyword")
	})

	t.Run("主题命中垃圾关键词", func(t *testing.T) {
		spam, _ := screener.Screen(&domain.Message{
			Subject: "Congratulations! You are the WINNER",
		})
		assert.True(t, spam)
	})

	t.Run("HTML正文含脚本", func(t *testing.T) {
		spam, reason := screener.Screen(&domain.Message{
			Subject:  "newsletter",
			HTMLBody: `<div><script src="https://evil.example/x.js"></script></div>`,
		})
		assert.True(t, spam)
		assert.Contains(t, reason, "active content")
	})

	t.Run("危险附件扩展名", func(t *testing.T) {
		spam, reason := screener.Screen(&domain.Message{
			Subject: "invoice",
			Attachments: []*domain.Attachment{
				{Filename: "Invoice.EXE", Content: []byte("not really")},
			},
		})
		assert.True(t, spam)
		assert.Contains(t, reason, ".exe")
	})

	t.Run("附件内容为可执行文件", func(t *testing.T) {
		spam, reason := screener.Screen(&domain.Message{
			Subject: "photo",
			Attachments: []*domain.Attachment{
				{Filename: "photo.png", Content: []byte{0x7F, 0x45, 0x4C, 0x46, 0x02}},
			},
		})
		assert.True(t, spam)
		assert.Contains(t, reason, "executable attachment")
	})

	t.Run("普通附件放行", func(t *testing.T) {
		spam, _ := screener.Screen(&domain.Message{
			Subject: "photo",
			Attachments: []*domain.Attachment{
				{Filename: "photo.png", Content: []byte{0x89, 0x50, 0x4E, 0x47}},
			},
		})
		assert.False(t, spam)
	})
}
