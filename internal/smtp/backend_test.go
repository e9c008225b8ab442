package smtp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailsink/backend/internal/domain"
	"mailsink/backend/internal/logger"
	"mailsink/backend/internal/relay"
	"mailsink/backend/internal/service"
	"mailsink/backend/internal/storage/memory"
)

func TestCloneAttachments(t *testing.T) {
	original := []*domain.Attachment{
		{ID: "att-1", Filename: "a.pdf", ContentType: "application/pdf", Content: []byte("pdf"), Size: 3},
		{ID: "att-2", Filename: "b.png", ContentType: "image/png", Content: []byte("png"), Size: 3, IsInline: true},
	}

	cloned := cloneAttachments(original)
	require.Len(t, cloned, 2)

	for i, clone := range cloned {
		assert.NotEqual(t, original[i].ID, clone.ID)
		assert.Empty(t, clone.MessageID)
		assert.Equal(t, original[i].Filename, clone.Filename)
		assert.Equal(t, original[i].Content, clone.Content)
		assert.Equal(t, original[i].IsInline, clone.IsInline)
	}

	// 原切片不受影响
	assert.Equal(t, "att-1", original[0].ID)
	assert.Nil(t, cloneAttachments(nil))
}

// 多收件人投递时每封邮件必须拿到独立的附件记录，
// 后一封的入库不能改写前一封已存附件的归属。
func TestMultiRecipientAttachmentIsolation(t *testing.T) {
	store := memory.NewStore()
	now := time.Now()
	for _, email := range []string{"first@mailsink.dev", "second@mailsink.dev"} {
		require.NoError(t, store.CreateAddress(&domain.Address{
			ID:        "addr-" + email,
			Email:     email,
			ExpiresAt: now.Add(time.Hour),
		}))
	}

	verifier := relay.NewVerifier("test-key", false)
	ingest := service.NewIngestService(verifier, store, store, logger.NewNop())

	shared := []*domain.Attachment{
		{ID: "att-shared", Filename: "doc.pdf", ContentType: "application/pdf", Content: []byte("pdf"), Size: 3},
	}

	var messages []*domain.Message
	for _, rcpt := range []string{"first@mailsink.dev", "second@mailsink.dev"} {
		message, err := ingest.IngestDirect(&relay.InboundMail{
			Recipient:   rcpt,
			Sender:      "sender@example.com",
			Subject:     "fan-out",
			TextBody:    "body",
			Attachments: cloneAttachments(shared),
		})
		require.NoError(t, err)
		messages = append(messages, message)
	}

	require.Len(t, messages, 2)
	for _, message := range messages {
		stored, err := store.GetMessage(message.AddressID, message.ID)
		require.NoError(t, err)
		require.Len(t, stored.Attachments, 1)
		assert.Equal(t, message.ID, stored.Attachments[0].MessageID,
			"attachment must stay parented to its own message")
	}
}
