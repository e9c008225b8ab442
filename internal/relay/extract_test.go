package relay

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractEventEnvelope(t *testing.T) {
	p := &Payload{
		JSON: map[string]any{
			"event-data": map[string]any{
				"recipient": "box@sink.mail",
				"message": map[string]any{
					"headers": map[string]any{
						"from":    "alice@example.com",
						"subject": "hi there",
					},
					"body-html":  "<p>hi</p>",
					"body-plain": "hi",
				},
			},
		},
	}

	mail, name, ok := Extract(p)

	require.True(t, ok)
	assert.Equal(t, "event", name)
	assert.Equal(t, "box@sink.mail", mail.Recipient)
	assert.Equal(t, "alice@example.com", mail.Sender)
	assert.Equal(t, "hi there", mail.Subject)
	assert.Equal(t, "<p>hi</p>", mail.HTMLBody)
	assert.Equal(t, "hi", mail.TextBody)
}

func TestExtractFlatForm(t *testing.T) {
	p := &Payload{
		Form: map[string]string{
			"to":      "box@sink.mail",
			"from":    "bob@example.com",
			"subject": "form mail",
			"body":    "plain content",
		},
	}

	mail, name, ok := Extract(p)

	require.True(t, ok)
	assert.Equal(t, "form", name)
	assert.Equal(t, "box@sink.mail", mail.Recipient)
	assert.Equal(t, "bob@example.com", mail.Sender)
	assert.Equal(t, "plain content", mail.TextBody)
}

func TestExtractFormFieldAliases(t *testing.T) {
	p := &Payload{
		Form: map[string]string{
			"recipient":  "box@sink.mail",
			"sender":     "carol@example.com",
			"body-html":  "<b>x</b>",
			"body-plain": "x",
		},
	}

	mail, _, ok := Extract(p)

	require.True(t, ok)
	assert.Equal(t, "carol@example.com", mail.Sender)
	assert.Equal(t, "<b>x</b>", mail.HTMLBody)
	assert.Equal(t, "x", mail.TextBody)
}

func TestExtractRawMIMEFallback(t *testing.T) {
	raw := "To: box@sink.mail\r\n" +
		"From: dave@example.com\r\n" +
		"Subject: raw one\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"raw body"

	p := &Payload{RawBody: raw}

	mail, name, ok := Extract(p)

	require.True(t, ok)
	assert.Equal(t, "raw-mime", name)
	assert.Equal(t, "box@sink.mail", mail.Recipient)
	assert.Equal(t, "dave@example.com", mail.Sender)
	assert.Equal(t, "raw one", mail.Subject)
	assert.Equal(t, "raw body", mail.TextBody)
}

func TestExtractOrderPrefersEvent(t *testing.T) {
	// 同时具备 event-data 信封和扁平字段时，信封优先
	p := &Payload{
		Form: map[string]string{"to": "flat@sink.mail"},
		JSON: map[string]any{
			"event-data": map[string]any{"recipient": "event@sink.mail"},
		},
	}

	mail, name, ok := Extract(p)

	require.True(t, ok)
	assert.Equal(t, "event", name)
	assert.Equal(t, "event@sink.mail", mail.Recipient)
}

func TestExtractNoRecipient(t *testing.T) {
	p := &Payload{
		Form: map[string]string{"subject": "no recipient here"},
	}

	mail, _, ok := Extract(p)

	assert.False(t, ok)
	assert.Nil(t, mail)
}

func TestPayloadSignaturePrefersHeaders(t *testing.T) {
	header := http.Header{}
	header.Set(HeaderTimestamp, "111")
	header.Set(HeaderToken, "header-token")
	header.Set(HeaderSignature, "header-sig")

	p := &Payload{
		Header: header,
		JSON: map[string]any{
			"signature": map[string]any{
				"timestamp": "222",
				"token":     "body-token",
				"signature": "body-sig",
			},
		},
	}

	sig := p.Signature()

	assert.Equal(t, "111", sig.Timestamp)
	assert.Equal(t, "header-token", sig.Token)
	assert.Equal(t, "header-sig", sig.Signature)
}

func TestPayloadSignatureFromBodyObject(t *testing.T) {
	p := &Payload{
		JSON: map[string]any{
			"signature": map[string]any{
				"timestamp": "333",
				"token":     "tok",
				"signature": "sig",
			},
		},
	}

	sig := p.Signature()

	assert.Equal(t, "333", sig.Timestamp)
	assert.Equal(t, "tok", sig.Token)
	assert.Equal(t, "sig", sig.Signature)
}

func TestPayloadSignatureFromFlatFields(t *testing.T) {
	p := &Payload{
		Form: map[string]string{
			"timestamp": "444",
			"token":     "flat-tok",
			"signature": "flat-sig",
		},
	}

	sig := p.Signature()

	assert.Equal(t, "444", sig.Timestamp)
	assert.Equal(t, "flat-tok", sig.Token)
	assert.Equal(t, "flat-sig", sig.Signature)
}
