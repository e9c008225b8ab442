package relay

import (
	"net/http"

	"mailsink/backend/internal/domain"
	"mailsink/backend/internal/mailparse"
)

// 签名材料的专用头部，优先于载荷内的 signature 对象。
const (
	HeaderTimestamp = "X-Relay-Timestamp"
	HeaderToken     = "X-Relay-Token"
	HeaderSignature = "X-Relay-Signature"
)

// Payload 表示一次入站 webhook 请求的原始内容。
//
// 中继的载荷形态不稳定：可能是表单字段、带 event-data 信封的 JSON、
// 扁平的遗留字段集，或仅有原始 MIME 正文。transport 层负责填充本结构，
// 具体的形态识别交给提取器链。
type Payload struct {
	Header  http.Header
	Form    map[string]string
	JSON    map[string]any
	RawBody string
}

// InboundMail 表示提取后的结构化入站邮件。
type InboundMail struct {
	Recipient   string
	Sender      string
	Subject     string
	HTMLBody    string
	TextBody    string
	Attachments []*domain.Attachment

	// ParseDegraded 表示内容经由 MIME 解析的退化路径得到
	ParseDegraded bool
}

// Signature 按优先级收集验签材料：专用头部优先，其次是载荷内的
// signature 对象，最后是扁平的表单字段。
func (p *Payload) Signature() Signature {
	if p.Header != nil {
		sig := Signature{
			Timestamp: p.Header.Get(HeaderTimestamp),
			Token:     p.Header.Get(HeaderToken),
			Signature: p.Header.Get(HeaderSignature),
		}
		if !sig.IsZero() {
			return sig
		}
	}

	if obj, ok := p.JSON["signature"].(map[string]any); ok {
		sig := Signature{
			Timestamp: asString(obj["timestamp"]),
			Token:     asString(obj["token"]),
			Signature: asString(obj["signature"]),
		}
		if !sig.IsZero() {
			return sig
		}
	}

	return Signature{
		Timestamp: p.field("timestamp"),
		Token:     p.field("token"),
		Signature: p.field("signature"),
	}
}

// field 先查表单字段，再查 JSON 顶层的字符串字段。
func (p *Payload) field(keys ...string) string {
	for _, key := range keys {
		if v := p.Form[key]; v != "" {
			return v
		}
		if v := asString(p.JSON[key]); v != "" {
			return v
		}
	}
	return ""
}

// Extractor 尝试从载荷中识别一种形态并提取结构化邮件。
// 无法得出非空收件人时返回 false。
type Extractor interface {
	Name() string
	Extract(p *Payload) (*InboundMail, bool)
}

// Extractors 按顺序返回默认的提取器链：结构化事件信封、
// 扁平表单/遗留字段、原始 MIME 正文。第一个得到非空收件人的胜出。
func Extractors() []Extractor {
	return []Extractor{
		eventExtractor{},
		formExtractor{},
		rawMIMEExtractor{},
	}
}

// Extract 依次运行提取器链，返回第一个命中的结果及其提取器名。
func Extract(p *Payload) (*InboundMail, string, bool) {
	for _, ex := range Extractors() {
		if mail, ok := ex.Extract(p); ok {
			return mail, ex.Name(), true
		}
	}
	return nil, "", false
}

// eventExtractor 处理 event-data 信封形态的 JSON 载荷。
type eventExtractor struct{}

func (eventExtractor) Name() string { return "event" }

func (eventExtractor) Extract(p *Payload) (*InboundMail, bool) {
	event, ok := p.JSON["event-data"].(map[string]any)
	if !ok {
		return nil, false
	}

	recipient := asString(event["recipient"])
	if recipient == "" {
		return nil, false
	}

	mail := &InboundMail{Recipient: recipient}

	if msg, ok := event["message"].(map[string]any); ok {
		if headers, ok := msg["headers"].(map[string]any); ok {
			mail.Sender = asString(headers["from"])
			mail.Subject = asString(headers["subject"])
		}
		mail.HTMLBody = asString(msg["body-html"])
		mail.TextBody = asString(msg["body-plain"])
	}

	return mail, true
}

// formExtractor 处理扁平的表单字段和遗留 JSON 字段集。
type formExtractor struct{}

func (formExtractor) Name() string { return "form" }

func (formExtractor) Extract(p *Payload) (*InboundMail, bool) {
	recipient := p.field("recipient", "to")
	if recipient == "" {
		return nil, false
	}

	return &InboundMail{
		Recipient: recipient,
		Sender:    p.field("sender", "from"),
		Subject:   p.field("subject"),
		HTMLBody:  p.field("body-html", "html"),
		TextBody:  p.field("body-plain", "text", "body"),
	}, true
}

// rawMIMEExtractor 兜底处理仅携带原始 MIME 正文的载荷。
type rawMIMEExtractor struct{}

func (rawMIMEExtractor) Name() string { return "raw-mime" }

func (rawMIMEExtractor) Extract(p *Payload) (*InboundMail, bool) {
	raw := p.field("body-mime")
	if raw == "" {
		raw = p.RawBody
	}
	if raw == "" {
		return nil, false
	}

	parsed := mailparse.Parse(raw)
	recipient := parsed.Headers["to"]
	if recipient == "" {
		return nil, false
	}

	classified := mailparse.Classify(parsed.Parts)

	return &InboundMail{
		Recipient:     recipient,
		Sender:        parsed.Headers["from"],
		Subject:       parsed.Headers["subject"],
		HTMLBody:      classified.HTML,
		TextBody:      classified.Text,
		Attachments:   classified.Attachments,
		ParseDegraded: parsed.Degraded,
	}, true
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
