package smtp

import (
	"errors"
	"io"
	"mime"
	"strings"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailsink/backend/internal/config"
	"mailsink/backend/internal/domain"
	"mailsink/backend/internal/mailparse"
	"mailsink/backend/internal/relay"
	"mailsink/backend/internal/service"
)

// maxMessageBytes 单封邮件的大小上限，对齐 HTTP 入站限额
const maxMessageBytes = 25 << 20

// Backend 实现 go-smtp 的 Backend 接口。
//
// 这是一个只接收邮件的 SMTP 服务器：
//   - 只接收发往本系统有效地址的邮件
//   - Rcpt 阶段即校验域名和地址，外部地址一律 550 拒绝
//   - 不支持对外发送，不会成为开放中继
//
// 直收路径是可信路径，不做 webhook 验签；落库走与中继
// 相同的 IngestService。
type Backend struct {
	addresses *service.AddressService
	ingest    *service.IngestService
	limiter   *ConnectionLimiter
	domainSet map[string]struct{}
	log       *zap.Logger
}

// NewBackend 创建 SMTP Backend。
func NewBackend(
	addresses *service.AddressService,
	ingest *service.IngestService,
	cfg *config.Config,
	log *zap.Logger,
) *Backend {
	if log == nil {
		log = zap.NewNop()
	}

	domainSet := make(map[string]struct{}, len(cfg.Address.AllowedDomains))
	for _, d := range cfg.Address.AllowedDomains {
		domainSet[strings.ToLower(d)] = struct{}{}
	}

	return &Backend{
		addresses: addresses,
		ingest:    ingest,
		limiter:   NewConnectionLimiter(cfg.SMTP.MaxConns, cfg.SMTP.MaxRate),
		domainSet: domainSet,
		log:       log,
	}
}

// NewServer 构建绑定到配置地址的 SMTP 服务器。
func NewServer(backend *Backend, cfg *config.Config) *gosmtp.Server {
	server := gosmtp.NewServer(backend)
	server.Addr = cfg.SMTP.BindAddr
	server.Domain = cfg.SMTP.Domain
	server.MaxMessageBytes = maxMessageBytes
	server.MaxRecipients = 50
	server.AllowInsecureAuth = true
	return server
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	if !b.limiter.Acquire() {
		b.log.Warn("smtp connection rejected by limiter")
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "too many connections, try again later",
		}
	}

	return &session{backend: b}, nil
}

type session struct {
	backend     *Backend
	fromAddress string
	recipients  []string
	released    bool
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	s.fromAddress = from
	return nil
}

// Rcpt 处理 RCPT 命令。
//
// 只接受发往本系统有效地址的邮件：域名必须在允许列表中，
// 地址必须存在且未过期，否则 550 拒绝。这是防止被用作
// 垃圾邮件中继的关键校验。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := domain.NormalizeRecipient(to)

	parts := strings.Split(addr, "@")
	if len(parts) != 2 {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}

	if _, ok := s.backend.domainSet[parts[1]]; !ok {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "relay access denied - domain not managed by this server",
		}
	}

	if _, err := s.backend.addresses.GetLiveByEmail(addr); err != nil {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "recipient address not found",
		}
	}

	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 处理邮件内容。
func (s *session) Data(r io.Reader) error {
	rawBytes, err := io.ReadAll(io.LimitReader(r, maxMessageBytes))
	if err != nil {
		return err
	}

	parsed := mailparse.Parse(string(rawBytes))
	classified := mailparse.Classify(parsed.Parts)

	sender := s.fromAddress
	if from := parsed.Headers["from"]; from != "" {
		sender = decodeHeader(from)
	}
	subject := decodeHeader(parsed.Headers["subject"])

	for _, rcpt := range s.recipients {
		mail := &relay.InboundMail{
			Recipient:     rcpt,
			Sender:        sender,
			Subject:       subject,
			HTMLBody:      classified.HTML,
			TextBody:      classified.Text,
			Attachments:   cloneAttachments(classified.Attachments),
			ParseDegraded: parsed.Degraded,
		}

		message, err := s.backend.ingest.IngestDirect(mail)
		if err != nil {
			// Rcpt 和 Data 之间地址可能刚好过期
			if errors.Is(err, domain.ErrAddressNotFound) {
				return &gosmtp.SMTPError{
					Code:         550,
					EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
					Message:      "recipient address not found",
				}
			}
			return err
		}

		s.backend.log.Info("smtp message ingested",
			zap.String("message_id", message.ID),
			zap.String("recipient", rcpt),
		)
	}

	return nil
}

// AuthPlain 处理 PLAIN 认证（此处允许匿名）。
func (s *session) AuthPlain(username, password string) error {
	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	if !s.released {
		s.backend.limiter.Release()
		s.released = true
	}
	return nil
}

// cloneAttachments 为每个收件人复制一份独立的附件实体。
// 附件归属单封邮件，落库时会改写归属，不能跨收件人共用同一批记录。
func cloneAttachments(attachments []*domain.Attachment) []*domain.Attachment {
	if len(attachments) == 0 {
		return nil
	}
	out := make([]*domain.Attachment, 0, len(attachments))
	for _, att := range attachments {
		clone := *att
		clone.ID = uuid.NewString()
		clone.MessageID = ""
		out = append(out, &clone)
	}
	return out
}

// decodeHeader 解码 RFC 2047 编码的头部值。
func decodeHeader(value string) string {
	if value == "" {
		return value
	}
	decoder := new(mime.WordDecoder)
	decoded, err := decoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
