package service

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailsink/backend/internal/domain"
	"mailsink/backend/internal/monitoring"
	"mailsink/backend/internal/relay"
	"mailsink/backend/internal/storage"
)

var (
	ErrSignatureRejected = errors.New("signature rejected")
	ErrNoRecipient       = errors.New("no recipient")
)

// Notifier 在邮件入库后向订阅方推送通知。
type Notifier interface {
	NotifyNewMail(addressID string, message *domain.Message)
}

// Screener 在落库前对邮件做垃圾判定，只打标不阻断。
type Screener interface {
	Screen(message *domain.Message) (bool, string)
}

// IngestService 负责入站邮件的验签、提取与落库。
//
// 中继 webhook 和 SMTP 直收共用同一条落库路径，只有前置的
// 验签和提取不同。
type IngestService struct {
	verifier  *relay.Verifier
	addresses storage.AddressRepository
	messages  storage.MessageRepository
	notifier  Notifier
	screener  Screener
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// NewIngestService 创建入站邮件服务。
func NewIngestService(
	verifier *relay.Verifier,
	addresses storage.AddressRepository,
	messages storage.MessageRepository,
	log *zap.Logger,
) *IngestService {
	return &IngestService{
		verifier:  verifier,
		addresses: addresses,
		messages:  messages,
		log:       log,
	}
}

// SetNotifier 设置新邮件通知器。
func (s *IngestService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetScreener 设置垃圾邮件判定器。
func (s *IngestService) SetScreener(sc Screener) {
	s.screener = sc
}

// SetMetrics 设置监控指标。
func (s *IngestService) SetMetrics(m *monitoring.Metrics) {
	s.metrics = m
}

// IngestRelay 处理一次中继 webhook 投递。
//
// 流程：验签 -> 提取器链识别载荷形态 -> 规范化收件人 ->
// 解析有效地址 -> 单事务写入邮件与附件。验签默认拒绝，
// 只有显式开启宽容模式才放过无效签名。
func (s *IngestService) IngestRelay(payload *relay.Payload) (*domain.Message, error) {
	sig := payload.Signature()
	if !s.verifier.Verify(sig.Timestamp, sig.Token, sig.Signature) {
		if !s.verifier.Permissive() {
			s.recordRejected("signature")
			return nil, ErrSignatureRejected
		}
		s.log.Warn("accepting relay delivery with invalid signature (permissive mode)")
	}

	mail, extractor, ok := relay.Extract(payload)
	if !ok {
		s.recordRejected("no_recipient")
		return nil, ErrNoRecipient
	}

	message, err := s.store(mail, "relay")
	if err != nil {
		return nil, err
	}

	s.log.Info("relay message ingested",
		zap.String("extractor", extractor),
		zap.String("message_id", message.ID),
		zap.String("recipient", mail.Recipient),
	)
	return message, nil
}

// IngestDirect 处理一封 SMTP 直收邮件，跳过 webhook 验签。
func (s *IngestService) IngestDirect(mail *relay.InboundMail) (*domain.Message, error) {
	if mail.Recipient == "" {
		s.recordRejected("no_recipient")
		return nil, ErrNoRecipient
	}
	return s.store(mail, "smtp")
}

// store 解析收件地址并落库，所有入站路径的共同尾段。
func (s *IngestService) store(mail *relay.InboundMail, source string) (*domain.Message, error) {
	recipient := domain.NormalizeRecipient(mail.Recipient)

	address, err := s.addresses.GetLiveAddressByEmail(recipient)
	if err != nil {
		if errors.Is(err, domain.ErrAddressNotFound) {
			s.recordRejected("unknown_address")
		}
		return nil, err
	}

	message := &domain.Message{
		ID:          uuid.NewString(),
		AddressID:   address.ID,
		FromAddress: mail.Sender,
		Subject:     mail.Subject,
		HTMLBody:    mail.HTMLBody,
		TextBody:    mail.TextBody,
		ReceivedAt:  time.Now().UTC(),
		Attachments: mail.Attachments,
	}

	if s.screener != nil {
		if spam, reason := s.screener.Screen(message); spam {
			message.IsSpam = true
			s.log.Info("message flagged as spam",
				zap.String("reason", reason),
				zap.String("recipient", recipient),
			)
		}
	}

	if err := s.messages.SaveMessageWithAttachments(message, mail.Attachments); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		sizes := make([]int64, 0, len(mail.Attachments))
		for _, att := range mail.Attachments {
			sizes = append(sizes, att.Size)
		}
		s.metrics.RecordIngested(source, sizes)
		if mail.ParseDegraded {
			s.metrics.RecordParseFallback()
		}
	}

	if s.notifier != nil {
		s.notifier.NotifyNewMail(address.ID, message)
	}

	return message, nil
}

func (s *IngestService) recordRejected(reason string) {
	if s.metrics != nil {
		s.metrics.RecordRejected(reason)
	}
}
