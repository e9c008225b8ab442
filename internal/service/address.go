package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mailsink/backend/internal/config"
	"mailsink/backend/internal/domain"
	"mailsink/backend/internal/monitoring"
	"mailsink/backend/internal/storage"
)

var (
	ErrDomainNotAllowed = errors.New("domain not allowed")
	ErrPrefixInvalid    = errors.New("prefix invalid")
)

// AddressService 封装一次性地址的生命周期操作。
type AddressService struct {
	repo      storage.AddressRepository
	cfg       *config.Config
	domainSet map[string]struct{}
	metrics   *monitoring.Metrics
}

// NewAddressService 创建地址业务服务。
func NewAddressService(repo storage.AddressRepository, cfg *config.Config) *AddressService {
	domainSet := make(map[string]struct{}, len(cfg.Address.AllowedDomains))
	for _, d := range cfg.Address.AllowedDomains {
		domainSet[d] = struct{}{}
	}

	return &AddressService{
		repo:      repo,
		cfg:       cfg,
		domainSet: domainSet,
	}
}

// SetMetrics 注入监控指标收集器。
func (s *AddressService) SetMetrics(m *monitoring.Metrics) {
	s.metrics = m
}

// CreateAddressInput 定义创建地址所需的输入。
type CreateAddressInput struct {
	Prefix  string
	Domain  string
	OwnerID *string // 可选：关联的用户 ID，决定地址的生存时间
}

// CreateOrReuse 创建新地址，或返回同名的现存有效地址。
//
// 操作是幂等的：同一前缀和域名重复请求得到同一条记录。
// 并发创建时依赖存储层的唯一约束，冲突方回头取胜出方的记录。
func (s *AddressService) CreateOrReuse(input CreateAddressInput) (*domain.Address, error) {
	selectedDomain := s.pickDomain(input.Domain)
	if selectedDomain == "" {
		return nil, ErrDomainNotAllowed
	}

	localPart, err := s.resolveLocalPart(input.Prefix)
	if err != nil {
		return nil, err
	}

	email := domain.NormalizeEmail(fmt.Sprintf("%s@%s", localPart, selectedDomain))

	// 已有同名有效地址时直接复用
	if existing, err := s.repo.GetLiveAddressByEmail(email); err == nil {
		if s.metrics != nil {
			s.metrics.RecordAddressReused()
		}
		return existing, nil
	} else if !errors.Is(err, domain.ErrAddressNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	address := &domain.Address{
		ID:        uuid.NewString(),
		Email:     email,
		OwnerID:   input.OwnerID,
		DomainID:  selectedDomain,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttlFor(input.OwnerID)),
	}

	if err := s.repo.CreateAddress(address); err != nil {
		if errors.Is(err, domain.ErrAddressExists) {
			// 并发创建输给了别人，取回胜出方的记录
			winner, err := s.repo.GetLiveAddressByEmail(email)
			if err == nil && s.metrics != nil {
				s.metrics.RecordAddressReused()
			}
			return winner, err
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordAddressCreated()
	}
	return address, nil
}

// PlaceholderAddress 返回给机器人流量的占位地址。
// 不落库也不可收信，但响应形态与正常创建一致。
func (s *AddressService) PlaceholderAddress() *domain.Address {
	now := time.Now().UTC()
	return &domain.Address{
		ID:        uuid.NewString(),
		Email:     s.cfg.Address.PlaceholderEmail,
		DomainID:  s.cfg.Address.AllowedDomains[0],
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.Address.AnonymousTTL),
	}
}

// Get 根据 ID 获取地址。
func (s *AddressService) Get(id string) (*domain.Address, error) {
	return s.repo.GetAddress(id)
}

// GetLiveByEmail 按地址查找未过期的记录。
func (s *AddressService) GetLiveByEmail(email string) (*domain.Address, error) {
	return s.repo.GetLiveAddressByEmail(domain.NormalizeEmail(email))
}

// ListByOwnerID 返回指定用户的全部有效地址。
func (s *AddressService) ListByOwnerID(ownerID string) []domain.Address {
	return s.repo.ListAddressesByOwnerID(ownerID)
}

// Delete 删除指定地址。
func (s *AddressService) Delete(id string) error {
	return s.repo.DeleteAddress(id)
}

// Domains 返回允许签发地址的域名列表。
func (s *AddressService) Domains() []string {
	return s.cfg.Address.AllowedDomains
}

// SweepExpired 清理过期地址，返回删除数量。
func (s *AddressService) SweepExpired() (int, error) {
	return s.repo.DeleteExpiredAddresses()
}

// ttlFor 根据归属决定地址生存时间：认证用户明显更长。
func (s *AddressService) ttlFor(ownerID *string) time.Duration {
	if ownerID != nil && *ownerID != "" {
		return s.cfg.Address.OwnerTTL
	}
	return s.cfg.Address.AnonymousTTL
}

// pickDomain 挑选合法的地址域名。
func (s *AddressService) pickDomain(requested string) string {
	if requested == "" {
		return s.cfg.Address.AllowedDomains[0]
	}
	requested = strings.ToLower(strings.TrimSpace(requested))
	if _, ok := s.domainSet[requested]; ok {
		return requested
	}
	return ""
}

// resolveLocalPart 生成或验证地址前缀。
func (s *AddressService) resolveLocalPart(prefix string) (string, error) {
	if prefix == "" {
		return generateRandomLocalPart(), nil
	}

	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if len(prefix) > 64 {
		return "", ErrPrefixInvalid
	}
	for _, r := range prefix {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == '_' || r == '+':
		default:
			return "", ErrPrefixInvalid
		}
	}
	if strings.HasPrefix(prefix, ".") || strings.HasSuffix(prefix, ".") {
		return "", ErrPrefixInvalid
	}
	return prefix, nil
}

// generateRandomLocalPart 生成随机前缀。
func generateRandomLocalPart() string {
	base := strings.ToLower(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return base[:12]
}
