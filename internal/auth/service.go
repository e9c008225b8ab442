package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"mailsink/backend/internal/auth/jwt"
	"mailsink/backend/internal/domain"
	"mailsink/backend/internal/storage"
)

var (
	// ErrInvalidEmail 无效的邮箱格式
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrEmailExists 邮箱已存在
	ErrEmailExists = errors.New("email already exists")
	// ErrInvalidCredentials 凭证无效
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrPasswordTooShort 密码长度不足
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	// ErrPasswordTooLong 密码超过 bcrypt 的输入上限
	ErrPasswordTooLong = errors.New("password must be at most 72 characters")
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Service 认证服务：注册、登录与令牌签发
type Service struct {
	userRepo storage.UserRepository
	tokens   *jwt.Manager
}

// NewService 创建认证服务
func NewService(userRepo storage.UserRepository, tokens *jwt.Manager) *Service {
	return &Service{
		userRepo: userRepo,
		tokens:   tokens,
	}
}

// RegisterInput 注册输入
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

// LoginInput 登录输入
type LoginInput struct {
	Email    string
	Password string
}

// AuthResponse 认证响应
type AuthResponse struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	TokenType    string       `json:"tokenType"`
	ExpiresIn    int64        `json:"expiresIn"`
}

// Register 用户注册
func (s *Service) Register(input RegisterInput) (*AuthResponse, error) {
	if !ValidateEmail(input.Email) {
		return nil, ErrInvalidEmail
	}
	if err := ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))

	// 先查一次给出友好错误，最终一致性仍由唯一索引兜底
	if _, err := s.userRepo.GetUserByEmail(email); err == nil {
		return nil, ErrEmailExists
	}

	passwordHash, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     strings.TrimSpace(input.Username),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.userRepo.CreateUser(user); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.respond(user)
}

// Login 用户登录
func (s *Service) Login(input LoginInput) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	user, err := s.userRepo.GetUserByEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	_ = s.userRepo.UpdateLastLogin(user.ID)

	return s.respond(user)
}

// Refresh 使用刷新令牌换发新的令牌对
func (s *Service) Refresh(refreshToken string) (*AuthResponse, error) {
	pair, err := s.tokens.RefreshTokenPair(refreshToken)
	if err != nil {
		return nil, err
	}

	claims, err := s.tokens.ValidateToken(pair.AccessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetUserByID(claims.UserID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	return &AuthResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// GetUserByID 根据 ID 获取用户
func (s *Service) GetUserByID(userID string) (*domain.User, error) {
	user, err := s.userRepo.GetUserByID(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ValidateToken 验证访问令牌
func (s *Service) ValidateToken(tokenString string) (*jwt.Claims, error) {
	return s.tokens.ValidateToken(tokenString)
}

func (s *Service) respond(user *domain.User) (*AuthResponse, error) {
	pair, err := s.tokens.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// ValidateEmail 验证邮箱格式
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ValidatePassword 验证密码强度
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	if len(password) > 72 {
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword 哈希密码
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 检查密码是否匹配
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
