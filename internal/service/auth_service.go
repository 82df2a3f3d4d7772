package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"anggaran/internal/config"
	"anggaran/internal/model"
	"anggaran/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const tokenIssuer = "anggaran"

// Claims 会话令牌内容
type Claims struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type AuthService struct {
	cfg      *config.AuthConfig
	log      zerolog.Logger
	userRepo *repository.UserRepository
	now      func() time.Time
}

func NewAuthService(db *gorm.DB, cfg *config.Config, log zerolog.Logger) *AuthService {
	return &AuthService{
		cfg:      &cfg.Auth,
		log:      log.With().Str("component", "auth").Logger(),
		userRepo: repository.NewUserRepository(db),
		now:      time.Now,
	}
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResult struct {
	Token     string      `json:"-"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

// SessionDuration 会话有效期，同时用作 cookie 的 max-age
func (s *AuthService) SessionDuration() time.Duration {
	return time.Duration(s.cfg.SessionHours) * time.Hour
}

// Login 用户不存在、已停用、密码错误统一返回 ErrInvalidCredentials
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResult, error) {
	req.Username = strings.TrimSpace(req.Username)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		s.log.Warn().Str("username", user.Username).Msg("停用账号尝试登录")
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("更新登录时间失败: %w", err)
	}
	user.LastLogin = &now

	token, expiresAt, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("用户登录")
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// IssueToken 签发 HS256 会话令牌
func (s *AuthService) IssueToken(user *model.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.SessionDuration())
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	key, err := s.signingKey()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("签发令牌失败: %w", err)
	}
	return signed, expiresAt, nil
}

// signingKey 密钥为空或过短时拒绝签发和校验
func (s *AuthService) signingKey() ([]byte, error) {
	if len(s.cfg.JWTSecret) < config.MinJWTSecretLength {
		return nil, jwt.ErrInvalidKey
	}
	return []byte(s.cfg.JWTSecret), nil
}

// ParseToken 校验签名、算法与有效期
func (s *AuthService) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.signingKey()
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// CurrentUser 解析令牌并重新读取用户；任何失败都返回 nil
func (s *AuthService) CurrentUser(ctx context.Context, tokenString string) *model.User {
	if tokenString == "" {
		return nil
	}
	claims, err := s.ParseToken(tokenString)
	if err != nil {
		s.log.Debug().Err(err).Msg("会话令牌无效")
		return nil
	}
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			s.log.Error().Err(err).Str("user_id", claims.UserID).Msg("读取会话用户失败")
		}
		return nil
	}
	if !user.IsActive {
		return nil
	}
	return user
}
