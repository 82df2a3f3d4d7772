package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"anggaran/internal/model"
	"anggaran/internal/repository"
	"anggaran/pkg/idgen"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type UserService struct {
	log      zerolog.Logger
	userRepo *repository.UserRepository
}

func NewUserService(db *gorm.DB, log zerolog.Logger) *UserService {
	return &UserService{
		log:      log.With().Str("component", "user").Logger(),
		userRepo: repository.NewUserRepository(db),
	}
}

type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	FullName string `json:"full_name" validate:"max=128"`
	Role     string `json:"role" validate:"required,oneof=SUPERVISOR OPERATOR"`
}

func (s *UserService) CreateUser(ctx context.Context, req *CreateUserRequest) (*model.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.FullName = strings.TrimSpace(req.FullName)
	req.Role = strings.ToUpper(strings.TrimSpace(req.Role))
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	_, err := s.userRepo.GetByUsername(ctx, req.Username)
	switch {
	case err == nil:
		return nil, &ValidationError{Field: "username", Message: "sudah digunakan"}
	case !errors.Is(err, repository.ErrUserNotFound):
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("密码加密失败: %w", err)
	}

	user := &model.User{
		ID:           idgen.GenerateUserID(),
		Username:     req.Username,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         req.Role,
		IsActive:     true,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Str("username", user.Username).Str("role", user.Role).Msg("用户已创建")
	return user, nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]*model.User, error) {
	return s.userRepo.List(ctx)
}

// SetActive 停用后该用户的会话在下一次请求时失效
func (s *UserService) SetActive(ctx context.Context, id string, active bool) (*model.User, error) {
	if err := s.userRepo.SetActive(ctx, id, active); err != nil {
		return nil, notFound(err, id)
	}
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, id)
	}
	s.log.Info().Str("user_id", id).Bool("active", active).Msg("用户状态已更新")
	return user, nil
}
