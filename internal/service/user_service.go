package service

import (
	"errors"
	"virtualtest_backend/internal/model"
	"virtualtest_backend/internal/repository"
	"virtualtest_backend/internal/util"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type UserService struct {
	UserRepo *repository.UserRepository
}

func NewUserService(userRepo *repository.UserRepository) *UserService {
	return &UserService{UserRepo: userRepo}
}

func (s *UserService) GetProfile(userID uint) (*model.User, error) {
	user, err := s.UserRepo.FindByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUserNotFound
	}
	return user, err
}

// UpdateProfile 更新姓名和界面语言，其他字段不可自助修改
func (s *UserService) UpdateProfile(userID uint, name, language string) (*model.User, error) {
	user, err := s.UserRepo.FindByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if name != "" {
		user.Name = name
	}
	if language != "" {
		user.Language = language
	}

	if err := s.UserRepo.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) ChangePassword(userID uint, oldPassword, newPassword string) error {
	user, err := s.UserRepo.FindByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrUserNotFound
	}
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)); err != nil {
		return util.ErrInvalidCredentials
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.UserRepo.UpdatePassword(userID, string(hashed))
}

func (s *UserService) UpdateLastSeen(userID uint) error {
	return s.UserRepo.UpdateLastSeen(userID)
}

// ListUsers 管理端分页查询
func (s *UserService) ListUsers(page, limit int, role model.UserRole) ([]model.User, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.UserRepo.List(page, limit, role)
}

// CreateUser 管理端直接创建账号，跳过邮箱验证，状态直接置为 active
func (s *UserService) CreateUser(name, email, password string, role model.UserRole) (*model.User, error) {
	if role != model.Student && role != model.Admin {
		role = model.Student
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Name:     name,
		Email:    email,
		Password: string(hashed),
		Role:     role,
		Status:   model.StatusActive,
	}
	if err := s.UserRepo.Create(user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, util.ErrEmailRegistered
		}
		return nil, err
	}
	return user, nil
}

// UpdateUser 管理端修改用户资料，空字段保持原值
func (s *UserService) UpdateUser(userID uint, name string, role model.UserRole, status model.AccountStatus) (*model.User, error) {
	user, err := s.UserRepo.FindByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if name != "" {
		user.Name = name
	}
	if role == model.Student || role == model.Admin {
		user.Role = role
	}
	switch status {
	case model.StatusActive, model.StatusSuspended, model.StatusDeleted:
		user.Status = status
	}

	if err := s.UserRepo.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// UserStats 管理端看板的用户统计
type UserStats struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Pending   int64 `json:"pending"`
	Suspended int64 `json:"suspended"`
	Deleted   int64 `json:"deleted"`
	Admins    int64 `json:"admins"`
}

func (s *UserService) Stats() (*UserStats, error) {
	counts, err := s.UserRepo.CountByStatus()
	if err != nil {
		return nil, err
	}
	admins, err := s.UserRepo.CountByRole(model.Admin)
	if err != nil {
		return nil, err
	}

	stats := &UserStats{
		Active:    counts[model.StatusActive],
		Pending:   counts[model.StatusPending],
		Suspended: counts[model.StatusSuspended],
		Deleted:   counts[model.StatusDeleted],
		Admins:    admins,
	}
	stats.Total = stats.Active + stats.Pending + stats.Suspended + stats.Deleted
	return stats, nil
}

// SetStatus 管理端修改账号状态（封禁/恢复/注销）
func (s *UserService) SetStatus(userID uint, status model.AccountStatus) error {
	switch status {
	case model.StatusActive, model.StatusSuspended, model.StatusDeleted:
	default:
		return util.ErrPermissionDenied
	}

	_, err := s.UserRepo.FindByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrUserNotFound
	}
	if err != nil {
		return err
	}
	return s.UserRepo.UpdateStatus(userID, status)
}
