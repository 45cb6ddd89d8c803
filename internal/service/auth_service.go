package service

import (
	"context"
	"errors"
	"virtualtest_backend/internal/config"
	"virtualtest_backend/internal/model"
	"virtualtest_backend/internal/repository"
	"virtualtest_backend/internal/util"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct {
	UserRepo *repository.UserRepository
	OTP      *OTPService
	Cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, otp *OTPService, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo: userRepo,
		OTP:      otp,
		Cfg:      cfg,
	}
}

// Register 创建 pending 状态的账号并发送邮箱验证码
func (s *AuthService) Register(ctx context.Context, user *model.User) error {
	existing, err := s.UserRepo.FindByEmail(user.Email)
	if err == nil {
		// 未完成验证的账号允许重新注册，覆盖姓名和密码并重发验证码
		if existing.Status != model.StatusPending {
			return util.ErrEmailRegistered
		}
		hashedPassword, herr := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
		if herr != nil {
			return herr
		}
		existing.Name = user.Name
		existing.Password = string(hashedPassword)
		if err := s.UserRepo.Update(existing); err != nil {
			return err
		}
		*user = *existing
		return s.OTP.Send(ctx, user.Email, util.OTPPurposeRegister)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.Password = string(hashedPassword)
	user.Status = model.StatusPending

	if err := s.UserRepo.Create(user); err != nil {
		return err
	}

	return s.OTP.Send(ctx, user.Email, util.OTPPurposeRegister)
}

// VerifyEmail 校验注册验证码并激活账号，返回登录 token
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) (string, error) {
	user, err := s.UserRepo.FindByEmail(email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", util.ErrUserNotFound
	}
	if err != nil {
		return "", err
	}

	if err := s.OTP.Verify(ctx, email, util.OTPPurposeRegister, code); err != nil {
		return "", err
	}

	if user.Status == model.StatusPending {
		if err := s.UserRepo.UpdateStatus(user.ID, model.StatusActive); err != nil {
			return "", err
		}
		user.Status = model.StatusActive
	}

	return util.GenerateJWT(user, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
}

// ResendVerification 重发注册验证码
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.UserRepo.FindByEmail(email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if user.Status != model.StatusPending {
		return util.ErrEmailRegistered
	}
	return s.OTP.Send(ctx, email, util.OTPPurposeRegister)
}

func (s *AuthService) Login(email, password string) (string, *model.User, error) {
	user, err := s.UserRepo.FindByEmail(email)
	if err != nil {
		return "", nil, util.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, util.ErrInvalidCredentials
	}

	if user.Status != model.StatusActive {
		return "", nil, util.ErrAccountNotActive
	}

	if err := s.UserRepo.UpdateLastLogin(user.ID); err != nil {
		return "", nil, err
	}

	token, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// ForgotPassword 发送重置验证码。用户不存在时也返回 nil，避免探测注册邮箱
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	_, err := s.UserRepo.FindByEmail(email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.OTP.Send(ctx, email, util.OTPPurposeReset)
}

// ResetPassword 校验重置验证码并更新密码
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	user, err := s.UserRepo.FindByEmail(email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrInvalidOTP
	}
	if err != nil {
		return err
	}

	if err := s.OTP.Verify(ctx, email, util.OTPPurposeReset, code); err != nil {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.UserRepo.UpdatePassword(user.ID, string(hashedPassword))
}

func (s *AuthService) GetCurrentUser(c *gin.Context) *model.User {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		return nil
	}

	user, _ := s.UserRepo.FindByID(claims.UserID)
	return user
}
