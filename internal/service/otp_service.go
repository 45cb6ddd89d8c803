package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
	"virtualtest_backend/internal/util"
	"virtualtest_backend/pkg/cache"
	"virtualtest_backend/pkg/logger"

	"go.uber.org/zap"
)

const (
	registerOTPTTL = 10 * time.Minute
	resetOTPTTL    = 5 * time.Minute
)

// OTPService 一次性验证码：生成、发送、校验。验证码只存在缓存中，
// 校验通过后立即删除，同一用途重复发送会覆盖旧码
type OTPService struct {
	Store cache.Store
	Mail  MailSender
}

func NewOTPService(store cache.Store, mail MailSender) *OTPService {
	return &OTPService{Store: store, Mail: mail}
}

func otpKey(purpose, email string) string {
	return fmt.Sprintf("otp:%s:%s", purpose, email)
}

func otpTTL(purpose string) time.Duration {
	if purpose == util.OTPPurposeReset {
		return resetOTPTTL
	}
	return registerOTPTTL
}

// GenerateCode 生成6位数字验证码
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Send 生成验证码存入缓存并异步发送邮件。邮件发送失败只记录日志，
// 不影响接口返回，用户可以重新请求发送
func (s *OTPService) Send(ctx context.Context, email, purpose string) error {
	code, err := GenerateCode()
	if err != nil {
		return err
	}

	ttl := otpTTL(purpose)
	if err := s.Store.Set(ctx, otpKey(purpose, email), code, ttl); err != nil {
		return err
	}

	go func() {
		if err := s.Mail.SendOTP(email, code, purpose, int(ttl.Minutes())); err != nil {
			logger.Log.Error("Failed to send OTP email",
				zap.String("email", email),
				zap.String("purpose", purpose),
				zap.Error(err))
		}
	}()

	return nil
}

// Verify 校验验证码，匹配即删除（一次性）
func (s *OTPService) Verify(ctx context.Context, email, purpose, code string) error {
	key := otpKey(purpose, email)
	stored, err := s.Store.Get(ctx, key)
	if err == cache.ErrNotFound {
		return util.ErrInvalidOTP
	}
	if err != nil {
		return err
	}
	if stored != code {
		return util.ErrInvalidOTP
	}
	return s.Store.Delete(ctx, key)
}
