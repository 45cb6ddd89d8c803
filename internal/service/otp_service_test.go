package service

import (
	"context"
	"testing"
	"time"
	"virtualtest_backend/internal/util"
	"virtualtest_backend/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	to      string
	code    string
	purpose string
	minutes int
}

type fakeMailSender struct {
	sent chan sentMail
}

func newFakeMailSender() *fakeMailSender {
	return &fakeMailSender{sent: make(chan sentMail, 8)}
}

func (f *fakeMailSender) SendOTP(to, code, purpose string, expireMinutes int) error {
	f.sent <- sentMail{to: to, code: code, purpose: purpose, minutes: expireMinutes}
	return nil
}

func (f *fakeMailSender) wait(t *testing.T) sentMail {
	t.Helper()
	select {
	case m := <-f.sent:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no mail sent within timeout")
		return sentMail{}
	}
}

func newTestOTPService(t *testing.T) (*OTPService, *fakeMailSender) {
	t.Helper()
	mem := cache.NewMemoryStore()
	t.Cleanup(mem.Close)
	mail := newFakeMailSender()
	return NewOTPService(mem, mail), mail
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9')
		}
	}
}

func TestOTPSendAndVerify(t *testing.T) {
	svc, mail := newTestOTPService(t)
	ctx := context.Background()

	require.NoError(t, svc.Send(ctx, "user@example.com", util.OTPPurposeRegister))
	m := mail.wait(t)
	assert.Equal(t, "user@example.com", m.to)
	assert.Equal(t, util.OTPPurposeRegister, m.purpose)
	assert.Equal(t, 10, m.minutes)

	require.NoError(t, svc.Verify(ctx, "user@example.com", util.OTPPurposeRegister, m.code))

	// 一次性：第二次校验失败
	err := svc.Verify(ctx, "user@example.com", util.OTPPurposeRegister, m.code)
	assert.ErrorIs(t, err, util.ErrInvalidOTP)
}

func TestOTPWrongCode(t *testing.T) {
	svc, mail := newTestOTPService(t)
	ctx := context.Background()

	require.NoError(t, svc.Send(ctx, "user@example.com", util.OTPPurposeReset))
	m := mail.wait(t)
	assert.Equal(t, 5, m.minutes)

	wrong := "000000"
	if wrong == m.code {
		wrong = "000001"
	}
	err := svc.Verify(ctx, "user@example.com", util.OTPPurposeReset, wrong)
	assert.ErrorIs(t, err, util.ErrInvalidOTP)

	// 错误尝试不消耗验证码
	require.NoError(t, svc.Verify(ctx, "user@example.com", util.OTPPurposeReset, m.code))
}

func TestOTPPurposesAreIsolated(t *testing.T) {
	svc, mail := newTestOTPService(t)
	ctx := context.Background()

	require.NoError(t, svc.Send(ctx, "user@example.com", util.OTPPurposeRegister))
	m := mail.wait(t)

	// 注册验证码不能用于重置密码
	err := svc.Verify(ctx, "user@example.com", util.OTPPurposeReset, m.code)
	assert.ErrorIs(t, err, util.ErrInvalidOTP)
}

func TestOTPResendOverwrites(t *testing.T) {
	svc, mail := newTestOTPService(t)
	ctx := context.Background()

	require.NoError(t, svc.Send(ctx, "user@example.com", util.OTPPurposeRegister))
	first := mail.wait(t)
	require.NoError(t, svc.Send(ctx, "user@example.com", util.OTPPurposeRegister))
	second := mail.wait(t)

	if first.code != second.code {
		err := svc.Verify(ctx, "user@example.com", util.OTPPurposeRegister, first.code)
		assert.ErrorIs(t, err, util.ErrInvalidOTP)
	}
	require.NoError(t, svc.Verify(ctx, "user@example.com", util.OTPPurposeRegister, second.code))
}
