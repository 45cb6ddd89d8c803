package service

import (
	"fmt"
	"virtualtest_backend/internal/config"

	"gopkg.in/gomail.v2"
)

// MailSender 邮件发送接口，便于在测试中替换真实 SMTP
type MailSender interface {
	SendOTP(to, code, purpose string, expireMinutes int) error
}

type MailService struct {
	Cfg *config.MailConfig
}

func NewMailService(cfg *config.MailConfig) *MailService {
	return &MailService{Cfg: cfg}
}

func (s *MailService) SendOTP(to, code, purpose string, expireMinutes int) error {
	subject := "VirtuaTest Verification Code"
	action := "complete your registration"
	if purpose == "reset_password" {
		subject = "VirtuaTest Password Reset"
		action = "reset your password"
	}

	body := fmt.Sprintf(`<p>Your verification code is:</p>
<h2 style="letter-spacing:4px">%s</h2>
<p>Enter this code to %s. It expires in %d minutes.</p>
<p>If you did not request this, please ignore this email.</p>`, code, action, expireMinutes)

	m := gomail.NewMessage()
	m.SetHeader("From", s.Cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(s.Cfg.Host, s.Cfg.Port, s.Cfg.Username, s.Cfg.Password)
	return d.DialAndSend(m)
}
