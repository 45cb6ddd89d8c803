package util

import "errors"

var (
	ErrUserNotFound          = errors.New("用户不存在")
	ErrEmailRegistered       = errors.New("该邮箱已被注册")
	ErrInvalidCredentials    = errors.New("邮箱或密码错误")
	ErrAccountNotActive      = errors.New("account is not active")
	ErrInvalidOTP            = errors.New("invalid or expired verification code")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrSessionNotFound       = errors.New("test session not found")
	ErrSessionCompleted      = errors.New("test session already completed")
	ErrModuleSubmitted       = errors.New("module already submitted for this session")
	ErrInvalidModule         = errors.New("unknown test module")
	ErrInvalidCEFRLevel      = errors.New("unknown CEFR level")
	ErrContentExpired        = errors.New("module content expired, request it again")
	ErrConfigNotFound        = errors.New("test config not found")
	ErrContentGeneration     = errors.New("content generation failed")
	ErrEvaluationUnavailable = errors.New("evaluation service unavailable")
)
