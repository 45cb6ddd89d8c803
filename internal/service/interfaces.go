package service

import (
	"context"
	"io"
	"virtualtest_backend/internal/model"
)

// 测试引擎只依赖下面的小接口，方便在单元测试里用假实现替换
// 真实的数据库仓库和 AI 客户端

type TestStore interface {
	CreateSession(session *model.TestSession) error
	FindSessionByID(id uint) (*model.TestSession, error)
	FindActiveSession(userID uint) (*model.TestSession, error)
	UpdateSession(session *model.TestSession) error
	ListSessionsByUser(userID uint, page, limit int) ([]model.TestSession, int64, error)
	CreateScore(score *model.ModuleScore) error
	FindScoresBySession(sessionID uint) ([]model.ModuleScore, error)
	FindScore(sessionID uint, moduleName model.ModuleName) (*model.ModuleScore, error)
	CountScores(sessionID uint) (int64, error)
}

type ConfigStore interface {
	FindActive() (*model.TestConfig, error)
}

type ContentProvider interface {
	GenerateContent(ctx context.Context, module model.ModuleName, difficulty model.CEFRLevel) (*GeneratedContent, error)
	EvaluateSubjective(ctx context.Context, module model.ModuleName, task, answer string) (*SubjectiveEvaluation, error)
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

type SpeechSynthesizer interface {
	SynthesizeToURL(ctx context.Context, text string, difficulty model.CEFRLevel) (string, error)
}
