package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"virtualtest_backend/internal/model"
	"virtualtest_backend/internal/util"
	"virtualtest_backend/pkg/cache"
	"virtualtest_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 内容快照在缓存里比模块限时多留的宽限时间
const contentGracePeriod = 15 * time.Minute

// TestService 测试引擎：会话生命周期、模块内容下发、提交评分、结果聚合。
// 模块顺序通过 modules 注入，默认为阅读、听力、口语、写作
type TestService struct {
	Repo       TestStore
	ConfigRepo ConfigStore
	Provider   ContentProvider
	TTS        SpeechSynthesizer
	Cache      cache.Store
	Modules    []model.ModuleName
}

func NewTestService(repo TestStore, configRepo ConfigStore, provider ContentProvider, tts SpeechSynthesizer, store cache.Store, modules []model.ModuleName) *TestService {
	if len(modules) == 0 {
		modules = model.DefaultModuleOrder
	}
	return &TestService{
		Repo:       repo,
		ConfigRepo: configRepo,
		Provider:   provider,
		TTS:        tts,
		Cache:      store,
		Modules:    modules,
	}
}

// ModuleSubmission 一次模块提交。客观题带 Answers，主观题带 Text
// （写作为原文，口语为转写稿）
type ModuleSubmission struct {
	Answers         map[string]string
	Text            string
	DurationSeconds int
}

// ModuleContentView 下发给客户端的模块内容，已剥离正确答案和权重
type ModuleContentView struct {
	Module           model.ModuleName `json:"module"`
	TimeLimitSeconds int              `json:"timeLimitSeconds"`
	Content          interface{}      `json:"content"`
}

// SessionProgress 会话进度：已完成的模块和建议的下一个模块
type SessionProgress struct {
	Session   *model.TestSession `json:"session"`
	Completed []model.ModuleName `json:"completed"`
	Next      *model.ModuleName  `json:"next,omitempty"`
}

// ModuleResult 结果页单个模块的展示数据
type ModuleResult struct {
	ModuleName      model.ModuleName `json:"moduleName"`
	Score           float64          `json:"score"`
	CEFRLevel       model.CEFRLevel  `json:"cefrLevel"`
	Feedback        json.RawMessage  `json:"feedback,omitempty"`
	DurationSeconds int              `json:"durationSeconds"`
	CompletedAt     time.Time        `json:"completedAt"`
}

// TestResult 结果页聚合数据
type TestResult struct {
	Session          *model.TestSession `json:"session"`
	Modules          []ModuleResult     `json:"modules"`
	OverallScore     *float64           `json:"overallScore,omitempty"`
	OverallCEFRLevel *model.CEFRLevel   `json:"overallCefrLevel,omitempty"`
	LevelDescription string             `json:"levelDescription,omitempty"`
}

// ActiveConfig 返回当前激活的参数预设，查不到时回退默认值
func (s *TestService) ActiveConfig() *model.TestConfig {
	cfg, err := s.ConfigRepo.FindActive()
	if err != nil {
		return model.DefaultTestConfig()
	}
	return cfg
}

// StartSession 开始新测试。已有未完成会话时直接续用，避免并发开考
func (s *TestService) StartSession(userID uint) (*model.TestSession, bool, error) {
	existing, err := s.Repo.FindActiveSession(userID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	session := &model.TestSession{
		UserID:    userID,
		StartedAt: time.Now(),
	}
	if err := s.Repo.CreateSession(session); err != nil {
		return nil, false, err
	}
	return session, true, nil
}

func (s *TestService) findOwnedSession(userID, sessionID uint) (*model.TestSession, error) {
	session, err := s.Repo.FindSessionByID(sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, util.ErrSessionNotFound
	}
	return session, nil
}

// Progress 返回会话进度
func (s *TestService) Progress(userID, sessionID uint) (*SessionProgress, error) {
	session, err := s.findOwnedSession(userID, sessionID)
	if err != nil {
		return nil, err
	}

	scores, err := s.Repo.FindScoresBySession(sessionID)
	if err != nil {
		return nil, err
	}

	done := make(map[model.ModuleName]bool, len(scores))
	completed := make([]model.ModuleName, 0, len(scores))
	for _, sc := range scores {
		done[sc.ModuleName] = true
		completed = append(completed, sc.ModuleName)
	}

	progress := &SessionProgress{Session: session, Completed: completed}
	for _, m := range s.Modules {
		if !done[m] {
			next := m
			progress.Next = &next
			break
		}
	}
	return progress, nil
}

func (s *TestService) ListSessions(userID uint, page, limit int) ([]model.TestSession, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.Repo.ListSessionsByUser(userID, page, limit)
}

func contentKey(sessionID uint, module model.ModuleName) string {
	return fmt.Sprintf("content:%d:%s", sessionID, module)
}

// ModuleContent 为会话生成（或复用缓存中的）模块内容。
// level 是学生申请的 CEFR 难度，为空时回退到激活预设的难度；
// 听力模块附带 TTS 音频，合成失败不阻断，客户端可退回朗读文字稿
func (s *TestService) ModuleContent(ctx context.Context, userID, sessionID uint, module model.ModuleName, level model.CEFRLevel) (*ModuleContentView, error) {
	if !model.ValidModuleName(module) {
		return nil, util.ErrInvalidModule
	}
	if level != "" && !model.ValidCEFRLevel(level) {
		return nil, util.ErrInvalidCEFRLevel
	}

	session, err := s.findOwnedSession(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsCompleted {
		return nil, util.ErrSessionCompleted
	}

	if _, err := s.Repo.FindScore(sessionID, module); err == nil {
		return nil, util.ErrModuleSubmitted
	}

	cfg := s.ActiveConfig()
	timeLimit := cfg.TimeLimit(module)
	if level == "" {
		level = cfg.Difficulty
	}

	// 重复请求返回同一份内容，刷新页面不重置题目
	if cached, err := s.Cache.Get(ctx, contentKey(sessionID, module)); err == nil {
		var content GeneratedContent
		if err := json.Unmarshal([]byte(cached), &content); err == nil {
			return s.contentView(&content, timeLimit), nil
		}
	}

	content, err := s.Provider.GenerateContent(ctx, module, level)
	if err != nil {
		return nil, err
	}

	if module == model.ModuleListening && content.Listening != nil {
		audioURL, err := s.TTS.SynthesizeToURL(ctx, content.Listening.Transcript, level)
		if err != nil {
			logger.Log.Warn("TTS synthesis failed, serving listening module without audio",
				zap.Uint("sessionId", sessionID),
				zap.Error(err))
		} else {
			content.Listening.AudioURL = audioURL
		}
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	ttl := time.Duration(timeLimit)*time.Second + contentGracePeriod
	if err := s.Cache.Set(ctx, contentKey(sessionID, module), string(raw), ttl); err != nil {
		return nil, err
	}

	return s.contentView(content, timeLimit), nil
}

// contentView 生成客户端视图，客观题剥离 correct_answers 和 weights
func (s *TestService) contentView(content *GeneratedContent, timeLimit int) *ModuleContentView {
	view := &ModuleContentView{
		Module:           content.Module,
		TimeLimitSeconds: timeLimit,
	}

	switch {
	case content.Reading != nil:
		view.Content = ginH{
			"title":     content.Reading.Title,
			"passage":   content.Reading.Passage,
			"questions": content.Reading.Questions,
		}
	case content.Listening != nil:
		view.Content = ginH{
			"title":     content.Listening.Title,
			"audioUrl":  content.Listening.AudioURL,
			"questions": content.Listening.Questions,
		}
	case content.Writing != nil:
		view.Content = content.Writing
	case content.Speaking != nil:
		view.Content = content.Speaking
	}
	return view
}

type ginH = map[string]interface{}

// SubmitModule 提交一个模块并评分。重复提交同一模块返回 ErrModuleSubmitted；
// 四个模块齐了之后自动结算整场测试
func (s *TestService) SubmitModule(ctx context.Context, userID, sessionID uint, module model.ModuleName, sub ModuleSubmission) (*model.ModuleScore, *model.TestSession, error) {
	if !model.ValidModuleName(module) {
		return nil, nil, util.ErrInvalidModule
	}

	session, err := s.findOwnedSession(userID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.IsCompleted {
		return nil, nil, util.ErrSessionCompleted
	}

	cached, err := s.Cache.Get(ctx, contentKey(sessionID, module))
	if err != nil {
		return nil, nil, util.ErrContentExpired
	}
	var content GeneratedContent
	if err := json.Unmarshal([]byte(cached), &content); err != nil {
		return nil, nil, util.ErrContentExpired
	}

	score := &model.ModuleScore{
		SessionID:   sessionID,
		ModuleName:  module,
		Content:     json.RawMessage(cached),
		CompletedAt: time.Now(),
	}

	cfg := s.ActiveConfig()
	score.DurationSeconds = sub.DurationSeconds
	if limit := cfg.TimeLimit(module); score.DurationSeconds > limit {
		score.DurationSeconds = limit
	}
	if score.DurationSeconds < 0 {
		score.DurationSeconds = 0
	}

	if module.IsObjective() {
		if err := s.scoreObjectiveModule(score, &content, sub.Answers); err != nil {
			return nil, nil, err
		}
	} else {
		if err := s.scoreSubjectiveModule(ctx, score, &content, sub.Text); err != nil {
			return nil, nil, err
		}
	}

	if err := s.Repo.CreateScore(score); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, nil, util.ErrModuleSubmitted
		}
		return nil, nil, err
	}

	if err := s.Cache.Delete(ctx, contentKey(sessionID, module)); err != nil {
		logger.Log.Warn("Failed to drop content snapshot from cache", zap.Error(err))
	}

	session, err = s.finalizeIfDone(session)
	if err != nil {
		return nil, nil, err
	}

	return score, session, nil
}

func (s *TestService) scoreObjectiveModule(score *model.ModuleScore, content *GeneratedContent, answers map[string]string) error {
	var correctAnswers map[string]string
	var weights map[string]float64
	switch {
	case content.Reading != nil:
		correctAnswers = content.Reading.CorrectAnswers
		weights = content.Reading.Weights
	case content.Listening != nil:
		correctAnswers = content.Listening.CorrectAnswers
		weights = content.Listening.Weights
	default:
		return util.ErrContentExpired
	}

	score.Score = ScoreObjective(correctAnswers, weights, answers)
	score.CEFRLevel = CEFRForScore(score.Score)

	answerJSON, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	score.UserAnswer = string(answerJSON)
	return nil
}

func (s *TestService) scoreSubjectiveModule(ctx context.Context, score *model.ModuleScore, content *GeneratedContent, answer string) error {
	var task string
	switch {
	case content.Writing != nil:
		task = content.Writing.Prompt
	case content.Speaking != nil:
		task = content.Speaking.Prompt
	default:
		return util.ErrContentExpired
	}

	score.UserAnswer = answer

	eval, err := s.Provider.EvaluateSubjective(ctx, score.ModuleName, task, answer)
	if errors.Is(err, util.ErrEvaluationUnavailable) {
		// 评分服务不可用时兜底为 0 分，反馈里说明原因，不阻断整场测试
		score.Score = 0.0
		score.CEFRLevel = model.A1
		fallback, _ := json.Marshal(ginH{
			"feedback":               "Automatic evaluation was unavailable for this module. The score has been set to 0.",
			"evaluation_unavailable": true,
		})
		score.AIFeedback = fallback
		return nil
	}
	if err != nil {
		return err
	}

	score.Score = roundScore(eval.Score)
	score.CEFRLevel = eval.CEFRLevel
	if score.CEFRLevel == "" {
		score.CEFRLevel = CEFRForScore(score.Score)
	}

	feedback, err := json.Marshal(eval)
	if err != nil {
		return err
	}
	score.AIFeedback = feedback
	return nil
}

// finalizeIfDone 所有模块都有成绩时计算总分并关闭会话
func (s *TestService) finalizeIfDone(session *model.TestSession) (*model.TestSession, error) {
	count, err := s.Repo.CountScores(session.ID)
	if err != nil {
		return nil, err
	}
	if count < int64(len(s.Modules)) {
		return session, nil
	}

	scores, err := s.Repo.FindScoresBySession(session.ID)
	if err != nil {
		return nil, err
	}

	overall := OverallScore(scores)
	level := CEFRForScore(overall)
	now := time.Now()

	session.OverallScore = &overall
	session.OverallCEFRLevel = &level
	session.CompletedAt = &now
	session.IsCompleted = true

	if err := s.Repo.UpdateSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Results 结果页：各模块成绩加总体评定
func (s *TestService) Results(userID, sessionID uint) (*TestResult, error) {
	session, err := s.findOwnedSession(userID, sessionID)
	if err != nil {
		return nil, err
	}

	scores, err := s.Repo.FindScoresBySession(sessionID)
	if err != nil {
		return nil, err
	}

	result := &TestResult{Session: session}
	for _, sc := range scores {
		result.Modules = append(result.Modules, ModuleResult{
			ModuleName:      sc.ModuleName,
			Score:           sc.Score,
			CEFRLevel:       sc.CEFRLevel,
			Feedback:        sc.AIFeedback,
			DurationSeconds: sc.DurationSeconds,
			CompletedAt:     sc.CompletedAt,
		})
	}

	if session.IsCompleted && session.OverallScore != nil {
		result.OverallScore = session.OverallScore
		result.OverallCEFRLevel = session.OverallCEFRLevel
		if session.OverallCEFRLevel != nil {
			result.LevelDescription = model.CEFRDescriptions[*session.OverallCEFRLevel]
		}
	}

	return result, nil
}
