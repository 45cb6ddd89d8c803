package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"
	"virtualtest_backend/internal/model"
	"virtualtest_backend/internal/util"
	"virtualtest_backend/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeTestStore struct {
	sessions map[uint]*model.TestSession
	scores   []model.ModuleScore
	nextID   uint
}

func newFakeTestStore() *fakeTestStore {
	return &fakeTestStore{sessions: make(map[uint]*model.TestSession)}
}

func (f *fakeTestStore) CreateSession(s *model.TestSession) error {
	f.nextID++
	s.ID = f.nextID
	copied := *s
	f.sessions[s.ID] = &copied
	return nil
}

func (f *fakeTestStore) FindSessionByID(id uint) (*model.TestSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeTestStore) FindActiveSession(userID uint) (*model.TestSession, error) {
	for _, s := range f.sessions {
		if s.UserID == userID && !s.IsCompleted {
			copied := *s
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeTestStore) UpdateSession(s *model.TestSession) error {
	copied := *s
	f.sessions[s.ID] = &copied
	return nil
}

func (f *fakeTestStore) ListSessionsByUser(userID uint, page, limit int) ([]model.TestSession, int64, error) {
	var out []model.TestSession
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeTestStore) CreateScore(score *model.ModuleScore) error {
	for _, sc := range f.scores {
		if sc.SessionID == score.SessionID && sc.ModuleName == score.ModuleName {
			return gorm.ErrDuplicatedKey
		}
	}
	f.scores = append(f.scores, *score)
	return nil
}

func (f *fakeTestStore) FindScoresBySession(sessionID uint) ([]model.ModuleScore, error) {
	var out []model.ModuleScore
	for _, sc := range f.scores {
		if sc.SessionID == sessionID {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (f *fakeTestStore) FindScore(sessionID uint, moduleName model.ModuleName) (*model.ModuleScore, error) {
	for _, sc := range f.scores {
		if sc.SessionID == sessionID && sc.ModuleName == moduleName {
			copied := sc
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeTestStore) CountScores(sessionID uint) (int64, error) {
	var n int64
	for _, sc := range f.scores {
		if sc.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

type fakeConfigStore struct {
	cfg *model.TestConfig
}

func (f *fakeConfigStore) FindActive() (*model.TestConfig, error) {
	if f.cfg == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.cfg, nil
}

type fakeProvider struct {
	generateCalls int
	generateErr   error
	gotDifficulty model.CEFRLevel
	eval          *SubjectiveEvaluation
	evalErr       error
}

func (f *fakeProvider) GenerateContent(ctx context.Context, module model.ModuleName, difficulty model.CEFRLevel) (*GeneratedContent, error) {
	f.generateCalls++
	f.gotDifficulty = difficulty
	if f.generateErr != nil {
		return nil, f.generateErr
	}

	content := &GeneratedContent{Module: module}
	switch module {
	case model.ModuleReading:
		content.Reading = &ReadingContent{
			Title:          "Reading",
			Passage:        "A passage.",
			Questions:      []ObjectiveQuestion{{ID: "q1", Question: "?", Options: []string{"A", "B"}}, {ID: "q2", Question: "?", Options: []string{"A", "B"}}},
			CorrectAnswers: map[string]string{"q1": "A", "q2": "B"},
			Weights:        map[string]float64{"q1": 1, "q2": 3},
		}
	case model.ModuleListening:
		content.Listening = &ListeningContent{
			Title:          "Listening",
			Transcript:     "A transcript.",
			Questions:      []ObjectiveQuestion{{ID: "q1", Question: "?", Options: []string{"A", "B"}}},
			CorrectAnswers: map[string]string{"q1": "A"},
			Weights:        map[string]float64{"q1": 1},
		}
	case model.ModuleWriting:
		content.Writing = &WritingContent{Title: "Writing", Prompt: "Write an essay.", MinWords: 150, MaxWords: 400}
	case model.ModuleSpeaking:
		content.Speaking = &SpeakingContent{Title: "Speaking", Prompt: "Talk about travel.", PreparationSeconds: 30}
	}
	return content, nil
}

func (f *fakeProvider) EvaluateSubjective(ctx context.Context, module model.ModuleName, task, answer string) (*SubjectiveEvaluation, error) {
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	if f.eval != nil {
		return f.eval, nil
	}
	return &SubjectiveEvaluation{Score: 75, CEFRLevel: model.B2, Feedback: "Good."}, nil
}

func (f *fakeProvider) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	return "transcribed text", nil
}

type fakeTTS struct {
	url string
	err error
}

func (f *fakeTTS) SynthesizeToURL(ctx context.Context, text string, difficulty model.CEFRLevel) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func newTestEngine(t *testing.T) (*TestService, *fakeTestStore, *fakeProvider) {
	t.Helper()
	store := newFakeTestStore()
	provider := &fakeProvider{}
	mem := cache.NewMemoryStore()
	t.Cleanup(mem.Close)

	svc := NewTestService(store, &fakeConfigStore{}, provider, &fakeTTS{url: "/uploads/listening/x.mp3"}, mem, model.DefaultModuleOrder)
	return svc, store, provider
}

func TestStartSessionResumesActive(t *testing.T) {
	svc, _, _ := newTestEngine(t)

	s1, created, err := svc.StartSession(7)
	require.NoError(t, err)
	assert.True(t, created)

	s2, created, err := svc.StartSession(7)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, s1.ID, s2.ID)
}

func TestModuleContentStripsAnswers(t *testing.T) {
	svc, _, provider := newTestEngine(t)
	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	view, err := svc.ModuleContent(context.Background(), 1, session.ID, model.ModuleReading, "")
	require.NoError(t, err)
	assert.Equal(t, model.ModuleReading, view.Module)
	assert.Equal(t, 1200, view.TimeLimitSeconds)

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correct_answers")
	assert.NotContains(t, string(raw), "weights")

	// 重复请求复用缓存，不再调用生成服务
	_, err = svc.ModuleContent(context.Background(), 1, session.ID, model.ModuleReading, "")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.generateCalls)
}

func TestModuleContentUsesRequestedLevel(t *testing.T) {
	svc, _, provider := newTestEngine(t)
	session, _, err := svc.StartSession(1)
	require.NoError(t, err)
	ctx := context.Background()

	// 学生申请的难度要原样传给生成服务
	_, err = svc.ModuleContent(ctx, 1, session.ID, model.ModuleReading, model.C1)
	require.NoError(t, err)
	assert.Equal(t, model.C1, provider.gotDifficulty)

	// 未指定难度时用激活预设的难度
	_, err = svc.ModuleContent(ctx, 1, session.ID, model.ModuleWriting, "")
	require.NoError(t, err)
	assert.Equal(t, model.B1, provider.gotDifficulty)

	// 未知难度直接拒绝，不触发生成
	calls := provider.generateCalls
	_, err = svc.ModuleContent(ctx, 1, session.ID, model.ModuleSpeaking, model.CEFRLevel("Z9"))
	assert.ErrorIs(t, err, util.ErrInvalidCEFRLevel)
	assert.Equal(t, calls, provider.generateCalls)
}

func TestModuleContentTTSFailureNonFatal(t *testing.T) {
	store := newFakeTestStore()
	mem := cache.NewMemoryStore()
	t.Cleanup(mem.Close)
	svc := NewTestService(store, &fakeConfigStore{}, &fakeProvider{}, &fakeTTS{err: errors.New("tts down")}, mem, model.DefaultModuleOrder)

	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	view, err := svc.ModuleContent(context.Background(), 1, session.ID, model.ModuleListening, "")
	require.NoError(t, err)

	payload := view.Content.(map[string]interface{})
	assert.Equal(t, "", payload["audioUrl"])
}

func TestModuleContentWrongUser(t *testing.T) {
	svc, _, _ := newTestEngine(t)
	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	_, err = svc.ModuleContent(context.Background(), 99, session.ID, model.ModuleReading, "")
	assert.ErrorIs(t, err, util.ErrSessionNotFound)
}

func TestModuleContentInvalidModule(t *testing.T) {
	svc, _, _ := newTestEngine(t)
	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	_, err = svc.ModuleContent(context.Background(), 1, session.ID, model.ModuleName("grammar"), "")
	assert.ErrorIs(t, err, util.ErrInvalidModule)
}

func TestSubmitObjectiveModule(t *testing.T) {
	svc, store, _ := newTestEngine(t)
	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	_, err = svc.ModuleContent(context.Background(), 1, session.ID, model.ModuleReading, "")
	require.NoError(t, err)

	score, _, err := svc.SubmitModule(context.Background(), 1, session.ID, model.ModuleReading, ModuleSubmission{
		Answers:         map[string]string{"q1": "A", "q2": "A"}, // q1 对(权1)，q2 错(权3)
		DurationSeconds: 300,
	})
	require.NoError(t, err)
	assert.InDelta(t, 25.0, score.Score, 0.001)
	assert.Equal(t, model.A1, score.CEFRLevel)
	assert.Equal(t, 300, score.DurationSeconds)

	saved, err := store.FindScore(session.ID, model.ModuleReading)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, saved.Score, 0.001)
}

func TestSubmitWithoutContent(t *testing.T) {
	svc, _, _ := newTestEngine(t)
	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	_, _, err = svc.SubmitModule(context.Background(), 1, session.ID, model.ModuleReading, ModuleSubmission{})
	assert.ErrorIs(t, err, util.ErrContentExpired)
}

func TestSubmitDurationCappedAtLimit(t *testing.T) {
	svc, _, _ := newTestEngine(t)
	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	_, err = svc.ModuleContent(context.Background(), 1, session.ID, model.ModuleReading, "")
	require.NoError(t, err)

	score, _, err := svc.SubmitModule(context.Background(), 1, session.ID, model.ModuleReading, ModuleSubmission{
		Answers:         map[string]string{"q1": "A"},
		DurationSeconds: 999999,
	})
	require.NoError(t, err)
	assert.Equal(t, 1200, score.DurationSeconds)
}

func TestDuplicateSubmitRejected(t *testing.T) {
	svc, _, _ := newTestEngine(t)
	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.ModuleContent(ctx, 1, session.ID, model.ModuleWriting, "")
	require.NoError(t, err)

	_, _, err = svc.SubmitModule(ctx, 1, session.ID, model.ModuleWriting, ModuleSubmission{Text: "essay"})
	require.NoError(t, err)

	// 提交后内容快照被清掉，先于唯一约束报告过期
	_, _, err = svc.SubmitModule(ctx, 1, session.ID, model.ModuleWriting, ModuleSubmission{Text: "essay"})
	assert.ErrorIs(t, err, util.ErrContentExpired)

	// 再次请求内容也会被拒绝
	_, err = svc.ModuleContent(ctx, 1, session.ID, model.ModuleWriting, "")
	assert.ErrorIs(t, err, util.ErrModuleSubmitted)

	// 并发提交场景：快照还在缓存里时，唯一约束兜底
	raw, err := json.Marshal(&GeneratedContent{
		Module:  model.ModuleWriting,
		Writing: &WritingContent{Title: "W", Prompt: "Write."},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Cache.Set(ctx, contentKey(session.ID, model.ModuleWriting), string(raw), time.Minute))

	_, _, err = svc.SubmitModule(ctx, 1, session.ID, model.ModuleWriting, ModuleSubmission{Text: "essay"})
	assert.ErrorIs(t, err, util.ErrModuleSubmitted)
}

func TestEvaluationUnavailableFallsBackToZero(t *testing.T) {
	store := newFakeTestStore()
	provider := &fakeProvider{evalErr: fmt.Errorf("%w: gateway timeout", util.ErrEvaluationUnavailable)}
	mem := cache.NewMemoryStore()
	t.Cleanup(mem.Close)
	svc := NewTestService(store, &fakeConfigStore{}, provider, &fakeTTS{}, mem, model.DefaultModuleOrder)

	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.ModuleContent(ctx, 1, session.ID, model.ModuleWriting, "")
	require.NoError(t, err)

	score, _, err := svc.SubmitModule(ctx, 1, session.ID, model.ModuleWriting, ModuleSubmission{Text: "essay"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.Score)
	assert.Equal(t, model.A1, score.CEFRLevel)

	var feedback map[string]interface{}
	require.NoError(t, json.Unmarshal(score.AIFeedback, &feedback))
	assert.Equal(t, true, feedback["evaluation_unavailable"])
}

func TestFullSessionFinalizes(t *testing.T) {
	svc, _, _ := newTestEngine(t)
	session, _, err := svc.StartSession(1)
	require.NoError(t, err)
	ctx := context.Background()

	var finalSession *model.TestSession
	for _, m := range model.DefaultModuleOrder {
		_, err = svc.ModuleContent(ctx, 1, session.ID, m, "")
		require.NoError(t, err)

		sub := ModuleSubmission{Text: "answer"}
		if m.IsObjective() {
			sub = ModuleSubmission{Answers: map[string]string{"q1": "A", "q2": "B"}}
		}
		_, finalSession, err = svc.SubmitModule(ctx, 1, session.ID, m, sub)
		require.NoError(t, err)
	}

	require.NotNil(t, finalSession)
	assert.True(t, finalSession.IsCompleted)
	require.NotNil(t, finalSession.CompletedAt)
	require.NotNil(t, finalSession.OverallScore)
	// reading 100 + listening 100 + speaking 75 + writing 75
	assert.InDelta(t, 87.5, *finalSession.OverallScore, 0.001)
	require.NotNil(t, finalSession.OverallCEFRLevel)
	assert.Equal(t, model.C1, *finalSession.OverallCEFRLevel)

	result, err := svc.Results(1, session.ID)
	require.NoError(t, err)
	assert.Len(t, result.Modules, 4)
	assert.NotEmpty(t, result.LevelDescription)

	// 会话结束后不能再请求内容
	_, err = svc.ModuleContent(ctx, 1, session.ID, model.ModuleReading, "")
	assert.ErrorIs(t, err, util.ErrSessionCompleted)
}

func TestProgressReportsNextModule(t *testing.T) {
	svc, _, _ := newTestEngine(t)
	session, _, err := svc.StartSession(1)
	require.NoError(t, err)
	ctx := context.Background()

	progress, err := svc.Progress(1, session.ID)
	require.NoError(t, err)
	assert.Empty(t, progress.Completed)
	require.NotNil(t, progress.Next)
	assert.Equal(t, model.ModuleReading, *progress.Next)

	_, err = svc.ModuleContent(ctx, 1, session.ID, model.ModuleReading, "")
	require.NoError(t, err)
	_, _, err = svc.SubmitModule(ctx, 1, session.ID, model.ModuleReading, ModuleSubmission{Answers: map[string]string{"q1": "A"}})
	require.NoError(t, err)

	progress, err = svc.Progress(1, session.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.ModuleName{model.ModuleReading}, progress.Completed)
	require.NotNil(t, progress.Next)
	assert.Equal(t, model.ModuleListening, *progress.Next)
}

func TestActiveConfigFallback(t *testing.T) {
	svc, _, _ := newTestEngine(t)

	cfg := svc.ActiveConfig()
	assert.Equal(t, 1200, cfg.ReadingTimeLimit)
	assert.Equal(t, 840, cfg.ListeningTimeLimit)
	assert.Equal(t, 2400, cfg.WritingTimeLimit)
	assert.Equal(t, 180, cfg.SpeakingTimeLimit)
	assert.Equal(t, model.B1, cfg.Difficulty)
}

func TestCustomConfigTimeLimits(t *testing.T) {
	store := newFakeTestStore()
	mem := cache.NewMemoryStore()
	t.Cleanup(mem.Close)
	custom := &model.TestConfig{
		ReadingTimeLimit:   600,
		ListeningTimeLimit: 400,
		WritingTimeLimit:   1000,
		SpeakingTimeLimit:  120,
		Difficulty:         model.C1,
	}
	svc := NewTestService(store, &fakeConfigStore{cfg: custom}, &fakeProvider{}, &fakeTTS{}, mem, model.DefaultModuleOrder)

	session, _, err := svc.StartSession(1)
	require.NoError(t, err)

	view, err := svc.ModuleContent(context.Background(), 1, session.ID, model.ModuleReading, "")
	require.NoError(t, err)
	assert.Equal(t, 600, view.TimeLimitSeconds)
}
