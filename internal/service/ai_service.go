package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"virtualtest_backend/internal/config"
	"virtualtest_backend/internal/model"
	"virtualtest_backend/internal/util"
	"virtualtest_backend/pkg/logger"

	"go.uber.org/zap"
)

// AIService 对接 OpenAI 兼容的推理服务：内容生成、主观题评分、语音转写
type AIService struct {
	config config.AIConfig
	client *http.Client
}

func NewAIService(cfg config.AIConfig) *AIService {
	return &AIService{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionRequest struct {
	Model    string          `json:"model"`
	Messages []AIChatMessage `json:"messages"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message AIChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ObjectiveQuestion 客观题。正确答案和权重保存在内容快照里，不下发给客户端
type ObjectiveQuestion struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type ReadingContent struct {
	Title          string              `json:"title"`
	Passage        string              `json:"passage"`
	Questions      []ObjectiveQuestion `json:"questions"`
	CorrectAnswers map[string]string   `json:"correct_answers"`
	Weights        map[string]float64  `json:"weights"`
}

type ListeningContent struct {
	Title          string              `json:"title"`
	Transcript     string              `json:"transcript"`
	AudioURL       string              `json:"audio_url,omitempty"`
	Questions      []ObjectiveQuestion `json:"questions"`
	CorrectAnswers map[string]string   `json:"correct_answers"`
	Weights        map[string]float64  `json:"weights"`
}

type WritingContent struct {
	Title    string `json:"title"`
	Prompt   string `json:"prompt"`
	MinWords int    `json:"min_words"`
	MaxWords int    `json:"max_words"`
}

type SpeakingContent struct {
	Title              string `json:"title"`
	Prompt             string `json:"prompt"`
	PreparationSeconds int    `json:"preparation_seconds"`
}

// GeneratedContent 模块内容的标签联合：Module 指明哪个指针非空，
// 其余三个必须为 nil。构造失败一律返回包装过的 ErrContentGeneration
type GeneratedContent struct {
	Module    model.ModuleName  `json:"module"`
	Reading   *ReadingContent   `json:"reading,omitempty"`
	Listening *ListeningContent `json:"listening,omitempty"`
	Writing   *WritingContent   `json:"writing,omitempty"`
	Speaking  *SpeakingContent  `json:"speaking,omitempty"`
}

// SubjectiveEvaluation 写作/口语的 AI 评分结果
type SubjectiveEvaluation struct {
	Score        float64         `json:"score"`
	CEFRLevel    model.CEFRLevel `json:"cefr_level"`
	Feedback     string          `json:"feedback"`
	Strengths    []string        `json:"strengths"`
	Improvements []string        `json:"improvements"`
}

func (s *AIService) chat(ctx context.Context, system, prompt string) (string, error) {
	reqBody := ChatCompletionRequest{
		Model: s.config.Model,
		Messages: []AIChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("AI API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}

	if result.Error != nil {
		return "", fmt.Errorf("AI API error: %s", result.Error.Message)
	}

	if len(result.Choices) > 0 {
		return result.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("AI returned no choices")
}

var (
	codeFenceRe    = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	trailingComma  = regexp.MustCompile(`,\s*([}\]])`)
)

// CleanJSONResponse 模型输出经常带代码围栏或前后说明文字，
// 这里尽力抽出其中第一个完整的 JSON 对象并修掉尾逗号
func CleanJSONResponse(raw string) string {
	text := strings.TrimSpace(raw)

	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return trailingComma.ReplaceAllString(text, "$1")
}

const generationSystem = "You are an expert English language assessment designer. " +
	"You create CEFR-aligned test content. Respond with a single JSON object only, no explanations."

func generationPrompt(module model.ModuleName, difficulty model.CEFRLevel) string {
	switch module {
	case model.ModuleReading:
		return fmt.Sprintf(`Create a reading comprehension test at CEFR level %s.
Return JSON with this exact structure:
{"title": "...", "passage": "a passage of 250-400 words", "questions": [{"id": "q1", "question": "...", "options": ["A...", "B...", "C...", "D..."]}], "correct_answers": {"q1": "the full text of the correct option"}, "weights": {"q1": 20}}
Include exactly 8 questions (q1..q8), each with exactly 4 options. Harder questions get higher integer weights, between 10 and 50.`, difficulty)
	case model.ModuleListening:
		return fmt.Sprintf(`Create a listening comprehension test at CEFR level %s.
Return JSON with this exact structure:
{"title": "...", "transcript": "a natural spoken-style monologue or dialogue of 150-300 words", "questions": [{"id": "q1", "question": "...", "options": ["A...", "B...", "C...", "D..."]}], "correct_answers": {"q1": "the full text of the correct option"}, "weights": {"q1": 20}}
Include exactly 6 questions (q1..q6), each with exactly 4 options. Harder questions get higher integer weights, between 10 and 50.`, difficulty)
	case model.ModuleWriting:
		return fmt.Sprintf(`Create a writing task at CEFR level %s.
Return JSON with this exact structure:
{"title": "...", "prompt": "a clear essay or letter-writing task", "min_words": 150, "max_words": 400}`, difficulty)
	case model.ModuleSpeaking:
		return fmt.Sprintf(`Create a speaking task at CEFR level %s.
Return JSON with this exact structure:
{"title": "...", "prompt": "a clear topic the student should talk about for 1-2 minutes", "preparation_seconds": 30}`, difficulty)
	}
	return ""
}

// validateObjectiveContent 客观题结构校验：每题必须恰好 4 个选项，
// 权重（如果给了）必须为正数
func validateObjectiveContent(questions []ObjectiveQuestion, weights map[string]float64) error {
	for _, q := range questions {
		if len(q.Options) != 4 {
			return fmt.Errorf("question %q has %d options, want 4", q.ID, len(q.Options))
		}
	}
	for id, w := range weights {
		if w <= 0 {
			return fmt.Errorf("question %q has non-positive weight %v", id, w)
		}
	}
	return nil
}

// GenerateContent 为指定模块生成测试内容。任何提供方错误、解析失败
// 或结构校验失败都返回包装过的 ErrContentGeneration
func (s *AIService) GenerateContent(ctx context.Context, module model.ModuleName, difficulty model.CEFRLevel) (*GeneratedContent, error) {
	prompt := generationPrompt(module, difficulty)
	if prompt == "" {
		return nil, util.ErrInvalidModule
	}

	raw, err := s.chat(ctx, generationSystem, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrContentGeneration, err)
	}

	cleaned := CleanJSONResponse(raw)
	content := &GeneratedContent{Module: module}

	switch module {
	case model.ModuleReading:
		var rc ReadingContent
		if err := json.Unmarshal([]byte(cleaned), &rc); err != nil {
			return nil, fmt.Errorf("%w: invalid reading payload: %v", util.ErrContentGeneration, err)
		}
		if rc.Passage == "" || len(rc.Questions) == 0 {
			return nil, fmt.Errorf("%w: reading payload missing passage or questions", util.ErrContentGeneration)
		}
		if err := validateObjectiveContent(rc.Questions, rc.Weights); err != nil {
			return nil, fmt.Errorf("%w: invalid reading payload: %v", util.ErrContentGeneration, err)
		}
		content.Reading = &rc
	case model.ModuleListening:
		var lc ListeningContent
		if err := json.Unmarshal([]byte(cleaned), &lc); err != nil {
			return nil, fmt.Errorf("%w: invalid listening payload: %v", util.ErrContentGeneration, err)
		}
		if lc.Transcript == "" || len(lc.Questions) == 0 {
			return nil, fmt.Errorf("%w: listening payload missing transcript or questions", util.ErrContentGeneration)
		}
		if err := validateObjectiveContent(lc.Questions, lc.Weights); err != nil {
			return nil, fmt.Errorf("%w: invalid listening payload: %v", util.ErrContentGeneration, err)
		}
		content.Listening = &lc
	case model.ModuleWriting:
		var wc WritingContent
		if err := json.Unmarshal([]byte(cleaned), &wc); err != nil {
			return nil, fmt.Errorf("%w: invalid writing payload: %v", util.ErrContentGeneration, err)
		}
		if wc.Prompt == "" {
			return nil, fmt.Errorf("%w: writing payload missing prompt", util.ErrContentGeneration)
		}
		content.Writing = &wc
	case model.ModuleSpeaking:
		var sc SpeakingContent
		if err := json.Unmarshal([]byte(cleaned), &sc); err != nil {
			return nil, fmt.Errorf("%w: invalid speaking payload: %v", util.ErrContentGeneration, err)
		}
		if sc.Prompt == "" {
			return nil, fmt.Errorf("%w: speaking payload missing prompt", util.ErrContentGeneration)
		}
		content.Speaking = &sc
	}

	return content, nil
}

const evaluationSystem = "You are an expert CEFR examiner for English. " +
	"Score strictly and consistently. Respond with a single JSON object only."

// EvaluateSubjective 写作/口语的 AI 评分。提供方不可用或返回无法解析时
// 返回 ErrEvaluationUnavailable，由测试引擎决定兜底策略
func (s *AIService) EvaluateSubjective(ctx context.Context, module model.ModuleName, task, answer string) (*SubjectiveEvaluation, error) {
	skill := "written response"
	if module == model.ModuleSpeaking {
		skill = "transcribed spoken response"
	}

	prompt := fmt.Sprintf(`Evaluate the following %s against the task.

Task:
%s

Student response:
%s

Return JSON with this exact structure:
{"score": 0-100, "cefr_level": "A1|A2|B1|B2|C1|C2", "feedback": "2-3 sentence overall comment", "strengths": ["..."], "improvements": ["..."]}`, skill, task, answer)

	raw, err := s.chat(ctx, evaluationSystem, prompt)
	if err != nil {
		logger.Log.Warn("Subjective evaluation request failed",
			zap.String("module", string(module)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", util.ErrEvaluationUnavailable, err)
	}

	var eval SubjectiveEvaluation
	if err := json.Unmarshal([]byte(CleanJSONResponse(raw)), &eval); err != nil {
		logger.Log.Warn("Subjective evaluation returned unparseable payload",
			zap.String("module", string(module)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: invalid evaluation payload: %v", util.ErrEvaluationUnavailable, err)
	}

	if eval.Score < 0 {
		eval.Score = 0
	}
	if eval.Score > 100 {
		eval.Score = 100
	}
	if !model.ValidCEFRLevel(eval.CEFRLevel) {
		eval.CEFRLevel = ""
	}

	return &eval, nil
}

// Transcribe 上传录音到转写接口，返回文字稿
func (s *AIService) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", err
	}
	if err := writer.WriteField("model", s.config.TranscribeModel); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.BaseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	if result.Text == "" {
		return "", fmt.Errorf("transcription returned empty text")
	}

	return result.Text, nil
}

// Synthesize 调用语音合成接口，返回音频字节流。A1/A2 难度使用慢速语音
func (s *AIService) Synthesize(ctx context.Context, text string, difficulty model.CEFRLevel) ([]byte, error) {
	speed := 1.0
	if difficulty == model.A1 || difficulty == model.A2 {
		speed = 0.8
	}

	reqBody := map[string]interface{}{
		"model": s.config.SpeechModel,
		"voice": s.config.SpeechVoice,
		"input": text,
		"speed": speed,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.BaseURL+"/audio/speech", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("speech API error (status %d): %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}
