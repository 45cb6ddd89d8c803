package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"virtualtest_backend/internal/config"
	"virtualtest_backend/internal/model"
	"virtualtest_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAIService(t *testing.T, handler http.HandlerFunc) *AIService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewAIService(config.AIConfig{
		BaseURL:         server.URL,
		APIKey:          "test-key",
		Model:           "test-model",
		TranscribeModel: "test-whisper",
		SpeechModel:     "test-tts",
		SpeechVoice:     "alloy",
		Timeout:         5 * time.Second,
	})
}

func chatReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
}

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain json",
			in:   `{"a": 1}`,
			want: `{"a": 1}`,
		},
		{
			name: "code fence",
			in:   "```json\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "surrounding prose",
			in:   "Here is the test:\n{\"a\": 1}\nHope it helps!",
			want: `{"a": 1}`,
		},
		{
			name: "trailing commas",
			in:   `{"a": [1, 2,], "b": {"c": 3,},}`,
			want: `{"a": [1, 2], "b": {"c": 3}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanJSONResponse(tt.in)
			assert.Equal(t, tt.want, got)

			var v map[string]any
			assert.NoError(t, json.Unmarshal([]byte(got), &v))
		})
	}
}

func TestGenerateContentReading(t *testing.T) {
	payload := `{"title":"City Life","passage":"A long passage about cities.","questions":[{"id":"q1","question":"What is the passage about?","options":["Cities","Farms","Oceans","Mountains"]}],"correct_answers":{"q1":"Cities"},"weights":{"q1":1.5}}`

	s := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		chatReply(t, w, "```json\n"+payload+"\n```")
	})

	content, err := s.GenerateContent(context.Background(), model.ModuleReading, model.B1)
	require.NoError(t, err)

	assert.Equal(t, model.ModuleReading, content.Module)
	require.NotNil(t, content.Reading)
	assert.Nil(t, content.Listening)
	assert.Nil(t, content.Writing)
	assert.Nil(t, content.Speaking)
	assert.Equal(t, "City Life", content.Reading.Title)
	assert.Equal(t, "Cities", content.Reading.CorrectAnswers["q1"])
	assert.InDelta(t, 1.5, content.Reading.Weights["q1"], 0.001)
}

func TestGenerateContentProviderDown(t *testing.T) {
	s := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := s.GenerateContent(context.Background(), model.ModuleWriting, model.B2)
	assert.ErrorIs(t, err, util.ErrContentGeneration)
}

func TestGenerateContentUnparseable(t *testing.T) {
	s := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, "I cannot produce JSON today, sorry.")
	})

	_, err := s.GenerateContent(context.Background(), model.ModuleReading, model.B1)
	assert.ErrorIs(t, err, util.ErrContentGeneration)
}

func TestGenerateContentMissingQuestions(t *testing.T) {
	s := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, `{"title":"T","passage":"P","questions":[]}`)
	})

	_, err := s.GenerateContent(context.Background(), model.ModuleReading, model.A2)
	assert.ErrorIs(t, err, util.ErrContentGeneration)
}

func TestGenerateContentWrongOptionCount(t *testing.T) {
	s := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, `{"title":"T","passage":"P","questions":[{"id":"q1","question":"?","options":["A","B","C"]}],"correct_answers":{"q1":"A"},"weights":{"q1":20}}`)
	})

	_, err := s.GenerateContent(context.Background(), model.ModuleReading, model.B1)
	assert.ErrorIs(t, err, util.ErrContentGeneration)
}

func TestGenerateContentNonPositiveWeight(t *testing.T) {
	s := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, `{"title":"T","transcript":"S","questions":[{"id":"q1","question":"?","options":["A","B","C","D"]}],"correct_answers":{"q1":"A"},"weights":{"q1":-3}}`)
	})

	_, err := s.GenerateContent(context.Background(), model.ModuleListening, model.B1)
	assert.ErrorIs(t, err, util.ErrContentGeneration)
}

func TestGenerateContentUnknownModule(t *testing.T) {
	s := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for unknown module")
	})

	_, err := s.GenerateContent(context.Background(), model.ModuleName("grammar"), model.B1)
	assert.ErrorIs(t, err, util.ErrInvalidModule)
}

func TestEvaluateSubjective(t *testing.T) {
	s := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, `{"score": 72.4, "cefr_level": "B2", "feedback": "Solid essay.", "strengths": ["vocabulary"], "improvements": ["articles"]}`)
	})

	eval, err := s.EvaluateSubjective(context.Background(), model.ModuleWriting, "Write about your hometown.", "My hometown is...")
	require.NoError(t, err)
	assert.InDelta(t, 72.4, eval.Score, 0.001)
	assert.Equal(t, model.B2, eval.CEFRLevel)
	assert.Equal(t, "Solid essay.", eval.Feedback)
}

func TestEvaluateSubjectiveClampsScore(t *testing.T) {
	s := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, `{"score": 140, "cefr_level": "X9", "feedback": "?"}`)
	})

	eval, err := s.EvaluateSubjective(context.Background(), model.ModuleSpeaking, "Talk about food.", "I like food.")
	require.NoError(t, err)
	assert.Equal(t, 100.0, eval.Score)
	assert.Empty(t, eval.CEFRLevel)
}

func TestEvaluateSubjectiveUnavailable(t *testing.T) {
	s := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := s.EvaluateSubjective(context.Background(), model.ModuleWriting, "task", "answer")
	assert.ErrorIs(t, err, util.ErrEvaluationUnavailable)
}

func TestTranscribe(t *testing.T) {
	s := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "test-whisper", r.FormValue("model"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "recording.mp3", header.Filename)

		data, _ := io.ReadAll(file)
		assert.Equal(t, "fake-audio-bytes", string(data))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": "Hello, my name is Ana."})
	})

	text, err := s.Transcribe(context.Background(), strings.NewReader("fake-audio-bytes"), "recording.mp3")
	require.NoError(t, err)
	assert.Equal(t, "Hello, my name is Ana.", text)
}

func TestTranscribeEmptyText(t *testing.T) {
	s := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": ""})
	})

	_, err := s.Transcribe(context.Background(), strings.NewReader("x"), "a.wav")
	assert.Error(t, err)
}

func TestSynthesizeSlowVoiceForBeginners(t *testing.T) {
	var gotSpeed float64
	s := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotSpeed = body["speed"].(float64)
		w.Write([]byte("mp3-bytes"))
	})

	audio, err := s.Synthesize(context.Background(), "Listen carefully.", model.A1)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), audio)
	assert.InDelta(t, 0.8, gotSpeed, 0.001)

	_, err = s.Synthesize(context.Background(), "Listen carefully.", model.C1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, gotSpeed, 0.001)
}
