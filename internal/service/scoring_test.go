package service

import (
	"testing"
	"virtualtest_backend/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestScoreObjective(t *testing.T) {
	correct := map[string]string{
		"q1": "Paris",
		"q2": "Blue",
		"q3": "Seven",
	}
	weights := map[string]float64{
		"q1": 1,
		"q2": 2,
		"q3": 3,
	}

	tests := []struct {
		name    string
		answers map[string]string
		want    float64
	}{
		{
			name:    "all correct",
			answers: map[string]string{"q1": "Paris", "q2": "Blue", "q3": "Seven"},
			want:    100,
		},
		{
			name:    "none correct",
			answers: map[string]string{"q1": "London", "q2": "Red", "q3": "Nine"},
			want:    0,
		},
		{
			name:    "weighted partial",
			answers: map[string]string{"q1": "Paris", "q3": "Seven"},
			want:    66.67, // (1+3)/6
		},
		{
			name:    "case and whitespace insensitive",
			answers: map[string]string{"q1": "  paris ", "q2": "BLUE", "q3": "seven"},
			want:    100,
		},
		{
			name:    "missing answers count as wrong",
			answers: map[string]string{"q2": "Blue"},
			want:    33.33, // 2/6
		},
		{
			name:    "nil answers",
			answers: nil,
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreObjective(correct, weights, tt.answers)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestScoreObjectiveFallbackWeights(t *testing.T) {
	correct := map[string]string{"q1": "A", "q2": "B"}

	// 权重缺失时整套按 1 计
	score := ScoreObjective(correct, nil, map[string]string{"q1": "A"})
	assert.InDelta(t, 50.0, score, 0.001)

	score = ScoreObjective(correct, map[string]float64{"q1": -5, "q2": 0}, map[string]string{"q2": "B"})
	assert.InDelta(t, 50.0, score, 0.001)
}

func TestScoreObjectivePartialWeightsFallBackWholesale(t *testing.T) {
	correct := map[string]string{"q1": "A", "q2": "B"}

	// 只给了一部分权重：不能混用真实权重和兜底权重，
	// 整套退回均一权重 1（若按 30/31 混算会得 96.77）
	score := ScoreObjective(correct, map[string]float64{"q1": 30}, map[string]string{"q1": "A"})
	assert.InDelta(t, 50.0, score, 0.001)

	// 有一题权重非正，同样整套退回均一权重
	score = ScoreObjective(correct, map[string]float64{"q1": 30, "q2": -1}, map[string]string{"q1": "A"})
	assert.InDelta(t, 50.0, score, 0.001)
}

func TestScoreObjectiveEmptyCorrectAnswers(t *testing.T) {
	assert.Equal(t, 0.0, ScoreObjective(nil, nil, map[string]string{"q1": "A"}))
	assert.Equal(t, 0.0, ScoreObjective(map[string]string{}, nil, nil))
}

func TestCEFRForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  model.CEFRLevel
	}{
		{100, model.C2},
		{90, model.C2},
		{89.99, model.C1},
		{80, model.C1},
		{79.5, model.B2},
		{65, model.B2},
		{64, model.B1},
		{50, model.B1},
		{49.99, model.A2},
		{35, model.A2},
		{34, model.A1},
		{0, model.A1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CEFRForScore(tt.score), "score %.2f", tt.score)
	}
}

func TestOverallScore(t *testing.T) {
	scores := []model.ModuleScore{
		{ModuleName: model.ModuleReading, Score: 80},
		{ModuleName: model.ModuleListening, Score: 70},
		{ModuleName: model.ModuleSpeaking, Score: 55.5},
		{ModuleName: model.ModuleWriting, Score: 61},
	}
	assert.InDelta(t, 66.63, OverallScore(scores), 0.001)

	assert.Equal(t, 0.0, OverallScore(nil))
}
