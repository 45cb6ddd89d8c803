package service

import (
	"math"
	"strings"
	"virtualtest_backend/internal/model"
)

// ScoreObjective 加权客观题评分：得分 = 100 * 命中权重 / 总权重。
// 比对时忽略大小写和首尾空白；权重必须整套有效，只要有一题缺权重
// 或权重非正，整套退回均一权重 1；没有标准答案时直接得 0 分。
// 结果保留两位小数
func ScoreObjective(correctAnswers map[string]string, weights map[string]float64, answers map[string]string) float64 {
	if len(correctAnswers) == 0 {
		return 0.0
	}

	uniform := false
	for id := range correctAnswers {
		if w, ok := weights[id]; !ok || w <= 0 {
			uniform = true
			break
		}
	}

	var totalWeight, matchedWeight float64
	for id, correct := range correctAnswers {
		w := 1.0
		if !uniform {
			w = weights[id]
		}
		totalWeight += w

		given, ok := answers[id]
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(given), strings.TrimSpace(correct)) {
			matchedWeight += w
		}
	}

	return roundScore(100 * matchedWeight / totalWeight)
}

// CEFRForScore 百分制得分到 CEFR 等级的映射
func CEFRForScore(score float64) model.CEFRLevel {
	switch {
	case score >= 90:
		return model.C2
	case score >= 80:
		return model.C1
	case score >= 65:
		return model.B2
	case score >= 50:
		return model.B1
	case score >= 35:
		return model.A2
	default:
		return model.A1
	}
}

// OverallScore 各模块得分的算术平均，保留两位小数。没有成绩时为 0
func OverallScore(scores []model.ModuleScore) float64 {
	if len(scores) == 0 {
		return 0.0
	}
	var sum float64
	for _, s := range scores {
		sum += s.Score
	}
	return roundScore(sum / float64(len(scores)))
}

func roundScore(x float64) float64 {
	return math.Round(x*100) / 100
}
