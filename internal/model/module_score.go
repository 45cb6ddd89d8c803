package model

import (
	"encoding/json"
	"time"
)

// ModuleScore 单个模块的一次评分结果。创建后不可变：
// 唯一索引保证同一会话内每个模块至多一条记录，重复提交在存储层被拒绝
// swagger:model ModuleScore
type ModuleScore struct {
	BaseModel
	SessionID       uint            `gorm:"not null;uniqueIndex:uniq_session_module" json:"sessionId"`
	ModuleName      ModuleName      `gorm:"size:20;not null;uniqueIndex:uniq_session_module" json:"moduleName"`
	Score           float64         `gorm:"not null" json:"score"`
	CEFRLevel       CEFRLevel       `gorm:"size:5" json:"cefrLevel"`
	Content         json.RawMessage `gorm:"type:json" json:"-"` // 生成内容快照
	UserAnswer      string          `gorm:"type:text" json:"-"` // 主观题原文/客观题答案 JSON
	AIFeedback      json.RawMessage `gorm:"type:json" json:"feedback,omitempty"`
	DurationSeconds int             `gorm:"default:0" json:"durationSeconds"`
	CompletedAt     time.Time       `gorm:"not null" json:"completedAt"`
}

func (ModuleScore) TableName() string {
	return "module_scores"
}
