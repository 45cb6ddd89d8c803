package model

import (
	"time"
)

// ModuleName 四个固定的技能模块
type ModuleName string

const (
	ModuleReading   ModuleName = "reading"
	ModuleListening ModuleName = "listening"
	ModuleSpeaking  ModuleName = "speaking"
	ModuleWriting   ModuleName = "writing"
)

// DefaultModuleOrder 模块的建议完成顺序。注入测试引擎使用，
// 不强制客户端按序作答，只用于计算"下一个模块"提示
var DefaultModuleOrder = []ModuleName{ModuleReading, ModuleListening, ModuleSpeaking, ModuleWriting}

func ValidModuleName(m ModuleName) bool {
	for _, v := range DefaultModuleOrder {
		if v == m {
			return true
		}
	}
	return false
}

// IsObjective 客观题模块（阅读/听力）由本地加权算法评分，其余交给 AI
func (m ModuleName) IsObjective() bool {
	return m == ModuleReading || m == ModuleListening
}

// TestSession 一名学生对四个模块的一次完整测试
// swagger:model TestSession
type TestSession struct {
	BaseModel
	UserID           uint          `gorm:"index;not null" json:"userId"`
	StartedAt        time.Time     `gorm:"not null" json:"startedAt"`
	CompletedAt      *time.Time    `json:"completedAt,omitempty"`
	IsCompleted      bool          `gorm:"default:false;index" json:"isCompleted"`
	OverallScore     *float64      `json:"overallScore,omitempty"`
	OverallCEFRLevel *CEFRLevel    `gorm:"size:5" json:"overallCefrLevel,omitempty"`
	Scores           []ModuleScore `gorm:"foreignKey:SessionID" json:"-"`
}

func (TestSession) TableName() string {
	return "test_sessions"
}
