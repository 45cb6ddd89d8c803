package model

// TestConfig 管理员可调的测试参数预设。任意时刻只有一条记录处于激活状态，
// 表为空时引擎回退到各模块默认时长
// swagger:model TestConfig
type TestConfig struct {
	BaseModel
	Name               string    `gorm:"size:50;uniqueIndex;not null;default:'default'" json:"name"`
	ReadingTimeLimit   int       `gorm:"not null;default:1200" json:"readingTimeLimit"`   // 秒，20 分钟
	ListeningTimeLimit int       `gorm:"not null;default:840" json:"listeningTimeLimit"`  // 秒，14 分钟
	WritingTimeLimit   int       `gorm:"not null;default:2400" json:"writingTimeLimit"`   // 秒，40 分钟
	SpeakingTimeLimit  int       `gorm:"not null;default:180" json:"speakingTimeLimit"`   // 秒，3 分钟
	Difficulty         CEFRLevel `gorm:"size:5;default:'B1'" json:"difficulty"`           // 未指定等级时的默认难度
	IsActive           bool      `gorm:"default:false;index" json:"isActive"`
}

func (TestConfig) TableName() string {
	return "test_configs"
}

// DefaultTestConfig 表为空或查询失败时的兜底参数
func DefaultTestConfig() *TestConfig {
	return &TestConfig{
		Name:               "default",
		ReadingTimeLimit:   1200,
		ListeningTimeLimit: 840,
		WritingTimeLimit:   2400,
		SpeakingTimeLimit:  180,
		Difficulty:         B1,
	}
}

// TimeLimit 返回指定模块的限时（秒）
func (c *TestConfig) TimeLimit(m ModuleName) int {
	switch m {
	case ModuleReading:
		return c.ReadingTimeLimit
	case ModuleListening:
		return c.ListeningTimeLimit
	case ModuleWriting:
		return c.WritingTimeLimit
	case ModuleSpeaking:
		return c.SpeakingTimeLimit
	}
	return 0
}
