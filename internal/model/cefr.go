package model

// CEFRLevel 欧洲语言共同参考框架等级，A1 最低，C2 最高
type CEFRLevel string

const (
	A1 CEFRLevel = "A1"
	A2 CEFRLevel = "A2"
	B1 CEFRLevel = "B1"
	B2 CEFRLevel = "B2"
	C1 CEFRLevel = "C1"
	C2 CEFRLevel = "C2"
)

var CEFRLevels = []CEFRLevel{A1, A2, B1, B2, C1, C2}

// CEFRDescriptions 结果页展示用的等级描述
var CEFRDescriptions = map[CEFRLevel]string{
	A1: "Beginner - Can understand basic expressions",
	A2: "Elementary - Can understand simple daily topics",
	B1: "Intermediate-Low - Can understand main points",
	B2: "Intermediate-High - Can understand complex texts",
	C1: "Advanced - Can understand wide-ranging texts",
	C2: "Proficient - Can easily understand everything",
}

func ValidCEFRLevel(l CEFRLevel) bool {
	for _, v := range CEFRLevels {
		if v == l {
			return true
		}
	}
	return false
}
