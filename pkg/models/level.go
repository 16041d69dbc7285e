package models

// DegradationLevel 降级等级（有序枚举，数值越大越严重）
type DegradationLevel int

const (
	LevelNone                          DegradationLevel = iota // 无降级
	LevelMinor                                                 // 轻微降级
	LevelModerate                                              // 中度降级
	LevelSignificant                                           // 显著降级
	LevelEmergencyMinimal                                      // 紧急最小化运行
	LevelCriticalInvariantPreservation                         // 关键不变量保全
)

func (l DegradationLevel) String() string {
	switch l {
	case LevelNone:
		return "NONE"
	case LevelMinor:
		return "MINOR"
	case LevelModerate:
		return "MODERATE"
	case LevelSignificant:
		return "SIGNIFICANT"
	case LevelEmergencyMinimal:
		return "EMERGENCY_MINIMAL"
	case LevelCriticalInvariantPreservation:
		return "CRITICAL_INVARIANT_PRESERVATION"
	default:
		return "UNKNOWN"
	}
}

// AtLeast 判断等级是否达到指定等级
func (l DegradationLevel) AtLeast(other DegradationLevel) bool {
	return l >= other
}

// MaxLevel 返回两个等级中较高者
func MaxLevel(a, b DegradationLevel) DegradationLevel {
	if a > b {
		return a
	}
	return b
}
