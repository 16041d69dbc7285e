package models

import "time"

// ScenarioStatus 降级场景状态
type ScenarioStatus string

const (
	ScenarioActive      ScenarioStatus = "ACTIVE"      // 已建档，缓解策略生效中
	ScenarioRecovering  ScenarioStatus = "RECOVERING"  // 恢复计划执行中
	ScenarioStalled     ScenarioStatus = "STALLED"     // 重试耗尽，等待二线处置
	ScenarioUnplannable ScenarioStatus = "UNPLANNABLE" // 恢复计划无法构建（依赖成环）
	ScenarioResolved    ScenarioStatus = "RESOLVED"    // 恢复完成并通过校验
	ScenarioCancelled   ScenarioStatus = "CANCELLED"   // 外部取消
)

// Terminal 判断状态是否为终态
func (s ScenarioStatus) Terminal() bool {
	return s == ScenarioResolved || s == ScenarioCancelled
}

// InvariantMeasures 为两个受保护不变量记录的保全措施
type InvariantMeasures struct {
	ControlPlane   []string `json:"control_plane,omitempty"`
	TrustedSession []string `json:"trusted_session,omitempty"`
}

// DegradationScenario 降级场景记录
// 由场景管理器创建并独占所有权直至关闭；关闭后归档，永不删除
type DegradationScenario struct {
	ID                  string            `json:"id"`
	TriggerType         TriggerType       `json:"trigger_type"`
	AffectedComponents  []string          `json:"affected_components"`
	RootCause           string            `json:"root_cause,omitempty"`
	Level               DegradationLevel  `json:"level"`
	Status              ScenarioStatus    `json:"status"`
	Assessment          ImpactAssessment  `json:"assessment"`
	ActiveStrategies    []Strategy        `json:"active_strategies,omitempty"`
	RecoveryPlan        *RecoveryPlan     `json:"recovery_plan,omitempty"`
	InvariantMeasures   InvariantMeasures `json:"invariant_measures"`
	StartedAt           time.Time         `json:"started_at"`
	EstimatedResolution *time.Time        `json:"estimated_resolution,omitempty"`
	ClosedAt            *time.Time        `json:"closed_at,omitempty"`
	LessonsLearned      []string          `json:"lessons_learned,omitempty"`
}

// Overlaps 判断两个场景的受影响组件是否有交集
func (s *DegradationScenario) Overlaps(components []string) bool {
	set := make(map[string]struct{}, len(s.AffectedComponents))
	for _, c := range s.AffectedComponents {
		set[c] = struct{}{}
	}
	for _, c := range components {
		if _, ok := set[c]; ok {
			return true
		}
	}
	return false
}

// AddLesson 记录一条经验教训
func (s *DegradationScenario) AddLesson(lesson string) {
	s.LessonsLearned = append(s.LessonsLearned, lesson)
}
