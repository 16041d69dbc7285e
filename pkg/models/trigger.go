package models

import "time"

// TriggerType 降级触发类型
type TriggerType string

const (
	TriggerComponentFailure    TriggerType = "COMPONENT_FAILURE"    // 组件失效
	TriggerResourceExhaustion  TriggerType = "RESOURCE_EXHAUSTION"  // 资源耗尽
	TriggerConnectivityLoss    TriggerType = "CONNECTIVITY_LOSS"    // 连接丢失
	TriggerSecurityIncident    TriggerType = "SECURITY_INCIDENT"    // 安全事件
	TriggerInvariantDisruption TriggerType = "INVARIANT_DISRUPTION" // 不变量受扰
)

// ValidTriggerType 校验触发类型是否合法
func ValidTriggerType(t TriggerType) bool {
	switch t {
	case TriggerComponentFailure, TriggerResourceExhaustion,
		TriggerConnectivityLoss, TriggerSecurityIncident, TriggerInvariantDisruption:
		return true
	}
	return false
}

// Trigger 原始触发事件（来自监测或外部上报）
type Trigger struct {
	Type               TriggerType `json:"type"`                           // 触发类型
	ComponentID        string      `json:"component_id,omitempty"`         // 主要涉事组件
	AffectedComponents []string    `json:"affected_components,omitempty"`  // 受影响组件列表
	Impact             float64     `json:"impact"`                         // 原始影响估计 [0,1]
	ControlPlaneImpact float64     `json:"control_plane_impact,omitempty"` // 显式控制面影响（>0时优先采用）
	Description        string      `json:"description,omitempty"`          // 事件描述
	ReceivedAt         time.Time   `json:"received_at"`                    // 接收时间
}

// ImpactAssessment 影响评估结果
type ImpactAssessment struct {
	ControlPlaneImpact       float64       `json:"control_plane_impact"`          // 控制面影响 [0,1]
	TrustedSessionImpact     float64       `json:"trusted_session_impact"`        // 可信会话影响 [0,1]
	EcosystemCoherenceImpact float64       `json:"ecosystem_coherence_impact"`    // 生态协同影响 [0,1]
	AffectedComponents       []string      `json:"affected_components"`           // 受影响组件
	EstimatedDuration        time.Duration `json:"estimated_duration"`            // 预计持续时长
	RequiresFormalPlan       bool          `json:"requires_formal_recovery_plan"` // 是否需要正式恢复计划
}
