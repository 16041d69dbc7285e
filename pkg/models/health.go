package models

import "time"

// ComponentHealth 单个组件的健康度量
// 仅由健康采样器写入，聚合器与分类器只读
type ComponentHealth struct {
	ComponentID            string    `json:"component_id"`             // 组件唯一标识
	OperationalHealth      float64   `json:"operational_health"`       // 运行健康度 [0,1]
	ResourceHealth         float64   `json:"resource_health"`          // 资源健康度 [0,1]
	SecurityHealth         float64   `json:"security_health"`          // 安全健康度 [0,1]
	ControlPlaneCompatible bool      `json:"control_plane_compatible"` // 是否兼容控制面运行
	ContributionWeight     float64   `json:"contribution_weight"`      // 对生态整体的贡献权重 [0,1]
	LastCheck              time.Time `json:"last_check"`               // 最近一次采样时间
}

// InvariantsHealth 两个受保护不变量的健康度
type InvariantsHealth struct {
	ControlPlane   float64 `json:"control_plane"`   // 控制面连续性 [0,1]
	TrustedSession float64 `json:"trusted_session"` // 可信会话完整性 [0,1]
}

// EcosystemHealthState 生态系统健康快照
// 每个聚合周期生成一个不可变实例，整体替换，不做原地修改
type EcosystemHealthState struct {
	OverallHealth       float64                    `json:"overall_health"`               // 整体健康度 [0,1]
	PerComponent        map[string]ComponentHealth `json:"per_component"`                // 组件ID -> 健康度量
	CurrentLevel        DegradationLevel           `json:"current_level"`                // 当前全局降级等级（活跃场景最大值）
	ProtectedInvariants InvariantsHealth           `json:"protected_invariants"`         // 受保护不变量健康度
	LastAssessed        time.Time                  `json:"last_assessed"`                // 本次评估时间
	PredictedRecovery   *time.Time                 `json:"predicted_recovery,omitempty"` // 预计恢复时间（可能为空）
}

// Component 返回指定组件的健康度量
func (s *EcosystemHealthState) Component(id string) (ComponentHealth, bool) {
	h, ok := s.PerComponent[id]
	return h, ok
}

// ApplyResult 组件应用策略的结果
type ApplyResult struct {
	Accepted  bool      `json:"accepted"`
	AppliedAt time.Time `json:"applied_at"`
}

// RollbackResult 组件回滚策略的结果
type RollbackResult struct {
	RolledBack bool      `json:"rolled_back"`
	FinishedAt time.Time `json:"finished_at"`
}
