package models

import "time"

// PhaseStatus 恢复阶段状态
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "PENDING"   // 等待前置阶段
	PhaseRunning   PhaseStatus = "RUNNING"   // 执行中
	PhaseSucceeded PhaseStatus = "SUCCEEDED" // 成功
	PhaseFailed    PhaseStatus = "FAILED"    // 失败（重试耗尽）
	PhaseAborted   PhaseStatus = "ABORTED"   // 被取消/放弃
)

// ActionKind 恢复动作类型
type ActionKind string

const (
	ActionRestartComponent ActionKind = "RESTART_COMPONENT" // 重启组件（HTTP）
	ActionRollbackStrategy ActionKind = "ROLLBACK_STRATEGY" // 回滚已应用策略
	ActionProbeHealth      ActionKind = "PROBE_HEALTH"      // 主动探测健康
	ActionRemoteCommand    ActionKind = "REMOTE_COMMAND"    // 远程命令（SSH）
)

// RecoveryAction 恢复动作
type RecoveryAction struct {
	Kind        ActionKind        `json:"kind"`                  // 动作类型
	ComponentID string            `json:"component_id"`          // 目标组件
	StrategyID  string            `json:"strategy_id,omitempty"` // 待回滚的策略ID
	Params      map[string]string `json:"params,omitempty"`      // 附加参数（命令、地址等）
}

// Criterion 阶段成功判据（对照实时健康快照评估）
type Criterion struct {
	ComponentID          string  `json:"component_id"`           // 被检查的组件
	MinOperationalHealth float64 `json:"min_operational_health"` // 运行健康度下限
	RequireControlPlane  bool    `json:"require_control_plane"`  // 是否要求控制面兼容
}

// RecoveryPhase 恢复阶段
// 所有前置阶段成功后才可启动；无依赖关系的阶段可并发执行
type RecoveryPhase struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Prerequisites      []string         `json:"prerequisites,omitempty"` // 前置阶段ID
	Actions            []RecoveryAction `json:"actions"`
	SuccessCriteria    []Criterion      `json:"success_criteria"`
	InvolvedComponents []string         `json:"involved_components"`
	EstDuration        time.Duration    `json:"est_duration"`
	Status             PhaseStatus      `json:"status"`
}

// RecoveryPlan 恢复计划（阶段的有向无环图）
type RecoveryPlan struct {
	ID         string          `json:"id"`
	ScenarioID string          `json:"scenario_id"`
	Phases     []RecoveryPhase `json:"phases"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Phase 按ID查找阶段
func (p *RecoveryPlan) Phase(id string) *RecoveryPhase {
	for i := range p.Phases {
		if p.Phases[i].ID == id {
			return &p.Phases[i]
		}
	}
	return nil
}

// Clone 深拷贝计划
// 场景记录与执行器各持一份，可变状态互不共享
func (p *RecoveryPlan) Clone() *RecoveryPlan {
	if p == nil {
		return nil
	}
	copied := *p
	copied.Phases = make([]RecoveryPhase, len(p.Phases))
	for i, phase := range p.Phases {
		phase.Prerequisites = append([]string(nil), phase.Prerequisites...)
		phase.SuccessCriteria = append([]Criterion(nil), phase.SuccessCriteria...)
		phase.InvolvedComponents = append([]string(nil), phase.InvolvedComponents...)
		actions := make([]RecoveryAction, len(phase.Actions))
		for j, action := range phase.Actions {
			if action.Params != nil {
				params := make(map[string]string, len(action.Params))
				for k, v := range action.Params {
					params[k] = v
				}
				action.Params = params
			}
			actions[j] = action
		}
		phase.Actions = actions
		copied.Phases[i] = phase
	}
	return &copied
}

// RecoveryRequest 外部发起的恢复请求
type RecoveryRequest struct {
	ScenarioID string `json:"scenario_id"`
	Operator   string `json:"operator,omitempty"` // 发起人（人工介入时）
}

// InvariantRestoration 单个不变量的恢复状态
type InvariantRestoration struct {
	MeasuresApplied      []string `json:"measures_applied"`
	PreservationAchieved bool     `json:"preservation_achieved"`
}

// RecoveryResponse 恢复请求的响应
type RecoveryResponse struct {
	ScenarioID     string               `json:"scenario_id"`
	Started        bool                 `json:"started"`
	ControlPlane   InvariantRestoration `json:"control_plane"`
	TrustedSession InvariantRestoration `json:"trusted_session"`
}
