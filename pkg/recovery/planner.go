package recovery

import (
	"time"

	"degradation-orchestrator/pkg/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PhaseInvariantRestoration 不变量恢复阶段（永远第一，无前置）
	PhaseInvariantRestoration = "phase-invariant-restoration"
	// PhaseSessionRestoration 可信会话恢复阶段（永远第二）
	PhaseSessionRestoration = "phase-session-restoration"

	// 组件恢复阶段的默认预计时长
	defaultPhaseDuration = 30 * time.Second

	// 组件恢复阶段的成功判据：运行健康度下限
	componentRecoveredHealth = 0.7
)

// Planner 恢复计划构建器
// 阶段顺序固定：不变量恢复 -> 可信会话恢复 -> 按依赖拓扑排序的组件恢复。
// 组件依赖图成环时构建失败，返回 *models.PlanCycleError
type Planner struct {
	// 组件依赖图：组件ID -> 其依赖的组件ID列表
	dependencies map[string][]string
	logger       *zap.Logger
}

// NewPlanner 创建恢复计划构建器
func NewPlanner(dependencies map[string][]string, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dependencies == nil {
		dependencies = make(map[string][]string)
	}
	return &Planner{
		dependencies: dependencies,
		logger:       logger,
	}
}

// Plan 为场景构建恢复计划
func (p *Planner) Plan(s *models.DegradationScenario) (*models.RecoveryPlan, error) {
	affected := s.AffectedComponents

	// 受影响组件的拓扑排序（依赖先恢复）
	order, err := p.topoSort(affected)
	if err != nil {
		return nil, err
	}

	plan := &models.RecoveryPlan{
		ID:         uuid.NewString(),
		ScenarioID: s.ID,
		CreatedAt:  time.Now(),
	}

	// 1. 不变量恢复阶段：无前置，永远最先调度
	plan.Phases = append(plan.Phases, models.RecoveryPhase{
		ID:                 PhaseInvariantRestoration,
		Name:               "控制面不变量恢复",
		Actions:            probeActions(affected),
		SuccessCriteria:    nil, // 由守护者在阶段边界核验
		InvolvedComponents: affected,
		EstDuration:        defaultPhaseDuration,
		Status:             models.PhasePending,
	})

	// 2. 可信会话恢复阶段
	plan.Phases = append(plan.Phases, models.RecoveryPhase{
		ID:                 PhaseSessionRestoration,
		Name:               "可信会话恢复",
		Prerequisites:      []string{PhaseInvariantRestoration},
		Actions:            probeActions(affected),
		InvolvedComponents: affected,
		EstDuration:        defaultPhaseDuration,
		Status:             models.PhasePending,
	})

	// 3. 组件恢复阶段（拓扑序，依赖组件的阶段为前置）
	affectedSet := make(map[string]struct{}, len(affected))
	for _, id := range affected {
		affectedSet[id] = struct{}{}
	}
	for _, componentID := range order {
		prereqs := []string{PhaseSessionRestoration}
		for _, dep := range p.dependencies[componentID] {
			if _, hit := affectedSet[dep]; hit {
				prereqs = append(prereqs, componentPhaseID(dep))
			}
		}

		plan.Phases = append(plan.Phases, models.RecoveryPhase{
			ID:            componentPhaseID(componentID),
			Name:          "组件恢复: " + componentID,
			Prerequisites: prereqs,
			Actions:       componentActions(componentID, s.ActiveStrategies),
			SuccessCriteria: []models.Criterion{{
				ComponentID:          componentID,
				MinOperationalHealth: componentRecoveredHealth,
				RequireControlPlane:  true,
			}},
			InvolvedComponents: []string{componentID},
			EstDuration:        defaultPhaseDuration,
			Status:             models.PhasePending,
		})
	}

	p.logger.Info("恢复计划已构建",
		zap.String("scenario_id", s.ID),
		zap.String("plan_id", plan.ID),
		zap.Int("phases", len(plan.Phases)),
	)
	return plan, nil
}

// topoSort 受影响组件的拓扑排序（Kahn算法），成环返回PlanCycleError
func (p *Planner) topoSort(components []string) ([]string, error) {
	inSet := make(map[string]struct{}, len(components))
	for _, id := range components {
		inSet[id] = struct{}{}
	}

	// 入度 = 组件在受影响集合内的依赖数
	indegree := make(map[string]int, len(components))
	dependents := make(map[string][]string) // 依赖 -> 依赖它的组件
	for _, id := range components {
		indegree[id] = 0
	}
	for _, id := range components {
		for _, dep := range p.dependencies[id] {
			if _, hit := inSet[dep]; hit {
				indegree[id]++
				dependents[dep] = append(dependents[dep], id)
			}
		}
	}

	var queue []string
	for _, id := range components {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, dependent := range dependents[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(components) {
		var cycle []string
		for _, id := range components {
			if indegree[id] > 0 {
				cycle = append(cycle, id)
			}
		}
		return nil, &models.PlanCycleError{Cycle: cycle}
	}
	return order, nil
}

func componentPhaseID(componentID string) string {
	return "phase-component-" + componentID
}

func probeActions(components []string) []models.RecoveryAction {
	actions := make([]models.RecoveryAction, 0, len(components))
	for _, id := range components {
		actions = append(actions, models.RecoveryAction{
			Kind:        models.ActionProbeHealth,
			ComponentID: id,
		})
	}
	return actions
}

// componentActions 单个组件的恢复动作序列：重启 -> 回滚已应用策略 -> 探测
func componentActions(componentID string, strategies []models.Strategy) []models.RecoveryAction {
	actions := []models.RecoveryAction{{
		Kind:        models.ActionRestartComponent,
		ComponentID: componentID,
	}}
	for _, strategy := range strategies {
		actions = append(actions, models.RecoveryAction{
			Kind:        models.ActionRollbackStrategy,
			ComponentID: componentID,
			StrategyID:  strategy.ID(),
		})
	}
	actions = append(actions, models.RecoveryAction{
		Kind:        models.ActionProbeHealth,
		ComponentID: componentID,
	})
	return actions
}
