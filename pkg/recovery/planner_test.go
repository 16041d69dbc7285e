package recovery

import (
	"testing"

	"degradation-orchestrator/pkg/models"
)

func testScenario(components ...string) *models.DegradationScenario {
	return &models.DegradationScenario{
		ID:                 "scenario-test",
		TriggerType:        models.TriggerComponentFailure,
		AffectedComponents: components,
		Level:              models.LevelSignificant,
		Status:             models.ScenarioActive,
	}
}

func phaseIndex(plan *models.RecoveryPlan, id string) int {
	for i, p := range plan.Phases {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// TestPlan 测试恢复计划构建
func TestPlan(t *testing.T) {
	t.Run("不变量恢复永远第一", func(t *testing.T) {
		planner := NewPlanner(nil, nil)
		plan, err := planner.Plan(testScenario("a", "b"))
		if err != nil {
			t.Fatalf("构建计划失败: %v", err)
		}

		if plan.Phases[0].ID != PhaseInvariantRestoration {
			t.Errorf("首阶段应为不变量恢复，实际 %s", plan.Phases[0].ID)
		}
		if len(plan.Phases[0].Prerequisites) != 0 {
			t.Error("不变量恢复阶段不应有前置")
		}
		if plan.Phases[1].ID != PhaseSessionRestoration {
			t.Errorf("第二阶段应为会话恢复，实际 %s", plan.Phases[1].ID)
		}
	})

	t.Run("组件阶段按依赖拓扑排序", func(t *testing.T) {
		// scheduler依赖store，store依赖core
		planner := NewPlanner(map[string][]string{
			"scheduler": {"store"},
			"store":     {"core"},
		}, nil)
		plan, err := planner.Plan(testScenario("scheduler", "store", "core"))
		if err != nil {
			t.Fatalf("构建计划失败: %v", err)
		}

		core := phaseIndex(plan, "phase-component-core")
		store := phaseIndex(plan, "phase-component-store")
		scheduler := phaseIndex(plan, "phase-component-scheduler")
		if core == -1 || store == -1 || scheduler == -1 {
			t.Fatal("缺少组件恢复阶段")
		}
		if !(core < store && store < scheduler) {
			t.Errorf("拓扑顺序错误: core=%d store=%d scheduler=%d", core, store, scheduler)
		}

		// 前置关系编码进阶段
		schedulerPhase := plan.Phase("phase-component-scheduler")
		found := false
		for _, prereq := range schedulerPhase.Prerequisites {
			if prereq == "phase-component-store" {
				found = true
			}
		}
		if !found {
			t.Errorf("scheduler阶段应以store阶段为前置，实际 %v", schedulerPhase.Prerequisites)
		}
	})

	t.Run("集合外依赖不产生前置", func(t *testing.T) {
		planner := NewPlanner(map[string][]string{
			"store": {"core"}, // core未受影响
		}, nil)
		plan, err := planner.Plan(testScenario("store"))
		if err != nil {
			t.Fatalf("构建计划失败: %v", err)
		}

		phase := plan.Phase("phase-component-store")
		if phase == nil {
			t.Fatal("缺少store恢复阶段")
		}
		for _, prereq := range phase.Prerequisites {
			if prereq == "phase-component-core" {
				t.Error("未受影响组件不应成为前置")
			}
		}
	})

	t.Run("依赖成环返回PlanCycleError", func(t *testing.T) {
		planner := NewPlanner(map[string][]string{
			"a": {"b"},
			"b": {"c"},
			"c": {"a"},
		}, nil)
		_, err := planner.Plan(testScenario("a", "b", "c"))
		if err == nil {
			t.Fatal("依赖成环应构建失败")
		}
		if !models.IsPlanCycle(err) {
			t.Errorf("应返回PlanCycleError，实际 %v", err)
		}
	})

	t.Run("组件阶段动作包含重启回滚探测", func(t *testing.T) {
		planner := NewPlanner(nil, nil)
		s := testScenario("a")
		s.ActiveStrategies = []models.Strategy{
			{Type: models.StrategyIsolation, IsolationScope: []string{"a"}},
		}
		plan, err := planner.Plan(s)
		if err != nil {
			t.Fatalf("构建计划失败: %v", err)
		}

		phase := plan.Phase("phase-component-a")
		kinds := make(map[models.ActionKind]bool)
		for _, action := range phase.Actions {
			kinds[action.Kind] = true
		}
		for _, want := range []models.ActionKind{
			models.ActionRestartComponent,
			models.ActionRollbackStrategy,
			models.ActionProbeHealth,
		} {
			if !kinds[want] {
				t.Errorf("组件阶段缺少动作 %s", want)
			}
		}
	})

	t.Run("成功判据要求健康度与控制面", func(t *testing.T) {
		planner := NewPlanner(nil, nil)
		plan, _ := planner.Plan(testScenario("a"))
		phase := plan.Phase("phase-component-a")

		if len(phase.SuccessCriteria) != 1 {
			t.Fatalf("组件阶段应有1条成功判据，实际 %d", len(phase.SuccessCriteria))
		}
		criterion := phase.SuccessCriteria[0]
		if criterion.MinOperationalHealth != 0.7 {
			t.Errorf("健康度下限应为0.7，实际 %f", criterion.MinOperationalHealth)
		}
		if !criterion.RequireControlPlane {
			t.Error("成功判据应要求控制面兼容")
		}
	})
}
