package component

import (
	"context"
	"testing"

	"degradation-orchestrator/pkg/models"
)

// TestSimulatedComponent 测试模拟组件
func TestSimulatedComponent(t *testing.T) {
	ctx := context.Background()

	t.Run("初始满健康", func(t *testing.T) {
		c := NewSimulatedComponent("a", 0.8)
		h, err := c.ReportHealth(ctx)
		if err != nil {
			t.Fatalf("健康上报失败: %v", err)
		}
		if h.OperationalHealth != 1.0 || !h.ControlPlaneCompatible {
			t.Errorf("初始应为满健康: %+v", h)
		}
		if h.ContributionWeight != 0.8 {
			t.Errorf("权重应为0.8，实际 %f", h.ContributionWeight)
		}
	})

	t.Run("应用策略幂等", func(t *testing.T) {
		c := NewSimulatedComponent("a", 0.8)
		strategy := models.Strategy{
			Type:           models.StrategyIsolation,
			IsolationScope: []string{"a"},
		}

		r1, err := c.ApplyStrategy(ctx, strategy)
		if err != nil || !r1.Accepted {
			t.Fatalf("首次应用失败: %v", err)
		}
		r2, err := c.ApplyStrategy(ctx, strategy)
		if err != nil || !r2.Accepted {
			t.Fatalf("重复应用应为无操作成功: %v", err)
		}
		if len(c.ActiveStrategies()) != 1 {
			t.Errorf("幂等应用后生效策略应为1条，实际 %d", len(c.ActiveStrategies()))
		}
	})

	t.Run("回滚移除策略", func(t *testing.T) {
		c := NewSimulatedComponent("a", 0.8)
		strategy := models.Strategy{Type: models.StrategyFunctionalityReduction, ReductionPct: 0.25}
		c.ApplyStrategy(ctx, strategy)

		result, err := c.Rollback(ctx, strategy.ID())
		if err != nil || !result.RolledBack {
			t.Fatalf("回滚失败: %v", err)
		}
		if len(c.ActiveStrategies()) != 0 {
			t.Errorf("回滚后不应有生效策略，实际 %v", c.ActiveStrategies())
		}
	})

	t.Run("重启恢复满健康", func(t *testing.T) {
		c := NewSimulatedComponent("a", 0.8)
		c.SetHealth(0.1, 0.1, 0.1, false)

		c.Restart()
		h, _ := c.ReportHealth(ctx)
		if h.OperationalHealth != 1.0 || !h.ControlPlaneCompatible {
			t.Errorf("重启后应恢复满健康: %+v", h)
		}
		if c.RestartCount() != 1 {
			t.Errorf("重启计数应为1，实际 %d", c.RestartCount())
		}
	})
}

// TestRegistry 测试组件注册表
func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(NewSimulatedComponent("b", 0.5))
	r.Register(NewSimulatedComponent("a", 0.5))
	r.Register(NewSimulatedComponent("c", 0.5))

	t.Run("按注册顺序迭代", func(t *testing.T) {
		ids := r.IDs()
		if len(ids) != 3 || ids[0] != "b" || ids[1] != "a" || ids[2] != "c" {
			t.Errorf("应保持注册顺序[b a c]，实际 %v", ids)
		}
	})

	t.Run("重复注册覆盖", func(t *testing.T) {
		replacement := NewSimulatedComponent("a", 0.9)
		r.Register(replacement)

		if len(r.IDs()) != 3 {
			t.Errorf("覆盖注册不应增加组件数，实际 %d", len(r.IDs()))
		}
		got, ok := r.Get("a")
		if !ok || got != Component(replacement) {
			t.Error("覆盖后应取到新实例")
		}
	})

	t.Run("查询不存在的组件", func(t *testing.T) {
		if _, ok := r.Get("missing"); ok {
			t.Error("不存在的组件不应命中")
		}
	})
}
