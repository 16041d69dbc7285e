package guardian

import (
	"context"
	"testing"
	"time"

	"degradation-orchestrator/pkg/component"
	"degradation-orchestrator/pkg/models"
)

func scenarioAffecting(components ...string) *models.DegradationScenario {
	return &models.DegradationScenario{
		ID:                 "scenario-guardian",
		AffectedComponents: components,
		Level:              models.LevelEmergencyMinimal,
		Status:             models.ScenarioActive,
	}
}

// TestControlPlaneGuardian 测试控制面守护者
func TestControlPlaneGuardian(t *testing.T) {
	t.Run("心跳存活时直接确认", func(t *testing.T) {
		g := NewControlPlaneGuardian(10*time.Millisecond, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		g.Start(ctx)

		report := g.Preserve(ctx, scenarioAffecting("a"))
		if !report.PreservationAchieved {
			t.Error("心跳存活时保全应成功")
		}
		if len(report.MeasuresApplied) == 0 {
			t.Error("保全措施不应为空")
		}
	})

	t.Run("心跳未启动时尝试重启", func(t *testing.T) {
		g := NewControlPlaneGuardian(10*time.Millisecond, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		report := g.Preserve(ctx, scenarioAffecting("a"))
		if !report.PreservationAchieved {
			t.Error("重启心跳后保全应成功")
		}

		restarted := false
		for _, m := range report.MeasuresApplied {
			if m == "restart-orchestration-heartbeat" {
				restarted = true
			}
		}
		if !restarted {
			t.Errorf("措施中应包含心跳重启，实际 %v", report.MeasuresApplied)
		}
	})

	t.Run("极简模式下固定心跳", func(t *testing.T) {
		g := NewControlPlaneGuardian(10*time.Millisecond, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		g.Start(ctx)

		s := scenarioAffecting("a")
		s.Level = models.LevelCriticalInvariantPreservation
		s.ActiveStrategies = []models.Strategy{{Type: models.StrategySimplifiedMode}}

		report := g.Preserve(ctx, s)
		pinned := false
		for _, m := range report.MeasuresApplied {
			if m == "heartbeat-pinned-in-simplified-mode" {
				pinned = true
			}
		}
		if !pinned {
			t.Errorf("极简模式下应固定心跳，实际措施 %v", report.MeasuresApplied)
		}
	})

	t.Run("心跳持续跳动", func(t *testing.T) {
		g := NewControlPlaneGuardian(5*time.Millisecond, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		g.Start(ctx)

		time.Sleep(30 * time.Millisecond)
		if g.BeatCount() == 0 {
			t.Error("心跳应持续跳动")
		}
		if !g.Healthy() {
			t.Error("运行中的心跳应为健康")
		}
	})
}

// TestTrustedSessionGuardian 测试可信会话守护者
func TestTrustedSessionGuardian(t *testing.T) {
	newRegistry := func(ids ...string) *component.Registry {
		registry := component.NewRegistry()
		for _, id := range ids {
			registry.Register(component.NewSimulatedComponent(id, 0.5))
		}
		return registry
	}

	t.Run("受影响提供方的会话移交", func(t *testing.T) {
		g := NewTrustedSessionGuardian(newRegistry("a", "b"), nil)
		g.RegisterSession("s1", "a")

		report := g.Preserve(context.Background(), scenarioAffecting("a"))
		if !report.PreservationAchieved {
			t.Error("有替代提供方时保全应成功")
		}

		sessions := g.Sessions()
		if len(sessions) != 1 || sessions[0].ProviderID != "b" {
			t.Errorf("会话应移交给b，实际 %+v", sessions)
		}
	})

	t.Run("无替代提供方时显式通知", func(t *testing.T) {
		g := NewTrustedSessionGuardian(newRegistry("a"), nil)
		g.RegisterSession("s1", "a")

		report := g.Preserve(context.Background(), scenarioAffecting("a"))
		if !report.PreservationAchieved {
			t.Error("显式通知也是有效的保全")
		}

		sessions := g.Sessions()
		if len(sessions) != 1 || !sessions[0].Notified {
			t.Error("无替代时会话应被显式通知，绝不静默断开")
		}
		if sessions[0].ProviderID != "a" {
			t.Errorf("无替代时提供方不应变化，实际 %s", sessions[0].ProviderID)
		}
	})

	t.Run("未受影响的会话不动", func(t *testing.T) {
		g := NewTrustedSessionGuardian(newRegistry("a", "b"), nil)
		g.RegisterSession("s1", "b")

		g.Preserve(context.Background(), scenarioAffecting("a"))
		sessions := g.Sessions()
		if sessions[0].ProviderID != "b" {
			t.Errorf("未受影响会话不应移交，实际 %s", sessions[0].ProviderID)
		}
	})

	t.Run("回滚按反序撤销移交", func(t *testing.T) {
		g := NewTrustedSessionGuardian(newRegistry("a", "b"), nil)
		g.RegisterSession("s1", "a")

		s := scenarioAffecting("a")
		g.Preserve(context.Background(), s)

		undone := g.Rollback(s.ID)
		if len(undone) != 1 {
			t.Fatalf("应撤销1次移交，实际 %d", len(undone))
		}
		sessions := g.Sessions()
		if sessions[0].ProviderID != "a" {
			t.Errorf("回滚后提供方应还原为a，实际 %s", sessions[0].ProviderID)
		}

		// 再次回滚无事发生
		if undone := g.Rollback(s.ID); len(undone) != 0 {
			t.Errorf("重复回滚不应有动作，实际 %v", undone)
		}
	})
}

// TestSetInvoke 测试守护者组合调用
func TestSetInvoke(t *testing.T) {
	registry := component.NewRegistry()
	registry.Register(component.NewSimulatedComponent("a", 0.5))
	registry.Register(component.NewSimulatedComponent("b", 0.5))

	set := NewSet(
		NewControlPlaneGuardian(10*time.Millisecond, nil),
		NewTrustedSessionGuardian(registry, nil),
		nil,
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	set.ControlPlane.Start(ctx)
	set.TrustedSession.RegisterSession("s1", "a")

	s := scenarioAffecting("a")
	cp, ts, cpFailed := set.Invoke(ctx, s, "scenario-open")

	if cpFailed {
		t.Error("心跳存活时控制面保全不应失败")
	}
	if !cp.PreservationAchieved || !ts.PreservationAchieved {
		t.Error("两个守护者都应保全成功")
	}
	if len(s.InvariantMeasures.ControlPlane) == 0 {
		t.Error("控制面措施应记入场景")
	}
	if len(s.InvariantMeasures.TrustedSession) == 0 {
		t.Error("会话措施应记入场景")
	}
}
