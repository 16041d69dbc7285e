package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestRecorder 测试指标记录器
func TestRecorder(t *testing.T) {
	t.Run("场景计数与延迟均值", func(t *testing.T) {
		r := NewRecorder(nil)

		r.ScenarioOpened("COMPONENT_FAILURE", "MODERATE", 100*time.Millisecond)
		r.ScenarioOpened("RESOURCE_EXHAUSTION", "SIGNIFICANT", 300*time.Millisecond)
		r.ScenarioClosed(10 * time.Second)

		snap := r.Snapshot()
		if snap.ScenariosHandled != 2 {
			t.Errorf("应记录2个场景，实际 %d", snap.ScenariosHandled)
		}
		if snap.MeanDetectionLatency != 200*time.Millisecond {
			t.Errorf("平均检出延迟应为200ms，实际 %v", snap.MeanDetectionLatency)
		}
		if snap.MeanRecoveryLatency != 10*time.Second {
			t.Errorf("平均恢复延迟应为10s，实际 %v", snap.MeanRecoveryLatency)
		}
	})

	t.Run("保全结果计数", func(t *testing.T) {
		r := NewRecorder(nil)

		r.PreservationResult("control_plane", true)
		r.PreservationResult("trusted_session", true)
		r.PreservationResult("control_plane", false)

		snap := r.Snapshot()
		if snap.PreservationSuccesses != 2 {
			t.Errorf("保全成功应为2次，实际 %d", snap.PreservationSuccesses)
		}
		if snap.PreservationFailures != 1 {
			t.Errorf("保全失败应为1次，实际 %d", snap.PreservationFailures)
		}
	})

	t.Run("prometheus采集器注册", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		r := NewRecorder(registry)
		r.ScenarioOpened("COMPONENT_FAILURE", "MINOR", time.Millisecond)

		families, err := registry.Gather()
		if err != nil {
			t.Fatalf("采集失败: %v", err)
		}
		found := false
		for _, f := range families {
			if f.GetName() == "degradation_scenarios_total" {
				found = true
			}
		}
		if !found {
			t.Error("场景计数器未注册到registry")
		}
	})

	t.Run("空记录器快照为零值", func(t *testing.T) {
		r := NewRecorder(nil)
		snap := r.Snapshot()
		if snap.ScenariosHandled != 0 || snap.MeanDetectionLatency != 0 {
			t.Errorf("空记录器快照应为零值: %+v", snap)
		}
	})
}
