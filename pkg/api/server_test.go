package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"degradation-orchestrator/pkg/classify"
	"degradation-orchestrator/pkg/component"
	"degradation-orchestrator/pkg/guardian"
	"degradation-orchestrator/pkg/health"
	"degradation-orchestrator/pkg/metrics"
	"degradation-orchestrator/pkg/models"
	"degradation-orchestrator/pkg/orchestrator"
	"degradation-orchestrator/pkg/recovery"
	"degradation-orchestrator/pkg/scenario"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(t *testing.T, ctx context.Context, opts Options) *Server {
	t.Helper()

	registry := component.NewRegistry()
	registry.Register(component.NewSimulatedComponent("core", 0.9))
	registry.Register(component.NewSimulatedComponent("edge", 0.3))

	state := health.NewStateManager(nil, 100, 1000, nil)
	sampler := health.NewSampler(registry, 100*time.Millisecond, nil)
	scenarios := scenario.NewManager(8, nil, nil)
	guardians := guardian.NewSet(
		guardian.NewControlPlaneGuardian(10*time.Millisecond, nil),
		guardian.NewTrustedSessionGuardian(registry, nil),
		nil,
	)
	executor := recovery.NewExecutor(state, guardians, nil)
	executor.SetRetryPolicy(2, 10*time.Millisecond)
	runner := recovery.NewComponentRunner(registry, nil)
	executor.RegisterRunner(models.ActionRestartComponent, runner)
	executor.RegisterRunner(models.ActionRollbackStrategy, runner)
	executor.RegisterRunner(models.ActionProbeHealth, runner)

	orch := orchestrator.New(orchestrator.Deps{
		Registry:   registry,
		Monitor:    health.NewMonitor(sampler, health.NewAggregator(0.7), state, scenarios.CurrentLevel, 20*time.Millisecond, nil),
		State:      state,
		Classifier: classify.NewClassifier(nil),
		Scenarios:  scenarios,
		Planner:    recovery.NewPlanner(nil, nil),
		Executor:   executor,
		Guardians:  guardians,
		Recorder:   metrics.NewRecorder(opts.Registry),
	})
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("启动编排器失败: %v", err)
	}

	// 等首轮快照
	deadline := time.Now().Add(time.Second)
	for orch.Health() == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	return NewServer(orch, opts, nil)
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("编码请求体失败: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("解析响应失败: %v (body=%s)", err, w.Body.String())
	}
	return env
}

// TestServerEndpoints 测试HTTP接口
func TestServerEndpoints(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server := newTestServer(t, ctx, Options{TriggerRate: 100, TriggerBurst: 100})

	t.Run("健康快照", func(t *testing.T) {
		w := doJSON(t, server, http.MethodGet, "/api/v1/health", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("状态码应为200，实际 %d", w.Code)
		}
		env := decodeEnvelope(t, w)
		var state models.EcosystemHealthState
		if err := json.Unmarshal(env.Data, &state); err != nil {
			t.Fatalf("解析健康快照失败: %v", err)
		}
		if len(state.PerComponent) != 2 {
			t.Errorf("快照应含2个组件，实际 %d", len(state.PerComponent))
		}
	})

	t.Run("触发建档", func(t *testing.T) {
		w := doJSON(t, server, http.MethodPost, "/api/v1/trigger", models.Trigger{
			Type:        models.TriggerResourceExhaustion,
			ComponentID: "edge",
			Impact:      0.35,
		})
		if w.Code != http.StatusAccepted {
			t.Fatalf("状态码应为202，实际 %d (body=%s)", w.Code, w.Body.String())
		}
		env := decodeEnvelope(t, w)
		var s models.DegradationScenario
		if err := json.Unmarshal(env.Data, &s); err != nil {
			t.Fatalf("解析场景失败: %v", err)
		}
		if s.Level != models.LevelModerate {
			t.Errorf("场景等级应为中等，实际 %s", s.Level)
		}

		// 查询
		w = doJSON(t, server, http.MethodGet, "/api/v1/scenarios/"+s.ID, nil)
		if w.Code != http.StatusOK {
			t.Errorf("场景查询应为200，实际 %d", w.Code)
		}

		// 等级
		w = doJSON(t, server, http.MethodGet, "/api/v1/level", nil)
		if w.Code != http.StatusOK {
			t.Errorf("等级查询应为200，实际 %d", w.Code)
		}

		// 取消
		w = doJSON(t, server, http.MethodPost, "/api/v1/scenarios/"+s.ID+"/cancel", nil)
		if w.Code != http.StatusOK {
			t.Errorf("取消应为200，实际 %d (body=%s)", w.Code, w.Body.String())
		}
	})

	t.Run("非法触发类型", func(t *testing.T) {
		w := doJSON(t, server, http.MethodPost, "/api/v1/trigger", map[string]string{
			"type": "NOT_A_TRIGGER",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("非法触发类型应为400，实际 %d", w.Code)
		}
	})

	t.Run("场景不存在", func(t *testing.T) {
		w := doJSON(t, server, http.MethodGet, "/api/v1/scenarios/missing", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("不存在场景应为404，实际 %d", w.Code)
		}
	})

	t.Run("根路径别名", func(t *testing.T) {
		w := doJSON(t, server, http.MethodGet, "/health", nil)
		if w.Code != http.StatusOK {
			t.Errorf("根路径健康查询应为200，实际 %d", w.Code)
		}

		w = doJSON(t, server, http.MethodPost, "/trigger", models.Trigger{
			Type:        models.TriggerResourceExhaustion,
			ComponentID: "edge",
			Impact:      0.35,
		})
		if w.Code != http.StatusAccepted {
			t.Fatalf("根路径触发应为202，实际 %d (body=%s)", w.Code, w.Body.String())
		}
		var s models.DegradationScenario
		if err := json.Unmarshal(decodeEnvelope(t, w).Data, &s); err != nil {
			t.Fatalf("解析场景失败: %v", err)
		}

		w = doJSON(t, server, http.MethodGet, "/scenarios/"+s.ID, nil)
		if w.Code != http.StatusOK {
			t.Errorf("根路径场景查询应为200，实际 %d", w.Code)
		}
		w = doJSON(t, server, http.MethodPost, "/scenarios/"+s.ID+"/cancel", nil)
		if w.Code != http.StatusOK {
			t.Errorf("根路径取消应为200，实际 %d (body=%s)", w.Code, w.Body.String())
		}
	})

	t.Run("统计端点", func(t *testing.T) {
		w := doJSON(t, server, http.MethodGet, "/api/v1/stats", nil)
		if w.Code != http.StatusOK {
			t.Errorf("统计应为200，实际 %d", w.Code)
		}
	})
}

// TestServerRateLimit 测试触发限速
func TestServerRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server := newTestServer(t, ctx, Options{TriggerRate: 1, TriggerBurst: 1})

	body := models.Trigger{
		Type:        models.TriggerConnectivityLoss,
		ComponentID: "edge",
		Impact:      0.2,
	}

	first := doJSON(t, server, http.MethodPost, "/api/v1/trigger", body)
	if first.Code != http.StatusAccepted {
		t.Fatalf("首个触发应被接受，实际 %d", first.Code)
	}

	second := doJSON(t, server, http.MethodPost, "/api/v1/trigger", body)
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("超额触发应为429，实际 %d", second.Code)
	}
}

// TestServerMetricsEndpoint 测试prometheus端点
func TestServerMetricsEndpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registry := prometheus.NewRegistry()
	server := newTestServer(t, ctx, Options{TriggerRate: 100, TriggerBurst: 100, Registry: registry})

	doJSON(t, server, http.MethodPost, "/api/v1/trigger", models.Trigger{
		Type:        models.TriggerComponentFailure,
		ComponentID: "edge",
		Impact:      0.35,
	})

	w := doJSON(t, server, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics应为200，实际 %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("degradation_scenarios_total")) {
		t.Error("/metrics应包含场景计数器")
	}
}
