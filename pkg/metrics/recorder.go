package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot 累计指标快照
type Snapshot struct {
	ScenariosHandled      int64         `json:"scenarios_handled"`      // 已处理场景数
	PreservationSuccesses int64         `json:"preservation_successes"` // 不变量保全成功次数
	PreservationFailures  int64         `json:"preservation_failures"`  // 不变量保全失败次数
	MeanDetectionLatency  time.Duration `json:"mean_detection_latency"` // 平均检出延迟
	MeanRecoveryLatency   time.Duration `json:"mean_recovery_latency"`  // 平均恢复延迟
}

// Recorder 降级指标记录器
// 进程内单实例共享累加器，互斥锁保护；同时注册prometheus采集器对外暴露
type Recorder struct {
	mu                    sync.Mutex
	scenariosHandled      int64
	preservationSuccesses int64
	preservationFailures  int64
	detectionTotal        time.Duration
	detectionCount        int64
	recoveryTotal         time.Duration
	recoveryCount         int64

	registry         *prometheus.Registry
	promScenarios    *prometheus.CounterVec
	promPreservation *prometheus.CounterVec
	promDetection    prometheus.Histogram
	promRecovery     prometheus.Histogram
}

// NewRecorder 创建指标记录器并注册prometheus采集器
// registry为nil时使用独立Registry（测试友好，避免重复注册冲突）
func NewRecorder(registry *prometheus.Registry) *Recorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	r := &Recorder{
		registry: registry,
		promScenarios: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "degradation_scenarios_total",
			Help: "已处理的降级场景总数",
		}, []string{"trigger_type", "level"}),
		promPreservation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invariant_preservation_total",
			Help: "不变量保全结果计数",
		}, []string{"guardian", "result"}),
		promDetection: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "degradation_detection_latency_seconds",
			Help:    "触发接收到场景建档的延迟",
			Buckets: prometheus.DefBuckets,
		}),
		promRecovery: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "degradation_recovery_latency_seconds",
			Help:    "场景建档到恢复关闭的延迟",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	registry.MustRegister(r.promScenarios, r.promPreservation, r.promDetection, r.promRecovery)
	return r
}

// Registry 采集器所在的prometheus注册表（供/metrics端点使用）
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ScenarioOpened 记录一次场景建档与检出延迟
func (r *Recorder) ScenarioOpened(triggerType, level string, detectionLatency time.Duration) {
	r.mu.Lock()
	r.scenariosHandled++
	r.detectionTotal += detectionLatency
	r.detectionCount++
	r.mu.Unlock()

	r.promScenarios.WithLabelValues(triggerType, level).Inc()
	r.promDetection.Observe(detectionLatency.Seconds())
}

// ScenarioClosed 记录一次恢复延迟
func (r *Recorder) ScenarioClosed(recoveryLatency time.Duration) {
	r.mu.Lock()
	r.recoveryTotal += recoveryLatency
	r.recoveryCount++
	r.mu.Unlock()

	r.promRecovery.Observe(recoveryLatency.Seconds())
}

// PreservationResult 记录一次不变量保全结果
func (r *Recorder) PreservationResult(guardian string, achieved bool) {
	r.mu.Lock()
	if achieved {
		r.preservationSuccesses++
	} else {
		r.preservationFailures++
	}
	r.mu.Unlock()

	result := "success"
	if !achieved {
		result = "failure"
	}
	r.promPreservation.WithLabelValues(guardian, result).Inc()
}

// Snapshot 当前累计指标
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		ScenariosHandled:      r.scenariosHandled,
		PreservationSuccesses: r.preservationSuccesses,
		PreservationFailures:  r.preservationFailures,
	}
	if r.detectionCount > 0 {
		snap.MeanDetectionLatency = r.detectionTotal / time.Duration(r.detectionCount)
	}
	if r.recoveryCount > 0 {
		snap.MeanRecoveryLatency = r.recoveryTotal / time.Duration(r.recoveryCount)
	}
	return snap
}
