package guardian

import (
	"context"
	"sync"
	"time"

	"degradation-orchestrator/pkg/models"

	"go.uber.org/zap"
)

// DefaultHeartbeatInterval 控制面心跳间隔
const DefaultHeartbeatInterval = 1 * time.Second

// Report 守护者保全结果
type Report struct {
	MeasuresApplied      []string `json:"measures_applied"`
	PreservationAchieved bool     `json:"preservation_achieved"`
}

// ControlPlaneGuardian 控制面连续性守护者
// 保证最小编排心跳在任何等级（含极简模式）下持续运行；
// 无法保证时高分贝失败（高严重度告警），绝不静默降级
type ControlPlaneGuardian struct {
	interval time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	lastBeat  time.Time
	beatCount uint64
}

// NewControlPlaneGuardian 创建控制面守护者
func NewControlPlaneGuardian(interval time.Duration, logger *zap.Logger) *ControlPlaneGuardian {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ControlPlaneGuardian{
		interval: interval,
		logger:   logger,
	}
}

// Start 启动最小编排心跳（幂等）
func (g *ControlPlaneGuardian) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return
	}

	beatCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.running = true
	g.lastBeat = time.Now()

	go func() {
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-beatCtx.Done():
				g.mu.Lock()
				g.running = false
				g.mu.Unlock()
				return
			case <-ticker.C:
				g.mu.Lock()
				g.lastBeat = time.Now()
				g.beatCount++
				g.mu.Unlock()
			}
		}
	}()
}

// Stop 停止心跳（仅进程退出时调用）
func (g *ControlPlaneGuardian) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
}

// Healthy 心跳是否存活（最近一次心跳在3个周期以内）
func (g *ControlPlaneGuardian) Healthy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running && time.Since(g.lastBeat) < 3*g.interval
}

// BeatCount 累计心跳次数
func (g *ControlPlaneGuardian) BeatCount() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.beatCount
}

// Preserve 执行控制面保全
// 心跳不存活时尝试重启一次；仍无法保证则返回失败并发出高严重度告警
func (g *ControlPlaneGuardian) Preserve(ctx context.Context, s *models.DegradationScenario) Report {
	report := Report{PreservationAchieved: true}

	if !g.Healthy() {
		g.Start(ctx)
		report.MeasuresApplied = append(report.MeasuresApplied, "restart-orchestration-heartbeat")

		if !g.Healthy() {
			report.PreservationAchieved = false
			g.logger.Error("控制面心跳无法恢复，保全失败",
				zap.String("scenario_id", scenarioID(s)),
				zap.Error(models.ErrGuardianPreservation),
			)
			return report
		}
	}

	report.MeasuresApplied = append(report.MeasuresApplied, "orchestration-heartbeat-verified")

	// 极简模式下显式固定心跳为必保功能
	if s != nil && models.ContainsStrategy(s.ActiveStrategies, models.StrategySimplifiedMode) {
		report.MeasuresApplied = append(report.MeasuresApplied, "heartbeat-pinned-in-simplified-mode")
	}

	return report
}

func scenarioID(s *models.DegradationScenario) string {
	if s == nil {
		return ""
	}
	return s.ID
}
