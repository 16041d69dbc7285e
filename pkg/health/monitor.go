package health

import (
	"context"
	"time"

	"degradation-orchestrator/pkg/models"

	"go.uber.org/zap"
)

const (
	// DefaultMonitorInterval 默认聚合周期
	DefaultMonitorInterval = 10 * time.Second

	// 恢复预测使用的历史窗口
	predictionWindow = 5

	// 每N轮聚合清理一次etcd中过期的快照
	cleanupEveryTicks = 360

	// 持久化快照保留时长
	snapshotRetention = 24 * time.Hour
)

// LevelSource 提供当前全局降级等级（活跃场景最大值）
type LevelSource func() models.DegradationLevel

// Monitor 后台监测循环
// 固定周期采样全部组件、聚合为快照并换入状态管理器
type Monitor struct {
	sampler  *Sampler
	agg      *Aggregator
	state    *StateManager
	level    LevelSource
	interval time.Duration
	logger   *zap.Logger
}

// NewMonitor 创建监测循环
func NewMonitor(sampler *Sampler, agg *Aggregator, state *StateManager, level LevelSource, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if level == nil {
		level = func() models.DegradationLevel { return models.LevelNone }
	}
	return &Monitor{
		sampler:  sampler,
		agg:      agg,
		state:    state,
		level:    level,
		interval: interval,
		logger:   logger,
	}
}

// RunOnce 执行一轮采样+聚合并返回新快照
func (m *Monitor) RunOnce(ctx context.Context) *models.EcosystemHealthState {
	samples := m.sampler.SampleAll(ctx)
	snapshot := m.agg.Aggregate(samples, m.level())
	snapshot.PredictedRecovery = PredictRecovery(m.state.History(predictionWindow), predictionWindow)
	m.state.Swap(snapshot)

	m.logger.Debug("健康聚合完成",
		zap.Float64("overall_health", snapshot.OverallHealth),
		zap.String("level", snapshot.CurrentLevel.String()),
		zap.Int("components", len(snapshot.PerComponent)),
	)
	return snapshot
}

// Start 启动监测循环（独立goroutine，ctx取消时退出）
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		// 启动即做一轮，不等第一个tick
		m.RunOnce(ctx)

		ticks := 0
		for {
			select {
			case <-ctx.Done():
				m.logger.Info("监测循环已停止")
				return
			case <-ticker.C:
				m.RunOnce(ctx)
				ticks++
				if ticks%cleanupEveryTicks == 0 {
					m.state.CleanupOldSnapshots(snapshotRetention)
				}
			}
		}
	}()
}
