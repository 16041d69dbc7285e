package component

import (
	"context"
	"sync"
	"time"

	"degradation-orchestrator/pkg/models"
)

// SimulatedComponent 内存模拟组件
// 用于开发/演示与测试，生产环境替换为 RemoteComponent
type SimulatedComponent struct {
	id     string
	weight float64

	mu               sync.Mutex
	operational      float64
	resource         float64
	security         float64
	cpCompatible     bool
	activeStrategies map[string]models.Strategy // 策略ID -> 策略
	reportDelay      time.Duration              // 模拟响应延迟（测试超时路径）
	restartCount     int
}

// NewSimulatedComponent 创建模拟组件（初始满健康）
func NewSimulatedComponent(id string, weight float64) *SimulatedComponent {
	return &SimulatedComponent{
		id:               id,
		weight:           weight,
		operational:      1.0,
		resource:         1.0,
		security:         1.0,
		cpCompatible:     true,
		activeStrategies: make(map[string]models.Strategy),
	}
}

func (c *SimulatedComponent) ID() string {
	return c.id
}

// SetHealth 设置模拟健康度
func (c *SimulatedComponent) SetHealth(operational, resource, security float64, cpCompatible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.operational = operational
	c.resource = resource
	c.security = security
	c.cpCompatible = cpCompatible
}

// SetReportDelay 设置健康上报延迟（模拟慢组件）
func (c *SimulatedComponent) SetReportDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reportDelay = d
}

func (c *SimulatedComponent) ReportHealth(ctx context.Context) (models.ComponentHealth, error) {
	c.mu.Lock()
	delay := c.reportDelay
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return models.ComponentHealth{}, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return models.ComponentHealth{
		ComponentID:            c.id,
		OperationalHealth:      c.operational,
		ResourceHealth:         c.resource,
		SecurityHealth:         c.security,
		ControlPlaneCompatible: c.cpCompatible,
		ContributionWeight:     c.weight,
		LastCheck:              time.Now(),
	}, nil
}

// ApplyStrategy 应用策略（幂等：同ID重复应用为无操作成功）
func (c *SimulatedComponent) ApplyStrategy(ctx context.Context, strategy models.Strategy) (models.ApplyResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := strategy.ID()
	if _, active := c.activeStrategies[id]; active {
		return models.ApplyResult{Accepted: true, AppliedAt: time.Now()}, nil
	}

	c.activeStrategies[id] = strategy
	return models.ApplyResult{Accepted: true, AppliedAt: time.Now()}, nil
}

func (c *SimulatedComponent) Rollback(ctx context.Context, strategyID string) (models.RollbackResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.activeStrategies, strategyID)
	return models.RollbackResult{RolledBack: true, FinishedAt: time.Now()}, nil
}

// Restart 模拟重启：恢复满健康
func (c *SimulatedComponent) Restart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.operational = 1.0
	c.resource = 1.0
	c.security = 1.0
	c.cpCompatible = true
	c.restartCount++
}

// ActiveStrategies 当前生效的策略ID集合
func (c *SimulatedComponent) ActiveStrategies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.activeStrategies))
	for id := range c.activeStrategies {
		ids = append(ids, id)
	}
	return ids
}

// RestartCount 累计重启次数
func (c *SimulatedComponent) RestartCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restartCount
}
