package component

import (
	"context"
	"sync"

	"degradation-orchestrator/pkg/models"
)

// Component 被监测组件统一契约
// 编排器将所有外部协作方视为黑盒，只依赖本接口：
// - ReportHealth 必须在采样超时内返回，否则按健康度0处理
// - ApplyStrategy 幂等：重复应用同一策略视为无操作成功
// - Rollback 在恢复阶段中撤销已应用的策略
type Component interface {
	ID() string
	ReportHealth(ctx context.Context) (models.ComponentHealth, error)
	ApplyStrategy(ctx context.Context, strategy models.Strategy) (models.ApplyResult, error)
	Rollback(ctx context.Context, strategyID string) (models.RollbackResult, error)
}

// Registry 组件注册表
type Registry struct {
	mu         sync.RWMutex
	components map[string]Component
	order      []string // 注册顺序，保证遍历确定性
}

// NewRegistry 创建组件注册表
func NewRegistry() *Registry {
	return &Registry{
		components: make(map[string]Component),
	}
}

// Register 注册组件（同ID覆盖）
func (r *Registry) Register(c Component) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.components[c.ID()]; !exists {
		r.order = append(r.order, c.ID())
	}
	r.components[c.ID()] = c
}

// Get 按ID获取组件
func (r *Registry) Get(id string) (Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[id]
	return c, ok
}

// List 按注册顺序返回所有组件
func (r *Registry) List() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Component, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.components[id])
	}
	return result
}

// IDs 返回所有组件ID（注册顺序）
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}
