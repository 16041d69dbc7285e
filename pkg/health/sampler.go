package health

import (
	"context"
	"sync"
	"time"

	"degradation-orchestrator/pkg/component"
	"degradation-orchestrator/pkg/models"

	"go.uber.org/zap"
)

const (
	// DefaultSampleTimeout 单组件采样超时
	DefaultSampleTimeout = 2 * time.Second

	// 超时/失败时回填权重的兜底值（尚无历史样本时）
	fallbackWeight = 0.5
)

// Sampler 健康采样器
// 逐组件拉取健康度量；超时或出错的组件按运行健康度0处理，错误不向上传播
type Sampler struct {
	registry *component.Registry
	timeout  time.Duration
	logger   *zap.Logger

	mu          sync.Mutex
	lastWeights map[string]float64 // 组件ID -> 最近一次成功采样的权重
}

// NewSampler 创建健康采样器
func NewSampler(registry *component.Registry, timeout time.Duration, logger *zap.Logger) *Sampler {
	if timeout <= 0 {
		timeout = DefaultSampleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{
		registry:    registry,
		timeout:     timeout,
		logger:      logger,
		lastWeights: make(map[string]float64),
	}
}

// Sample 采样单个组件
// 采样调用放在独立goroutine中，即使组件实现不尊重ctx也不会阻塞采样器
func (s *Sampler) Sample(ctx context.Context, id string) models.ComponentHealth {
	comp, ok := s.registry.Get(id)
	if !ok {
		return s.deadSample(id)
	}

	sampleCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type outcome struct {
		health models.ComponentHealth
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		h, err := comp.ReportHealth(sampleCtx)
		ch <- outcome{health: h, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			// 组件自身故障只降低其健康评分，不影响编排器
			s.logger.Debug("组件健康采样失败",
				zap.String("component", id),
				zap.Error(out.err),
			)
			return s.deadSample(id)
		}
		s.rememberWeight(id, out.health.ContributionWeight)
		return out.health
	case <-sampleCtx.Done():
		s.logger.Debug("组件健康采样超时",
			zap.String("component", id),
			zap.Duration("timeout", s.timeout),
			zap.Error(models.ErrSampleTimeout),
		)
		return s.deadSample(id)
	}
}

// SampleAll 并发采样所有已注册组件
func (s *Sampler) SampleAll(ctx context.Context) []models.ComponentHealth {
	ids := s.registry.IDs()
	samples := make([]models.ComponentHealth, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			samples[i] = s.Sample(ctx, id)
		}(i, id)
	}
	wg.Wait()

	return samples
}

func (s *Sampler) rememberWeight(id string, weight float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastWeights[id] = weight
}

// deadSample 超时/失败组件的采样结果（健康度0，权重沿用最近已知值）
func (s *Sampler) deadSample(id string) models.ComponentHealth {
	s.mu.Lock()
	weight, ok := s.lastWeights[id]
	s.mu.Unlock()
	if !ok {
		weight = fallbackWeight
	}

	return models.ComponentHealth{
		ComponentID:            id,
		OperationalHealth:      0,
		ResourceHealth:         0,
		SecurityHealth:         0,
		ControlPlaneCompatible: false,
		ContributionWeight:     weight,
		LastCheck:              time.Now(),
	}
}
