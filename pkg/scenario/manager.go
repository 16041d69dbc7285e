package scenario

import (
	"fmt"
	"sync"
	"time"

	"degradation-orchestrator/pkg/models"
	"degradation-orchestrator/pkg/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxConcurrent 默认最大并发场景数
const DefaultMaxConcurrent = 10

// Manager 降级场景管理器
// 场景由管理器独占所有权直至关闭；关闭后归档，永不删除。
// 组件集合有交集的并发场景会被合并到较高等级。
type Manager struct {
	mu       sync.RWMutex
	active   map[string]*models.DegradationScenario
	archived map[string]*models.DegradationScenario
	max      int

	store  *store.Store
	logger *zap.Logger
}

// NewManager 创建场景管理器
func NewManager(max int, st *store.Store, logger *zap.Logger) *Manager {
	if max <= 0 {
		max = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		active:   make(map[string]*models.DegradationScenario),
		archived: make(map[string]*models.DegradationScenario),
		max:      max,
		store:    st,
		logger:   logger,
	}
}

// Open 建档一个降级场景
// 1. 与既有场景组件有交集 -> 合并进既有场景并取较高等级
// 2. 场景表已满 -> 并入优先级最低的既有场景并升级，触发绝不被丢弃
// 3. 否则新建场景记录
func (m *Manager) Open(trigger models.Trigger, assessment models.ImpactAssessment, level models.DegradationLevel) (*models.DegradationScenario, error) {
	m.mu.Lock()

	// 1. 组件交集合并
	for _, existing := range m.active {
		if existing.Overlaps(assessment.AffectedComponents) {
			m.mergeLocked(existing, trigger, assessment, level)
			merged := cloneScenario(existing)
			m.mu.Unlock()
			m.persist(merged)
			m.logger.Info("触发并入既有场景（组件重叠）",
				zap.String("scenario_id", merged.ID),
				zap.String("level", merged.Level.String()),
			)
			return merged, nil
		}
	}

	// 2. 场景表已满：并入最低优先级场景
	if len(m.active) >= m.max {
		victim := m.lowestPriorityLocked()
		m.mergeLocked(victim, trigger, assessment, level)
		merged := cloneScenario(victim)
		m.mu.Unlock()
		m.persist(merged)
		m.logger.Warn("场景表已满，触发并入最低优先级场景",
			zap.String("scenario_id", merged.ID),
			zap.String("level", merged.Level.String()),
			zap.Error(models.ErrScenarioTableFull),
		)
		return merged, nil
	}

	// 3. 新建场景
	now := time.Now()
	s := &models.DegradationScenario{
		ID:                 uuid.NewString(),
		TriggerType:        trigger.Type,
		AffectedComponents: append([]string(nil), assessment.AffectedComponents...),
		RootCause:          trigger.Description,
		Level:              level,
		Status:             models.ScenarioActive,
		Assessment:         assessment,
		StartedAt:          now,
	}
	if assessment.EstimatedDuration > 0 {
		eta := now.Add(assessment.EstimatedDuration)
		s.EstimatedResolution = &eta
	}
	m.active[s.ID] = s
	opened := cloneScenario(s)
	m.mu.Unlock()

	m.persist(opened)
	m.logger.Info("降级场景已建档",
		zap.String("scenario_id", opened.ID),
		zap.String("trigger_type", string(trigger.Type)),
		zap.String("level", opened.Level.String()),
		zap.Strings("affected", opened.AffectedComponents),
	)
	return opened, nil
}

// mergeLocked 将新触发并入既有场景（需持有写锁）
// 等级只升不降：场景内等级单调，除非部分恢复成功后显式降级
func (m *Manager) mergeLocked(target *models.DegradationScenario, trigger models.Trigger, assessment models.ImpactAssessment, level models.DegradationLevel) {
	target.Level = models.MaxLevel(target.Level, level)

	seen := make(map[string]struct{}, len(target.AffectedComponents))
	for _, c := range target.AffectedComponents {
		seen[c] = struct{}{}
	}
	for _, c := range assessment.AffectedComponents {
		if _, ok := seen[c]; !ok {
			target.AffectedComponents = append(target.AffectedComponents, c)
		}
	}
	target.AddLesson(fmt.Sprintf("合并触发 %s: %s", trigger.Type, trigger.Description))

	// 影响评估取逐维最大值
	if assessment.ControlPlaneImpact > target.Assessment.ControlPlaneImpact {
		target.Assessment.ControlPlaneImpact = assessment.ControlPlaneImpact
	}
	if assessment.TrustedSessionImpact > target.Assessment.TrustedSessionImpact {
		target.Assessment.TrustedSessionImpact = assessment.TrustedSessionImpact
	}
	if assessment.EcosystemCoherenceImpact > target.Assessment.EcosystemCoherenceImpact {
		target.Assessment.EcosystemCoherenceImpact = assessment.EcosystemCoherenceImpact
	}
	target.Assessment.AffectedComponents = append([]string(nil), target.AffectedComponents...)
}

// lowestPriorityLocked 找出优先级最低的活跃场景（等级最低者优先，其次建档最早）
func (m *Manager) lowestPriorityLocked() *models.DegradationScenario {
	var victim *models.DegradationScenario
	for _, s := range m.active {
		if victim == nil ||
			s.Level < victim.Level ||
			(s.Level == victim.Level && s.StartedAt.Before(victim.StartedAt)) {
			victim = s
		}
	}
	return victim
}

// Get 查找场景（含已归档）
func (m *Manager) Get(id string) (*models.DegradationScenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.active[id]; ok {
		return cloneScenario(s), nil
	}
	if s, ok := m.archived[id]; ok {
		return cloneScenario(s), nil
	}
	return nil, models.ErrScenarioNotFound
}

// ListActive 所有活跃场景
func (m *Manager) ListActive() []*models.DegradationScenario {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*models.DegradationScenario, 0, len(m.active))
	for _, s := range m.active {
		result = append(result, cloneScenario(s))
	}
	return result
}

// CurrentLevel 全局降级等级 = 活跃场景等级的最大值
func (m *Manager) CurrentLevel() models.DegradationLevel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	level := models.LevelNone
	for _, s := range m.active {
		level = models.MaxLevel(level, s.Level)
	}
	return level
}

// Update 在管理器锁内修改场景（策略、计划、状态等）
func (m *Manager) Update(id string, fn func(*models.DegradationScenario)) error {
	m.mu.Lock()
	s, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return models.ErrScenarioNotFound
	}
	fn(s)
	updated := cloneScenario(s)
	m.mu.Unlock()

	m.persist(updated)
	return nil
}

// Escalate 升级场景等级（只升不降）
func (m *Manager) Escalate(id string, level models.DegradationLevel, reason string) error {
	return m.Update(id, func(s *models.DegradationScenario) {
		if level > s.Level {
			s.Level = level
			s.AddLesson("升级: " + reason)
		}
	})
}

// Demote 部分恢复成功后的显式降级（场景内等级单调的唯一例外）
func (m *Manager) Demote(id string, level models.DegradationLevel, reason string) error {
	return m.Update(id, func(s *models.DegradationScenario) {
		if level < s.Level {
			s.Level = level
			s.AddLesson("部分恢复降级: " + reason)
		}
	})
}

// Close 关闭并归档场景
func (m *Manager) Close(id string, status models.ScenarioStatus, validation string) error {
	m.mu.Lock()
	s, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		if _, archived := m.archived[id]; archived {
			return models.ErrScenarioClosed
		}
		return models.ErrScenarioNotFound
	}

	now := time.Now()
	s.Status = status
	s.ClosedAt = &now
	if validation != "" {
		s.AddLesson("关闭校验: " + validation)
	}

	delete(m.active, id)
	m.archived[id] = s
	closed := cloneScenario(s)
	m.mu.Unlock()

	m.persist(closed)
	m.logger.Info("降级场景已关闭归档",
		zap.String("scenario_id", id),
		zap.String("status", string(status)),
		zap.Duration("duration", now.Sub(closed.StartedAt)),
	)
	return nil
}

// Restore 重启后从etcd重建场景表
func (m *Manager) Restore() error {
	if m.store == nil || !m.store.Enabled() {
		return nil
	}

	values, err := m.store.ListPrefix(store.PrefixScenario)
	if err != nil {
		return fmt.Errorf("加载场景表失败: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	restored := 0
	for _, raw := range values {
		s, err := decodeScenario(raw)
		if err != nil {
			m.logger.Warn("解析持久化场景失败", zap.Error(err))
			continue
		}
		if s.Status.Terminal() || s.ClosedAt != nil {
			m.archived[s.ID] = s
		} else {
			m.active[s.ID] = s
		}
		restored++
	}
	m.logger.Info("场景表已从etcd恢复", zap.Int("count", restored))
	return nil
}

func (m *Manager) persist(s *models.DegradationScenario) {
	if m.store == nil || !m.store.Enabled() {
		return
	}
	if err := m.store.Put(store.PrefixScenario+s.ID, s); err != nil {
		m.logger.Warn("持久化场景失败",
			zap.String("scenario_id", s.ID),
			zap.Error(err),
		)
	}
}
