/*
生态健康状态管理器 - 数据中枢
功能:
1. 最新快照维护 - Swap() / Latest()
2. 有界历史窗口 - History()
3. 持久化快照 - persist() / Restore()
*/
package health

import (
	"fmt"
	"sync"
	"time"

	"degradation-orchestrator/pkg/models"
	"degradation-orchestrator/pkg/store"

	"go.uber.org/zap"
)

const (
	// DefaultHistoryCap 历史快照上限（超出丢弃最旧）
	DefaultHistoryCap = 10000

	// DefaultPersistEveryTicks 每N个聚合周期持久化一次
	DefaultPersistEveryTicks = 6
)

// StateManager 生态健康状态管理器
// 单写多读：写锁仅用于整体替换快照，绝不跨阻塞调用持有
type StateManager struct {
	mu      sync.RWMutex
	latest  *models.EcosystemHealthState
	history []*models.EcosystemHealthState
	cap     int

	store             *store.Store
	persistEveryTicks int
	tickCount         int

	logger *zap.Logger
}

// NewStateManager 创建状态管理器
// st为nil或未启用etcd时运行于纯内存模式
func NewStateManager(st *store.Store, historyCap, persistEveryTicks int, logger *zap.Logger) *StateManager {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	if persistEveryTicks <= 0 {
		persistEveryTicks = DefaultPersistEveryTicks
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateManager{
		cap:               historyCap,
		store:             st,
		persistEveryTicks: persistEveryTicks,
		logger:            logger,
	}
}

// Swap 换入新的不可变快照并追加历史
func (sm *StateManager) Swap(snapshot *models.EcosystemHealthState) {
	if snapshot == nil {
		return
	}

	sm.mu.Lock()
	sm.latest = snapshot
	sm.history = append(sm.history, snapshot)
	if len(sm.history) > sm.cap {
		// 丢弃最旧
		sm.history = sm.history[len(sm.history)-sm.cap:]
	}
	sm.tickCount++
	shouldPersist := sm.tickCount%sm.persistEveryTicks == 0
	sm.mu.Unlock()

	// 持久化在锁外进行
	if shouldPersist {
		sm.persist(snapshot)
	}
}

// Latest 当前快照（可能为nil，首轮聚合前）
func (sm *StateManager) Latest() *models.EcosystemHealthState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.latest
}

// History 返回最近n条历史快照（n<=0时返回全部）
func (sm *StateManager) History(n int) []*models.EcosystemHealthState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if n <= 0 || n > len(sm.history) {
		n = len(sm.history)
	}
	result := make([]*models.EcosystemHealthState, n)
	copy(result, sm.history[len(sm.history)-n:])
	return result
}

// PersistNow 立即持久化当前快照（场景开/关等关键节点调用）
func (sm *StateManager) PersistNow() {
	if snapshot := sm.Latest(); snapshot != nil {
		sm.persist(snapshot)
	}
}

func (sm *StateManager) persist(snapshot *models.EcosystemHealthState) {
	if sm.store == nil || !sm.store.Enabled() {
		return
	}
	key := fmt.Sprintf("%s%d", store.PrefixSnapshot, snapshot.LastAssessed.Unix())
	if err := sm.store.Put(key, snapshot); err != nil {
		sm.logger.Warn("持久化健康快照失败", zap.Error(err))
		return
	}
	sm.logger.Debug("健康快照已持久化",
		zap.Float64("overall_health", snapshot.OverallHealth),
		zap.Int("components", len(snapshot.PerComponent)),
	)
}

// Restore 从etcd加载最近一次快照（重启恢复；加载后须重新校验再恢复监测）
func (sm *StateManager) Restore() error {
	if sm.store == nil || !sm.store.Enabled() {
		return nil
	}

	var snapshot models.EcosystemHealthState
	found, err := sm.store.GetLatest(store.PrefixSnapshot, &snapshot)
	if err != nil {
		return fmt.Errorf("加载快照失败: %w", err)
	}
	if !found {
		return nil
	}

	// 重启后的快照只作参考基线，健康度留待首轮聚合重新校验
	sm.mu.Lock()
	sm.latest = &snapshot
	sm.history = append(sm.history, &snapshot)
	sm.mu.Unlock()

	sm.logger.Info("已从etcd恢复健康快照",
		zap.Time("last_assessed", snapshot.LastAssessed),
		zap.Float64("overall_health", snapshot.OverallHealth),
	)
	return nil
}

// CleanupOldSnapshots 清理etcd中过旧的快照
func (sm *StateManager) CleanupOldSnapshots(retention time.Duration) {
	if sm.store == nil || !sm.store.Enabled() {
		return
	}
	cutoff := time.Now().Add(-retention).Unix()
	sm.store.DeleteOlderThan(store.PrefixSnapshot, cutoff)
}
