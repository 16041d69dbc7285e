package guardian

import (
	"context"
	"sync"

	"degradation-orchestrator/pkg/models"

	"go.uber.org/zap"
)

// Set 常驻守护者组合
// 在场景建档、每个阶段边界、以及紧急快速路径上被同步调用
type Set struct {
	ControlPlane   *ControlPlaneGuardian
	TrustedSession *TrustedSessionGuardian
	logger         *zap.Logger

	// 告警状态跟踪：仅在状态变化时发出告警，避免重复刷屏
	alertMu     sync.Mutex
	alertStates map[string]bool
}

// NewSet 创建守护者组合
func NewSet(cp *ControlPlaneGuardian, ts *TrustedSessionGuardian, logger *zap.Logger) *Set {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Set{
		ControlPlane:   cp,
		TrustedSession: ts,
		logger:         logger,
		alertStates:    make(map[string]bool),
	}
}

// Invoke 同步调用两个守护者并记录措施
// 返回控制面保全失败标志；为true时调用方必须将场景升级到关键不变量保全等级
func (g *Set) Invoke(ctx context.Context, s *models.DegradationScenario, checkpoint string) (cp Report, ts Report, cpFailed bool) {
	cp = g.ControlPlane.Preserve(ctx, s)
	ts = g.TrustedSession.Preserve(ctx, s)

	if changed, firing := g.checkAndUpdateAlert("control-plane:"+scenarioID(s), !cp.PreservationAchieved); changed && firing {
		g.logger.Error("控制面不变量保全失败",
			zap.String("scenario_id", scenarioID(s)),
			zap.String("checkpoint", checkpoint),
			zap.Error(models.ErrGuardianPreservation),
		)
	}

	if s != nil {
		s.InvariantMeasures.ControlPlane = append(s.InvariantMeasures.ControlPlane, cp.MeasuresApplied...)
		s.InvariantMeasures.TrustedSession = append(s.InvariantMeasures.TrustedSession, ts.MeasuresApplied...)
	}

	return cp, ts, !cp.PreservationAchieved
}

// RollbackAll 回滚场景的全部守护措施（取消路径也执行到底）
func (g *Set) RollbackAll(scenarioID string) []string {
	return g.TrustedSession.Rollback(scenarioID)
}

// checkAndUpdateAlert 检查并更新告警状态
// 返回: (状态是否变化, 当前是否触发)
func (g *Set) checkAndUpdateAlert(key string, firing bool) (bool, bool) {
	g.alertMu.Lock()
	defer g.alertMu.Unlock()

	wasFiring, exists := g.alertStates[key]
	if !exists || wasFiring != firing {
		g.alertStates[key] = firing
		return true, firing
	}
	return false, firing
}
