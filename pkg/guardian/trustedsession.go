package guardian

import (
	"context"
	"fmt"
	"sync"

	"degradation-orchestrator/pkg/component"
	"degradation-orchestrator/pkg/models"

	"go.uber.org/zap"
)

// Session 一条可信外部会话
type Session struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"` // 当前服务该会话的组件
	Notified   bool   `json:"notified"`    // 无法移交时是否已显式通知
}

// handoff 一次会话移交记录（用于回滚）
type handoff struct {
	sessionID    string
	fromProvider string
	toProvider   string
}

// TrustedSessionGuardian 可信会话完整性守护者
// 保证任何打开中的可信会话不被静默断开：
// 服务组件被强制隔离时，要么移交给替代提供方，要么显式通知会话
type TrustedSessionGuardian struct {
	registry *component.Registry
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	// 场景ID -> 已执行的移交（取消时回滚必须执行到底）
	handoffs map[string][]handoff
}

// NewTrustedSessionGuardian 创建可信会话守护者
func NewTrustedSessionGuardian(registry *component.Registry, logger *zap.Logger) *TrustedSessionGuardian {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrustedSessionGuardian{
		registry: registry,
		logger:   logger,
		sessions: make(map[string]*Session),
		handoffs: make(map[string][]handoff),
	}
}

// RegisterSession 登记一条可信会话
func (g *TrustedSessionGuardian) RegisterSession(sessionID, providerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[sessionID] = &Session{ID: sessionID, ProviderID: providerID}
}

// CloseSession 会话正常结束
func (g *TrustedSessionGuardian) CloseSession(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, sessionID)
}

// Sessions 当前会话快照
func (g *TrustedSessionGuardian) Sessions() []Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	result := make([]Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		result = append(result, *s)
	}
	return result
}

// Preserve 执行可信会话保全
// 对每条由受影响组件服务的会话：优先移交给健康的替代组件，
// 无替代可用时显式通知会话（绝不静默断开）
func (g *TrustedSessionGuardian) Preserve(ctx context.Context, s *models.DegradationScenario) Report {
	report := Report{PreservationAchieved: true}
	if s == nil {
		return report
	}

	affected := make(map[string]struct{}, len(s.AffectedComponents))
	for _, id := range s.AffectedComponents {
		affected[id] = struct{}{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, session := range g.sessions {
		if _, hit := affected[session.ProviderID]; !hit {
			continue
		}

		alternative := g.findAlternativeLocked(affected)
		if alternative != "" {
			g.handoffs[s.ID] = append(g.handoffs[s.ID], handoff{
				sessionID:    session.ID,
				fromProvider: session.ProviderID,
				toProvider:   alternative,
			})
			g.logger.Info("可信会话已移交",
				zap.String("session_id", session.ID),
				zap.String("from", session.ProviderID),
				zap.String("to", alternative),
				zap.String("scenario_id", s.ID),
			)
			session.ProviderID = alternative
			report.MeasuresApplied = append(report.MeasuresApplied,
				fmt.Sprintf("handoff-session:%s->%s", session.ID, alternative))
			continue
		}

		// 无替代提供方：显式通知，不静默断开
		session.Notified = true
		report.MeasuresApplied = append(report.MeasuresApplied,
			fmt.Sprintf("notify-session:%s", session.ID))
		g.logger.Warn("无替代提供方，已显式通知可信会话",
			zap.String("session_id", session.ID),
			zap.String("provider", session.ProviderID),
			zap.String("scenario_id", s.ID),
		)
	}

	return report
}

// findAlternativeLocked 在未受影响组件中找一个替代提供方（需持有锁）
func (g *TrustedSessionGuardian) findAlternativeLocked(affected map[string]struct{}) string {
	if g.registry == nil {
		return ""
	}
	for _, id := range g.registry.IDs() {
		if _, hit := affected[id]; !hit {
			return id
		}
	}
	return ""
}

// Rollback 回滚指定场景的所有会话移交
// 取消路径也必须执行到底，不允许守护措施处于半应用状态
func (g *TrustedSessionGuardian) Rollback(scenarioID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	records := g.handoffs[scenarioID]
	delete(g.handoffs, scenarioID)

	var undone []string
	for i := len(records) - 1; i >= 0; i-- {
		h := records[i]
		if session, ok := g.sessions[h.sessionID]; ok && session.ProviderID == h.toProvider {
			session.ProviderID = h.fromProvider
			undone = append(undone, fmt.Sprintf("undo-handoff:%s->%s", h.sessionID, h.fromProvider))
			g.logger.Info("会话移交已回滚",
				zap.String("session_id", h.sessionID),
				zap.String("restored_provider", h.fromProvider),
			)
		}
	}
	return undone
}
