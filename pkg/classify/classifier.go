package classify

import (
	"sort"
	"time"

	"degradation-orchestrator/pkg/models"

	"go.uber.org/zap"
)

// impactProfile 各触发类型对三个影响维度的放大系数
type impactProfile struct {
	controlPlane   float64
	trustedSession float64
	coherence      float64
}

// 分类依据设计规则：控制面保护压倒一切，可信会话次之
var profiles = map[models.TriggerType]impactProfile{
	models.TriggerComponentFailure:    {controlPlane: 1.0, trustedSession: 0.6, coherence: 0.8},
	models.TriggerResourceExhaustion:  {controlPlane: 1.0, trustedSession: 0.4, coherence: 0.7},
	models.TriggerConnectivityLoss:    {controlPlane: 0.6, trustedSession: 0.8, coherence: 1.0},
	models.TriggerSecurityIncident:    {controlPlane: 0.7, trustedSession: 1.0, coherence: 0.6},
	models.TriggerInvariantDisruption: {controlPlane: 1.0, trustedSession: 1.0, coherence: 0.8},
}

// 各等级的预计处置时长
var estimatedDurations = map[models.DegradationLevel]time.Duration{
	models.LevelMinor:                         2 * time.Minute,
	models.LevelModerate:                      5 * time.Minute,
	models.LevelSignificant:                   15 * time.Minute,
	models.LevelEmergencyMinimal:              30 * time.Minute,
	models.LevelCriticalInvariantPreservation: 60 * time.Minute,
}

// Classifier 触发分类器
// 纯函数式：同一触发+同一快照必然得到同一评估与等级
type Classifier struct {
	logger *zap.Logger
}

// NewClassifier 创建触发分类器
func NewClassifier(logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{logger: logger}
}

// Classify 将触发+当前快照转换为影响评估与降级等级
func (c *Classifier) Classify(trigger models.Trigger, state *models.EcosystemHealthState) (models.ImpactAssessment, models.DegradationLevel) {
	profile, ok := profiles[trigger.Type]
	if !ok {
		profile = impactProfile{controlPlane: 1.0, trustedSession: 1.0, coherence: 1.0}
	}

	affected := affectedComponents(trigger, state)
	base := baseImpact(trigger, affected, state)

	assessment := models.ImpactAssessment{
		ControlPlaneImpact:       clamp01(base * profile.controlPlane),
		TrustedSessionImpact:     clamp01(base * profile.trustedSession),
		EcosystemCoherenceImpact: clamp01(base * profile.coherence),
		AffectedComponents:       affected,
	}

	// 显式控制面影响优先于推导值（监测侧已有更准确判断时）
	if trigger.ControlPlaneImpact > 0 {
		assessment.ControlPlaneImpact = clamp01(trigger.ControlPlaneImpact)
	}

	// 快照中控制面不变量已经受损时，评估只能更悲观
	if state != nil {
		cpDamage := 1 - state.ProtectedInvariants.ControlPlane
		if cpDamage > assessment.ControlPlaneImpact {
			assessment.ControlPlaneImpact = clamp01(cpDamage)
		}
	}

	level := DecideLevel(assessment)
	assessment.EstimatedDuration = estimatedDurations[level]
	assessment.RequiresFormalPlan = level >= models.LevelModerate

	c.logger.Info("触发已分类",
		zap.String("trigger_type", string(trigger.Type)),
		zap.String("level", level.String()),
		zap.Float64("control_plane_impact", assessment.ControlPlaneImpact),
		zap.Float64("trusted_session_impact", assessment.TrustedSessionImpact),
		zap.Float64("coherence_impact", assessment.EcosystemCoherenceImpact),
		zap.Strings("affected", affected),
	)

	return assessment, level
}

// DecideLevel 等级判定（优先级自上而下，首个命中即返回）
// 排序编码了设计规则：控制面影响压倒其余考量，可信会话影响为次级裁决
func DecideLevel(a models.ImpactAssessment) models.DegradationLevel {
	switch {
	case a.ControlPlaneImpact >= 0.9:
		return models.LevelCriticalInvariantPreservation
	case a.ControlPlaneImpact >= 0.7:
		return models.LevelEmergencyMinimal
	case a.ControlPlaneImpact >= 0.5 || a.TrustedSessionImpact >= 0.7:
		return models.LevelSignificant
	case a.ControlPlaneImpact >= 0.3 || a.TrustedSessionImpact >= 0.4 || a.EcosystemCoherenceImpact >= 0.5:
		return models.LevelModerate
	default:
		return models.LevelMinor
	}
}

// affectedComponents 确定受影响组件集合
// 触发未指明时，从快照中找出运行健康度低于0.5的组件
func affectedComponents(trigger models.Trigger, state *models.EcosystemHealthState) []string {
	seen := make(map[string]struct{})
	var affected []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		affected = append(affected, id)
	}

	add(trigger.ComponentID)
	for _, id := range trigger.AffectedComponents {
		add(id)
	}

	if len(affected) == 0 && state != nil {
		for id, h := range state.PerComponent {
			if h.OperationalHealth < 0.5 {
				add(id)
			}
		}
		// 来自map遍历，排序保证分类结果确定
		sort.Strings(affected)
	}
	return affected
}

// baseImpact 原始影响估计
// 触发自带估计优先；否则按受影响组件的健康缺口加权推导
func baseImpact(trigger models.Trigger, affected []string, state *models.EcosystemHealthState) float64 {
	if trigger.Impact > 0 {
		return clamp01(trigger.Impact)
	}
	if state == nil || len(affected) == 0 {
		return 0.5
	}

	var weightSum, damage float64
	for _, id := range affected {
		h, ok := state.PerComponent[id]
		if !ok {
			continue
		}
		weightSum += h.ContributionWeight
		damage += h.ContributionWeight * (1 - h.OperationalHealth)
	}
	if weightSum == 0 {
		return 0.5
	}
	return clamp01(damage / weightSum)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
