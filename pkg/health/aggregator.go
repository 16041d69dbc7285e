package health

import (
	"time"

	"degradation-orchestrator/pkg/models"
)

const (
	// DefaultProtectedWeightThreshold 贡献权重超过该阈值的组件视为受保护组件
	DefaultProtectedWeightThreshold = 0.7

	// 受保护组件不兼容控制面时施加的额外负权
	controlPlanePenalty = 0.25

	// 恢复预测认为已恢复的健康度阈值
	recoveredThreshold = 0.9
)

// Aggregator 健康聚合器
// 将一轮采样合并为一个生态健康快照；快照不可变，整体替换
type Aggregator struct {
	protectedThreshold float64
}

// NewAggregator 创建健康聚合器
func NewAggregator(protectedThreshold float64) *Aggregator {
	if protectedThreshold <= 0 || protectedThreshold > 1 {
		protectedThreshold = DefaultProtectedWeightThreshold
	}
	return &Aggregator{protectedThreshold: protectedThreshold}
}

// Aggregate 聚合采样为生态健康快照
// 整体健康度 = 按贡献权重加权的运行健康度均值，
// 受保护组件（权重>阈值）不兼容控制面时施加额外负权。
// 该函数对每个分量单调：单轮内任一组件健康度不升高，整体健康度不会升高。
func (a *Aggregator) Aggregate(samples []models.ComponentHealth, currentLevel models.DegradationLevel) *models.EcosystemHealthState {
	perComponent := make(map[string]models.ComponentHealth, len(samples))

	var weightSum, weighted float64
	var penalty float64
	var cpWeightSum, cpHealth float64
	var sessionWeightSum, sessionHealth float64

	for _, sample := range samples {
		perComponent[sample.ComponentID] = sample

		w := sample.ContributionWeight
		weightSum += w
		weighted += w * sample.OperationalHealth

		// 受保护组件失去控制面兼容性：额外负权
		if w > a.protectedThreshold && !sample.ControlPlaneCompatible {
			penalty += controlPlanePenalty
		}

		// 控制面不变量：受保护组件的运行健康度，不兼容按0计
		if w > a.protectedThreshold {
			cpWeightSum += w
			if sample.ControlPlaneCompatible {
				cpHealth += w * sample.OperationalHealth
			}
		}

		// 可信会话不变量：全体组件的安全健康度加权
		sessionWeightSum += w
		sessionHealth += w * sample.SecurityHealth
	}

	overall := 1.0
	if weightSum > 0 {
		overall = weighted/weightSum - penalty
	}
	overall = clamp01(overall)

	invariants := models.InvariantsHealth{ControlPlane: 1.0, TrustedSession: 1.0}
	if cpWeightSum > 0 {
		invariants.ControlPlane = clamp01(cpHealth / cpWeightSum)
	}
	if sessionWeightSum > 0 {
		invariants.TrustedSession = clamp01(sessionHealth / sessionWeightSum)
	}

	return &models.EcosystemHealthState{
		OverallHealth:       overall,
		PerComponent:        perComponent,
		CurrentLevel:        currentLevel,
		ProtectedInvariants: invariants,
		LastAssessed:        time.Now(),
	}
}

// PredictRecovery 基于历史快照的线性外推估计恢复时间
// 健康度持续上升时按最近窗口的平均增速外推到恢复阈值；否则返回nil
func PredictRecovery(history []*models.EcosystemHealthState, window int) *time.Time {
	if window < 2 {
		window = 2
	}
	if len(history) < window {
		return nil
	}

	recent := history[len(history)-window:]
	latest := recent[len(recent)-1]
	if latest.OverallHealth >= recoveredThreshold {
		return nil
	}

	// 窗口内必须单调不降且有净增长，否则没有可外推的趋势
	first := recent[0]
	for i := 1; i < len(recent); i++ {
		if recent[i].OverallHealth < recent[i-1].OverallHealth {
			return nil
		}
	}
	gain := latest.OverallHealth - first.OverallHealth
	elapsed := latest.LastAssessed.Sub(first.LastAssessed)
	if gain <= 0 || elapsed <= 0 {
		return nil
	}

	rate := gain / elapsed.Seconds() // 每秒健康度增量
	remaining := recoveredThreshold - latest.OverallHealth
	eta := latest.LastAssessed.Add(time.Duration(remaining/rate) * time.Second)
	return &eta
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
