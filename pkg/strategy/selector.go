package strategy

import (
	"sort"
	"time"

	"degradation-orchestrator/pkg/models"
)

// EssentialFunctions 极简模式下允许的功能白名单（固定集合）
var EssentialFunctions = []string{
	"control-plane-heartbeat",
	"trusted-session-keepalive",
	"health-sampling",
	"operator-interface",
}

// coreFunctions 轻中度裁剪时保留的核心功能
var coreFunctions = []string{
	"request-serving",
	"control-plane-heartbeat",
	"trusted-session-keepalive",
	"health-sampling",
}

// Select 按等级与评估选择缓解策略集合
// 纯函数：同样输入必然产出同样（含顺序）的策略集合。
// 等级达到 EMERGENCY_MINIMAL 起，不变量优先与状态保全策略必定在集合中；
// SIMPLIFIED_MODE 仅在 CRITICAL_INVARIANT_PRESERVATION 选中。
func Select(level models.DegradationLevel, assessment models.ImpactAssessment) []models.Strategy {
	return SelectWithOverrides(level, assessment, Overrides{})
}

// Overrides 策略集合的裁剪入口
// Exclude 对普通策略生效；对强制策略（不变量优先、状态保全）静默忽略
type Overrides struct {
	Exclude []models.StrategyType
}

// SelectWithOverrides 带裁剪的策略选择
func SelectWithOverrides(level models.DegradationLevel, assessment models.ImpactAssessment, overrides Overrides) []models.Strategy {
	affected := sortedCopy(assessment.AffectedComponents)

	var bundle []models.Strategy
	switch level {
	case models.LevelMinor:
		bundle = []models.Strategy{
			functionalityReduction(0.10),
		}
	case models.LevelModerate:
		bundle = []models.Strategy{
			functionalityReduction(0.25),
			loadRedistribution(affected),
		}
	case models.LevelSignificant:
		bundle = []models.Strategy{
			functionalityReduction(0.50),
			loadRedistribution(affected),
			isolation(affected),
		}
	case models.LevelEmergencyMinimal:
		bundle = []models.Strategy{
			functionalityReduction(0.75),
			isolation(affected),
			externalResourceBorrow(affected),
		}
	case models.LevelCriticalInvariantPreservation:
		bundle = []models.Strategy{
			simplifiedMode(),
			isolation(affected),
		}
	default:
		return nil
	}

	bundle = applyExcludes(bundle, overrides.Exclude)

	// 强制策略在裁剪之后注入，任何覆盖路径都无法移除
	if level >= models.LevelEmergencyMinimal {
		bundle = append(bundle,
			invariantPrioritization(),
			statePreservation(affected),
		)
	}

	return bundle
}

func functionalityReduction(pct float64) models.Strategy {
	return models.Strategy{
		Type:               models.StrategyFunctionalityReduction,
		ReductionPct:       pct,
		PreservedFunctions: coreFunctions,
	}
}

func loadRedistribution(affected []string) models.Strategy {
	plan := make(map[string]string, len(affected))
	for _, id := range affected {
		plan[id] = "standby-pool"
	}
	return models.Strategy{
		Type:               models.StrategyLoadRedistribution,
		RedistributionPlan: plan,
	}
}

func isolation(affected []string) models.Strategy {
	return models.Strategy{
		Type:           models.StrategyIsolation,
		IsolationScope: affected,
		Fallback:       "standby-pool",
	}
}

func externalResourceBorrow(affected []string) models.Strategy {
	resources := make([]string, 0, len(affected))
	for _, id := range affected {
		resources = append(resources, "compute:"+id)
	}
	return models.Strategy{
		Type:              models.StrategyExternalResourceBorrow,
		BorrowedResources: resources,
		BorrowTTL:         30 * time.Minute,
	}
}

func invariantPrioritization() models.Strategy {
	return models.Strategy{
		Type:          models.StrategyInvariantPrioritize,
		Deprioritized: []string{"analytics", "batch-processing", "background-sync"},
	}
}

func statePreservation(affected []string) models.Strategy {
	scope := affected
	if len(scope) == 0 {
		scope = []string{"*"}
	}
	return models.Strategy{
		Type:              models.StrategyStatePreservation,
		PreservationScope: scope,
	}
}

func simplifiedMode() models.Strategy {
	return models.Strategy{
		Type:               models.StrategySimplifiedMode,
		EssentialFunctions: EssentialFunctions,
	}
}

func applyExcludes(bundle []models.Strategy, excludes []models.StrategyType) []models.Strategy {
	if len(excludes) == 0 {
		return bundle
	}
	excluded := make(map[models.StrategyType]struct{}, len(excludes))
	for _, t := range excludes {
		excluded[t] = struct{}{}
	}
	result := bundle[:0]
	for _, s := range bundle {
		if _, skip := excluded[s.Type]; skip {
			continue
		}
		result = append(result, s)
	}
	return result
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
