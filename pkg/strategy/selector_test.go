package strategy

import (
	"reflect"
	"testing"

	"degradation-orchestrator/pkg/models"
)

// TestSelect 测试策略选择
func TestSelect(t *testing.T) {
	assessment := models.ImpactAssessment{
		AffectedComponents: []string{"b", "a"},
	}

	t.Run("纯函数", func(t *testing.T) {
		s1 := Select(models.LevelSignificant, assessment)
		s2 := Select(models.LevelSignificant, assessment)
		if !reflect.DeepEqual(s1, s2) {
			t.Error("同样输入两次选择结果不一致")
		}
	})

	t.Run("受影响组件排序后进入策略", func(t *testing.T) {
		strategies := Select(models.LevelSignificant, assessment)
		for _, s := range strategies {
			if s.Type == models.StrategyIsolation {
				if !reflect.DeepEqual(s.IsolationScope, []string{"a", "b"}) {
					t.Errorf("隔离范围应按字典序排序，实际 %v", s.IsolationScope)
				}
				return
			}
		}
		t.Error("显著降级应包含隔离策略")
	})

	t.Run("紧急最小起强制包含不变量优先与状态保全", func(t *testing.T) {
		for _, level := range []models.DegradationLevel{
			models.LevelEmergencyMinimal,
			models.LevelCriticalInvariantPreservation,
		} {
			strategies := Select(level, assessment)
			if !models.ContainsStrategy(strategies, models.StrategyInvariantPrioritize) {
				t.Errorf("%s 缺少不变量优先策略", level)
			}
			if !models.ContainsStrategy(strategies, models.StrategyStatePreservation) {
				t.Errorf("%s 缺少状态保全策略", level)
			}
		}
	})

	t.Run("紧急最小以下不含强制策略", func(t *testing.T) {
		for _, level := range []models.DegradationLevel{
			models.LevelMinor,
			models.LevelModerate,
			models.LevelSignificant,
		} {
			strategies := Select(level, assessment)
			if models.ContainsStrategy(strategies, models.StrategyInvariantPrioritize) {
				t.Errorf("%s 不应包含不变量优先策略", level)
			}
		}
	})

	t.Run("极简模式仅在关键保全出现", func(t *testing.T) {
		all := []models.DegradationLevel{
			models.LevelMinor,
			models.LevelModerate,
			models.LevelSignificant,
			models.LevelEmergencyMinimal,
			models.LevelCriticalInvariantPreservation,
		}
		for _, level := range all {
			has := models.ContainsStrategy(Select(level, assessment), models.StrategySimplifiedMode)
			want := level == models.LevelCriticalInvariantPreservation
			if has != want {
				t.Errorf("%s 的极简模式选中状态错误: %v", level, has)
			}
		}
	})

	t.Run("极简模式白名单固定", func(t *testing.T) {
		strategies := Select(models.LevelCriticalInvariantPreservation, assessment)
		for _, s := range strategies {
			if s.Type == models.StrategySimplifiedMode {
				if !reflect.DeepEqual(s.EssentialFunctions, EssentialFunctions) {
					t.Errorf("极简模式白名单不应变化，实际 %v", s.EssentialFunctions)
				}
				return
			}
		}
		t.Error("关键保全应包含极简模式")
	})

	t.Run("裁剪无法移除强制策略", func(t *testing.T) {
		strategies := SelectWithOverrides(models.LevelEmergencyMinimal, assessment, Overrides{
			Exclude: []models.StrategyType{
				models.StrategyInvariantPrioritize,
				models.StrategyStatePreservation,
				models.StrategyIsolation,
			},
		})
		if !models.ContainsStrategy(strategies, models.StrategyInvariantPrioritize) {
			t.Error("裁剪不应移除不变量优先策略")
		}
		if !models.ContainsStrategy(strategies, models.StrategyStatePreservation) {
			t.Error("裁剪不应移除状态保全策略")
		}
		if models.ContainsStrategy(strategies, models.StrategyIsolation) {
			t.Error("普通策略应可被裁剪")
		}
	})

	t.Run("功能裁剪比例随等级递增", func(t *testing.T) {
		pct := func(level models.DegradationLevel) float64 {
			for _, s := range Select(level, assessment) {
				if s.Type == models.StrategyFunctionalityReduction {
					return s.ReductionPct
				}
			}
			return -1
		}

		minor, moderate := pct(models.LevelMinor), pct(models.LevelModerate)
		significant, emergency := pct(models.LevelSignificant), pct(models.LevelEmergencyMinimal)
		if !(minor < moderate && moderate < significant && significant < emergency) {
			t.Errorf("裁剪比例应随等级递增: %f %f %f %f", minor, moderate, significant, emergency)
		}
	})
}
