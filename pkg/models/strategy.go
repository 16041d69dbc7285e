package models

import (
	"fmt"
	"strings"
	"time"
)

// StrategyType 缓解策略类型（封闭集合，调用方应穷举匹配）
type StrategyType string

const (
	StrategyFunctionalityReduction StrategyType = "FUNCTIONALITY_REDUCTION"  // 功能裁剪
	StrategyLoadRedistribution     StrategyType = "LOAD_REDISTRIBUTION"      // 负载再分配
	StrategyIsolation              StrategyType = "ISOLATION"                // 组件隔离
	StrategyInvariantPrioritize    StrategyType = "INVARIANT_PRIORITIZATION" // 不变量优先
	StrategyExternalResourceBorrow StrategyType = "EXTERNAL_RESOURCE_BORROW" // 外部资源借用
	StrategyStatePreservation      StrategyType = "STATE_PRESERVATION"       // 状态保全
	StrategySimplifiedMode         StrategyType = "SIMPLIFIED_MODE"          // 极简模式
)

// Strategy 缓解策略（标签变体：Type决定哪些字段有效）
type Strategy struct {
	Type StrategyType `json:"type"`

	// FunctionalityReduction
	ReductionPct       float64  `json:"reduction_pct,omitempty"`       // 裁剪比例 [0,1]
	PreservedFunctions []string `json:"preserved_functions,omitempty"` // 保留的功能

	// LoadRedistribution
	RedistributionPlan map[string]string `json:"redistribution_plan,omitempty"` // 源组件 -> 接管组件

	// Isolation
	IsolationScope []string `json:"isolation_scope,omitempty"` // 被隔离的组件
	Fallback       string   `json:"fallback,omitempty"`        // 隔离后的兜底提供方

	// InvariantPrioritization
	Deprioritized []string `json:"deprioritized,omitempty"` // 被降级让路的功能

	// ExternalResourceBorrow
	BorrowedResources []string      `json:"borrowed_resources,omitempty"` // 借用的资源
	BorrowTTL         time.Duration `json:"borrow_ttl,omitempty"`         // 借用期限

	// StatePreservation
	PreservationScope []string `json:"preservation_scope,omitempty"` // 需要保全状态的范围

	// SimplifiedMode
	EssentialFunctions []string `json:"essential_functions,omitempty"` // 极简模式允许的功能白名单
}

// ID 策略的确定性标识（用于幂等应用与回滚）
// 同类型同作用域的策略ID相同，重复应用视为无操作
func (s Strategy) ID() string {
	scope := ""
	switch s.Type {
	case StrategyIsolation:
		scope = strings.Join(s.IsolationScope, ",")
	case StrategyStatePreservation:
		scope = strings.Join(s.PreservationScope, ",")
	case StrategySimplifiedMode:
		scope = strings.Join(s.EssentialFunctions, ",")
	case StrategyFunctionalityReduction:
		scope = fmt.Sprintf("%.2f", s.ReductionPct)
	case StrategyExternalResourceBorrow:
		scope = strings.Join(s.BorrowedResources, ",")
	case StrategyInvariantPrioritize:
		scope = strings.Join(s.Deprioritized, ",")
	case StrategyLoadRedistribution:
		keys := make([]string, 0, len(s.RedistributionPlan))
		for k := range s.RedistributionPlan {
			keys = append(keys, k)
		}
		scope = fmt.Sprintf("%d", len(keys))
	}
	return string(s.Type) + ":" + scope
}

// ContainsStrategy 判断策略集合中是否包含指定类型
func ContainsStrategy(set []Strategy, t StrategyType) bool {
	for _, s := range set {
		if s.Type == t {
			return true
		}
	}
	return false
}
