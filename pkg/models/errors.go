package models

import (
	"errors"
	"fmt"
	"strings"
)

// 错误分级约定：
// - ErrSampleTimeout 本地消化（健康度记0），不向上传播
// - ErrScenarioTableFull 触发合并决策，记录日志，绝不静默丢弃触发
// - ErrPhaseRetryExhausted / PlanCycleError / ErrGuardianPreservation 对操作员可见
var (
	ErrSampleTimeout        = errors.New("health sample timeout")
	ErrPhaseRetryExhausted  = errors.New("recovery phase retry exhausted")
	ErrGuardianPreservation = errors.New("guardian preservation failure")
	ErrScenarioTableFull    = errors.New("scenario table full")
	ErrScenarioNotFound     = errors.New("scenario not found")
	ErrScenarioClosed       = errors.New("scenario already closed")
)

// PlanCycleError 恢复计划依赖成环（对计划构建致命）
type PlanCycleError struct {
	Cycle []string // 成环的阶段/组件ID
}

func (e *PlanCycleError) Error() string {
	return fmt.Sprintf("recovery plan dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

// IsPlanCycle 判断错误是否为依赖成环
func IsPlanCycle(err error) bool {
	var ce *PlanCycleError
	return errors.As(err, &ce)
}
