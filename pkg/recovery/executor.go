package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"degradation-orchestrator/pkg/guardian"
	"degradation-orchestrator/pkg/health"
	"degradation-orchestrator/pkg/models"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultMaxRetries 阶段重试上限
	DefaultMaxRetries = 3
	// DefaultInitialBackoff 指数退避起始间隔
	DefaultInitialBackoff = 2 * time.Second
	// MaxWorkerPool 并发阶段执行的工作池上限
	MaxWorkerPool = 16
)

// ActionRunner 恢复动作执行器
// 按动作类型注册（与故障码->修复动作的注册方式同构）
type ActionRunner interface {
	Name() string
	Run(ctx context.Context, action models.RecoveryAction) error
}

// EscalateFunc 守护者保全失败时的升级回调
type EscalateFunc func(level models.DegradationLevel, reason string)

// PhaseSyncFunc 阶段状态变更回调
// 每次状态迁移时调用，把最新状态同步给场景记录的持有方
type PhaseSyncFunc func(phaseID string, status models.PhaseStatus)

// Hooks 执行期回调集合（字段可为nil）
type Hooks struct {
	Escalate  EscalateFunc
	PhaseSync PhaseSyncFunc
}

// Executor 恢复计划执行器
// 无依赖边的阶段并发执行（工作池限流）；每个阶段完成前对照实时
// 健康快照复核成功判据；重试耗尽的阶段使场景进入STALLED等待二线处置
type Executor struct {
	state     *health.StateManager
	guardians *guardian.Set
	logger    *zap.Logger

	mu      sync.RWMutex
	runners map[models.ActionKind]ActionRunner

	maxRetries     int
	initialBackoff time.Duration
}

// NewExecutor 创建恢复执行器
func NewExecutor(state *health.StateManager, guardians *guardian.Set, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		state:          state,
		guardians:      guardians,
		logger:         logger,
		runners:        make(map[models.ActionKind]ActionRunner),
		maxRetries:     DefaultMaxRetries,
		initialBackoff: DefaultInitialBackoff,
	}
}

// SetRetryPolicy 调整重试参数（测试用短间隔）
func (e *Executor) SetRetryPolicy(maxRetries int, initialBackoff time.Duration) {
	if maxRetries > 0 {
		e.maxRetries = maxRetries
	}
	if initialBackoff > 0 {
		e.initialBackoff = initialBackoff
	}
}

// RegisterRunner 注册动作执行器
func (e *Executor) RegisterRunner(kind models.ActionKind, runner ActionRunner) {
	if runner == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runners[kind] = runner
}

func (e *Executor) runner(kind models.ActionKind) (ActionRunner, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.runners[kind]
	return r, ok
}

// phaseResult 单个阶段的执行结果
type phaseResult struct {
	phaseID string
	err     error
}

// Execute 执行恢复计划
// 前置全部成功的阶段立即调度；取消时在检查点中断，未到终态的阶段记
// ABORTED，守护者回滚无条件执行到底
func (e *Executor) Execute(ctx context.Context, plan *models.RecoveryPlan, s *models.DegradationScenario, hooks Hooks) error {
	escalate := hooks.Escalate
	if escalate == nil {
		escalate = func(models.DegradationLevel, string) {}
	}
	syncPhase := hooks.PhaseSync
	if syncPhase == nil {
		syncPhase = func(string, models.PhaseStatus) {}
	}

	poolCap := int64(len(s.AffectedComponents))
	if poolCap < 1 {
		poolCap = 1
	}
	if poolCap > MaxWorkerPool {
		poolCap = MaxWorkerPool
	}
	pool := semaphore.NewWeighted(poolCap)

	var mu sync.Mutex // 保护plan内阶段状态
	done := make(chan phaseResult)
	running := 0

	launch := func(phase *models.RecoveryPhase) {
		running++
		syncPhase(phase.ID, models.PhaseRunning)
		go func(id string) {
			if err := pool.Acquire(ctx, 1); err != nil {
				done <- phaseResult{phaseID: id, err: err}
				return
			}
			defer pool.Release(1)
			done <- phaseResult{phaseID: id, err: e.runPhase(ctx, plan, id)}
		}(phase.ID)
	}

	// 初始调度：无前置阶段
	mu.Lock()
	for i := range plan.Phases {
		phase := &plan.Phases[i]
		if phase.Status == models.PhasePending && e.prereqsMet(plan, phase) {
			phase.Status = models.PhaseRunning
			launch(phase)
		}
	}
	mu.Unlock()

	// 取消检查点：等待在途阶段退出，被中断与未开始的阶段一律
	// 标记ABORTED，守护者回滚执行到底
	cancelled := func() error {
		for running > 0 {
			<-done
			running--
		}
		mu.Lock()
		aborted := e.abortUnfinished(plan)
		mu.Unlock()
		for _, id := range aborted {
			syncPhase(id, models.PhaseAborted)
		}
		e.rollbackGuardians(s)
		return ctx.Err()
	}

	var failure error
	for running > 0 {
		select {
		case <-ctx.Done():
			return cancelled()

		case result := <-done:
			running--
			// 在途阶段可能先于取消分支送回ctx错误
			if ctx.Err() != nil {
				return cancelled()
			}
			mu.Lock()
			phase := plan.Phase(result.phaseID)

			if result.err != nil {
				phase.Status = models.PhaseFailed
				failure = fmt.Errorf("阶段 %s 失败: %w", result.phaseID, result.err)
				aborted := e.abortRemaining(plan)
				mu.Unlock()
				syncPhase(result.phaseID, models.PhaseFailed)
				for _, id := range aborted {
					syncPhase(id, models.PhaseAborted)
				}
				continue
			}

			phase.Status = models.PhaseSucceeded
			mu.Unlock()
			syncPhase(result.phaseID, models.PhaseSucceeded)

			// 阶段边界守护者检查
			_, _, cpFailed := e.guardians.Invoke(ctx, s, "phase:"+result.phaseID)
			if cpFailed {
				escalate(models.LevelCriticalInvariantPreservation, "阶段边界控制面保全失败")
			}

			if failure != nil {
				continue
			}

			// 调度新达到就绪的阶段
			mu.Lock()
			for i := range plan.Phases {
				next := &plan.Phases[i]
				if next.Status == models.PhasePending && e.prereqsMet(plan, next) {
					next.Status = models.PhaseRunning
					launch(next)
				}
			}
			mu.Unlock()
		}
	}

	if failure != nil {
		e.rollbackGuardians(s)
		return failure
	}

	e.logger.Info("恢复计划全部阶段成功",
		zap.String("plan_id", plan.ID),
		zap.String("scenario_id", plan.ScenarioID),
	)
	return nil
}

// prereqsMet 阶段的全部前置是否成功（调用方需持锁）
func (e *Executor) prereqsMet(plan *models.RecoveryPlan, phase *models.RecoveryPhase) bool {
	for _, id := range phase.Prerequisites {
		prereq := plan.Phase(id)
		if prereq == nil || prereq.Status != models.PhaseSucceeded {
			return false
		}
	}
	return true
}

// abortRemaining 将未开始的阶段标记ABORTED，返回被放弃的阶段ID（调用方需持锁）
// 在途阶段不动：它们的结果仍会到达并写入真实终态
func (e *Executor) abortRemaining(plan *models.RecoveryPlan) []string {
	var aborted []string
	for i := range plan.Phases {
		if plan.Phases[i].Status == models.PhasePending {
			plan.Phases[i].Status = models.PhaseAborted
			aborted = append(aborted, plan.Phases[i].ID)
		}
	}
	return aborted
}

// abortUnfinished 取消后将所有未到终态的阶段（含被中断的在途阶段）
// 标记ABORTED，返回被放弃的阶段ID（调用方需持锁）
func (e *Executor) abortUnfinished(plan *models.RecoveryPlan) []string {
	var aborted []string
	for i := range plan.Phases {
		switch plan.Phases[i].Status {
		case models.PhasePending, models.PhaseRunning:
			plan.Phases[i].Status = models.PhaseAborted
			aborted = append(aborted, plan.Phases[i].ID)
		}
	}
	return aborted
}

func (e *Executor) rollbackGuardians(s *models.DegradationScenario) {
	undone := e.guardians.RollbackAll(s.ID)
	if len(undone) > 0 {
		e.logger.Info("守护措施已回滚",
			zap.String("scenario_id", s.ID),
			zap.Strings("measures", undone),
		)
	}
}

// runPhase 执行单个阶段：动作序列 + 成功判据复核，指数退避重试
func (e *Executor) runPhase(ctx context.Context, plan *models.RecoveryPlan, phaseID string) error {
	phase := plan.Phase(phaseID)

	// 单次尝试超时 = 预计时长 x 3
	estDuration := phase.EstDuration
	if estDuration <= 0 {
		estDuration = defaultPhaseDuration
	}
	attemptTimeout := estDuration * 3

	attempt := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		defer cancel()

		for _, action := range phase.Actions {
			runner, ok := e.runner(action.Kind)
			if !ok {
				return backoff.Permanent(fmt.Errorf("动作 %s 未注册执行器", action.Kind))
			}
			if err := runner.Run(attemptCtx, action); err != nil {
				return fmt.Errorf("动作 %s(%s) 失败: %w", action.Kind, action.ComponentID, err)
			}
		}

		// 对照实时健康快照复核成功判据
		if err := e.evaluateCriteria(phase.SuccessCriteria); err != nil {
			return err
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.initialBackoff

	err := backoff.Retry(attempt, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(e.maxRetries)), ctx))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn("阶段重试耗尽",
			zap.String("phase", phaseID),
			zap.Int("max_retries", e.maxRetries),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", models.ErrPhaseRetryExhausted, err)
	}
	return nil
}

// evaluateCriteria 对照最新快照评估成功判据
func (e *Executor) evaluateCriteria(criteria []models.Criterion) error {
	if len(criteria) == 0 {
		return nil
	}

	snapshot := e.state.Latest()
	if snapshot == nil {
		return fmt.Errorf("无可用健康快照")
	}

	for _, criterion := range criteria {
		h, ok := snapshot.Component(criterion.ComponentID)
		if !ok {
			return fmt.Errorf("判据组件 %s 无健康数据", criterion.ComponentID)
		}
		if h.OperationalHealth < criterion.MinOperationalHealth {
			return fmt.Errorf("组件 %s 健康度 %.2f 未达 %.2f",
				criterion.ComponentID, h.OperationalHealth, criterion.MinOperationalHealth)
		}
		if criterion.RequireControlPlane && !h.ControlPlaneCompatible {
			return fmt.Errorf("组件 %s 未恢复控制面兼容", criterion.ComponentID)
		}
	}
	return nil
}
