package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"degradation-orchestrator/pkg/classify"
	"degradation-orchestrator/pkg/component"
	"degradation-orchestrator/pkg/guardian"
	"degradation-orchestrator/pkg/health"
	"degradation-orchestrator/pkg/metrics"
	"degradation-orchestrator/pkg/models"
	"degradation-orchestrator/pkg/recovery"
	"degradation-orchestrator/pkg/scenario"
	"degradation-orchestrator/pkg/strategy"

	"go.uber.org/zap"
)

// 紧急快速路径阈值：控制面影响达到该值时，守护者先于一切策略应用被调用
const emergencyFastPathThreshold = 0.9

// Orchestrator 自适应降级与恢复编排器
// 数据流: 采样 -> 聚合 -> 分类 -> 场景建档 -> 策略选择/应用 -> 恢复计划执行 -> 指标
type Orchestrator struct {
	registry   *component.Registry
	monitor    *health.Monitor
	state      *health.StateManager
	classifier *classify.Classifier
	scenarios  *scenario.Manager
	planner    *recovery.Planner
	executor   *recovery.Executor
	guardians  *guardian.Set
	recorder   *metrics.Recorder
	logger     *zap.Logger

	// 场景ID -> 在途恢复的取消函数
	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc
}

// Deps 编排器依赖集合
type Deps struct {
	Registry   *component.Registry
	Monitor    *health.Monitor
	State      *health.StateManager
	Classifier *classify.Classifier
	Scenarios  *scenario.Manager
	Planner    *recovery.Planner
	Executor   *recovery.Executor
	Guardians  *guardian.Set
	Recorder   *metrics.Recorder
	Logger     *zap.Logger
}

// New 创建编排器
func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry:   deps.Registry,
		monitor:    deps.Monitor,
		state:      deps.State,
		classifier: deps.Classifier,
		scenarios:  deps.Scenarios,
		planner:    deps.Planner,
		executor:   deps.Executor,
		guardians:  deps.Guardians,
		recorder:   deps.Recorder,
		logger:     logger,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// Start 启动编排器：恢复持久化状态 -> 常驻守护者 -> 监测循环
func (o *Orchestrator) Start(ctx context.Context) error {
	// 重启恢复：先加载并校验，再恢复监测
	if err := o.state.Restore(); err != nil {
		return fmt.Errorf("恢复健康快照失败: %w", err)
	}
	if err := o.scenarios.Restore(); err != nil {
		return fmt.Errorf("恢复场景表失败: %w", err)
	}

	o.guardians.ControlPlane.Start(ctx)
	o.monitor.Start(ctx)

	o.logger.Info("降级编排器已启动",
		zap.Int("components", len(o.registry.IDs())),
		zap.Int("active_scenarios", len(o.scenarios.ListActive())),
	)
	return nil
}

// Health 当前生态健康快照
func (o *Orchestrator) Health() *models.EcosystemHealthState {
	return o.state.Latest()
}

// CurrentLevel 全局降级等级（活跃场景最大值）
func (o *Orchestrator) CurrentLevel() models.DegradationLevel {
	return o.scenarios.CurrentLevel()
}

// Scenario 查询场景（含已归档）
func (o *Orchestrator) Scenario(id string) (*models.DegradationScenario, error) {
	return o.scenarios.Get(id)
}

// Metrics 累计指标快照
func (o *Orchestrator) Metrics() metrics.Snapshot {
	return o.recorder.Snapshot()
}

// HandleTrigger 处理一个降级触发（每个触发独立goroutine调用，与监测并发）
func (o *Orchestrator) HandleTrigger(ctx context.Context, trigger models.Trigger) (*models.DegradationScenario, error) {
	if !models.ValidTriggerType(trigger.Type) {
		return nil, fmt.Errorf("非法触发类型: %s", trigger.Type)
	}
	if trigger.ReceivedAt.IsZero() {
		trigger.ReceivedAt = time.Now()
	}

	snapshot := o.state.Latest()

	// 1. 分类：触发 + 快照 -> 评估 + 等级
	assessment, level := o.classifier.Classify(trigger, snapshot)

	// 场景等级不得低于建档时快照隐含的等级
	level = models.MaxLevel(level, impliedLevel(snapshot))

	// 2. 建档（表满/组件重叠由管理器内部合并，触发绝不丢弃）
	s, err := o.scenarios.Open(trigger, assessment, level)
	if err != nil {
		return nil, err
	}
	o.state.PersistNow()

	emergency := assessment.ControlPlaneImpact >= emergencyFastPathThreshold
	checkpoint := "scenario-open"
	if emergency {
		checkpoint = "emergency-fast-path"
	}

	// 3. 守护者先行：紧急路径下绕过策略选择器，保全措施先于一切策略应用
	cpReport, tsReport, cpFailed := o.guardians.Invoke(ctx, s, checkpoint)
	o.recorder.PreservationResult("control_plane", cpReport.PreservationAchieved)
	o.recorder.PreservationResult("trusted_session", tsReport.PreservationAchieved)
	if cpFailed {
		// 控制面保全失败：无条件升级到关键不变量保全
		if err := o.scenarios.Escalate(s.ID, models.LevelCriticalInvariantPreservation, "控制面守护者保全失败"); err == nil {
			s.Level = models.LevelCriticalInvariantPreservation
		}
	}

	// 4. 策略选择与应用
	strategies := strategy.Select(s.Level, s.Assessment)
	if err := o.scenarios.Update(s.ID, func(rec *models.DegradationScenario) {
		rec.ActiveStrategies = strategies
		rec.InvariantMeasures.ControlPlane = append(rec.InvariantMeasures.ControlPlane, cpReport.MeasuresApplied...)
		rec.InvariantMeasures.TrustedSession = append(rec.InvariantMeasures.TrustedSession, tsReport.MeasuresApplied...)
	}); err != nil {
		return nil, err
	}
	s.ActiveStrategies = strategies

	o.applyStrategies(ctx, s)

	// 5. 检出延迟指标
	o.recorder.ScenarioOpened(string(trigger.Type), s.Level.String(), time.Since(trigger.ReceivedAt))

	// 6. 需要正式恢复计划时提前构建（执行由Recover发起）
	if s.Assessment.RequiresFormalPlan && s.RecoveryPlan == nil {
		if err := o.buildPlan(s); err != nil {
			o.logger.Error("恢复计划构建失败", zap.String("scenario_id", s.ID), zap.Error(err))
		}
	}

	return o.scenarios.Get(s.ID)
}

// applyStrategies 向受影响组件应用策略
// 组件侧错误只降低其健康评分（下一轮采样体现），不影响编排器
func (o *Orchestrator) applyStrategies(ctx context.Context, s *models.DegradationScenario) {
	for _, componentID := range s.AffectedComponents {
		comp, ok := o.registry.Get(componentID)
		if !ok {
			continue
		}
		for _, st := range s.ActiveStrategies {
			result, err := comp.ApplyStrategy(ctx, st)
			if err != nil {
				o.logger.Warn("组件应用策略失败",
					zap.String("component", componentID),
					zap.String("strategy", string(st.Type)),
					zap.Error(err),
				)
				continue
			}
			if !result.Accepted {
				o.logger.Warn("组件拒绝策略",
					zap.String("component", componentID),
					zap.String("strategy", string(st.Type)),
				)
			}
		}
	}
}

// buildPlan 构建恢复计划；依赖成环时场景标记UNPLANNABLE并对操作员可见
func (o *Orchestrator) buildPlan(s *models.DegradationScenario) error {
	plan, err := o.planner.Plan(s)
	if err != nil {
		if models.IsPlanCycle(err) {
			_ = o.scenarios.Update(s.ID, func(rec *models.DegradationScenario) {
				rec.Status = models.ScenarioUnplannable
				rec.AddLesson("恢复计划依赖成环: " + err.Error())
			})
			o.logger.Error("场景不可规划",
				zap.String("scenario_id", s.ID),
				zap.Error(err),
			)
		}
		return err
	}

	s.RecoveryPlan = plan
	// 记录中存深拷贝：执行器后续改写的是调用方手里这份
	return o.scenarios.Update(s.ID, func(rec *models.DegradationScenario) {
		rec.RecoveryPlan = plan.Clone()
	})
}

// Recover 发起场景恢复
// 返回响应中携带两个不变量的保全状态；计划执行在后台进行
func (o *Orchestrator) Recover(ctx context.Context, scenarioID string) (*models.RecoveryResponse, error) {
	s, err := o.scenarios.Get(scenarioID)
	if err != nil {
		return nil, err
	}
	if s.Status.Terminal() {
		return nil, models.ErrScenarioClosed
	}
	if s.Status == models.ScenarioRecovering {
		return nil, fmt.Errorf("场景 %s 已在恢复中", scenarioID)
	}

	if s.RecoveryPlan == nil {
		if err := o.buildPlan(s); err != nil {
			return nil, err
		}
	}

	// 恢复启动前的守护者检查
	cpReport, tsReport, cpFailed := o.guardians.Invoke(ctx, s, "recovery-start")
	o.recorder.PreservationResult("control_plane", cpReport.PreservationAchieved)
	o.recorder.PreservationResult("trusted_session", tsReport.PreservationAchieved)
	if cpFailed {
		_ = o.scenarios.Escalate(s.ID, models.LevelCriticalInvariantPreservation, "恢复启动时控制面保全失败")
	}

	if err := o.scenarios.Update(s.ID, func(rec *models.DegradationScenario) {
		rec.Status = models.ScenarioRecovering
	}); err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithCancel(context.Background())
	o.cancelMu.Lock()
	o.cancels[s.ID] = cancel
	o.cancelMu.Unlock()

	go o.executePlan(execCtx, s)

	return &models.RecoveryResponse{
		ScenarioID: s.ID,
		Started:    true,
		ControlPlane: models.InvariantRestoration{
			MeasuresApplied:      cpReport.MeasuresApplied,
			PreservationAchieved: cpReport.PreservationAchieved,
		},
		TrustedSession: models.InvariantRestoration{
			MeasuresApplied:      tsReport.MeasuresApplied,
			PreservationAchieved: tsReport.PreservationAchieved,
		},
	}, nil
}

// executePlan 后台执行恢复计划并根据结果关闭/搁置场景
func (o *Orchestrator) executePlan(ctx context.Context, s *models.DegradationScenario) {
	defer func() {
		o.cancelMu.Lock()
		delete(o.cancels, s.ID)
		o.cancelMu.Unlock()
	}()

	err := o.executor.Execute(ctx, s.RecoveryPlan, s, recovery.Hooks{
		Escalate: func(level models.DegradationLevel, reason string) {
			_ = o.scenarios.Escalate(s.ID, level, reason)
		},
		// 阶段状态迁移即时同步到场景记录，查询方随时可见执行进度
		PhaseSync: func(phaseID string, status models.PhaseStatus) {
			_ = o.scenarios.Update(s.ID, func(rec *models.DegradationScenario) {
				if rec.RecoveryPlan == nil {
					return
				}
				if p := rec.RecoveryPlan.Phase(phaseID); p != nil {
					p.Status = status
				}
			})
		},
	})

	// 执行结果（阶段终态、守护措施）写回场景记录
	writeBack := func(rec *models.DegradationScenario) {
		rec.RecoveryPlan = s.RecoveryPlan.Clone()
		rec.InvariantMeasures = s.InvariantMeasures
	}

	switch {
	case err == nil:
		_ = o.scenarios.Update(s.ID, writeBack)
		_ = o.scenarios.Close(s.ID, models.ScenarioResolved, "全部恢复阶段成功并通过判据复核")
		o.recorder.ScenarioClosed(time.Since(s.StartedAt))
		o.state.PersistNow()
		o.logger.Info("场景恢复完成",
			zap.String("scenario_id", s.ID),
			zap.String("global_level", o.scenarios.CurrentLevel().String()),
		)

	case errors.Is(err, context.Canceled):
		_ = o.scenarios.Update(s.ID, writeBack)
		_ = o.scenarios.Close(s.ID, models.ScenarioCancelled, "恢复被外部取消")
		o.logger.Warn("场景恢复已取消", zap.String("scenario_id", s.ID))

	case errors.Is(err, models.ErrPhaseRetryExhausted):
		// 搁置等待二线处置，不再自动重试
		_ = o.scenarios.Update(s.ID, func(rec *models.DegradationScenario) {
			writeBack(rec)
			rec.Status = models.ScenarioStalled
			rec.AddLesson("阶段重试耗尽: " + err.Error())
		})
		o.logger.Error("场景恢复搁置，等待二线处置",
			zap.String("scenario_id", s.ID),
			zap.Error(err),
		)

	default:
		_ = o.scenarios.Update(s.ID, func(rec *models.DegradationScenario) {
			writeBack(rec)
			rec.Status = models.ScenarioStalled
			rec.AddLesson("恢复执行失败: " + err.Error())
		})
		o.logger.Error("场景恢复失败",
			zap.String("scenario_id", s.ID),
			zap.Error(err),
		)
	}
}

// Cancel 外部取消场景（人工介入）
// 在途恢复在下一个检查点中断；守护者回滚执行到底
func (o *Orchestrator) Cancel(scenarioID string) error {
	o.cancelMu.Lock()
	cancel, recovering := o.cancels[scenarioID]
	o.cancelMu.Unlock()

	if recovering {
		cancel()
		return nil
	}

	// 未在恢复中：直接回滚守护措施并关闭
	o.guardians.RollbackAll(scenarioID)
	return o.scenarios.Close(scenarioID, models.ScenarioCancelled, "外部取消")
}

// ListScenarios 所有活跃场景
func (o *Orchestrator) ListScenarios() []*models.DegradationScenario {
	return o.scenarios.ListActive()
}

// impliedLevel 快照隐含的最低等级
// 以不变量健康缺口与整体健康缺口构造伪评估，复用等级判定
func impliedLevel(state *models.EcosystemHealthState) models.DegradationLevel {
	if state == nil {
		return models.LevelMinor
	}
	return classify.DecideLevel(models.ImpactAssessment{
		ControlPlaneImpact:       1 - state.ProtectedInvariants.ControlPlane,
		TrustedSessionImpact:     1 - state.ProtectedInvariants.TrustedSession,
		EcosystemCoherenceImpact: 1 - state.OverallHealth,
	})
}
