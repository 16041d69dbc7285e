package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"degradation-orchestrator/pkg/api"
	"degradation-orchestrator/pkg/classify"
	"degradation-orchestrator/pkg/component"
	"degradation-orchestrator/pkg/config"
	"degradation-orchestrator/pkg/guardian"
	"degradation-orchestrator/pkg/health"
	"degradation-orchestrator/pkg/metrics"
	"degradation-orchestrator/pkg/models"
	"degradation-orchestrator/pkg/orchestrator"
	"degradation-orchestrator/pkg/recovery"
	"degradation-orchestrator/pkg/scenario"
	"degradation-orchestrator/pkg/store"
	"degradation-orchestrator/pkg/utils"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/orchestrator.json", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	logger, err := utils.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Sync()

	// 1. 组件注册表：每个配置组件按有无base_url选择远程/模拟实现
	registry := component.NewRegistry()
	for _, cc := range cfg.Components {
		if cc.BaseURL != "" {
			registry.Register(component.NewRemoteComponent(cc.ID, cc.BaseURL, cc.Weight))
		} else {
			registry.Register(component.NewSimulatedComponent(cc.ID, cc.Weight))
		}
	}

	// 2. 持久化层（endpoints为空时纯内存运行）
	st, err := store.NewStore(cfg.EtcdEndpoints, logger)
	if err != nil {
		logger.Fatal("连接etcd失败", zap.Error(err))
	}
	defer st.Close()

	// 3. 健康监测链路
	stateManager := health.NewStateManager(st, cfg.HistoryCap, cfg.PersistEveryTicks, logger)
	sampler := health.NewSampler(registry, cfg.SampleTimeout(), logger)
	aggregator := health.NewAggregator(0.7)

	// 4. 场景与守护者
	scenarios := scenario.NewManager(cfg.MaxActiveScenarios, st, logger)
	cpGuardian := guardian.NewControlPlaneGuardian(guardian.DefaultHeartbeatInterval, logger)
	tsGuardian := guardian.NewTrustedSessionGuardian(registry, logger)
	guardians := guardian.NewSet(cpGuardian, tsGuardian, logger)

	// 5. 恢复规划与执行
	planner := recovery.NewPlanner(cfg.Dependencies(), logger)
	executor := recovery.NewExecutor(stateManager, guardians, logger)
	executor.SetRetryPolicy(cfg.PhaseMaxRetries, cfg.RetryInitialInterval())
	executor.RegisterRunner(models.ActionRestartComponent, recovery.NewComponentRunner(registry, logger))
	executor.RegisterRunner(models.ActionRollbackStrategy, recovery.NewComponentRunner(registry, logger))
	executor.RegisterRunner(models.ActionProbeHealth, recovery.NewComponentRunner(registry, logger))
	registerSSHRunner(executor, cfg, logger)

	// 6. 指标
	promRegistry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(promRegistry)

	monitor := health.NewMonitor(sampler, aggregator, stateManager, scenarios.CurrentLevel, cfg.SampleInterval(), logger)

	orch := orchestrator.New(orchestrator.Deps{
		Registry:   registry,
		Monitor:    monitor,
		State:      stateManager,
		Classifier: classify.NewClassifier(logger),
		Scenarios:  scenarios,
		Planner:    planner,
		Executor:   executor,
		Guardians:  guardians,
		Recorder:   recorder,
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(ctx); err != nil {
		logger.Fatal("启动编排器失败", zap.Error(err))
	}

	server := api.NewServer(orch, api.Options{
		TriggerRate:  cfg.TriggerRate,
		TriggerBurst: cfg.TriggerBurst,
		Registry:     promRegistry,
	}, logger)

	if err := server.Run(ctx, cfg.ListenAddr); err != nil {
		logger.Fatal("HTTP服务异常退出", zap.Error(err))
	}
	logger.Info("编排器已退出")
}

// registerSSHRunner 配置了SSH密钥时启用远程命令动作
func registerSSHRunner(executor *recovery.Executor, cfg *config.Config, logger *zap.Logger) {
	if cfg.SSH.PrivateKeyPath == "" {
		return
	}

	keyPEM, err := os.ReadFile(cfg.SSH.PrivateKeyPath)
	if err != nil {
		logger.Warn("读取SSH私钥失败，远程命令动作不可用", zap.Error(err))
		return
	}
	runner, err := recovery.NewSSHRunner(cfg.SSH.User, keyPEM, logger)
	if err != nil {
		logger.Warn("初始化SSH执行器失败，远程命令动作不可用", zap.Error(err))
		return
	}
	executor.RegisterRunner(models.ActionRemoteCommand, runner)
}
