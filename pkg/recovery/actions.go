package recovery

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"degradation-orchestrator/pkg/component"
	"degradation-orchestrator/pkg/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// =================================================================================
// 组件动作执行器：重启 / 策略回滚 / 健康探测
// =================================================================================

// Restarter 可进程内重启的组件（模拟组件实现）
type Restarter interface {
	Restart()
}

// HTTPRestartable 可经HTTP重启的组件（远程组件实现）
type HTTPRestartable interface {
	BaseURL() string
}

// ComponentRunner 面向被监测组件的动作执行器
type ComponentRunner struct {
	registry *component.Registry
	client   *http.Client
	logger   *zap.Logger

	// 探测认定组件存活的健康度下限
	probeThreshold float64
}

// NewComponentRunner 创建组件动作执行器
func NewComponentRunner(registry *component.Registry, logger *zap.Logger) *ComponentRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ComponentRunner{
		registry:       registry,
		client:         &http.Client{Timeout: 10 * time.Second},
		logger:         logger,
		probeThreshold: 0.1,
	}
}

func (r *ComponentRunner) Name() string {
	return "component-runner"
}

func (r *ComponentRunner) Run(ctx context.Context, action models.RecoveryAction) error {
	comp, ok := r.registry.Get(action.ComponentID)
	if !ok {
		return fmt.Errorf("组件 %s 未注册", action.ComponentID)
	}

	switch action.Kind {
	case models.ActionRestartComponent:
		return r.restart(ctx, comp)
	case models.ActionRollbackStrategy:
		result, err := comp.Rollback(ctx, action.StrategyID)
		if err != nil {
			return fmt.Errorf("回滚策略 %s 失败: %w", action.StrategyID, err)
		}
		if !result.RolledBack {
			return fmt.Errorf("组件 %s 拒绝回滚策略 %s", action.ComponentID, action.StrategyID)
		}
		return nil
	case models.ActionProbeHealth:
		h, err := comp.ReportHealth(ctx)
		if err != nil {
			return fmt.Errorf("探测组件 %s 失败: %w", action.ComponentID, err)
		}
		if h.OperationalHealth < r.probeThreshold {
			return fmt.Errorf("组件 %s 探测健康度 %.2f 过低", action.ComponentID, h.OperationalHealth)
		}
		return nil
	default:
		return fmt.Errorf("组件执行器不支持动作 %s", action.Kind)
	}
}

func (r *ComponentRunner) restart(ctx context.Context, comp component.Component) error {
	switch c := comp.(type) {
	case Restarter:
		c.Restart()
		return nil
	case HTTPRestartable:
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL()+"/api/v1/restart", nil)
		if err != nil {
			return fmt.Errorf("构建重启请求失败: %w", err)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return fmt.Errorf("重启组件 %s 失败: %w", comp.ID(), err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("组件 %s 重启返回 %d", comp.ID(), resp.StatusCode)
		}
		return nil
	default:
		return fmt.Errorf("组件 %s 不支持重启", comp.ID())
	}
}

// =================================================================================
// SSH命令执行器：对基础设施类组件执行带外恢复命令
// =================================================================================

// SSHRunner 经SSH执行恢复命令
// 动作参数: host(必填, host:port), command(必填)
type SSHRunner struct {
	user   string
	signer ssh.Signer
	logger *zap.Logger
}

// NewSSHRunner 创建SSH执行器
// keyPEM: PEM编码的私钥
func NewSSHRunner(user string, keyPEM []byte, logger *zap.Logger) (*SSHRunner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	signer, err := ssh.ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("解析SSH私钥失败: %w", err)
	}
	return &SSHRunner{
		user:   user,
		signer: signer,
		logger: logger,
	}, nil
}

func (r *SSHRunner) Name() string {
	return "ssh-runner"
}

func (r *SSHRunner) Run(ctx context.Context, action models.RecoveryAction) error {
	if action.Kind != models.ActionRemoteCommand {
		return fmt.Errorf("SSH执行器不支持动作 %s", action.Kind)
	}
	host := action.Params["host"]
	command := action.Params["command"]
	if host == "" || command == "" {
		return fmt.Errorf("SSH动作缺少host或command参数")
	}

	config := &ssh.ClientConfig{
		User:            r.user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(r.signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	client, err := ssh.Dial("tcp", host, config)
	if err != nil {
		return fmt.Errorf("SSH连接 %s 失败: %w", host, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("创建SSH会话失败: %w", err)
	}
	defer session.Close()

	// ssh会话不感知ctx，由goroutine+select实现取消
	type outcome struct{ err error }
	ch := make(chan outcome, 1)
	go func() {
		ch <- outcome{err: session.Run(command)}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return fmt.Errorf("SSH命令执行失败: %w", out.err)
		}
		r.logger.Info("SSH恢复命令已执行",
			zap.String("host", host),
			zap.String("component", action.ComponentID),
		)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
