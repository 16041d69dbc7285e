package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ComponentConfig 单个受管组件配置
type ComponentConfig struct {
	ID        string   `json:"id"`
	Weight    float64  `json:"weight"`               // 生态权重 (0,1]
	BaseURL   string   `json:"base_url,omitempty"`   // 远程组件HTTP地址；为空则使用内置模拟组件
	DependsOn []string `json:"depends_on,omitempty"` // 恢复顺序依赖的组件ID
}

// SSHConfig 远程命令执行配置
type SSHConfig struct {
	User           string `json:"user"`
	PrivateKeyPath string `json:"private_key_path"`
}

// Config 编排器配置
type Config struct {
	ListenAddr string `json:"listen_addr"` // HTTP监听地址

	// 健康监测
	SampleIntervalSeconds int `json:"sample_interval_seconds"` // 采样周期
	SampleTimeoutSeconds  int `json:"sample_timeout_seconds"`  // 单组件采样超时
	HistoryCap            int `json:"history_cap"`             // 健康历史容量
	PersistEveryTicks     int `json:"persist_every_ticks"`     // 每N轮采样持久化一次快照

	// 场景与恢复
	MaxActiveScenarios int     `json:"max_active_scenarios"` // 活跃场景表容量
	PhaseMaxRetries    int     `json:"phase_max_retries"`    // 阶段重试次数
	RetryInitialMillis int     `json:"retry_initial_millis"` // 重试初始间隔
	TriggerRate        float64 `json:"trigger_rate"`         // 触发端点限速（次/秒）
	TriggerBurst       int     `json:"trigger_burst"`        // 触发端点突发额度

	// 持久化：为空时以纯内存模式运行
	EtcdEndpoints []string `json:"etcd_endpoints,omitempty"`

	SSH SSHConfig `json:"ssh,omitempty"`

	Components []ComponentConfig `json:"components"`

	LogLevel string `json:"log_level"`
}

// Load 从JSON文件加载配置并校验
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8090"
	}
	if c.SampleIntervalSeconds <= 0 {
		c.SampleIntervalSeconds = 10
	}
	if c.SampleTimeoutSeconds <= 0 {
		c.SampleTimeoutSeconds = 2
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = 10000
	}
	if c.PersistEveryTicks <= 0 {
		c.PersistEveryTicks = 12
	}
	if c.MaxActiveScenarios <= 0 {
		c.MaxActiveScenarios = 10
	}
	if c.PhaseMaxRetries <= 0 {
		c.PhaseMaxRetries = 3
	}
	if c.RetryInitialMillis <= 0 {
		c.RetryInitialMillis = 2000
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if len(c.Components) == 0 {
		return fmt.Errorf("至少需要一个受管组件")
	}

	seen := make(map[string]bool)
	for _, comp := range c.Components {
		if comp.ID == "" {
			return fmt.Errorf("组件ID不能为空")
		}
		if seen[comp.ID] {
			return fmt.Errorf("组件ID重复: %s", comp.ID)
		}
		seen[comp.ID] = true

		if comp.Weight <= 0 || comp.Weight > 1 {
			return fmt.Errorf("组件 %s 的权重必须在(0,1]区间", comp.ID)
		}
	}

	// 依赖必须指向已声明的组件
	for _, comp := range c.Components {
		for _, dep := range comp.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("组件 %s 依赖未声明的组件: %s", comp.ID, dep)
			}
		}
	}

	return nil
}

// SampleInterval 采样周期
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.SampleIntervalSeconds) * time.Second
}

// SampleTimeout 单组件采样超时
func (c *Config) SampleTimeout() time.Duration {
	return time.Duration(c.SampleTimeoutSeconds) * time.Second
}

// RetryInitialInterval 阶段重试初始间隔
func (c *Config) RetryInitialInterval() time.Duration {
	return time.Duration(c.RetryInitialMillis) * time.Millisecond
}

// Dependencies 组件依赖表（恢复规划用）
func (c *Config) Dependencies() map[string][]string {
	deps := make(map[string][]string, len(c.Components))
	for _, comp := range c.Components {
		if len(comp.DependsOn) > 0 {
			deps[comp.ID] = comp.DependsOn
		}
	}
	return deps
}
