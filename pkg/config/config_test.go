package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orchestrator.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}

// TestLoad 测试配置加载
func TestLoad(t *testing.T) {
	t.Run("完整配置", func(t *testing.T) {
		path := writeConfig(t, `{
			"listen_addr": ":9000",
			"sample_interval_seconds": 3,
			"components": [
				{"id": "core", "weight": 0.9},
				{"id": "store", "weight": 0.7, "depends_on": ["core"]}
			]
		}`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("加载失败: %v", err)
		}
		if cfg.ListenAddr != ":9000" {
			t.Errorf("监听地址应为:9000，实际 %s", cfg.ListenAddr)
		}
		deps := cfg.Dependencies()
		if len(deps["store"]) != 1 || deps["store"][0] != "core" {
			t.Errorf("依赖表错误: %v", deps)
		}
	})

	t.Run("缺省值回填", func(t *testing.T) {
		path := writeConfig(t, `{"components": [{"id": "core", "weight": 0.9}]}`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("加载失败: %v", err)
		}
		if cfg.ListenAddr == "" || cfg.SampleIntervalSeconds <= 0 ||
			cfg.MaxActiveScenarios <= 0 || cfg.PhaseMaxRetries <= 0 {
			t.Errorf("缺省值未回填: %+v", cfg)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("默认日志级别应为info，实际 %s", cfg.LogLevel)
		}
	})

	t.Run("无组件拒绝", func(t *testing.T) {
		path := writeConfig(t, `{"components": []}`)
		if _, err := Load(path); err == nil {
			t.Error("无组件配置应校验失败")
		}
	})

	t.Run("权重越界拒绝", func(t *testing.T) {
		path := writeConfig(t, `{"components": [{"id": "core", "weight": 1.5}]}`)
		if _, err := Load(path); err == nil {
			t.Error("权重越界应校验失败")
		}
	})

	t.Run("组件ID重复拒绝", func(t *testing.T) {
		path := writeConfig(t, `{"components": [
			{"id": "core", "weight": 0.5},
			{"id": "core", "weight": 0.6}
		]}`)
		if _, err := Load(path); err == nil {
			t.Error("组件ID重复应校验失败")
		}
	})

	t.Run("依赖未声明组件拒绝", func(t *testing.T) {
		path := writeConfig(t, `{"components": [
			{"id": "store", "weight": 0.5, "depends_on": ["ghost"]}
		]}`)
		if _, err := Load(path); err == nil {
			t.Error("依赖未声明组件应校验失败")
		}
	})

	t.Run("非法JSON拒绝", func(t *testing.T) {
		path := writeConfig(t, `{not json`)
		if _, err := Load(path); err == nil {
			t.Error("非法JSON应加载失败")
		}
	})

	t.Run("文件不存在", func(t *testing.T) {
		if _, err := Load("/nonexistent/orchestrator.json"); err == nil {
			t.Error("不存在的文件应加载失败")
		}
	})
}
