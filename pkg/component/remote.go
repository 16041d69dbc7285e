package component

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"degradation-orchestrator/pkg/models"
)

// RemoteComponent 通过HTTP访问的远程组件
// 约定接口：
//
//	GET  {base}/api/v1/health    -> {status, message, data: ComponentHealth}
//	POST {base}/api/v1/strategy  -> {status, message, data: ApplyResult}
//	POST {base}/api/v1/rollback  -> {status, message, data: RollbackResult}
type RemoteComponent struct {
	id      string
	weight  float64
	baseURL string
	client  *http.Client
}

// NewRemoteComponent 创建远程组件客户端
func NewRemoteComponent(id, baseURL string, weight float64) *RemoteComponent {
	return &RemoteComponent{
		id:      id,
		weight:  weight,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *RemoteComponent) ID() string {
	return c.id
}

// BaseURL 组件HTTP接口的基础地址（恢复动作重启组件时使用）
func (c *RemoteComponent) BaseURL() string {
	return c.baseURL
}

// envelope 远程组件的统一响应结构
type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *RemoteComponent) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("构建请求失败: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("组件 %s 返回 %d: %s", c.id, resp.StatusCode, string(raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("解析响应数据失败: %w", err)
		}
	}
	return nil
}

func (c *RemoteComponent) ReportHealth(ctx context.Context) (models.ComponentHealth, error) {
	var health models.ComponentHealth
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/health", nil, &health); err != nil {
		return models.ComponentHealth{}, err
	}
	// 权重由编排器侧配置，不信任远端上报
	health.ComponentID = c.id
	health.ContributionWeight = c.weight
	if health.LastCheck.IsZero() {
		health.LastCheck = time.Now()
	}
	return health, nil
}

func (c *RemoteComponent) ApplyStrategy(ctx context.Context, strategy models.Strategy) (models.ApplyResult, error) {
	var result models.ApplyResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/strategy", strategy, &result); err != nil {
		return models.ApplyResult{}, err
	}
	return result, nil
}

func (c *RemoteComponent) Rollback(ctx context.Context, strategyID string) (models.RollbackResult, error) {
	var result models.RollbackResult
	body := map[string]string{"strategy_id": strategyID}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/rollback", body, &result); err != nil {
		return models.RollbackResult{}, err
	}
	return result, nil
}
