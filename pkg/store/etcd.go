package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const (
	// etcd key前缀
	PrefixSnapshot = "/degradation-orchestrator/snapshots/"
	PrefixScenario = "/degradation-orchestrator/scenarios/"

	// etcd操作超时
	opTimeout = 5 * time.Second
)

// Store 基于etcd的持久化存储
// endpoints为空时退化为空实现（纯内存模式），所有操作为无操作
type Store struct {
	client *clientv3.Client
	logger *zap.Logger
}

// NewStore 创建持久化存储
// endpoints: etcd集群地址；为空则不持久化
func NewStore(endpoints []string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{logger: logger}
	if len(endpoints) == 0 || endpoints[0] == "" {
		logger.Warn("未配置etcd，运行于纯内存模式，状态不持久化")
		return s, nil
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: opTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("连接etcd失败: %w", err)
	}
	s.client = client
	return s, nil
}

// Enabled 是否启用持久化
func (s *Store) Enabled() bool {
	return s.client != nil
}

// Put 序列化并写入一条记录
func (s *Store) Put(key string, value interface{}) error {
	if s.client == nil {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("序列化失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := s.client.Put(ctx, key, string(data)); err != nil {
		return fmt.Errorf("写入etcd失败: %w", err)
	}
	return nil
}

// GetLatest 按前缀取最新一条记录（按key降序）
func (s *Store) GetLatest(prefix string, out interface{}) (bool, error) {
	if s.client == nil {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	resp, err := s.client.Get(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortDescend),
		clientv3.WithLimit(1))
	if err != nil {
		return false, fmt.Errorf("查询etcd失败: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(resp.Kvs[0].Value, out); err != nil {
		return false, fmt.Errorf("解析记录失败: %w", err)
	}
	return true, nil
}

// ListPrefix 按前缀取所有记录的原始值
func (s *Store) ListPrefix(prefix string) ([][]byte, error) {
	if s.client == nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	resp, err := s.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("查询etcd失败: %w", err)
	}

	values := make([][]byte, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		values = append(values, kv.Value)
	}
	return values, nil
}

// DeleteOlderThan 删除前缀下时间戳早于cutoff的快照key
// key格式约定: {prefix}{unix时间戳}
func (s *Store) DeleteOlderThan(prefix string, cutoff int64) {
	if s.client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*opTimeout)
	defer cancel()

	resp, err := s.client.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		s.logger.Warn("清理过期快照失败", zap.Error(err))
		return
	}

	for _, kv := range resp.Kvs {
		key := string(kv.Key)
		var ts int64
		if _, err := fmt.Sscanf(key[len(prefix):], "%d", &ts); err != nil {
			continue
		}
		if ts < cutoff {
			if _, err := s.client.Delete(ctx, key); err != nil {
				s.logger.Warn("删除过期快照失败", zap.String("key", key), zap.Error(err))
			}
		}
	}
}

// Close 关闭etcd客户端
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
