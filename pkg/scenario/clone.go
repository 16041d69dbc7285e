package scenario

import (
	"encoding/json"

	"degradation-orchestrator/pkg/models"
)

// cloneScenario 深拷贝场景记录
// 管理器对外只交出副本，保证场景所有权留在管理器内部
func cloneScenario(s *models.DegradationScenario) *models.DegradationScenario {
	if s == nil {
		return nil
	}
	// 场景记录全部由可JSON化的字段构成，直接经序列化往返拷贝
	raw, err := json.Marshal(s)
	if err != nil {
		// 不可达：模型字段均可序列化
		copied := *s
		return &copied
	}
	var copied models.DegradationScenario
	if err := json.Unmarshal(raw, &copied); err != nil {
		fallback := *s
		return &fallback
	}
	return &copied
}

// decodeScenario 从持久化字节反序列化场景
func decodeScenario(raw []byte) (*models.DegradationScenario, error) {
	var s models.DegradationScenario
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
