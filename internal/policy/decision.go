package policy

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Decision 为大模型返回的下单比例。
type Decision struct {
	Scale     float64 `json:"scale"`
	Reasoning string  `json:"reasoning"`
}

// Validate 校验决策字段合法性。
func (d Decision) Validate() error {
	if d.Scale < 0 || d.Scale > 1 {
		return fmt.Errorf("scale 必须位于 [0,1]，当前为 %f", d.Scale)
	}
	return nil
}

func parseDecision(content string) (Decision, error) {
	payload, err := extractJSON(content)
	if err != nil {
		return Decision{}, err
	}

	var decision Decision
	if err = json.Unmarshal(payload, &decision); err != nil {
		return Decision{}, fmt.Errorf("解析决策JSON失败: %w", err)
	}
	return decision, nil
}

func extractJSON(content string) ([]byte, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("模型输出未找到有效JSON: %s", content)
	}

	return []byte(content[start : end+1]), nil
}
