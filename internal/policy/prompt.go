package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"optimal-execution/internal/env"
)

const decisionTemplate = `
你是一名负责大额订单拆分执行的交易员。基准算法按 TWAP 在每个时间分桶下单，你需要决定当前这一步相对基准的下单比例。

下单量 = scale * 2 * 基准子订单量，因此 scale=0.5 与基准完全一致，scale=0 表示本步不下单，scale=1 表示下两倍基准量。

最近的订单簿观测（价格已除以最新中间价，挂单量已除以同侧总量，按 买价/卖价/买量/卖量 排列）：
{{ .BookJSON }}

剩余待执行比例: {{ printf "%.4f" .RemainingQty }}
剩余步数比例: {{ printf "%.4f" .RemainingSteps }}

约束：
1. 回合结束仍有未成交库存会被重罚；
2. 单步下单量超过对手盘前几档挂单量会按差额平方受罚；
3. 最终成交均价优于基准时获得奖励。

请严格输出唯一的 JSON 对象，格式如下：
{
  "scale": 0.0-1.0,
  "reasoning": "..."
}
`

var tmpl = template.Must(template.New("decision").Parse(decisionTemplate))

// PromptContext 用于渲染提示词。
type PromptContext struct {
	BookJSON       string
	RemainingQty   float64
	RemainingSteps float64
}

// BuildPrompt 将观测渲染成提示词。观测末两维为剩余数量与剩余步数。
func BuildPrompt(obs env.Observation) (string, error) {
	if len(obs) < 2 {
		return "", fmt.Errorf("观测维度不足: %d", len(obs))
	}
	n := len(obs) - 2

	book, err := json.Marshal([]float64(obs[:n]))
	if err != nil {
		return "", fmt.Errorf("序列化观测失败: %w", err)
	}

	ctx := PromptContext{
		BookJSON:       string(book),
		RemainingQty:   obs[n],
		RemainingSteps: obs[n+1],
	}

	var buf bytes.Buffer
	if err = tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("渲染提示词失败: %w", err)
	}
	return buf.String(), nil
}
