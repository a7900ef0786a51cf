package monitor

import (
	"time"

	"optimal-execution/internal/evaluate"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventEpisode    EventType = "episode"
	EventEvaluation EventType = "evaluation"
	EventCapture    EventType = "capture"
	EventError      EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// EpisodePayload 记录单个回合的结果。
type EpisodePayload struct {
	ID              string  `json:"id"`
	Index           int     `json:"index"`
	Policy          string  `json:"policy"`
	Steps           int     `json:"steps"`
	Reward          float64 `json:"reward"`
	VWAPDefined     bool    `json:"vwap_defined"`
	BenchmarkVWAP   string  `json:"benchmark_vwap,omitempty"`
	AlternativeVWAP string  `json:"alternative_vwap,omitempty"`
	VWAPDiff        float64 `json:"vwap_diff"`
	AltRemaining    string  `json:"alt_remaining"`
	ExecutedRatio   float64 `json:"executed_ratio"`
}

// EvaluationPayload 记录一次评估的汇总。
type EvaluationPayload struct {
	Policy  string           `json:"policy"`
	Summary evaluate.Summary `json:"summary"`
}

// CapturePayload 记录一次订单簿采集。
type CapturePayload struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	BidLevels int       `json:"bid_levels"`
	AskLevels int       `json:"ask_levels"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func episodePayload(res evaluate.EpisodeResult) EpisodePayload {
	p := EpisodePayload{
		ID:            res.ID,
		Index:         res.Index,
		Policy:        res.Policy,
		Steps:         res.Steps,
		Reward:        res.Reward,
		VWAPDefined:   res.VWAPDefined,
		VWAPDiff:      res.VWAPDiff,
		AltRemaining:  res.AltRemaining.String(),
		ExecutedRatio: res.ExecutedRatio,
	}
	if res.VWAPDefined {
		p.BenchmarkVWAP = res.BenchmarkVWAP.String()
		p.AlternativeVWAP = res.AlternativeVWAP.String()
	}
	return p
}
