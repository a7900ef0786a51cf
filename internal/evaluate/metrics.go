package evaluate

import (
	"sort"

	"github.com/markcheno/go-talib"
)

// Summary 记录多回合统计。
type Summary struct {
	Episodes  int
	Undefined int // VWAP 无定义的回合数，不参与 VWAP 统计
	// Outperformance 为替代路径 VWAP 在交易方向上优于基准的回合占比。
	Outperformance float64
	UpsideMedian   float64 // 跑赢回合的 VWAPDiff 中位数
	DownsideMedian float64 // 未跑赢回合的 VWAPDiff 中位数
	VWAPDiffMean   float64
	RewardMean     float64
	RewardStd      float64
	ExecutedMean   float64
}

// Summarize 计算评估统计。
func Summarize(results []EpisodeResult) Summary {
	s := Summary{Episodes: len(results)}
	if len(results) == 0 {
		return s
	}

	rewards := make([]float64, 0, len(results))
	executed := make([]float64, 0, len(results))
	var diffs, up, down []float64
	for _, r := range results {
		rewards = append(rewards, r.Reward)
		executed = append(executed, r.ExecutedRatio)
		if !r.VWAPDefined {
			s.Undefined++
			continue
		}
		diffs = append(diffs, r.VWAPDiff)
		if r.VWAPDiff > 0 {
			up = append(up, r.VWAPDiff)
		} else {
			down = append(down, r.VWAPDiff)
		}
	}

	s.RewardMean, s.RewardStd = meanStd(rewards)
	s.ExecutedMean, _ = meanStd(executed)
	if len(diffs) > 0 {
		s.Outperformance = float64(len(up)) / float64(len(diffs))
		s.VWAPDiffMean, _ = meanStd(diffs)
	}
	s.UpsideMedian = median(up)
	s.DownsideMedian = median(down)
	return s
}

// meanStd 返回均值与总体标准差。
func meanStd(values []float64) (float64, float64) {
	switch n := len(values); n {
	case 0:
		return 0, 0
	case 1:
		return values[0], 0
	default:
		mean := talib.Sma(values, n)
		std := talib.StdDev(values, n, 1)
		return mean[n-1], std[n-1]
	}
}

func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
