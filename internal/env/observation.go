package env

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"optimal-execution/internal/orderbook"
)

// observationSpace 构建观测空间：每份快照 4*depth 维，加上剩余数量与剩余步数。
func observationSpace(cfg Config) Space {
	n := 4*cfg.LOBDepth*cfg.History + 2
	low := make([]float64, n)
	high := make([]float64, n)
	for i := 0; i < n-2; i++ {
		high[i] = math.Inf(1)
	}
	if cfg.Normalize {
		high[n-2] = 1
		high[n-1] = 1
	} else {
		high[n-2] = cfg.Quantity.InexactFloat64()
		high[n-1] = float64(cfg.MaxSteps)
	}
	return Space{Low: low, High: high}
}

// buildObservation 取替代路径最近 History 份快照；历史不足时在前面补零。
// 维度与观测空间不一致属于编程错误，直接 panic。
func (s *Simulator) buildObservation() Observation {
	hist := s.histories[altPath]
	latest := hist[len(hist)-1]

	obs := make(Observation, 0, s.space.Dim())
	var mid, bidVol, askVol decimal.Decimal
	if s.cfg.Normalize {
		mid, _ = latest.Mid()
		bidVol = latest.Volume(orderbook.Bid)
		askVol = latest.Volume(orderbook.Ask)
	}

	missing := s.cfg.History - len(hist)
	if missing > 0 {
		obs = append(obs, make([]float64, 4*s.cfg.LOBDepth*missing)...)
	} else {
		hist = hist[len(hist)-s.cfg.History:]
	}
	for _, book := range hist {
		obs = appendBook(obs, book, s.cfg.LOBDepth, mid, bidVol, askVol)
	}

	remaining := s.altRemaining.InexactFloat64()
	steps := float64(s.maxSteps - s.t - 1)
	if s.cfg.Normalize {
		remaining = s.altRemaining.Div(s.cfg.Quantity).InexactFloat64()
		steps /= float64(s.maxSteps)
	}
	obs = append(obs, remaining, steps)

	if len(obs) != s.space.Dim() {
		panic(fmt.Sprintf("env: 观测维度 %d 与观测空间 %d 不一致", len(obs), s.space.Dim()))
	}
	return obs
}

// appendBook 依次写入买价、卖价、买量、卖量，每组 depth 个，不足补零。
func appendBook(obs Observation, book *orderbook.Book, depth int, mid, bidVol, askVol decimal.Decimal) Observation {
	bids := book.Levels(orderbook.Bid, depth)
	asks := book.Levels(orderbook.Ask, depth)

	price := func(levels []orderbook.Level) {
		for i := 0; i < depth; i++ {
			if i >= len(levels) {
				obs = append(obs, 0)
				continue
			}
			obs = append(obs, ratio(levels[i].Price, mid))
		}
	}
	volume := func(levels []orderbook.Level, total decimal.Decimal) {
		for i := 0; i < depth; i++ {
			if i >= len(levels) {
				obs = append(obs, 0)
				continue
			}
			obs = append(obs, ratio(levels[i].Volume, total))
		}
	}

	price(bids)
	price(asks)
	volume(bids, bidVol)
	volume(asks, askVol)
	return obs
}

// ratio 在分母为 0 时返回原值。
func ratio(v, base decimal.Decimal) float64 {
	if base.IsZero() {
		return v.InexactFloat64()
	}
	return v.Div(base).InexactFloat64()
}
