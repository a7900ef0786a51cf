package env

import (
	"github.com/shopspring/decimal"

	"optimal-execution/internal/ledger"
	"optimal-execution/internal/orderbook"
	"optimal-execution/internal/schedule"
)

// Ledger 返回成交账本，调用方不应修改。
func (s *Simulator) Ledger() *ledger.Ledger {
	return s.ledger
}

// Schedule 返回当前回合的基准执行计划。
func (s *Simulator) Schedule() *schedule.Schedule {
	return s.sched
}

// MaxSteps 返回本回合步数。
func (s *Simulator) MaxSteps() int {
	return s.maxSteps
}

// Done 判断回合是否已结束。
func (s *Simulator) Done() bool {
	return s.state == stateDone
}

// EpisodeReward 返回本回合累计奖励。
func (s *Simulator) EpisodeReward() float64 {
	return s.reward
}

// AltRemaining 返回替代路径剩余数量。
func (s *Simulator) AltRemaining() decimal.Decimal {
	return s.altRemaining
}

// History 返回某条路径的订单簿历史副本，切片元素与内部共享。
func (s *Simulator) History(path ledger.PathID) []*orderbook.Book {
	return append([]*orderbook.Book(nil), s.histories[path]...)
}

// RemainingHistory 返回某条路径每步之后的剩余数量，首项为目标总量。
func (s *Simulator) RemainingHistory(path ledger.PathID) []decimal.Decimal {
	return append([]decimal.Decimal(nil), s.remaining[path]...)
}

// MidHistory 返回基准路径每步下单前的中间价。
func (s *Simulator) MidHistory() []decimal.Decimal {
	return append([]decimal.Decimal(nil), s.mids...)
}
