package env

import (
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"optimal-execution/internal/ledger"
)

// liquidityPenalty 在替代路径成交后的订单簿上，取交易方向对手侧前 PenaltyDepth 档的挂单量；
// 请求量超过该量时返回差额的平方。
func (s *Simulator) liquidityPenalty(requested decimal.Decimal) float64 {
	side := s.cfg.Side.BookSide().Opposite()
	available := decimal.Zero
	for _, lvl := range s.latest(altPath).Levels(side, s.cfg.PenaltyDepth) {
		available = available.Add(lvl.Volume)
	}
	if !requested.GreaterThan(available) {
		return 0
	}
	gap := available.Sub(requested)
	return gap.Mul(gap).InexactFloat64()
}

// terminalBonus 计算回合末奖励：替代路径 VWAP 在交易方向上优于基准时 +1，
// 仍有未成交库存时 -2。任一路径 VWAP 无定义时不给 +1。
func (s *Simulator) terminalBonus() (float64, map[ledger.PathID]decimal.Decimal) {
	bonus := 0.0
	vwaps, err := s.ledger.VWAP()
	bmk, okBmk := vwaps[bmkPath]
	alt, okAlt := vwaps[altPath]
	switch {
	case okBmk && okAlt:
		diff := alt.Sub(bmk).Mul(decimal.NewFromInt(int64(s.cfg.Side.Direction())))
		if diff.IsNegative() {
			bonus += 1
		}
	default:
		fields := []zap.Field{zap.Error(err)}
		if errors.Is(err, ledger.ErrNoExecutedVolume) {
			fields = append(fields, zap.Bool("no_volume", true))
		}
		s.logger.Warn("VWAP 无定义，跳过价格奖励", fields...)
	}
	if s.altRemaining.IsPositive() {
		bonus -= 2
	}
	return bonus, vwaps
}
