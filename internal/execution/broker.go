package execution

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"optimal-execution/internal/orderbook"
)

// Book 为撮合适配器依赖的订单簿能力。
type Book interface {
	BestBid() (decimal.Decimal, bool)
	BestAsk() (decimal.Decimal, bool)
	Levels(side orderbook.Side, depth int) []orderbook.Level
	Match(taker orderbook.Side, quantity decimal.Decimal, ts time.Time) ([]orderbook.Trade, decimal.Decimal)
	MatchLimit(taker orderbook.Side, quantity, limit decimal.Decimal, ts time.Time) ([]orderbook.Trade, decimal.Decimal)
}

var _ Book = (*orderbook.Book)(nil)

// Broker 将子订单提交到订单簿快照并计算成交均价。
type Broker struct {
	logger *zap.Logger
}

// NewBroker 创建撮合适配器。
func NewBroker(logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{logger: logger}
}

// Place 在 book 上执行 order，book 会被原地修改。
// 数量为 0 或对手盘为空时返回价格为 0 的空成交。
func (b *Broker) Place(book Book, order Order) Fill {
	fill := Fill{
		OrderID:   order.ID,
		Side:      order.Side,
		Price:     decimal.Zero,
		Quantity:  decimal.Zero,
		Requested: order.Quantity,
		Mid:       midPrice(book),
		Timestamp: order.Timestamp,
		Book:      book,
	}

	if !order.Quantity.IsPositive() {
		return fill
	}

	var trades []orderbook.Trade
	var rest decimal.Decimal
	switch order.Kind {
	case OrderKindLimit:
		trades, rest = book.MatchLimit(order.Side.BookSide(), order.Quantity, order.Price, order.Timestamp)
	default:
		trades, rest = book.Match(order.Side.BookSide(), order.Quantity, order.Timestamp)
	}

	if len(trades) == 0 {
		b.logger.Debug("对手盘无流动性，未成交",
			zap.String("order_id", order.ID),
			zap.String("side", string(order.Side)),
			zap.String("quantity", order.Quantity.String()),
		)
		return fill
	}

	fill.Trades = trades
	fill.Price, fill.Quantity = VolumeWeightedPrice(trades)
	if rest.IsPositive() {
		b.logger.Debug("部分成交",
			zap.String("order_id", order.ID),
			zap.String("filled", fill.Quantity.String()),
			zap.String("unfilled", rest.String()),
		)
	}
	return fill
}

// VolumeWeightedPrice 返回成交量加权均价与总成交量，无成交时均为 0。
func VolumeWeightedPrice(trades []orderbook.Trade) (decimal.Decimal, decimal.Decimal) {
	notional := decimal.Zero
	volume := decimal.Zero
	for _, tr := range trades {
		notional = notional.Add(tr.Price.Mul(tr.Quantity))
		volume = volume.Add(tr.Quantity)
	}
	if volume.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	return notional.Div(volume), volume
}

func midPrice(book Book) decimal.Decimal {
	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	switch {
	case okBid && okAsk:
		return bid.Add(ask).Div(decimal.NewFromInt(2))
	case okBid:
		return bid
	case okAsk:
		return ask
	default:
		return decimal.Zero
	}
}
