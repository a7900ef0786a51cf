package execution

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"optimal-execution/internal/orderbook"
)

// ErrInvalidOrder 订单参数不合法。
var ErrInvalidOrder = errors.New("execution: 订单参数不合法")

// OrderKind 表示委托类型。
type OrderKind string

const (
	OrderKindMarket OrderKind = "market"
	OrderKindLimit  OrderKind = "limit"
)

// OrderSide 表示下单方向。
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// ParseSide 解析 buy/sell（大小写不敏感）。
func ParseSide(raw string) (OrderSide, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy":
		return OrderSideBuy, nil
	case "sell":
		return OrderSideSell, nil
	default:
		return "", fmt.Errorf("%w: 未知方向 %q", ErrInvalidOrder, raw)
	}
}

// Direction 买入返回 +1，卖出返回 -1。
func (s OrderSide) Direction() int {
	if s == OrderSideSell {
		return -1
	}
	return 1
}

// BookSide 返回吃单在订单簿上的方向。
func (s OrderSide) BookSide() orderbook.Side {
	if s == OrderSideSell {
		return orderbook.Ask
	}
	return orderbook.Bid
}

func (s OrderSide) valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// Order 为一笔子订单，构建后不可修改。
type Order struct {
	ID        string
	Kind      OrderKind
	Side      OrderSide
	Quantity  decimal.Decimal
	Price     decimal.Decimal // 仅限价单使用
	Timestamp time.Time
}

// NewMarketOrder 创建市价单。
func NewMarketOrder(side OrderSide, quantity decimal.Decimal, ts time.Time) (Order, error) {
	return NewOrder(OrderKindMarket, side, quantity, decimal.Zero, ts)
}

// NewOrder 校验参数并分配订单 ID。数量允许为 0。
func NewOrder(kind OrderKind, side OrderSide, quantity, price decimal.Decimal, ts time.Time) (Order, error) {
	if !side.valid() {
		return Order{}, fmt.Errorf("%w: 未知方向 %q", ErrInvalidOrder, side)
	}
	if quantity.IsNegative() {
		return Order{}, fmt.Errorf("%w: 数量不能为负 %s", ErrInvalidOrder, quantity)
	}
	switch kind {
	case OrderKindMarket:
		price = decimal.Zero
	case OrderKindLimit:
		if !price.IsPositive() {
			return Order{}, fmt.Errorf("%w: 限价单价格必须为正", ErrInvalidOrder)
		}
	default:
		return Order{}, fmt.Errorf("%w: 不支持的订单类型 %q", ErrInvalidOrder, kind)
	}
	return Order{
		ID:        uuid.NewString(),
		Kind:      kind,
		Side:      side,
		Quantity:  quantity,
		Price:     price,
		Timestamp: ts,
	}, nil
}

// Fill 为一次下单的成交结果。
type Fill struct {
	OrderID   string
	Side      OrderSide
	Price     decimal.Decimal // 成交量加权均价，未成交时为 0
	Quantity  decimal.Decimal
	Requested decimal.Decimal
	Mid       decimal.Decimal // 撮合前中间价
	Timestamp time.Time
	Trades    []orderbook.Trade
	Book      Book // 撮合后的订单簿
}

// IsZero 判断是否没有任何成交。
func (f Fill) IsZero() bool {
	return f.Quantity.IsZero()
}
