package execution

// Trader 抽象撮合适配器，方便切换模拟或其他撮合实现。
type Trader interface {
	Place(book Book, order Order) Fill
}

var _ Trader = (*Broker)(nil)
