package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"strategylab/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*PaperBroker)(nil)

type paperPosition struct {
	qty      int64
	avgPrice decimal.Decimal
	openedAt time.Time
}

// PaperBroker fills market orders immediately at their reference price and
// keeps cash in decimal arithmetic so repeated fills do not accumulate
// rounding drift. A PaperBroker belongs to a single simulation run and is not
// safe for concurrent use.
type PaperBroker struct {
	cash      decimal.Decimal
	positions map[string]*paperPosition
	marks     map[string]decimal.Decimal
	fills     []domain.Order
}

// NewPaperBroker creates a PaperBroker holding initialCash and no positions.
func NewPaperBroker(initialCash float64) *PaperBroker {
	return &PaperBroker{
		cash:      decimal.NewFromFloat(initialCash),
		positions: make(map[string]*paperPosition),
		marks:     make(map[string]decimal.Decimal),
	}
}

// Name returns "paper".
func (b *PaperBroker) Name() string {
	return "paper"
}

// SubmitOrder fills the whole quantity at order.Price. Buys debit cash and
// sells credit it, so a short sale holds its proceeds until bought back.
func (b *PaperBroker) SubmitOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	if order.Qty <= 0 || order.Price <= 0 {
		order.Status = domain.OrderStatusRejected
		return order, fmt.Errorf("%w: qty=%d price=%v", ErrInvalidOrder, order.Qty, order.Price)
	}

	price := decimal.NewFromFloat(order.Price)
	notional := price.Mul(decimal.NewFromInt(order.Qty))

	delta := order.Qty
	switch order.Side {
	case domain.OrderSideBuy:
		b.cash = b.cash.Sub(notional)
	case domain.OrderSideSell:
		b.cash = b.cash.Add(notional)
		delta = -delta
	default:
		order.Status = domain.OrderStatusRejected
		return order, fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, order.Side)
	}

	b.applyFill(order, delta, price)

	if order.ID == "" {
		order.ID = fmt.Sprintf("paper-%d", len(b.fills)+1)
	}
	order.Status = domain.OrderStatusFilled
	order.FilledQty = order.Qty
	order.FilledAvgPrice = order.Price
	order.UpdatedAt = order.CreatedAt
	b.fills = append(b.fills, *order)
	b.marks[order.Symbol] = price
	return order, nil
}

// applyFill moves the signed position of order.Symbol by delta.
func (b *PaperBroker) applyFill(order *domain.Order, delta int64, price decimal.Decimal) {
	pos, ok := b.positions[order.Symbol]
	if !ok {
		pos = &paperPosition{}
		b.positions[order.Symbol] = pos
	}

	next := pos.qty + delta
	switch {
	case next == 0:
		delete(b.positions, order.Symbol)
		return
	case pos.qty == 0 || (pos.qty > 0) != (next > 0):
		// Opened from flat or flipped through zero.
		pos.avgPrice = price
		pos.openedAt = order.CreatedAt
	case (delta > 0) == (pos.qty > 0):
		// Adding to the position: weighted average entry.
		oldQty := decimal.NewFromInt(abs(pos.qty))
		addQty := decimal.NewFromInt(abs(delta))
		pos.avgPrice = pos.avgPrice.Mul(oldQty).Add(price.Mul(addQty)).Div(oldQty.Add(addQty))
	}
	pos.qty = next
}

// Mark records the latest price of symbol.
func (b *PaperBroker) Mark(symbol string, price float64) {
	b.marks[symbol] = decimal.NewFromFloat(price)
}

// GetPosition returns the position in symbol.
func (b *PaperBroker) GetPosition(_ context.Context, symbol string) (domain.Position, error) {
	pos, ok := b.positions[symbol]
	if !ok {
		return domain.Position{Symbol: symbol, Side: domain.PositionSideFlat}, nil
	}
	return domain.Position{
		Symbol:        symbol,
		Qty:           pos.qty,
		Side:          domain.SideOf(pos.qty),
		AvgEntryPrice: pos.avgPrice.InexactFloat64(),
		OpenedAt:      pos.openedAt,
	}, nil
}

// GetAccount values every position at its latest mark.
func (b *PaperBroker) GetAccount(_ context.Context) (*domain.AccountInfo, error) {
	equity := b.cash
	for symbol, pos := range b.positions {
		mark, ok := b.marks[symbol]
		if !ok {
			mark = pos.avgPrice
		}
		equity = equity.Add(mark.Mul(decimal.NewFromInt(pos.qty)))
	}
	eq := equity.InexactFloat64()
	return &domain.AccountInfo{
		Equity:      eq,
		Cash:        b.cash.InexactFloat64(),
		BuyingPower: eq,
	}, nil
}

// Fills returns the executed orders in submission order.
func (b *PaperBroker) Fills() []domain.Order {
	out := make([]domain.Order, len(b.fills))
	copy(out, b.fills)
	return out
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
