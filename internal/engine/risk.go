package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"strategylab/internal/domain"
)

// ErrRiskLimit is returned when an order would exceed the position limit.
var ErrRiskLimit = errors.New("risk limit exceeded")

// RiskManager sizes entries and enforces the per-position exposure limit.
type RiskManager struct {
	maxPositionPct float64
}

// NewRiskManager creates a RiskManager allowing at most maxPositionPct of
// equity in a single position (e.g. 1.0 to commit all available equity).
// Values outside (0, 1] fall back to 1.
func NewRiskManager(maxPositionPct float64) *RiskManager {
	if maxPositionPct <= 0 || maxPositionPct > 1 {
		maxPositionPct = 1
	}
	return &RiskManager{maxPositionPct: maxPositionPct}
}

// MaxPositionPct returns the configured exposure limit.
func (rm *RiskManager) MaxPositionPct() float64 {
	return rm.maxPositionPct
}

// Size returns the whole number of shares affordable at price with the
// allowed fraction of equity. The remainder stays in cash.
func (rm *RiskManager) Size(equity, price float64) int64 {
	if equity <= 0 || price <= 0 {
		return 0
	}
	budget := decimal.NewFromFloat(equity).Mul(decimal.NewFromFloat(rm.maxPositionPct))
	return budget.Div(decimal.NewFromFloat(price)).Floor().IntPart()
}

// CheckOrder verifies that the order's notional value does not exceed
// maxPositionPct of account equity.
func (rm *RiskManager) CheckOrder(_ context.Context, order *domain.Order, account *domain.AccountInfo) error {
	notional := decimal.NewFromFloat(order.Price).Mul(decimal.NewFromInt(order.Qty))
	limit := decimal.NewFromFloat(account.Equity).Mul(decimal.NewFromFloat(rm.maxPositionPct))
	if notional.GreaterThan(limit) {
		return fmt.Errorf("%w: %s %d %s notional %s exceeds %s",
			ErrRiskLimit, order.Side, order.Qty, order.Symbol, notional.StringFixed(2), limit.StringFixed(2))
	}
	return nil
}
