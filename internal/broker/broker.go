// Package broker defines the Broker interface used by the execution
// simulator and provides an in-memory paper implementation.
package broker

import (
	"context"
	"errors"

	"strategylab/internal/domain"
)

// ErrInvalidOrder is returned for orders with a non-positive quantity or
// reference price.
var ErrInvalidOrder = errors.New("invalid order")

// Broker abstracts order execution and account state.
type Broker interface {
	// Name returns the broker identifier (e.g. "paper").
	Name() string

	// SubmitOrder executes an order and returns it with fill details.
	SubmitOrder(ctx context.Context, order *domain.Order) (*domain.Order, error)

	// Mark records the latest price of symbol for valuation.
	Mark(symbol string, price float64)

	// GetPosition returns the current position in symbol; flat if none.
	GetPosition(ctx context.Context, symbol string) (domain.Position, error)

	// GetAccount returns a snapshot of the account's financial metrics.
	GetAccount(ctx context.Context) (*domain.AccountInfo, error)
}
