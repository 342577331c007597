package builtins

import (
	"strategylab/internal/domain"
	"strategylab/internal/strategy"
)

// NewRegistry returns a registry preloaded with every built-in strategy.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}

// Register adds the built-in strategies to r.
func Register(r *strategy.Registry) {
	r.Register(SMACrossID, func(p domain.Params) (strategy.Strategy, error) {
		s, err := NewSMACross(p.ShortPeriod, p.LongPeriod)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	r.Register(EMACrossID, func(p domain.Params) (strategy.Strategy, error) {
		s, err := NewEMACross(p.ShortPeriod, p.LongPeriod)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}
