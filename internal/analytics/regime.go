package analytics

import (
	"errors"
	"fmt"
	"sort"

	"strategylab/internal/domain"
)

// ErrInvalidPeriods is returned when condition periods overlap, are out of
// order or end before they start.
var ErrInvalidPeriods = errors.New("invalid market condition periods")

// ValidatePeriods checks that periods are ordered by start date and do not
// overlap. A period may start at the instant the previous one ends.
func ValidatePeriods(periods []domain.MarketConditionPeriod) error {
	for i, p := range periods {
		if p.EndDate.Before(p.StartDate) {
			return fmt.Errorf("%w: period %d ends before it starts", ErrInvalidPeriods, i)
		}
		if i > 0 && p.StartDate.Before(periods[i-1].EndDate) {
			return fmt.Errorf("%w: period %d starts at %s before period %d ends at %s",
				ErrInvalidPeriods, i, p.StartDate.Format("2006-01-02"), i-1, periods[i-1].EndDate.Format("2006-01-02"))
		}
	}
	return nil
}

// AttributeRegimes measures the equity return inside each period, from the
// first point at or after its start to the last point at or before its end.
// A period without at least two covered points has a return of exactly 0.
func AttributeRegimes(curve []domain.EquityPoint, periods []domain.MarketConditionPeriod) ([]domain.RegimePerformance, error) {
	if err := ValidatePeriods(periods); err != nil {
		return nil, err
	}

	out := make([]domain.RegimePerformance, 0, len(periods))
	for _, p := range periods {
		start := sort.Search(len(curve), func(i int) bool {
			return !curve[i].Timestamp.Before(p.StartDate)
		})
		end := sort.Search(len(curve), func(i int) bool {
			return curve[i].Timestamp.After(p.EndDate)
		}) - 1

		perf := domain.RegimePerformance{Period: p}
		if start < len(curve) && end >= 0 && start < end {
			perf.StartEquity = curve[start].Equity
			perf.EndEquity = curve[end].Equity
			perf.Points = end - start + 1
			if perf.StartEquity != 0 {
				perf.Return = (perf.EndEquity - perf.StartEquity) / perf.StartEquity
			}
		}
		out = append(out, perf)
	}
	return out, nil
}
