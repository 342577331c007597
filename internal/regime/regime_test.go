package regime

import (
	"context"
	"errors"
	"testing"
	"time"

	"strategylab/internal/analytics"
	"strategylab/internal/domain"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// compound builds closes from a start price and per-bar growth factors.
func compound(start float64, factors ...float64) []float64 {
	out := []float64{start}
	for _, f := range factors {
		out = append(out, out[len(out)-1]*f)
	}
	return out
}

func repeat(f float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = f
	}
	return out
}

func alternate(up, down float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = up
		} else {
			out[i] = down
		}
	}
	return out
}

func barsOf(closes []float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Symbol: "TEST", Timestamp: day0.AddDate(0, 0, i), Close: c}
	}
	return bars
}

func TestClassifyBlocks(t *testing.T) {
	cfg := DefaultConfig()
	cases := []struct {
		name   string
		closes []float64
		want   domain.MarketCondition
	}{
		{"bull", compound(100, repeat(1.01, 19)...), domain.ConditionBull},
		{"bear", compound(100, repeat(0.99, 19)...), domain.ConditionBear},
		{"flat", compound(100, repeat(1.0, 19)...), domain.ConditionLowVolatility},
		{"volatile", compound(100, alternate(1.03, 0.97, 19)...), domain.ConditionVolatile},
		{"sideways", compound(100, alternate(1.012, 0.988, 19)...), domain.ConditionSideways},
	}
	for _, c := range cases {
		periods := Classify(barsOf(c.closes), cfg)
		if len(periods) != 1 {
			t.Errorf("%s: got %d periods, want 1", c.name, len(periods))
			continue
		}
		p := periods[0]
		if p.Condition != c.want {
			t.Errorf("%s: condition = %q, want %q", c.name, p.Condition, c.want)
		}
		if p.Confidence < 0 || p.Confidence > 1 {
			t.Errorf("%s: confidence = %v, want within [0, 1]", c.name, p.Confidence)
		}
	}
}

func TestClassifyMergesAndOrders(t *testing.T) {
	up := compound(100, repeat(1.01, 39)...)
	down := compound(up[len(up)-1], repeat(0.99, 20)...)[1:]
	bars := barsOf(append(up, down...))

	periods := Classify(bars, DefaultConfig())
	if len(periods) != 2 {
		t.Fatalf("got %d periods, want bull then bear: %+v", len(periods), periods)
	}
	if periods[0].Condition != domain.ConditionBull || periods[1].Condition != domain.ConditionBear {
		t.Errorf("conditions = %q, %q; want bull, bear", periods[0].Condition, periods[1].Condition)
	}
	if !periods[0].StartDate.Equal(bars[0].Timestamp) || !periods[0].EndDate.Equal(bars[39].Timestamp) {
		t.Errorf("merged bull period spans %s..%s, want bars 0..39", periods[0].StartDate, periods[0].EndDate)
	}
	if err := analytics.ValidatePeriods(periods); err != nil {
		t.Errorf("ValidatePeriods: %v", err)
	}
}

func TestClassifyFoldsShortRemainder(t *testing.T) {
	bars := barsOf(compound(100, repeat(1.01, 20)...)) // 21 bars
	periods := Classify(bars, DefaultConfig())
	if len(periods) != 1 {
		t.Fatalf("got %d periods, want 1", len(periods))
	}
	if !periods[0].EndDate.Equal(bars[20].Timestamp) {
		t.Errorf("EndDate = %s, want last bar %s", periods[0].EndDate, bars[20].Timestamp)
	}
}

func TestClassifyTooShort(t *testing.T) {
	if got := Classify(barsOf([]float64{100}), DefaultConfig()); got != nil {
		t.Errorf("Classify(1 bar) = %v, want nil", got)
	}
}

type stubBars struct {
	series *domain.BarSeries
	err    error
	tf     domain.Timeframe
}

func (s *stubBars) GetBars(_ context.Context, _ string, _, _ time.Time, tf domain.Timeframe) (*domain.BarSeries, error) {
	s.tf = tf
	return s.series, s.err
}

func TestDetectorDetect(t *testing.T) {
	series, err := domain.NewBarSeries("TEST", domain.TimeframeDaily, barsOf(compound(100, repeat(1.01, 19)...)))
	if err != nil {
		t.Fatalf("NewBarSeries: %v", err)
	}
	src := &stubBars{series: series}
	d := NewDetector(src, Config{}, nil)

	periods, err := d.Detect(context.Background(), "TEST", day0, day0.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(periods) != 1 || periods[0].Condition != domain.ConditionBull {
		t.Errorf("periods = %+v, want one bull period", periods)
	}
	if src.tf != domain.TimeframeDaily {
		t.Errorf("requested timeframe %q, want daily", src.tf)
	}

	boom := errors.New("boom")
	d = NewDetector(&stubBars{err: boom}, Config{}, nil)
	if _, err := d.Detect(context.Background(), "TEST", day0, day0); !errors.Is(err, boom) {
		t.Errorf("Detect err = %v, want wrapped provider error", err)
	}
}
