package domain

import (
	"encoding/json"
	"math"
	"strconv"
)

// Ratio is a float statistic that may be undefined. The undefined state is
// NaN, which never compares equal to zero and is encoded as JSON null.
type Ratio float64

// Undefined returns the undefined Ratio.
func Undefined() Ratio { return Ratio(math.NaN()) }

// Defined reports whether r carries a finite value.
func (r Ratio) Defined() bool {
	f := float64(r)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Float returns the raw value, NaN when undefined.
func (r Ratio) Float() float64 { return float64(r) }

// String formats the ratio, printing "n/a" when undefined.
func (r Ratio) String() string {
	if !r.Defined() {
		return "n/a"
	}
	return strconv.FormatFloat(float64(r), 'f', 4, 64)
}

// MarshalJSON encodes undefined values as null.
func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.Defined() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(r))
}

// UnmarshalJSON decodes null as undefined.
func (r *Ratio) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Undefined()
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}
