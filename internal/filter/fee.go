package filter

import (
	"fmt"
	"strconv"
)

// FeeRange models the two coupled fee sliders. Min never exceeds Max: moving
// either control past the other pulls Min down to Max.
type FeeRange struct {
	Lower int
	Upper int
	Step  int

	Min int
	Max int
}

// NewFeeRange returns a range spanning the full [lower, upper] interval.
func NewFeeRange(lower, upper, step int) (*FeeRange, error) {
	if step <= 0 {
		return nil, fmt.Errorf("filter: fee step must be positive, got %d", step)
	}
	if upper <= lower {
		return nil, fmt.Errorf("filter: fee upper bound %d must exceed lower bound %d", upper, lower)
	}
	r := &FeeRange{Lower: lower, Upper: upper, Step: step}
	r.reset()
	return r, nil
}

func (r *FeeRange) reset() {
	r.Min = r.Lower
	r.Max = r.Upper
}

// SetMin moves the lower control, clamping it to Max.
func (r *FeeRange) SetMin(v int) {
	r.Min = r.snap(v)
	if r.Min > r.Max {
		r.Min = r.Max
	}
}

// SetMax moves the upper control. Max is never pushed up by Min; when it
// drops below Min, Min follows it down.
func (r *FeeRange) SetMax(v int) {
	r.Max = r.snap(v)
	if r.Min > r.Max {
		r.Min = r.Max
	}
}

// Narrowed reports whether either bound differs from the full range.
func (r FeeRange) Narrowed() bool {
	return r.Min > r.Lower || r.Max < r.Upper
}

// OpenEnded reports whether the upper control sits on its sentinel.
func (r FeeRange) OpenEnded() bool {
	return r.Max >= r.Upper
}

// Clauses returns fee_min when the lower bound is raised and fee_max when
// the upper bound is lowered.
func (r FeeRange) Clauses() []string {
	var out []string
	if r.Min > r.Lower {
		out = append(out, "fee_min="+strconv.Itoa(r.Min))
	}
	if !r.OpenEnded() {
		out = append(out, "fee_max="+strconv.Itoa(r.Max))
	}
	return out
}

// Label renders e.g. "£10 - £100+".
func (r FeeRange) Label(currency string) string {
	hi := currency + strconv.Itoa(r.Max)
	if r.OpenEnded() {
		hi += "+"
	}
	return currency + strconv.Itoa(r.Min) + " - " + hi
}

func (r FeeRange) snap(v int) int {
	if v <= r.Lower {
		return r.Lower
	}
	if v >= r.Upper {
		return r.Upper
	}
	off := v - r.Lower
	steps := (off + r.Step/2) / r.Step
	s := r.Lower + steps*r.Step
	if s > r.Upper {
		s = r.Upper
	}
	return s
}
