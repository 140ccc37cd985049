// Package filter implements the filter control panel: single-select facets
// plus a coupled fee range, combined into one query string that is
// published to the session store on every change.
package filter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"societycal/internal/config"
	appLog "societycal/internal/log"
)

var (
	ErrUnknownFacet  = errors.New("filter: unknown facet")
	ErrUnknownOption = errors.New("filter: unknown option")
)

// Publisher receives every recomputed query. session.Store satisfies it.
type Publisher interface {
	SetFilter(ctx context.Context, query string) error
}

// Facet is one rendered filter control. At most one option is selected.
type Facet struct {
	label    string
	options  []string
	selected int
}

func (f *Facet) Label() string { return f.label }

// Options returns the option labels in display order.
func (f *Facet) Options() []string {
	return append([]string(nil), f.options...)
}

// Selected returns the highlighted option, if any. A selected facet shows a
// clear affordance.
func (f *Facet) Selected() (string, bool) {
	if f.selected < 0 {
		return "", false
	}
	return f.options[f.selected], true
}

func (f *Facet) indexOf(option string) int {
	for i, o := range f.options {
		if strings.EqualFold(o, option) {
			return i
		}
	}
	return -1
}

// Panel holds the rendered controls in page order.
type Panel struct {
	clauses  ClauseTable
	currency string
	pub      Publisher

	mu     sync.Mutex
	facets []*Facet
	fee    *FeeRange

	// pubMu keeps recompute+publish pairs in order so the store never ends
	// up with an older query than the controls show.
	pubMu sync.Mutex
}

// NewPanel renders every configured facet and the fee range. pub may be nil
// for a detached panel whose Query is read directly.
func NewPanel(cfg config.FiltersConfig, currency string, pub Publisher) (*Panel, error) {
	p := &Panel{
		clauses:  NewClauseTable(cfg.Facets),
		currency: currency,
		pub:      pub,
	}
	for _, f := range cfg.Facets {
		labels := make([]string, 0, len(f.Options))
		for _, o := range f.Options {
			labels = append(labels, o.Label)
		}
		if _, err := p.RenderFacet(f.Label, labels); err != nil {
			return nil, err
		}
	}
	if _, err := p.RenderFeeRange(cfg.Fee.Min, cfg.Fee.Max, cfg.Fee.Step); err != nil {
		return nil, err
	}
	return p, nil
}

// RenderFacet appends a single-select-with-clear control. Labels must be
// unique within the panel.
func (p *Panel) RenderFacet(label string, options []string) (*Facet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.facets {
		if f.label == label {
			return nil, fmt.Errorf("filter: facet %q already rendered", label)
		}
	}
	f := &Facet{label: label, options: append([]string(nil), options...), selected: -1}
	p.facets = append(p.facets, f)
	return f, nil
}

// RenderFeeRange replaces the fee controls with a fresh full range.
func (p *Panel) RenderFeeRange(lower, upper, step int) (*FeeRange, error) {
	r, err := NewFeeRange(lower, upper, step)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.fee = r
	p.mu.Unlock()
	return r, nil
}

// Facets returns the rendered facets in page order.
func (p *Panel) Facets() []*Facet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Facet(nil), p.facets...)
}

// Fee returns a copy of the fee range state.
func (p *Panel) Fee() FeeRange {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fee == nil {
		return FeeRange{}
	}
	return *p.fee
}

// FeeLabel formats the fee range for display; an open upper bound reads
// "£100+".
func (p *Panel) FeeLabel() string {
	r := p.Fee()
	return r.Label(p.currency)
}

// Select highlights option in the facet and publishes the new query.
func (p *Panel) Select(ctx context.Context, facet, option string) error {
	return p.change(ctx, func() error {
		f := p.facet(facet)
		if f == nil {
			return fmt.Errorf("%w: %q", ErrUnknownFacet, facet)
		}
		i := f.indexOf(option)
		if i < 0 {
			return fmt.Errorf("%w: %q in %q", ErrUnknownOption, option, facet)
		}
		f.selected = i
		return nil
	})
}

// Clear removes the facet's selection and publishes the new query.
func (p *Panel) Clear(ctx context.Context, facet string) error {
	return p.change(ctx, func() error {
		f := p.facet(facet)
		if f == nil {
			return fmt.Errorf("%w: %q", ErrUnknownFacet, facet)
		}
		f.selected = -1
		return nil
	})
}

// ClearAll resets every facet and the fee range.
func (p *Panel) ClearAll(ctx context.Context) error {
	return p.change(ctx, func() error {
		for _, f := range p.facets {
			f.selected = -1
		}
		if p.fee != nil {
			p.fee.reset()
		}
		return nil
	})
}

// SetFeeMin moves the lower fee control.
func (p *Panel) SetFeeMin(ctx context.Context, v int) error {
	return p.change(ctx, func() error {
		if p.fee == nil {
			return errors.New("filter: fee range not rendered")
		}
		p.fee.SetMin(v)
		return nil
	})
}

// SetFeeMax moves the upper fee control.
func (p *Panel) SetFeeMax(ctx context.Context, v int) error {
	return p.change(ctx, func() error {
		if p.fee == nil {
			return errors.New("filter: fee range not rendered")
		}
		p.fee.SetMax(v)
		return nil
	})
}

// Query rebuilds the combined query from the full control state: one clause
// per facet with a mapped selection in page order, then the fee clauses,
// joined by "&" and prefixed by "?". Nothing selected gives "".
func (p *Panel) Query() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queryLocked()
}

func (p *Panel) queryLocked() string {
	var parts []string
	for _, f := range p.facets {
		opt, ok := f.Selected()
		if !ok {
			continue
		}
		clause, ok := p.clauses.Lookup(f.label, opt)
		if !ok {
			continue
		}
		parts = append(parts, clause)
	}
	if p.fee != nil {
		parts = append(parts, p.fee.Clauses()...)
	}
	if len(parts) == 0 {
		return ""
	}
	return "?" + strings.Join(parts, "&")
}

func (p *Panel) facet(label string) *Facet {
	for _, f := range p.facets {
		if strings.EqualFold(f.label, label) {
			return f
		}
	}
	return nil
}

// change applies mutate under the state lock, then publishes the query it
// produced.
func (p *Panel) change(ctx context.Context, mutate func() error) error {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()

	p.mu.Lock()
	if err := mutate(); err != nil {
		p.mu.Unlock()
		return err
	}
	query := p.queryLocked()
	p.mu.Unlock()

	appLog.Debug("filter recomputed", "query", query)
	if p.pub == nil {
		return nil
	}
	return p.pub.SetFilter(ctx, query)
}
