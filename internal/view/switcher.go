package view

import (
	"context"
	"fmt"
	"sync"

	appLog "societycal/internal/log"
	"societycal/internal/model"
)

// Switcher shows exactly one view at a time.
type Switcher struct {
	page  *Page
	order []model.ViewKind
	views map[model.ViewKind]*Component

	mu     sync.Mutex
	active model.ViewKind
}

func NewSwitcher(page *Page, components ...*Component) *Switcher {
	s := &Switcher{page: page, views: make(map[model.ViewKind]*Component)}
	for _, c := range components {
		s.order = append(s.order, c.Kind())
		s.views[c.Kind()] = c
	}
	return s
}

// Activate hides every other view, shows kind, initializes it if needed
// and always resizes it once visible. A view whose region is missing is
// not activated and the current view stays.
func (s *Switcher) Activate(ctx context.Context, kind model.ViewKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.views[kind]
	if !ok {
		return fmt.Errorf("view: no %q view registered", kind)
	}
	region, err := s.page.Region(target.regionID)
	if err != nil {
		appLog.Error("view switch aborted", err, "view", string(kind))
		return err
	}

	for _, k := range s.order {
		if k == kind {
			continue
		}
		other := s.views[k]
		other.setSelected(false)
		if r, err := s.page.Region(other.regionID); err == nil {
			r.Hide()
		}
	}
	region.Show()
	target.setSelected(true)
	s.active = kind

	// The fetch error is recorded on the component; the view is still
	// the active one.
	initErr := target.Activate(ctx)
	target.Resize()
	appLog.Debug("view activated", "view", string(kind), "state", target.State().String())
	return initErr
}

// Active is the visible view, or "" before the first activation.
func (s *Switcher) Active() model.ViewKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Component returns the view of the given kind.
func (s *Switcher) Component(kind model.ViewKind) (*Component, bool) {
	c, ok := s.views[kind]
	return c, ok
}

// Components returns every view in registration order.
func (s *Switcher) Components() []*Component {
	out := make([]*Component, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.views[k])
	}
	return out
}

// RefetchInitialized refetches every initialized view, hidden or not.
func (s *Switcher) RefetchInitialized(ctx context.Context) {
	for _, c := range s.Components() {
		if c.State() != StateUninitialized {
			c.Refetch(ctx)
		}
	}
}

// Destroy tears down every view.
func (s *Switcher) Destroy() {
	for _, c := range s.Components() {
		c.Destroy()
	}
}
