package view

import (
	"context"
	"errors"
	"fmt"
	"sync"

	appLog "societycal/internal/log"
	"societycal/internal/model"
	"societycal/internal/session"
	"societycal/internal/source"
)

// Fetcher is the event source a component pulls from.
type Fetcher interface {
	FetchEvents(ctx context.Context, req source.Request) ([]model.EventRecord, error)
}

// State is a component's lifecycle position.
type State int

const (
	StateUninitialized State = iota
	StateHidden
	StateVisible
)

func (s State) String() string {
	switch s {
	case StateHidden:
		return "initialized-hidden"
	case StateVisible:
		return "initialized-visible"
	default:
		return "uninitialized"
	}
}

// Component owns exactly one renderer and keeps it in step with the
// session store's filter.
type Component struct {
	kind     model.ViewKind
	regionID string
	page     *Page
	store    *session.Store
	src      Fetcher
	factory  func() Renderer
	currency string

	// ctx is used for refetches triggered by broadcasts.
	ctx context.Context

	mu          sync.Mutex
	renderer    Renderer
	sub         session.Subscription
	locSub      session.Subscription
	lastErr     error
	constructed int
	selected    bool

	// commitMu makes the staleness check and the commit one step.
	commitMu sync.Mutex
}

// NewComponent creates an uninitialized component. ctx bounds refetches
// started by filter broadcasts.
func NewComponent(ctx context.Context, kind model.ViewKind, page *Page, store *session.Store, src Fetcher, opts Options) *Component {
	return &Component{
		kind:     kind,
		regionID: RegionID(kind),
		page:     page,
		store:    store,
		src:      src,
		factory:  func() Renderer { return NewRenderer(kind, opts) },
		currency: opts.Currency,
		ctx:      ctx,
	}
}

// WithRenderer replaces the renderer factory. It must be called before the
// first activation.
func (c *Component) WithRenderer(factory func() Renderer) *Component {
	c.factory = factory
	return c
}

func (c *Component) Kind() model.ViewKind { return c.kind }

func (c *Component) State() State {
	c.mu.Lock()
	r := c.renderer
	c.mu.Unlock()
	if r == nil {
		return StateUninitialized
	}
	region, err := c.page.Region(c.regionID)
	if err == nil && region.Visible() {
		return StateVisible
	}
	return StateHidden
}

// Constructed counts renderer constructions over the component's life.
func (c *Component) Constructed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.constructed
}

// LastError is the most recent fetch failure, cleared by a good fetch.
func (c *Component) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Activate initializes the component on first call: it binds a renderer
// to the region, subscribes to filter changes and performs the initial
// fetch. Later calls do nothing.
func (c *Component) Activate(ctx context.Context) error {
	c.mu.Lock()
	if c.renderer != nil {
		c.mu.Unlock()
		return nil
	}

	region, err := c.page.Region(c.regionID)
	if err != nil {
		c.lastErr = err
		c.mu.Unlock()
		appLog.Error("view setup aborted", err, "view", string(c.kind))
		return err
	}

	r := c.factory()
	if err := r.Init(region, c.feed); err != nil {
		c.lastErr = err
		c.mu.Unlock()
		appLog.Error("view setup aborted", err, "view", string(c.kind))
		return err
	}
	c.renderer = r
	c.constructed++
	c.sub = c.store.Subscribe(c.onFilter)
	if rc, ok := r.(Recenterer); ok {
		if loc, ok := c.store.SearchedLocation(); ok {
			rc.Recenter(loc)
		}
		c.locSub = c.store.SubscribeLocation(rc.Recenter)
	}
	c.mu.Unlock()

	appLog.Info("view initialized", "view", string(c.kind), "region", c.regionID)
	return c.Refetch(ctx)
}

// Refetch pulls a fresh set for the store's current filter. Failures are
// logged and recorded; the previous render stays. A stale response is
// dropped and is not a failure.
func (c *Component) Refetch(ctx context.Context) error {
	r := c.current()
	if r == nil {
		return nil
	}
	err := r.Refetch(ctx)
	switch {
	case err == nil:
		c.setErr(nil)
	case errors.Is(err, ErrStale):
		appLog.Debug("stale response discarded", "view", string(c.kind))
	default:
		c.setErr(err)
		appLog.Error("view refresh failed", err, "view", string(c.kind), "query", c.store.Filter())
	}
	return err
}

// feed tags the fetch with the snapshot it was issued for and commits the
// result only if the store still holds that snapshot.
func (c *Component) feed(ctx context.Context, commit func([]model.EventRecord)) error {
	tag := c.store.Snapshot()
	records, err := c.src.FetchEvents(ctx, source.Request{Query: tag.Query, MyEventsOnly: tag.MyEventsOnly})
	if err != nil {
		return err
	}

	c.commitMu.Lock()
	defer c.commitMu.Unlock()
	if now := c.store.Snapshot(); now != tag {
		return fmt.Errorf("%w: issued for %q, current %q", ErrStale, tag.Query, now.Query)
	}
	commit(records)
	return nil
}

func (c *Component) onFilter(query string) {
	appLog.Debug("view notified of filter change", "view", string(c.kind), "query", query)
	c.Refetch(c.ctx)
}

// Resize forces a layout pass. Call it after the region becomes visible.
func (c *Component) Resize() {
	if r := c.current(); r != nil {
		r.Resize()
	}
}

// Items are the records currently rendered.
func (c *Component) Items() []model.EventRecord {
	if r := c.current(); r != nil {
		return r.Items()
	}
	return nil
}

// Render draws the view, or "" before initialization.
func (c *Component) Render() string {
	if r := c.current(); r != nil {
		return r.Render()
	}
	return ""
}

// Renderer exposes the bound renderer, nil before initialization.
func (c *Component) Renderer() Renderer { return c.current() }

// Select opens the detail surface for a rendered event.
func (c *Component) Select(id string) (Detail, error) {
	for _, rec := range c.Items() {
		if rec.ID == id {
			return NewDetail(rec, c.currency), nil
		}
	}
	return Detail{}, fmt.Errorf("%w: %s in %s", ErrUnknownEvent, id, c.kind)
}

// Destroy unsubscribes and releases the region. The component can be
// activated again afterwards.
func (c *Component) Destroy() {
	c.mu.Lock()
	r := c.renderer
	c.renderer = nil
	c.sub.Cancel()
	c.locSub.Cancel()
	c.sub, c.locSub = session.Subscription{}, session.Subscription{}
	c.mu.Unlock()
	if r != nil {
		r.Destroy()
	}
}

func (c *Component) current() Renderer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renderer
}

func (c *Component) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Component) setSelected(v bool) {
	c.mu.Lock()
	c.selected = v
	c.mu.Unlock()
}

// Selected reports whether the switcher control for this view is marked.
func (c *Component) Selected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}
