// Package view holds the calendar, list and map views, the page regions
// they draw into, and the switcher that shows one of them at a time.
package view

import (
	"errors"
	"fmt"
	"sync"

	"societycal/internal/model"
)

var (
	// ErrMissingRegion means a view's container is absent from the page.
	// Only that view fails to set up.
	ErrMissingRegion = errors.New("view: region not found")

	// ErrAlreadyBound means a renderer was constructed on a region that
	// already hosts one.
	ErrAlreadyBound = errors.New("view: region already bound")

	// ErrStale marks a response whose filter no longer matches the store.
	// The newer render is kept.
	ErrStale = errors.New("view: stale response discarded")

	ErrUnknownEvent = errors.New("view: no such event in view")
)

// RegionID returns the container id each view kind binds to.
func RegionID(kind model.ViewKind) string {
	return string(kind) + "Container"
}

// Region is one container on a page. A hidden region reports a zero size,
// so a renderer laid out while hidden must be resized once shown.
type Region struct {
	id string

	mu      sync.Mutex
	page    *Page
	visible bool
	bound   bool
}

func (r *Region) ID() string { return r.id }

func (r *Region) Visible() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible
}

// Size is the drawable size in character cells.
func (r *Region) Size() (width, height int) {
	r.mu.Lock()
	visible := r.visible
	r.mu.Unlock()
	if !visible {
		return 0, 0
	}
	return r.page.Size()
}

func (r *Region) Show() { r.setVisible(true) }
func (r *Region) Hide() { r.setVisible(false) }

func (r *Region) setVisible(v bool) {
	r.mu.Lock()
	r.visible = v
	r.mu.Unlock()
}

// Bind claims the region for a renderer.
func (r *Region) Bind() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bound {
		return fmt.Errorf("%w: %s", ErrAlreadyBound, r.id)
	}
	r.bound = true
	return nil
}

// Release frees the region after its renderer is destroyed.
func (r *Region) Release() {
	r.mu.Lock()
	r.bound = false
	r.mu.Unlock()
}

// Page is the set of regions views can bind to. All regions share the
// page size.
type Page struct {
	mu      sync.RWMutex
	width   int
	height  int
	regions map[string]*Region
}

func NewPage(width, height int) *Page {
	return &Page{width: width, height: height, regions: make(map[string]*Region)}
}

// NewStandardPage has one region per view kind.
func NewStandardPage(width, height int) *Page {
	p := NewPage(width, height)
	for _, k := range model.AllViews {
		p.AddRegion(RegionID(k))
	}
	return p
}

// AddRegion adds a hidden region, or returns the existing one.
func (p *Page) AddRegion(id string) *Region {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.regions[id]; ok {
		return r
	}
	r := &Region{id: id, page: p}
	p.regions[id] = r
	return r
}

// RemoveRegion drops a region from the page.
func (p *Page) RemoveRegion(id string) {
	p.mu.Lock()
	delete(p.regions, id)
	p.mu.Unlock()
}

func (p *Page) Region(id string) (*Region, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.regions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRegion, id)
	}
	return r, nil
}

func (p *Page) Size() (int, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.width, p.height
}

// SetSize changes the page size. Renderers only pick it up on Resize.
func (p *Page) SetSize(width, height int) {
	p.mu.Lock()
	p.width, p.height = width, height
	p.mu.Unlock()
}
