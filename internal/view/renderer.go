package view

import (
	"context"
	"sync"
	"time"

	"societycal/internal/config"
	"societycal/internal/model"
)

// Feed supplies events to a renderer. It calls commit with the new set
// only when the response is still current; a failed or stale fetch returns
// an error and leaves the rendered set alone.
type Feed func(ctx context.Context, commit func([]model.EventRecord)) error

// Renderer is one opaque widget bound to a region.
type Renderer interface {
	Kind() model.ViewKind
	// Init binds the renderer to region. Calling it on a bound region
	// fails with ErrAlreadyBound.
	Init(region *Region, feed Feed) error
	// Refetch pulls a fresh set through the feed and replaces the
	// rendered items wholesale.
	Refetch(ctx context.Context) error
	// Resize recomputes layout from the region's current size.
	Resize()
	Destroy()
	// Items are the records currently placed in the view.
	Items() []model.EventRecord
	// Render draws the view as text.
	Render() string
}

// Recenterer is implemented by renderers that follow the searched location.
type Recenterer interface {
	Recenter(loc model.SearchedLocation)
}

// Navigator is implemented by renderers that page through time.
type Navigator interface {
	Prev()
	Next()
	Today()
}

// Options configure the renderer variants.
type Options struct {
	Location  *time.Location
	WeekStart time.Weekday
	Currency  string
	Map       config.MapConfig
	// Now is the clock for "today"; nil means time.Now.
	Now func() time.Time
}

// OptionsFromConfig derives renderer options from the app config.
func OptionsFromConfig(cfg *config.Config, loc *time.Location) Options {
	ws := time.Monday
	if cfg.WeekStart == "sunday" {
		ws = time.Sunday
	}
	return Options{
		Location:  loc,
		WeekStart: ws,
		Currency:  cfg.CurrencySymbol,
		Map:       cfg.Map,
	}
}

func (o Options) now() time.Time {
	loc := o.Location
	if loc == nil {
		loc = time.Local
	}
	if o.Now != nil {
		return o.Now().In(loc)
	}
	return time.Now().In(loc)
}

// NewRenderer builds the variant for kind.
func NewRenderer(kind model.ViewKind, opts Options) Renderer {
	switch kind {
	case model.ViewList:
		return NewListRenderer(opts)
	case model.ViewMap:
		return NewMapRenderer(opts)
	default:
		return NewCalendarRenderer(opts)
	}
}

// base carries the state every variant shares. place narrows the fetched
// set to what the variant actually shows.
type base struct {
	mu      sync.Mutex
	region  *Region
	feed    Feed
	records []model.EventRecord
	place   func([]model.EventRecord) []model.EventRecord
}

func (b *base) init(region *Region, feed Feed) error {
	if err := region.Bind(); err != nil {
		return err
	}
	b.mu.Lock()
	b.region = region
	b.feed = feed
	b.records = nil
	b.mu.Unlock()
	return nil
}

func (b *base) Refetch(ctx context.Context) error {
	b.mu.Lock()
	feed := b.feed
	b.mu.Unlock()
	if feed == nil {
		return nil
	}
	return feed(ctx, b.replace)
}

func (b *base) replace(records []model.EventRecord) {
	b.mu.Lock()
	b.records = records
	b.mu.Unlock()
}

func (b *base) Destroy() {
	b.mu.Lock()
	region := b.region
	b.region = nil
	b.feed = nil
	b.records = nil
	b.mu.Unlock()
	if region != nil {
		region.Release()
	}
}

func (b *base) Items() []model.EventRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.itemsLocked()
}

func (b *base) itemsLocked() []model.EventRecord {
	if b.place == nil {
		return append([]model.EventRecord(nil), b.records...)
	}
	return b.place(b.records)
}

func (b *base) size() (int, int) {
	b.mu.Lock()
	region := b.region
	b.mu.Unlock()
	if region == nil {
		return 0, 0
	}
	return region.Size()
}
