// Package board wires the filter panel, session store, event source and the
// three views into one running page.
package board

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"societycal/internal/config"
	"societycal/internal/confirm"
	"societycal/internal/export"
	"societycal/internal/filter"
	"societycal/internal/geocode"
	appLog "societycal/internal/log"
	"societycal/internal/model"
	"societycal/internal/session"
	"societycal/internal/source"
	"societycal/internal/view"
)

// Default page size in character cells.
const (
	DefaultWidth  = 100
	DefaultHeight = 30
)

// Options override the collaborators New would otherwise build from config.
type Options struct {
	// Prompter answers confirmation questions; nil means the terminal.
	Prompter confirm.Prompter
	// Backend replaces the configured session backend.
	Backend session.Backend
	// Fetcher replaces the HTTP event source for views and export.
	Fetcher view.Fetcher
	// Width and Height size the page; zero means the defaults.
	Width  int
	Height int
	// Now fixes the views' notion of today.
	Now func() time.Time
	// KeepFilter skips the fresh-load reset of the persisted filter.
	KeepFilter bool
}

// Board is one loaded page.
type Board struct {
	cfg   *config.Config
	loc   *time.Location
	store *session.Store
	panel *filter.Panel
	api   *source.Client
	fetch view.Fetcher
	geo   *geocode.Client
	guard *confirm.Guard
	page  *view.Page
	views *view.Switcher

	closeOnce sync.Once
}

// New loads the page: it opens the session backend, clears the filter for a
// fresh load, renders the filter panel and registers the three views. No
// view is initialized until Start or Show.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Board, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	loc := ResolveLocation(cfg.Timezone)

	backend := opts.Backend
	if backend == nil {
		var err error
		backend, err = openBackend(cfg.Session)
		if err != nil {
			return nil, err
		}
	}
	store, err := session.NewStore(ctx, backend)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	if !opts.KeepFilter {
		if err := store.Reset(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	panel, err := filter.NewPanel(cfg.Filters, cfg.CurrencySymbol, store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("board: filter panel: %w", err)
	}

	api, err := source.NewClient(cfg.API, cfg.CacheDir, loc)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	var fetch view.Fetcher = api
	if opts.Fetcher != nil {
		fetch = opts.Fetcher
	}

	w, h := opts.Width, opts.Height
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	page := view.NewStandardPage(w, h)

	vopts := view.OptionsFromConfig(cfg, loc)
	if opts.Now != nil {
		vopts.Now = opts.Now
	}
	comps := make([]*view.Component, 0, len(model.AllViews))
	for _, kind := range model.AllViews {
		comps = append(comps, view.NewComponent(ctx, kind, page, store, fetch, vopts))
	}

	b := &Board{
		cfg:   cfg,
		loc:   loc,
		store: store,
		panel: panel,
		api:   api,
		fetch: fetch,
		geo:   geocode.NewClient(cfg.Geocode),
		guard: confirm.NewGuard(opts.Prompter),
		page:  page,
		views: view.NewSwitcher(page, comps...),
	}
	appLog.Info("board loaded",
		"api", cfg.API.BaseURL,
		"timezone", loc.String(),
		"session_backend", cfg.Session.Backend,
		"facets", len(panel.Facets()),
	)
	return b, nil
}

func openBackend(cfg config.SessionConfig) (session.Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return session.NewMemoryBackend(), nil
	case "sqlite":
		return session.OpenSQLiteBackend(cfg.Path)
	default:
		return nil, fmt.Errorf("board: unknown session backend %q", cfg.Backend)
	}
}

// ResolveLocation loads the display timezone, falling back to time.Local.
func ResolveLocation(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

// Start activates the configured default view.
func (b *Board) Start(ctx context.Context) error {
	kind, err := model.ParseViewKind(b.cfg.DefaultView)
	if err != nil {
		kind = model.ViewCalendar
	}
	return b.Show(ctx, kind)
}

// Show switches to kind.
func (b *Board) Show(ctx context.Context, kind model.ViewKind) error {
	return b.views.Activate(ctx, kind)
}

// Active returns the visible view's component.
func (b *Board) Active() (*view.Component, bool) {
	kind := b.views.Active()
	if kind == "" {
		return nil, false
	}
	return b.views.Component(kind)
}

func (b *Board) Config() *config.Config { return b.cfg }

// Location is the display timezone.
func (b *Board) Location() *time.Location { return b.loc }

func (b *Board) Store() *session.Store { return b.store }

func (b *Board) Panel() *filter.Panel { return b.panel }

func (b *Board) Page() *view.Page { return b.page }

func (b *Board) Switcher() *view.Switcher { return b.views }

func (b *Board) Source() *source.Client { return b.api }

func (b *Board) Geocoder() *geocode.Client { return b.geo }

// Resize changes the page size and relayouts the visible view.
func (b *Board) Resize(width, height int) {
	b.page.SetSize(width, height)
	if c, ok := b.Active(); ok {
		c.Resize()
	}
}

// Refresh refetches every initialized view.
func (b *Board) Refresh(ctx context.Context) {
	b.views.RefetchInitialized(ctx)
}

// SetMyEventsOnly toggles the "my events only" flag.
func (b *Board) SetMyEventsOnly(ctx context.Context, on bool) error {
	return b.store.SetMyEventsOnly(ctx, on)
}

// ApplyPageURL reads a my_events flag from a page URL the way a server
// rendered link would set it.
func (b *Board) ApplyPageURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("board: page url: %w", err)
	}
	v := u.Query().Get("my_events")
	if v == "" {
		return nil
	}
	return b.store.SetMyEventsOnly(ctx, v == "true" || v == "1")
}

// SearchLocation geocodes text and stores it as the searched location; the
// map recenters through its subscription.
func (b *Board) SearchLocation(ctx context.Context, text string) (model.SearchedLocation, error) {
	loc, err := b.geo.Search(ctx, text)
	if err != nil {
		if errors.Is(err, geocode.ErrNotFound) {
			appLog.Warn("location not found", "query", text)
		}
		return model.SearchedLocation{}, err
	}
	if err := b.store.SetSearchedLocation(ctx, loc); err != nil {
		return model.SearchedLocation{}, err
	}
	return loc, nil
}

// Suggest returns address completions.
func (b *Board) Suggest(ctx context.Context, address, city string) ([]geocode.Place, error) {
	return b.geo.Suggest(ctx, address, city)
}

// Detail opens the detail surface for an event shown by the active view.
func (b *Board) Detail(id string) (view.Detail, error) {
	c, ok := b.Active()
	if !ok {
		return view.Detail{}, fmt.Errorf("%w: %s", view.ErrUnknownEvent, id)
	}
	return c.Select(id)
}

// Register signs up for an event after confirmation.
func (b *Board) Register(ctx context.Context, eventID string) (string, error) {
	var msg string
	err := b.guard.Run(ctx, confirm.ActionRegister, func(ctx context.Context) error {
		var err error
		msg, err = b.api.Register(ctx, eventID)
		return err
	})
	return msg, err
}

// JoinSociety joins a society after confirmation.
func (b *Board) JoinSociety(ctx context.Context, societyID string) (string, error) {
	var msg string
	err := b.guard.Run(ctx, confirm.ActionJoinSociety, func(ctx context.Context) error {
		var err error
		msg, err = b.api.JoinSociety(ctx, societyID)
		return err
	})
	return msg, err
}

// Events returns the filtered set: the active view's items once it has
// rendered, otherwise a direct fetch for the current snapshot.
func (b *Board) Events(ctx context.Context) ([]model.EventRecord, error) {
	if c, ok := b.Active(); ok && c.State() != view.StateUninitialized && c.LastError() == nil {
		return c.Items(), nil
	}
	snap := b.store.Snapshot()
	return b.fetch.FetchEvents(ctx, source.Request{Query: snap.Query, MyEventsOnly: snap.MyEventsOnly})
}

// ExportICS writes the filtered set as an iCalendar feed.
func (b *Board) ExportICS(ctx context.Context, w io.Writer) (int, error) {
	records, err := b.Events(ctx)
	if err != nil {
		return 0, err
	}
	name := "Society events"
	if q := b.store.Filter(); q != "" {
		name += " " + q
	}
	host := ""
	if u, err := url.Parse(b.cfg.API.BaseURL); err == nil {
		host = u.Hostname()
	}
	err = export.WriteICS(w, records, export.Options{
		Name:     name,
		Host:     host,
		Currency: b.cfg.CurrencySymbol,
	})
	return len(records), err
}

// Close tears down the views and the session store.
func (b *Board) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.views.Destroy()
		err = b.store.Close()
	})
	return err
}
