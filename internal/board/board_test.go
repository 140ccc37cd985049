package board

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"societycal/internal/config"
	"societycal/internal/confirm"
	"societycal/internal/geocode"
	"societycal/internal/model"
	"societycal/internal/session"
	"societycal/internal/view"
)

var testNow = time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)

const londonFeed = `{"results":[
 {"id":1,"name":"Talk","date":"2025-02-17","start_time":"18:00:00","location":"Hall A","fee":0,"event_type":"('academic', 'Academic')","latitude":51.52,"longitude":-0.13},
 {"id":2,"name":"Quiz","date":"2025-02-18","start_time":"19:30:00","location":"Bar","fee":"£3"}
]}`

const leedsFeed = `[{"id":9,"name":"Ceilidh","date":"2025-02-20","location":"Leeds","fee":5}]`

// fakeSite stands in for the events API and the geocoder.
type fakeSite struct {
	mu        sync.Mutex
	queries   []string
	posts     []string
	geoQuery  string
	geoResult string
	srv       *httptest.Server
}

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()
	s := &fakeSite{geoResult: `[{"lat":"53.4808","lon":"-2.2426","display_name":"Manchester"}]`}
	mux := http.NewServeMux()
	mux.HandleFunc("/events/api/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			s.mu.Lock()
			s.posts = append(s.posts, r.URL.Path)
			s.mu.Unlock()
			io.WriteString(w, `{"message":"Registered"}`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "tok", Path: "/"})
		s.mu.Lock()
		s.queries = append(s.queries, r.URL.RawQuery)
		s.mu.Unlock()
		switch r.URL.Query().Get("location") {
		case "leeds":
			io.WriteString(w, leedsFeed)
		default:
			io.WriteString(w, londonFeed)
		}
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.geoQuery = r.URL.Query().Get("q")
		res := s.geoResult
		s.mu.Unlock()
		io.WriteString(w, res)
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *fakeSite) fetched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func (s *fakeSite) config() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.CacheDir = ""
	cfg.API.BaseURL = s.srv.URL
	cfg.Geocode.SearchURL = s.srv.URL + "/search"
	cfg.Filters.Facets = append(cfg.Filters.Facets, config.FacetConfig{
		Label:   "City",
		Options: []config.OptionConfig{{Label: "Leeds", Clause: "location=leeds"}},
	})
	return cfg
}

type answer bool

func (a answer) Confirm(string) (bool, error) { return bool(a), nil }

func newBoard(t *testing.T, site *fakeSite, backend session.Backend, p confirm.Prompter) *Board {
	t.Helper()
	b, err := New(context.Background(), site.config(), Options{
		Prompter: p,
		Backend:  backend,
		Now:      func() time.Time { return testNow },
	})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestStartShowsDefaultViewOnly(t *testing.T) {
	site := newFakeSite(t)
	b := newBoard(t, site, session.NewMemoryBackend(), answer(true))
	ctx := context.Background()

	require.NoError(t, b.Start(ctx))
	active, ok := b.Active()
	require.True(t, ok)
	assert.Equal(t, model.ViewCalendar, active.Kind())
	assert.Equal(t, view.StateVisible, active.State())
	assert.Len(t, active.Items(), 2)

	list, _ := b.Switcher().Component(model.ViewList)
	assert.Equal(t, view.StateUninitialized, list.State())
	assert.Equal(t, []string{""}, site.fetched())
}

func TestPanelChangeRefetchesInitializedViews(t *testing.T) {
	site := newFakeSite(t)
	b := newBoard(t, site, session.NewMemoryBackend(), answer(true))
	ctx := context.Background()

	require.NoError(t, b.Start(ctx))
	require.NoError(t, b.Show(ctx, model.ViewList))
	require.NoError(t, b.Panel().Select(ctx, "City", "Leeds"))

	assert.Equal(t, "?location=leeds", b.Store().Filter())
	assert.Equal(t, []string{"", "", "location=leeds", "location=leeds"}, site.fetched())

	calendar, _ := b.Switcher().Component(model.ViewCalendar)
	assert.Equal(t, view.StateHidden, calendar.State())
	require.Len(t, calendar.Items(), 1)
	assert.Equal(t, "Ceilidh", calendar.Items()[0].Title)

	// The Ceilidh falls outside the list's current week.
	list, _ := b.Switcher().Component(model.ViewList)
	assert.Empty(t, list.Items())

	mapView, _ := b.Switcher().Component(model.ViewMap)
	assert.Equal(t, view.StateUninitialized, mapView.State())
}

func TestFreshLoadClearsOnlyTheFilter(t *testing.T) {
	site := newFakeSite(t)
	backend := session.NewMemoryBackend()
	ctx := context.Background()

	first, err := New(ctx, site.config(), Options{Backend: backend, Prompter: answer(true)})
	require.NoError(t, err)
	require.NoError(t, first.Panel().Select(ctx, "City", "Leeds"))
	require.NoError(t, first.SetMyEventsOnly(ctx, true))
	_, err = first.SearchLocation(ctx, "Manchester")
	require.NoError(t, err)

	second, err := New(ctx, site.config(), Options{Backend: backend, Prompter: answer(true)})
	require.NoError(t, err)
	assert.Equal(t, "", second.Store().Filter())
	assert.True(t, second.Store().MyEventsOnly())
	loc, ok := second.Store().SearchedLocation()
	require.True(t, ok)
	assert.Equal(t, "Manchester", loc.Name)
}

func TestSearchLocationRecentersMap(t *testing.T) {
	site := newFakeSite(t)
	b := newBoard(t, site, session.NewMemoryBackend(), answer(true))
	ctx := context.Background()

	require.NoError(t, b.Show(ctx, model.ViewMap))
	loc, err := b.SearchLocation(ctx, "Manchester")
	require.NoError(t, err)
	assert.InDelta(t, 53.4808, loc.Lat, 1e-6)

	c, _ := b.Switcher().Component(model.ViewMap)
	m, ok := c.Renderer().(*view.MapRenderer)
	require.True(t, ok)
	lat, lon, zoom := m.Center()
	assert.InDelta(t, 53.4808, lat, 1e-6)
	assert.InDelta(t, -2.2426, lon, 1e-6)
	assert.Equal(t, 13, zoom)
}

func TestSearchLocationNotFound(t *testing.T) {
	site := newFakeSite(t)
	site.geoResult = `[]`
	b := newBoard(t, site, session.NewMemoryBackend(), answer(true))

	_, err := b.SearchLocation(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, geocode.ErrNotFound)
	_, ok := b.Store().SearchedLocation()
	assert.False(t, ok)
}

func TestRegisterIsGated(t *testing.T) {
	site := newFakeSite(t)
	ctx := context.Background()

	declined := newBoard(t, site, session.NewMemoryBackend(), answer(false))
	_, err := declined.Register(ctx, "1")
	assert.True(t, errors.Is(err, confirm.ErrDeclined))
	assert.Empty(t, site.posts)

	approved := newBoard(t, site, session.NewMemoryBackend(), answer(true))
	msg, err := approved.Register(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Registered", msg)
	assert.Equal(t, []string{"/events/api/1/register/"}, site.posts)
}

func TestDetailFromActiveView(t *testing.T) {
	site := newFakeSite(t)
	b := newBoard(t, site, session.NewMemoryBackend(), answer(true))
	ctx := context.Background()
	require.NoError(t, b.Start(ctx))

	d, err := b.Detail("2")
	require.NoError(t, err)
	assert.Equal(t, "Quiz", d.Title)
	assert.Equal(t, "£3.00", d.Fee)
	assert.Equal(t, "19:30", d.Time)

	_, err = b.Detail("404")
	assert.ErrorIs(t, err, view.ErrUnknownEvent)
}

func TestExportUsesFilteredSet(t *testing.T) {
	site := newFakeSite(t)
	b := newBoard(t, site, session.NewMemoryBackend(), answer(true))
	ctx := context.Background()
	require.NoError(t, b.Panel().Select(ctx, "City", "Leeds"))

	var buf bytes.Buffer
	n, err := b.ExportICS(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), "SUMMARY:Ceilidh")
	assert.NotContains(t, buf.String(), "SUMMARY:Talk")
}

func TestApplyPageURL(t *testing.T) {
	site := newFakeSite(t)
	b := newBoard(t, site, session.NewMemoryBackend(), answer(true))
	ctx := context.Background()

	require.NoError(t, b.ApplyPageURL(ctx, "/events/?my_events=true"))
	assert.True(t, b.Store().MyEventsOnly())
	require.NoError(t, b.ApplyPageURL(ctx, "/events/"))
	assert.True(t, b.Store().MyEventsOnly())
	require.NoError(t, b.ApplyPageURL(ctx, "/events/?my_events=false"))
	assert.False(t, b.Store().MyEventsOnly())
}
