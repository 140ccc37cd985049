package view

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"societycal/internal/config"
	"societycal/internal/model"
	"societycal/internal/session"
	"societycal/internal/source"
)

var testNow = time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{
		Location:  time.UTC,
		WeekStart: time.Monday,
		Currency:  "£",
		Map:       config.DefaultConfig().Map,
		Now:       func() time.Time { return testNow },
	}
}

type fakeFetcher struct {
	mu      sync.Mutex
	byQuery map[string][]model.EventRecord
	errs    map[string]error
	gates   map[string]chan struct{}
	started chan string
	calls   []source.Request
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		byQuery: map[string][]model.EventRecord{},
		errs:    map[string]error{},
		gates:   map[string]chan struct{}{},
		started: make(chan string, 8),
	}
}

func (f *fakeFetcher) FetchEvents(_ context.Context, req source.Request) ([]model.EventRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	recs := f.byQuery[req.Query]
	err := f.errs[req.Query]
	gate := f.gates[req.Query]
	f.mu.Unlock()

	if gate != nil {
		f.started <- req.Query
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []model.EventRecord{}
	}
	return recs, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func ev(id, title string, day int) model.EventRecord {
	start := time.Date(2025, 2, day, 18, 0, 0, 0, time.UTC)
	return model.EventRecord{
		ID: id, Title: title, StartAt: start, EndAt: start.Add(time.Hour),
		Location: "Hall " + id, Description: model.PlaceholderDescription,
		Capacity: model.UnlimitedCapacity,
	}
}

func withCoords(rec model.EventRecord, lat, lon float64) model.EventRecord {
	rec.Latitude, rec.Longitude = &lat, &lon
	return rec
}

func ids(recs []model.EventRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

type fixture struct {
	ctx     context.Context
	page    *Page
	store   *session.Store
	fetcher *fakeFetcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := session.NewStore(ctx, nil)
	require.NoError(t, err)
	return &fixture{ctx: ctx, page: NewStandardPage(84, 30), store: store, fetcher: newFakeFetcher()}
}

func (f *fixture) component(kind model.ViewKind) *Component {
	return NewComponent(f.ctx, kind, f.page, f.store, f.fetcher, testOptions())
}

// countingRenderer wraps a real renderer and counts lifecycle calls.
type countingRenderer struct {
	Renderer
	inits, resizes int
}

func (c *countingRenderer) Init(region *Region, feed Feed) error {
	c.inits++
	return c.Renderer.Init(region, feed)
}

func (c *countingRenderer) Resize() {
	c.resizes++
	c.Renderer.Resize()
}

func TestActivateTwiceConstructsOnce(t *testing.T) {
	f := newFixture(t)
	var built []*countingRenderer
	c := f.component(model.ViewList).WithRenderer(func() Renderer {
		r := &countingRenderer{Renderer: NewListRenderer(testOptions())}
		built = append(built, r)
		return r
	})

	require.NoError(t, c.Activate(f.ctx))
	require.NoError(t, c.Activate(f.ctx))

	assert.Equal(t, 1, c.Constructed())
	require.Len(t, built, 1)
	assert.Equal(t, 1, built[0].inits)
	assert.Equal(t, 1, f.store.Subscribers(), "subscribed once")
	assert.Equal(t, 1, f.fetcher.callCount(), "one initial fetch")
}

func TestRegionRejectsSecondRenderer(t *testing.T) {
	f := newFixture(t)
	region, err := f.page.Region(RegionID(model.ViewCalendar))
	require.NoError(t, err)

	noop := func(context.Context, func([]model.EventRecord)) error { return nil }
	require.NoError(t, NewCalendarRenderer(testOptions()).Init(region, noop))
	err = NewCalendarRenderer(testOptions()).Init(region, noop)
	assert.ErrorIs(t, err, ErrAlreadyBound)
}

func TestDestroyReleasesRegion(t *testing.T) {
	f := newFixture(t)
	c := f.component(model.ViewCalendar)
	require.NoError(t, c.Activate(f.ctx))
	c.Destroy()
	assert.Equal(t, StateUninitialized, c.State())
	assert.Zero(t, f.store.Subscribers())

	require.NoError(t, c.Activate(f.ctx))
	assert.Equal(t, 2, c.Constructed())
}

func TestMissingRegionAbortsOnlyThatView(t *testing.T) {
	f := newFixture(t)
	f.page.RemoveRegion(RegionID(model.ViewMap))
	cal, list, mp := f.component(model.ViewCalendar), f.component(model.ViewList), f.component(model.ViewMap)
	sw := NewSwitcher(f.page, cal, list, mp)

	require.NoError(t, sw.Activate(f.ctx, model.ViewCalendar))
	err := sw.Activate(f.ctx, model.ViewMap)
	assert.ErrorIs(t, err, ErrMissingRegion)
	assert.Equal(t, model.ViewCalendar, sw.Active())
	assert.Equal(t, StateVisible, cal.State())

	err = mp.Activate(f.ctx)
	assert.ErrorIs(t, err, ErrMissingRegion)
	assert.ErrorIs(t, mp.LastError(), ErrMissingRegion)
	assert.Equal(t, StateUninitialized, mp.State())

	require.NoError(t, sw.Activate(f.ctx, model.ViewList))
	assert.Equal(t, StateVisible, list.State())
}

func TestFilterBroadcastReplacesItems(t *testing.T) {
	f := newFixture(t)
	f.fetcher.byQuery[""] = []model.EventRecord{ev("1", "Talk", 17), ev("2", "Gig", 18)}
	f.fetcher.byQuery["?location=leeds"] = []model.EventRecord{ev("3", "Quiz", 19)}

	cal, list := f.component(model.ViewCalendar), f.component(model.ViewList)
	sw := NewSwitcher(f.page, cal, list)
	require.NoError(t, sw.Activate(f.ctx, model.ViewList))
	require.NoError(t, sw.Activate(f.ctx, model.ViewCalendar))
	assert.Equal(t, StateHidden, list.State())
	assert.Equal(t, []string{"1", "2"}, ids(cal.Items()))

	require.NoError(t, f.store.SetFilter(f.ctx, "?location=leeds"))

	assert.Equal(t, []string{"3"}, ids(cal.Items()))
	list.Renderer().(*ListRenderer).SetWeek(time.Date(2025, 2, 19, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, []string{"3"}, ids(list.Items()), "hidden views refetch too")
}

func TestLateStaleResponseIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.fetcher.byQuery["?location=london"] = []model.EventRecord{ev("L1", "London talk", 17)}
	f.fetcher.byQuery["?location=leeds"] = []model.EventRecord{ev("D1", "Leeds talk", 18)}
	gate := make(chan struct{})
	f.fetcher.gates["?location=london"] = gate

	c := f.component(model.ViewCalendar)
	sw := NewSwitcher(f.page, c)
	require.NoError(t, sw.Activate(f.ctx, model.ViewCalendar))

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.store.SetFilter(f.ctx, "?location=london")
	}()
	require.Equal(t, "?location=london", <-f.fetcher.started)

	require.NoError(t, f.store.SetFilter(f.ctx, "?location=leeds"))
	assert.Equal(t, []string{"D1"}, ids(c.Items()))

	close(gate)
	<-done

	assert.Equal(t, []string{"D1"}, ids(c.Items()))
	assert.NoError(t, c.LastError())
}

func TestFailedFetchKeepsLastGoodRender(t *testing.T) {
	f := newFixture(t)
	f.fetcher.byQuery[""] = []model.EventRecord{ev("1", "Talk", 17)}
	f.fetcher.errs["?fee_max=5"] = errors.Join(source.ErrFetchFailed, errors.New("503"))

	c := f.component(model.ViewList)
	require.NoError(t, NewSwitcher(f.page, c).Activate(f.ctx, model.ViewList))
	c.Renderer().(*ListRenderer).SetWeek(time.Date(2025, 2, 17, 0, 0, 0, 0, time.UTC))

	f.store.SetFilter(f.ctx, "?fee_max=5")
	assert.Equal(t, []string{"1"}, ids(c.Items()))
	assert.ErrorIs(t, c.LastError(), source.ErrFetchFailed)

	f.store.SetFilter(f.ctx, "?fee_max=50")
	assert.Empty(t, c.Items(), "an empty result is rendered as empty")
	assert.NoError(t, c.LastError())
}

func TestMyEventsFlagTagsFetch(t *testing.T) {
	f := newFixture(t)
	c := f.component(model.ViewList)
	require.NoError(t, c.Activate(f.ctx))

	require.NoError(t, f.store.SetMyEventsOnly(f.ctx, true))
	f.fetcher.mu.Lock()
	last := f.fetcher.calls[len(f.fetcher.calls)-1]
	f.fetcher.mu.Unlock()
	assert.True(t, last.MyEventsOnly)
}

func TestSwitcherShowsOneViewAndResizes(t *testing.T) {
	f := newFixture(t)
	var calR *countingRenderer
	cal := f.component(model.ViewCalendar).WithRenderer(func() Renderer {
		calR = &countingRenderer{Renderer: NewCalendarRenderer(testOptions())}
		return calR
	})
	list, mp := f.component(model.ViewList), f.component(model.ViewMap)
	sw := NewSwitcher(f.page, cal, list, mp)

	require.NoError(t, sw.Activate(f.ctx, model.ViewCalendar))
	require.NoError(t, sw.Activate(f.ctx, model.ViewList))
	require.NoError(t, sw.Activate(f.ctx, model.ViewCalendar))

	assert.Equal(t, model.ViewCalendar, sw.Active())
	assert.Equal(t, StateVisible, cal.State())
	assert.Equal(t, StateHidden, list.State())
	assert.Equal(t, StateUninitialized, mp.State())
	assert.True(t, cal.Selected())
	assert.False(t, list.Selected())
	assert.Equal(t, 1, calR.inits)
	assert.GreaterOrEqual(t, calR.resizes, 2, "resized on every activation")
}

func TestHiddenInitNeedsResize(t *testing.T) {
	f := newFixture(t)
	c := f.component(model.ViewCalendar)
	require.NoError(t, c.Activate(f.ctx))
	assert.Equal(t, StateHidden, c.State())
	assert.Empty(t, c.Render(), "laid out with zero width")

	region, err := f.page.Region(RegionID(model.ViewCalendar))
	require.NoError(t, err)
	region.Show()
	assert.Empty(t, c.Render(), "layout is stale until resized")

	c.Resize()
	assert.Contains(t, c.Render(), "February 2025")
}

func TestCalendarGrid(t *testing.T) {
	r := NewCalendarRenderer(testOptions())
	r.SetMonth(time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC))
	days := r.Days()
	require.Len(t, days, 42)
	assert.Equal(t, time.Date(2025, 1, 27, 0, 0, 0, 0, time.UTC), days[0])
	assert.Equal(t, time.Monday, days[0].Weekday())
	assert.Equal(t, time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC), days[41])

	opts := testOptions()
	opts.WeekStart = time.Sunday
	r = NewCalendarRenderer(opts)
	r.SetMonth(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 1, 26, 0, 0, 0, 0, time.UTC), r.Days()[0])
}

func TestCalendarRenderAndNavigation(t *testing.T) {
	f := newFixture(t)
	f.fetcher.byQuery[""] = []model.EventRecord{ev("1", "Talk", 17), ev("9", "Later", 28)}
	c := f.component(model.ViewCalendar)
	require.NoError(t, NewSwitcher(f.page, c).Activate(f.ctx, model.ViewCalendar))

	out := c.Render()
	assert.Contains(t, out, "Mon")
	assert.Contains(t, out, "·Talk")

	cal := c.Renderer().(*CalendarRenderer)
	cal.Next()
	cal.Next()
	assert.NotContains(t, c.Render(), "·Talk")
	assert.Empty(t, c.Items())
	cal.Today()
	assert.Len(t, c.Items(), 2)
}

func TestListRender(t *testing.T) {
	f := newFixture(t)
	allDay := ev("2", "Fair", 18)
	allDay.StartAt = time.Date(2025, 2, 18, 0, 0, 0, 0, time.UTC)
	allDay.EndAt = time.Date(2025, 2, 18, 23, 59, 59, 0, time.UTC)
	paid := ev("1", "Talk", 17)
	paid.Fee = 7.5
	f.fetcher.byQuery[""] = []model.EventRecord{allDay, paid}

	c := f.component(model.ViewList)
	require.NoError(t, NewSwitcher(f.page, c).Activate(f.ctx, model.ViewList))
	c.Renderer().(*ListRenderer).SetWeek(time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, []string{"1", "2"}, ids(c.Items()))
	out := c.Render()
	assert.Contains(t, out, "17 Feb - 23 Feb 2025")
	assert.Contains(t, out, "18:00 - 19:00")
	assert.Contains(t, out, "£7.50")
	assert.Contains(t, out, "all-day")
	assert.True(t, strings.Index(out, "Talk") < strings.Index(out, "Fair"))
}

func TestMapExcludesRecordsWithoutCoordinates(t *testing.T) {
	f := newFixture(t)
	f.fetcher.byQuery[""] = []model.EventRecord{
		withCoords(ev("1", "Talk", 17), 51.509865, -0.118092),
		ev("2", "Nowhere", 18),
		withCoords(ev("3", "Far", 19), 57.1497, -2.0943),
	}
	c := f.component(model.ViewMap)
	require.NoError(t, NewSwitcher(f.page, c).Activate(f.ctx, model.ViewMap))

	assert.Equal(t, []string{"1", "3"}, ids(c.Items()))
	_, err := c.Select("2")
	assert.ErrorIs(t, err, ErrUnknownEvent)

	mr := c.Renderer().(*MapRenderer)
	markers := mr.Markers()
	require.Len(t, markers, 2)
	assert.True(t, markers[0].InView)
	assert.Equal(t, 84/2, markers[0].Col)
	assert.Equal(t, "6/31/21", markers[0].Tile)
	assert.Contains(t, c.Render(), "2 event(s) placed")

	d, err := c.Select("1")
	require.NoError(t, err)
	assert.Equal(t, "Talk", d.Title)
}

func TestMapFollowsSearchedLocation(t *testing.T) {
	f := newFixture(t)
	c := f.component(model.ViewMap)
	require.NoError(t, NewSwitcher(f.page, c).Activate(f.ctx, model.ViewMap))

	mr := c.Renderer().(*MapRenderer)
	lat, lon, zoom := mr.Center()
	assert.Equal(t, 51.509865, lat)
	assert.Equal(t, -0.118092, lon)
	assert.Equal(t, 6, zoom)

	require.NoError(t, f.store.SetSearchedLocation(f.ctx, model.SearchedLocation{Lat: 53.48, Lon: -2.24, Name: "Manchester"}))
	lat, lon, zoom = mr.Center()
	assert.Equal(t, 53.48, lat)
	assert.Equal(t, -2.24, lon)
	assert.Equal(t, 13, zoom)
	assert.Contains(t, c.Render(), "near Manchester")
}

func TestDetailSurface(t *testing.T) {
	rec := ev("1", "Talk", 17)
	rec.Location = "Hall A"
	d := NewDetail(rec, "£")
	assert.Equal(t, "Free", d.Fee)
	assert.Equal(t, "Hall A", d.Location)
	assert.Equal(t, "2025-02-17", d.Date)
	assert.Equal(t, "18:00", d.Time)
	assert.Equal(t, "TBA", d.Hosts)
	assert.Equal(t, "Event Type", d.EventType)
	assert.Equal(t, Registration{EventID: "1", Name: "Talk", Price: 0, Description: model.PlaceholderDescription}, d.Registration)

	rec.Fee = 12
	rec.HostNames = []string{"Chess", "Go"}
	d = NewDetail(rec, "£")
	assert.Equal(t, "£12.00", d.Fee)
	assert.Equal(t, "Chess, Go", d.Hosts)
	assert.Contains(t, d.String(), "Location:    Hall A")
}
