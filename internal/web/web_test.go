package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"societycal/internal/board"
	"societycal/internal/config"
	"societycal/internal/confirm"
	"societycal/internal/session"
	"societycal/internal/source"
)

const feed = `{"results":[
 {"id":1,"name":"Talk","date":"2025-02-17","start_time":"18:00:00","location":"Hall A","fee":0},
 {"id":2,"name":"Derby","date":"2025-02-12","start_time":"15:00:00","location":"Pitch 2","fee":4,"event_type":"('sports', 'Sports')","latitude":51.5,"longitude":-0.12}
]}`

func newTestServer(t *testing.T, mutate func(*config.Config)) (*httptest.Server, *board.Board) {
	t.Helper()
	api := http.NewServeMux()
	api.HandleFunc("/events/api/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("event_type") == "sports" {
			io.WriteString(w, `[{"id":2,"name":"Derby","date":"2025-02-12","start_time":"15:00:00","fee":4}]`)
			return
		}
		io.WriteString(w, feed)
	})
	api.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	})
	upstream := httptest.NewServer(api)
	t.Cleanup(upstream.Close)

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.CacheDir = ""
	cfg.API.BaseURL = upstream.URL
	cfg.Geocode.SearchURL = upstream.URL + "/search"
	if mutate != nil {
		mutate(cfg)
	}

	b, err := board.New(context.Background(), cfg, board.Options{
		Backend:  session.NewMemoryBackend(),
		Prompter: confirm.AutoApprove{},
		Now:      func() time.Time { return time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	srv := httptest.NewServer(NewServer(cfg, b).Handler())
	t.Cleanup(srv.Close)
	return srv, b
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func postJSON(t *testing.T, url, body string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, body := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)
}

func TestBasicAuthSkipsHealth(t *testing.T) {
	srv, _ := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	})

	resp, _ := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = get(t, srv.URL+"/api/filter")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/filter", nil)
	req.SetBasicAuth("admin", "secret")
	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	authed.Body.Close()
	assert.Equal(t, http.StatusOK, authed.StatusCode)
}

func TestViewPageIsReadyForCapture(t *testing.T) {
	srv, b := newTestServer(t, nil)

	resp, body := get(t, srv.URL+"/view/list")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, `id="listContainer"`)
	assert.Contains(t, body, "Derby")
	assert.Equal(t, "list", string(b.Switcher().Active()))

	resp, _ = get(t, srv.URL+"/view/agenda")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFilterChangeRefetchesViews(t *testing.T) {
	srv, b := newTestServer(t, nil)
	_, _ = get(t, srv.URL+"/view/calendar")

	resp, body := postJSON(t, srv.URL+"/api/filter", `{"facet":"Category","option":"Sports","fee_max":50}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	var state filterResponse
	require.NoError(t, json.Unmarshal([]byte(body), &state))
	assert.Equal(t, "?event_type=sports&fee_max=50", state.Query)
	assert.Equal(t, "Sports", state.Facets[0].Selected)
	assert.Equal(t, "£0 - £50", state.Fee.Label)

	c, _ := b.Active()
	require.Len(t, c.Items(), 1)
	assert.Equal(t, "Derby", c.Items()[0].Title)

	resp, body = postJSON(t, srv.URL+"/api/filter", `{"facet":"Category"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal([]byte(body), &state))
	assert.Equal(t, "?fee_max=50", state.Query)
}

func TestFilterChangeRejectsUnknownFacet(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, body := postJSON(t, srv.URL+"/api/filter", `{"facet":"Colour","option":"Red"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Colour")

	resp, _ = postJSON(t, srv.URL+"/api/filter", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEventsRoundTripThroughSource(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, body := get(t, srv.URL+"/api/events")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	records, err := source.Parse([]byte(body), time.UTC)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Talk", records[0].Title)
	assert.Equal(t, "sports", records[1].EventType)
}

func TestEventDetail(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	_, _ = get(t, srv.URL+"/view/calendar")

	resp, body := get(t, srv.URL+"/api/events/2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"fee":"£4.00"`)
	assert.Contains(t, body, `"event_type":"sports"`)

	resp, _ = get(t, srv.URL+"/api/events/99")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestViewSwitchAPI(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, body := postJSON(t, srv.URL+"/api/view", `{"view":"map"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state viewsResponse
	require.NoError(t, json.Unmarshal([]byte(body), &state))
	assert.Equal(t, "map", state.Active)
	for _, v := range state.Views {
		if v.Kind == "map" {
			assert.True(t, v.Selected)
			assert.Equal(t, "initialized-visible", v.State)
			assert.Equal(t, 1, v.Count)
		} else {
			assert.False(t, v.Selected)
			assert.Equal(t, "uninitialized", v.State)
		}
	}

	resp, _ = postJSON(t, srv.URL+"/api/view", `{"view":"timeline"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLocationNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, body := postJSON(t, srv.URL+"/api/location", `{"query":"Atlantis"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Location not found.")
}

func TestSuggestShortQuery(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, body := get(t, srv.URL+"/api/suggest?address=ab")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, body)
}

func TestUnknownAPIPathIsJSON404(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, body := get(t, srv.URL+"/api/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"not found"}`, body)
}

func TestExportICS(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, body := get(t, srv.URL+"/export.ics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/calendar"))
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "SUMMARY:Derby")
}

func TestBrotliCompression(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
	req.Header.Set("Accept-Encoding", "br")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "br", resp.Header.Get("Content-Encoding"))
	plain, err := io.ReadAll(brotli.NewReader(resp.Body))
	require.NoError(t, err)
	assert.Contains(t, string(plain), "Society events")
}
