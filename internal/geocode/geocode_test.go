package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"societycal/internal/config"
)

func newTestClient(srv *httptest.Server) *Client {
	cfg := config.DefaultConfig().Geocode
	cfg.SearchURL = srv.URL + "/search"
	return NewClient(cfg)
}

func TestSearchFirstResultWins(t *testing.T) {
	var got url.Values
	var agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		agent = r.UserAgent()
		io.WriteString(w, `[
			{"lat":"53.4794892","lon":"-2.2451148","display_name":"Manchester, Greater Manchester, England"},
			{"lat":"42.99","lon":"-71.46","display_name":"Manchester, New Hampshire"}
		]`)
	}))
	defer srv.Close()

	loc, err := newTestClient(srv).Search(context.Background(), " Manchester ")
	require.NoError(t, err)
	assert.InDelta(t, 53.4794892, loc.Lat, 1e-9)
	assert.InDelta(t, -2.2451148, loc.Lon, 1e-9)
	assert.Equal(t, "Manchester, Greater Manchester, England", loc.Name)

	assert.Equal(t, "Manchester", got.Get("q"))
	assert.Equal(t, "json", got.Get("format"))
	assert.Empty(t, got.Get("countrycodes"))
	assert.Equal(t, "societycal/0.1", agent)
}

func TestSearchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Search(context.Background(), "Nowhereville")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Search(context.Background(), "Leeds")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSuggest(t *testing.T) {
	var got url.Values
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		got = r.URL.Query()
		io.WriteString(w, `[
			{"lat":"51.5246","lon":"-0.1340","display_name":"Gower Street, London"},
			{"lat":"bad","lon":"-0.1","display_name":"skipped"},
			{"lat":51.52,"lon":-0.13,"display_name":"Gower Place, London"}
		]`)
	}))
	defer srv.Close()
	c := newTestClient(srv)
	ctx := context.Background()

	places, err := c.Suggest(ctx, "Go", "London")
	require.NoError(t, err)
	assert.Empty(t, places)
	assert.Zero(t, calls, "short queries never reach the service")

	places, err = c.Suggest(ctx, "Gower", "London")
	require.NoError(t, err)
	require.Len(t, places, 2)
	assert.Equal(t, "Gower Street, London", places[0].Name)
	assert.Equal(t, "Gower Place, London", places[1].Name)
	assert.Equal(t, "London, Gower", got.Get("q"))
	assert.Equal(t, "gb", got.Get("countrycodes"))

	_, err = c.Suggest(ctx, "Gower", "")
	require.NoError(t, err)
	assert.Equal(t, "Gower", got.Get("q"))
}
