package cli

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"societycal/internal/config"
)

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

const testFeed = `{"results":[
 {"id":1,"name":"Talk","date":"2025-02-17","start_time":"18:00:00","location":"Hall A","fee":0},
 {"id":2,"name":"Derby","date":"2025-02-12","start_time":"15:00:00","location":"Pitch 2","fee":4,"latitude":51.5,"longitude":-0.12}
]}`

// fakeAPI records what the CLI asked the events server for.
type fakeAPI struct {
	mu      sync.Mutex
	queries []string
	posts   []string
	srv     *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	a := &fakeAPI{}
	mux := http.NewServeMux()
	mux.HandleFunc("/events/api/", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()
		if r.Method == http.MethodPost {
			a.posts = append(a.posts, r.URL.Path)
			io.WriteString(w, `{"message":"You are registered."}`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "tok", Path: "/"})
		a.queries = append(a.queries, r.URL.RawQuery)
		if r.URL.Query().Get("location") == "london" {
			io.WriteString(w, `[{"id":1,"name":"Talk","date":"2025-02-17","start_time":"18:00:00","location":"Hall A"}]`)
			return
		}
		io.WriteString(w, testFeed)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "Atlantis" {
			io.WriteString(w, `[]`)
			return
		}
		io.WriteString(w, `[{"lat":"53.4808","lon":"-2.2426","display_name":"Manchester, Greater Manchester"}]`)
	})
	a.srv = httptest.NewServer(mux)
	t.Cleanup(a.srv.Close)
	return a
}

func (a *fakeAPI) snapshot() (queries, posts []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.queries...), append([]string(nil), a.posts...)
}

func (a *fakeAPI) config(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.CacheDir = t.TempDir()
	cfg.API.BaseURL = a.srv.URL
	cfg.Geocode.SearchURL = a.srv.URL + "/search"
	return cfg
}

// writeConfig saves a config pointing at the fake API and returns its path.
func (a *fakeAPI) writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "societycal.yaml")
	require.NoError(t, config.Save(path, a.config(t)))
	return path
}
