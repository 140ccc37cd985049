package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"societycal/internal/board"
	"societycal/internal/config"
	"societycal/internal/filter"
	"societycal/internal/geocode"
	appLog "societycal/internal/log"
	"societycal/internal/model"
	"societycal/internal/source"
	"societycal/internal/view"
)

// Server exposes a loaded board over HTTP: the three views as HTML pages,
// the filter panel and view switcher as a JSON API, and an ICS export.
type Server struct {
	cfg   *config.Config
	board *board.Board
	mux   *http.ServeMux
	tmpl  *template.Template
}

// embeddedStatic holds the landing page and stylesheet.
//
//go:embed all:static
var embeddedStatic embed.FS

//go:embed templates/view.html
var viewTemplate string

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, b *board.Board) *Server {
	s := &Server{
		cfg:   cfg,
		board: b,
		mux:   http.NewServeMux(),
		tmpl:  template.Must(template.New("view").Parse(viewTemplate)),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := WithCompression(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials leave auth off.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="societycal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves until ctx is cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, b *board.Board) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           NewServer(cfg, b).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleEventDetail)
	s.mux.HandleFunc("GET /api/filter", s.handleFilter)
	s.mux.HandleFunc("POST /api/filter", s.handleFilterChange)
	s.mux.HandleFunc("GET /api/view", s.handleViews)
	s.mux.HandleFunc("POST /api/view", s.handleViewChange)
	s.mux.HandleFunc("POST /api/location", s.handleLocation)
	s.mux.HandleFunc("GET /api/suggest", s.handleSuggest)
	s.mux.HandleFunc("GET /view/{kind}", s.handleViewPage)
	s.mux.HandleFunc("GET /export.ics", s.handleExport)

	// Everything else falls back to the embedded landing page.
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// staticFileServer serves the embedded files under internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		// Unknown /api/* paths are 404s, never HTML.
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

// handleEvents returns the filtered set in the server's envelope shape so
// the output can be fed back through the event source.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	records, err := s.board.Events(r.Context())
	if err != nil {
		writeFetchError(w, err)
		return
	}
	body, err := source.Marshal(records)
	if err != nil {
		appLog.Error("api events: marshal failed", err)
		writeError(w, http.StatusInternalServerError, "failed to encode events")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleEventDetail is the detail surface for one event in the active view.
func (s *Server) handleEventDetail(w http.ResponseWriter, r *http.Request) {
	d, err := s.board.Detail(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type facetDTO struct {
	Label    string   `json:"label"`
	Options  []string `json:"options"`
	Selected string   `json:"selected,omitempty"`
}

type feeDTO struct {
	Lower int    `json:"lower"`
	Upper int    `json:"upper"`
	Step  int    `json:"step"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
	Label string `json:"label"`
}

// filterResponse is the JSON shape for /api/filter.
type filterResponse struct {
	Query        string     `json:"query"`
	MyEventsOnly bool       `json:"my_events_only"`
	Facets       []facetDTO `json:"facets"`
	Fee          feeDTO     `json:"fee"`
}

func (s *Server) filterState() filterResponse {
	panel := s.board.Panel()
	resp := filterResponse{
		Query:        s.board.Store().Filter(),
		MyEventsOnly: s.board.Store().MyEventsOnly(),
	}
	for _, f := range panel.Facets() {
		sel, _ := f.Selected()
		resp.Facets = append(resp.Facets, facetDTO{Label: f.Label(), Options: f.Options(), Selected: sel})
	}
	fee := panel.Fee()
	resp.Fee = feeDTO{
		Lower: fee.Lower, Upper: fee.Upper, Step: fee.Step,
		Min: fee.Min, Max: fee.Max,
		Label: panel.FeeLabel(),
	}
	return resp
}

func (s *Server) handleFilter(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.filterState())
}

// filterChange is one control interaction. A null option clears the facet.
type filterChange struct {
	Facet        string  `json:"facet"`
	Option       *string `json:"option"`
	FeeMin       *int    `json:"fee_min"`
	FeeMax       *int    `json:"fee_max"`
	ClearAll     bool    `json:"clear_all"`
	MyEventsOnly *bool   `json:"my_events_only"`
}

// handleFilterChange applies a control change; every initialized view
// refetches before the response is written.
func (s *Server) handleFilterChange(w http.ResponseWriter, r *http.Request) {
	var req filterChange
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ctx := r.Context()
	panel := s.board.Panel()

	var err error
	switch {
	case req.ClearAll:
		err = panel.ClearAll(ctx)
	case req.Facet != "" && req.Option != nil:
		err = panel.Select(ctx, req.Facet, *req.Option)
	case req.Facet != "":
		err = panel.Clear(ctx, req.Facet)
	}
	if err == nil && req.FeeMin != nil {
		err = panel.SetFeeMin(ctx, *req.FeeMin)
	}
	if err == nil && req.FeeMax != nil {
		err = panel.SetFeeMax(ctx, *req.FeeMax)
	}
	if err == nil && req.MyEventsOnly != nil {
		err = s.board.SetMyEventsOnly(ctx, *req.MyEventsOnly)
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, filter.ErrUnknownFacet) || errors.Is(err, filter.ErrUnknownOption) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.filterState())
}

type viewDTO struct {
	Kind      string `json:"kind"`
	State     string `json:"state"`
	Selected  bool   `json:"selected"`
	Count     int    `json:"count"`
	LastError string `json:"last_error,omitempty"`
}

// viewsResponse is the JSON shape for /api/view.
type viewsResponse struct {
	Active string    `json:"active"`
	Views  []viewDTO `json:"views"`
}

func (s *Server) viewState() viewsResponse {
	sw := s.board.Switcher()
	resp := viewsResponse{Active: string(sw.Active())}
	for _, c := range sw.Components() {
		dto := viewDTO{
			Kind:     string(c.Kind()),
			State:    c.State().String(),
			Selected: c.Selected(),
			Count:    len(c.Items()),
		}
		if err := c.LastError(); err != nil {
			dto.LastError = err.Error()
		}
		resp.Views = append(resp.Views, dto)
	}
	return resp
}

func (s *Server) handleViews(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.viewState())
}

func (s *Server) handleViewChange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		View string `json:"view"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	kind, err := model.ParseViewKind(req.View)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.board.Show(r.Context(), kind); err != nil && errors.Is(err, view.ErrMissingRegion) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.viewState())
}

// handleLocation is "search on map".
func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	loc, err := s.board.SearchLocation(r.Context(), req.Query)
	switch {
	case errors.Is(err, geocode.ErrNotFound):
		writeError(w, http.StatusNotFound, "Location not found.")
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	places, err := s.board.Suggest(r.Context(), q.Get("address"), q.Get("city"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if places == nil {
		places = []geocode.Place{}
	}
	writeJSON(w, http.StatusOK, places)
}

type viewPage struct {
	Kind         model.ViewKind
	Views        []model.ViewKind
	Region       string
	Query        string
	FeeLabel     string
	MyEventsOnly bool
	Error        string
	Body         string
}

// handleViewPage activates the view and renders it. The <pre> carries
// data-ready="true" so headless captures know when to shoot.
func (s *Server) handleViewPage(w http.ResponseWriter, r *http.Request) {
	kind, err := model.ParseViewKind(r.PathValue("kind"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	showErr := s.board.Show(r.Context(), kind)
	if errors.Is(showErr, view.ErrMissingRegion) {
		http.Error(w, showErr.Error(), http.StatusInternalServerError)
		return
	}
	c, _ := s.board.Switcher().Component(kind)

	page := viewPage{
		Kind:         kind,
		Views:        model.AllViews,
		Region:       view.RegionID(kind),
		Query:        s.board.Store().Filter(),
		FeeLabel:     s.board.Panel().FeeLabel(),
		MyEventsOnly: s.board.Store().MyEventsOnly(),
		Body:         c.Render(),
	}
	if err := c.LastError(); err != nil {
		page.Error = "Could not load events: " + err.Error()
	}

	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, page); err != nil {
		appLog.Error("view page render failed", err, "view", string(kind))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	n, err := s.board.ExportICS(r.Context(), &buf)
	if err != nil {
		writeFetchError(w, err)
		return
	}
	appLog.Info("ics export served", "events", n, "query", s.board.Store().Filter())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="events.ics"`)
	_, _ = w.Write(buf.Bytes())
}

func writeFetchError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, source.ErrFetchFailed) || errors.Is(err, source.ErrMalformedPayload) {
		status = http.StatusBadGateway
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
