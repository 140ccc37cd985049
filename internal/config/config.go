package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// APIConfig describes the events server this client talks to.
type APIConfig struct {
	// BaseURL is the site root, e.g. "https://societies.example.ac.uk".
	BaseURL string `yaml:"base_url" json:"base_url" validate:"required,url"`
	// EventsPath is the collection endpoint; the filter query is appended
	// verbatim, e.g. "/events/api/" + "?location=london". Registration posts
	// to EventsPath + id + "/register/".
	EventsPath string `yaml:"events_path" json:"events_path" validate:"required,startswith=/"`
	// SocietiesPath is joined with a society id for join requests.
	SocietiesPath string `yaml:"societies_path" json:"societies_path" validate:"required,startswith=/"`

	CSRFCookie string `yaml:"csrf_cookie" json:"csrf_cookie"`
	CSRFHeader string `yaml:"csrf_header" json:"csrf_header"`

	// SessionCookie is forwarded as "sessionid" so that registration and
	// "my events" requests run as the signed-in user.
	SessionCookie string `yaml:"session_cookie,omitempty" json:"-"`

	// MyEventsParam is appended to the feed query when the "my events only"
	// flag is set.
	MyEventsParam string `yaml:"my_events_param" json:"my_events_param"`

	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds" validate:"gte=0"`

	// UserID is sent in registration bodies.
	UserID int `yaml:"user_id" json:"user_id" validate:"gte=0"`
}

// GeocodeConfig describes the address lookup service (Nominatim compatible).
type GeocodeConfig struct {
	SearchURL      string `yaml:"search_url" json:"search_url" validate:"required,url"`
	CountryCodes   string `yaml:"country_codes" json:"country_codes"`
	UserAgent      string `yaml:"user_agent" json:"user_agent"`
	MinQueryLength int    `yaml:"min_query_length" json:"min_query_length" validate:"gte=0"`
}

// SessionConfig selects where session-scoped state (filter, searched
// location, my-events flag) is kept.
type SessionConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend" json:"backend" validate:"oneof=memory sqlite"`
	// Path is the sqlite file used when Backend is "sqlite".
	Path string `yaml:"path" json:"path"`
}

// OptionConfig maps one selectable facet label to its fixed query clause.
// An empty Clause means the option is shown but never constrains the query.
type OptionConfig struct {
	Label  string `yaml:"label" json:"label" validate:"required"`
	Clause string `yaml:"clause" json:"clause"`
}

// FacetConfig is one filter dimension shown in the control panel.
type FacetConfig struct {
	Label   string         `yaml:"label" json:"label" validate:"required"`
	Options []OptionConfig `yaml:"options" json:"options" validate:"required,min=1,dive"`
}

// FeeConfig bounds the coupled fee range controls.
type FeeConfig struct {
	Min  int `yaml:"min" json:"min" validate:"gte=0"`
	Max  int `yaml:"max" json:"max" validate:"gtfield=Min"`
	Step int `yaml:"step" json:"step" validate:"gt=0"`
}

// FiltersConfig is the full panel declaration, in page order.
type FiltersConfig struct {
	Facets []FacetConfig `yaml:"facets" json:"facets" validate:"dive"`
	Fee    FeeConfig     `yaml:"fee" json:"fee"`
}

// MapConfig is the initial map viewport.
type MapConfig struct {
	CenterLat float64 `yaml:"center_lat" json:"center_lat" validate:"gte=-90,lte=90"`
	CenterLon float64 `yaml:"center_lon" json:"center_lon" validate:"gte=-180,lte=180"`
	Zoom      int     `yaml:"zoom" json:"zoom" validate:"gte=0,lte=19"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the local web front end.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for `serve`.
	Listen string `yaml:"listen" json:"listen" validate:"required"`

	// Timezone is the IANA timezone in which wall-clock event times are
	// interpreted and displayed (e.g. "Europe/London").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday opens a calendar grid row:
	// "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start" validate:"oneof=monday sunday"`

	// RefreshCron is a cron-style schedule (e.g. "*/15 * * * *") on which
	// `serve` re-fetches every initialized view. Empty disables it.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// DefaultView is the view activated on first load.
	DefaultView string `yaml:"default_view" json:"default_view" validate:"oneof=calendar list map"`

	// CurrencySymbol prefixes non-zero fees in the detail surface.
	CurrencySymbol string `yaml:"currency_symbol" json:"currency_symbol"`

	// CacheDir holds the conditional-GET cache for event feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	API     APIConfig     `yaml:"api" json:"api"`
	Geocode GeocodeConfig `yaml:"geocode" json:"geocode"`
	Session SessionConfig `yaml:"session" json:"session"`
	Filters FiltersConfig `yaml:"filters" json:"filters"`
	Map     MapConfig     `yaml:"map" json:"map"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

var validate = validator.New()

// DefaultFacets mirrors the panel shipped with the site.
func DefaultFacets() []FacetConfig {
	return []FacetConfig{
		{Label: "Category", Options: []OptionConfig{
			{Label: "Sports", Clause: "event_type=sports"},
			{Label: "Academic", Clause: "event_type=academic"},
			{Label: "Arts", Clause: "event_type=arts"},
			{Label: "Cultural", Clause: "event_type=cultural"},
			{Label: "Social", Clause: "event_type=social"},
			{Label: "Other", Clause: "event_type=other"},
		}},
		{Label: "Audience", Options: []OptionConfig{
			{Label: "General", Clause: "member_only=false"},
			{Label: "Members only", Clause: "member_only=true"},
		}},
		{Label: "Location", Options: []OptionConfig{
			{Label: "London", Clause: "location=london"},
			{Label: "Manchester", Clause: "location=manchester"},
			{Label: "Birmingham", Clause: "location=birmingham"},
			{Label: "Liverpool", Clause: "location=liverpool"},
			{Label: "Online", Clause: "location=online"},
		}},
		{Label: "Availability", Options: []OptionConfig{
			{Label: "Available", Clause: "availability=available"},
			{Label: "Full", Clause: "availability=full"},
			{Label: "Waiting List", Clause: "availability=waiting"},
		}},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         "127.0.0.1:8080",
		Timezone:       "Europe/London",
		WeekStart:      "monday",
		RefreshCron:    "*/15 * * * *",
		DefaultView:    "calendar",
		CurrencySymbol: "£",
		CacheDir:       "./var/feed-cache",
		API: APIConfig{
			BaseURL:        "http://127.0.0.1:8000",
			EventsPath:     "/events/api/",
			SocietiesPath:  "/societies/",
			CSRFCookie:     "csrftoken",
			CSRFHeader:     "X-CSRFToken",
			MyEventsParam:  "my_events=true",
			TimeoutSeconds: 15,
			UserID:         1,
		},
		Geocode: GeocodeConfig{
			SearchURL:      "https://nominatim.openstreetmap.org/search",
			CountryCodes:   "gb",
			UserAgent:      "societycal/0.1",
			MinQueryLength: 3,
		},
		Session: SessionConfig{
			Backend: "memory",
			Path:    "./var/session.db",
		},
		Filters: FiltersConfig{
			Facets: DefaultFacets(),
			Fee:    FeeConfig{Min: 0, Max: 100, Step: 5},
		},
		Map: MapConfig{
			CenterLat: 51.509865,
			CenterLon: -0.118092,
			Zoom:      6,
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	switch strings.ToLower(c.WeekStart) {
	case "monday", "sunday":
		c.WeekStart = strings.ToLower(c.WeekStart)
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = "monday"
	}
	switch c.DefaultView {
	case "calendar", "list", "map":
	default:
		c.DefaultView = def.DefaultView
	}
	if c.CurrencySymbol == "" {
		c.CurrencySymbol = def.CurrencySymbol
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}

	if c.API.BaseURL == "" {
		c.API.BaseURL = def.API.BaseURL
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.EventsPath == "" {
		c.API.EventsPath = def.API.EventsPath
	}
	if c.API.SocietiesPath == "" {
		c.API.SocietiesPath = def.API.SocietiesPath
	}
	if c.API.CSRFCookie == "" {
		c.API.CSRFCookie = def.API.CSRFCookie
	}
	if c.API.CSRFHeader == "" {
		c.API.CSRFHeader = def.API.CSRFHeader
	}
	if c.API.MyEventsParam == "" {
		c.API.MyEventsParam = def.API.MyEventsParam
	}
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = def.API.TimeoutSeconds
	}

	if c.Geocode.SearchURL == "" {
		c.Geocode.SearchURL = def.Geocode.SearchURL
	}
	if c.Geocode.UserAgent == "" {
		c.Geocode.UserAgent = def.Geocode.UserAgent
	}
	if c.Geocode.MinQueryLength <= 0 {
		c.Geocode.MinQueryLength = def.Geocode.MinQueryLength
	}

	if c.Session.Backend == "" {
		c.Session.Backend = def.Session.Backend
	}
	if c.Session.Path == "" {
		c.Session.Path = def.Session.Path
	}

	if c.Filters.Facets == nil {
		c.Filters.Facets = DefaultFacets()
	}
	if c.Filters.Fee.Step <= 0 {
		c.Filters.Fee.Step = def.Filters.Fee.Step
	}
	if c.Filters.Fee.Max <= c.Filters.Fee.Min {
		c.Filters.Fee.Min = def.Filters.Fee.Min
		c.Filters.Fee.Max = def.Filters.Fee.Max
	}

	if c.Map.Zoom <= 0 {
		c.Map.Zoom = def.Map.Zoom
	}
	if c.Map.CenterLat == 0 && c.Map.CenterLon == 0 {
		c.Map.CenterLat = def.Map.CenterLat
		c.Map.CenterLon = def.Map.CenterLon
	}
}

// Validate checks struct-level constraints after Normalize.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := make(map[string]bool, len(c.Filters.Facets))
	for _, f := range c.Filters.Facets {
		if seen[f.Label] {
			return fmt.Errorf("invalid config: duplicate facet %q", f.Label)
		}
		seen[f.Label] = true
	}
	return nil
}

// Environment variables that override file values. They are read after an
// optional .env file has been loaded.
const (
	EnvAPIURL        = "SOCIETYCAL_API_URL"
	EnvSessionCookie = "SOCIETYCAL_SESSION_COOKIE"
	EnvListen        = "SOCIETYCAL_LISTEN"
	EnvSessionPath   = "SOCIETYCAL_SESSION_PATH"
)

// ApplyEnv loads envFile (if non-empty and present) into the process
// environment and applies the SOCIETYCAL_* overrides.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.API.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv(EnvSessionCookie); v != "" {
		c.API.SessionCookie = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvSessionPath); v != "" {
		c.Session.Path = v
		c.Session.Backend = "sqlite"
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".societycal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
