// Package geocode looks up addresses with a Nominatim-compatible search
// service, for map search and address autocomplete.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"societycal/internal/config"
	appLog "societycal/internal/log"
	"societycal/internal/model"
)

// ErrNotFound is returned when the service has no match. Callers show it
// to the user as "Location not found."
var ErrNotFound = errors.New("location not found")

// Place is one search hit.
type Place struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Name string  `json:"name"`
}

// hit is the service's JSON form; coordinates arrive as strings.
type hit struct {
	Lat         json.Number `json:"lat"`
	Lon         json.Number `json:"lon"`
	DisplayName string      `json:"display_name"`
}

type Client struct {
	cfg  config.GeocodeConfig
	http *http.Client
}

func NewClient(cfg config.GeocodeConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Search geocodes free text for the map. The first result wins.
func (c *Client) Search(ctx context.Context, text string) (model.SearchedLocation, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.SearchedLocation{}, errors.New("geocode: empty query")
	}
	places, err := c.lookup(ctx, text, false)
	if err != nil {
		return model.SearchedLocation{}, err
	}
	if len(places) == 0 {
		appLog.Warn("geocode: no match", "query", text)
		return model.SearchedLocation{}, ErrNotFound
	}
	p := places[0]
	return model.SearchedLocation{Lat: p.Lat, Lon: p.Lon, Name: p.Name}, nil
}

// Suggest returns address candidates for autocomplete. Queries shorter than
// the configured minimum return nothing. A non-empty city is prefixed to
// the address and results are limited to the configured countries.
func (c *Client) Suggest(ctx context.Context, address, city string) ([]Place, error) {
	address = strings.TrimSpace(address)
	if len([]rune(address)) < c.cfg.MinQueryLength {
		return nil, nil
	}
	q := address
	if city = strings.TrimSpace(city); city != "" {
		q = city + ", " + address
	}
	return c.lookup(ctx, q, true)
}

func (c *Client) lookup(ctx context.Context, q string, restrict bool) ([]Place, error) {
	u, err := url.Parse(c.cfg.SearchURL)
	if err != nil {
		return nil, fmt.Errorf("geocode: search url: %w", err)
	}
	params := u.Query()
	params.Set("q", q)
	params.Set("format", "json")
	if restrict && c.cfg.CountryCodes != "" {
		params.Set("countrycodes", c.cfg.CountryCodes)
		params.Set("addressdetails", "1")
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode: %s", resp.Status)
	}

	var hits []hit
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&hits); err != nil {
		return nil, fmt.Errorf("geocode: decode response: %w", err)
	}

	places := make([]Place, 0, len(hits))
	for _, h := range hits {
		lat, err1 := strconv.ParseFloat(h.Lat.String(), 64)
		lon, err2 := strconv.ParseFloat(h.Lon.String(), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		places = append(places, Place{Lat: lat, Lon: lon, Name: h.DisplayName})
	}
	return places, nil
}
