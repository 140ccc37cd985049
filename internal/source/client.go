package source

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"societycal/internal/config"
	appLog "societycal/internal/log"
	"societycal/internal/model"
)

const maxBodyBytes = 8 << 20

// sessionCookieName is the server's login cookie.
const sessionCookieName = "sessionid"

// Request selects which events to fetch.
type Request struct {
	// Query is a FilterQuery: "" or "?clause&clause".
	Query string
	// MyEventsOnly appends the configured my-events parameter.
	MyEventsOnly bool
}

// Client talks to the events API.
type Client struct {
	cfg   config.APIConfig
	base  *url.URL
	http  *http.Client
	cache *feedCache
	loc   *time.Location
}

// NewClient builds a client with its own cookie jar. The configured session
// cookie, if any, is placed in the jar so requests run as that user.
func NewClient(cfg config.APIConfig, cacheDir string, loc *time.Location) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("source: invalid base url %q", cfg.BaseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if cfg.SessionCookie != "" {
		jar.SetCookies(base, []*http.Cookie{{Name: sessionCookieName, Value: cfg.SessionCookie, Path: "/"}})
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if loc == nil {
		loc = time.Local
	}
	return &Client{
		cfg:   cfg,
		base:  base,
		http:  &http.Client{Timeout: timeout, Jar: jar},
		cache: newFeedCache(cacheDir),
		loc:   loc,
	}, nil
}

// Location is the timezone records are normalized into.
func (c *Client) Location() *time.Location { return c.loc }

// FeedURL is the collection URL for req.
func (c *Client) FeedURL(req Request) string {
	u := c.base.JoinPath(c.cfg.EventsPath).String()
	if strings.HasSuffix(c.cfg.EventsPath, "/") && !strings.HasSuffix(u, "/") {
		u += "/"
	}
	q := strings.TrimPrefix(req.Query, "?")
	if req.MyEventsOnly && c.cfg.MyEventsParam != "" {
		if q != "" {
			q += "&"
		}
		q += c.cfg.MyEventsParam
	}
	if q == "" {
		return u
	}
	return u + "?" + q
}

// FetchEvents fetches and normalizes the events matching req. An empty
// slice with a nil error is a genuine empty result; every failure is an
// error wrapping ErrFetchFailed or ErrMalformedPayload.
func (c *Client) FetchEvents(ctx context.Context, req Request) ([]model.EventRecord, error) {
	feed := c.FeedURL(req)
	body, fromCache, err := c.get(ctx, feed)
	if err != nil {
		appLog.Error("event fetch failed", err, "url", redactURL(feed))
		return nil, err
	}
	raws, shape, err := Decode(body)
	if err != nil {
		appLog.Error("event payload rejected", err, "url", redactURL(feed))
		return nil, err
	}
	records := NormalizeAll(raws, c.loc)
	appLog.Info("events fetched", "url", redactURL(feed), "shape", shape.String(),
		"count", len(records), "from_cache", fromCache)
	return records, nil
}

func (c *Client) get(ctx context.Context, feed string) ([]byte, bool, error) {
	meta, cached := c.cache.load(feed)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br, gzip")
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		if len(cached) == 0 {
			return nil, false, fmt.Errorf("%w: 304 Not Modified but no cached body", ErrFetchFailed)
		}
		return cached, true, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := readBody(resp)
		if err != nil {
			return nil, false, fmt.Errorf("%w: read body: %v", ErrFetchFailed, err)
		}
		entry := cacheEntry{
			URL:          feed,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := c.cache.save(entry, body); err != nil {
			appLog.Error("feed cache save failed", err, "url", redactURL(feed))
		}
		return body, false, nil

	default:
		return nil, false, fmt.Errorf("%w: %s", ErrFetchFailed, resp.Status)
	}
}

// readBody decodes br and gzip bodies. Accept-Encoding is set by hand, so
// the transport leaves decompression to us.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		r = brotli.NewReader(resp.Body)
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}
	return io.ReadAll(io.LimitReader(r, maxBodyBytes))
}

// Register signs the configured user up for an event.
func (c *Client) Register(ctx context.Context, eventID string) (string, error) {
	if strings.TrimSpace(eventID) == "" {
		return "", errors.New("source: event id is empty")
	}
	body, err := json.Marshal(map[string]int{"user_id": c.cfg.UserID})
	if err != nil {
		return "", err
	}
	target := c.base.JoinPath(c.cfg.EventsPath, url.PathEscape(eventID), "register").String() + "/"
	return c.post(ctx, target, body)
}

// JoinSociety adds the signed-in user to a society.
func (c *Client) JoinSociety(ctx context.Context, societyID string) (string, error) {
	if strings.TrimSpace(societyID) == "" {
		return "", errors.New("source: society id is empty")
	}
	target := c.base.JoinPath(c.cfg.SocietiesPath, url.PathEscape(societyID), "join").String() + "/"
	return c.post(ctx, target, nil)
}

// post sends a JSON POST carrying the anti-forgery token from the jar and
// returns the server's message, if it sent one.
func (c *Client) post(ctx context.Context, target string, body []byte) (string, error) {
	token, err := c.csrfToken(ctx)
	if err != nil {
		return "", err
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, rd)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", c.base.String()+"/")
	if token != "" {
		req.Header.Set(c.cfg.CSRFHeader, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	data, _ := readBody(resp)
	msg := serverMessage(data)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if msg == "" {
			msg = resp.Status
		}
		return "", fmt.Errorf("%w: %s", ErrFetchFailed, msg)
	}
	appLog.Info("request accepted", "url", redactURL(target), "status", resp.StatusCode)
	return msg, nil
}

// csrfToken reads the token cookie, priming the jar with a GET of the
// events page when the server has not set it yet.
func (c *Client) csrfToken(ctx context.Context) (string, error) {
	if v := c.cookie(c.cfg.CSRFCookie); v != "" {
		return v, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.JoinPath(c.cfg.EventsPath).String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	v := c.cookie(c.cfg.CSRFCookie)
	if v == "" {
		appLog.Warn("no anti-forgery cookie from server", "cookie", c.cfg.CSRFCookie)
	}
	return v, nil
}

func (c *Client) cookie(name string) string {
	if name == "" {
		return ""
	}
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func serverMessage(data []byte) string {
	var m struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &m) != nil {
		return ""
	}
	return firstNonEmpty(m.Message, m.Detail, m.Error)
}

// redactURL drops any userinfo before a URL is logged.
func redactURL(u string) string {
	p, err := url.Parse(u)
	if err != nil {
		return "(unparsable url)"
	}
	p.User = nil
	return p.String()
}
