package source

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// cacheEntry holds conditional-GET metadata for a single feed URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// feedCache keeps the last 200 body of each feed URL on disk, keyed by a
// hash of the URL. It only ever answers a 304; a failed request is never
// papered over with cached data.
type feedCache struct {
	dir string
}

func newFeedCache(dir string) *feedCache {
	if dir == "" {
		return nil
	}
	return &feedCache{dir: dir}
}

func (c *feedCache) pathFor(url string) (string, error) {
	if url == "" {
		return "", errors.New("empty url")
	}
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:8])), nil
}

// load returns the metadata and body for url. A missing or unreadable
// entry yields zero values.
func (c *feedCache) load(url string) (cacheEntry, []byte) {
	if c == nil {
		return cacheEntry{}, nil
	}
	p, err := c.pathFor(url)
	if err != nil {
		return cacheEntry{}, nil
	}
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(p, "meta.json"))
	if err != nil || json.Unmarshal(data, &meta) != nil || meta.URL != url {
		return cacheEntry{}, nil
	}
	body, err := os.ReadFile(filepath.Join(p, "body.json"))
	if err != nil {
		return cacheEntry{}, nil
	}
	return meta, body
}

func (c *feedCache) save(meta cacheEntry, body []byte) error {
	if c == nil || (meta.ETag == "" && meta.LastModified == "") {
		return nil
	}
	p, err := c.pathFor(meta.URL)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p, 0o700); err != nil {
		return err
	}

	// Write body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(p, "body.json"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(p, "meta.json"), data, 0o600)
}
