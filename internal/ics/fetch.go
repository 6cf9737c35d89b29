package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"campuscal/internal/config"
	appLog "campuscal/internal/log"
)

// maxFeedSize bounds a single feed download.
const maxFeedSize = 16 << 20

// Feed is one subscribed iCalendar URL.
type Feed struct {
	ID   string
	Name string
	URL  string
}

// FeedsFromConfig converts configured feeds, skipping entries without a URL.
// A missing ID falls back to a hash of the URL so imported IDs stay stable.
func FeedsFromConfig(entries []config.ICSConfig) []Feed {
	feeds := make([]Feed, 0, len(entries))
	for _, e := range entries {
		if e.URL == "" {
			continue
		}
		id := e.ID
		if id == "" {
			id = urlKey(e.URL)
		}
		feeds = append(feeds, Feed{ID: id, Name: e.Name, URL: e.URL})
	}
	return feeds
}

// Payload is a downloaded feed body.
type Payload struct {
	Feed      Feed
	Body      []byte
	FromCache bool
}

// cacheMeta is stored next to the cached body.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Fetcher downloads feeds with conditional requests and keeps the last good
// body on disk so a flaky upstream does not empty the calendar.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	maxBytes int64
}

// NewFetcher returns a Fetcher caching under cacheDir. A nil client gets a
// 15 second timeout.
func NewFetcher(cacheDir string, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir, maxBytes: maxFeedSize}
}

// Fetch downloads feed. On a network error or non-2xx status the cached
// body is returned when one exists.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) (Payload, error) {
	if feed.URL == "" {
		return Payload{}, errors.New("feed URL is empty")
	}
	if err := os.MkdirAll(f.cacheDir, 0o700); err != nil {
		return Payload{}, err
	}

	key := urlKey(feed.URL)
	meta, _ := f.readMeta(key)
	cached, _ := os.ReadFile(f.bodyPath(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return Payload{}, err
	}
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	fromCache := func(reason error) (Payload, error) {
		if len(cached) == 0 {
			return Payload{}, reason
		}
		appLog.Error("feed fetch failed, using cached body", reason, "feed", feed.ID, "url", redactURL(feed.URL))
		return Payload{Feed: feed, Body: cached, FromCache: true}, nil
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fromCache(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		if len(cached) == 0 {
			return Payload{}, errors.New("304 Not Modified without a cached body")
		}
		appLog.Debug("feed not modified", "feed", feed.ID)
		return Payload{Feed: feed, Body: cached, FromCache: true}, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
		if err != nil {
			return fromCache(err)
		}
		// A truncated body must not reach the cache: its ETag would pin it.
		if int64(len(body)) > f.maxBytes {
			return fromCache(fmt.Errorf("feed exceeds %d bytes", f.maxBytes))
		}
		next := cacheMeta{
			URL:          feed.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			FetchedAt:    time.Now().UTC(),
		}
		if err := f.writeCache(key, next, body); err != nil {
			appLog.Error("feed cache write failed", err, "feed", feed.ID)
		}
		appLog.Info("feed fetched", "feed", feed.ID, "url", redactURL(feed.URL), "bytes", len(body))
		return Payload{Feed: feed, Body: body}, nil

	default:
		return fromCache(fmt.Errorf("unexpected status %s", resp.Status))
	}
}

func (f *Fetcher) bodyPath(key string) string {
	return filepath.Join(f.cacheDir, key+".ics")
}

func (f *Fetcher) metaPath(key string) string {
	return filepath.Join(f.cacheDir, key+".json")
}

func (f *Fetcher) readMeta(key string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(f.metaPath(key))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

// writeCache stores the body before the metadata so meta never points at a
// missing body.
func (f *Fetcher) writeCache(key string, meta cacheMeta, body []byte) error {
	if err := os.WriteFile(f.bodyPath(key), body, 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.metaPath(key), data, 0o600)
}

func urlKey(u string) string {
	sum := sha256.Sum256([]byte(u))
	return hex.EncodeToString(sum[:8])
}

// redactURL keeps only scheme and host; feed paths often embed secrets.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
