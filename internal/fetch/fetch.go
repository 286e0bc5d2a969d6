// Package fetch implements the cache-aware HTTP downloader that every pull
// and install operation routes its network traffic through: a conditional
// GET against a per-URL cache entry kept in the relational store, with an
// atomic download-then-rename write path and a single self-healing retry
// when a 304 turns out to have been lying about the cached file's size.
package fetch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/wolfpack-pm/wolfpack/internal/hashio"
	"github.com/wolfpack-pm/wolfpack/internal/store"
)

// UserAgent is sent on every request this package issues.
const UserAgent = "wolfpack/1"

// ResourceNotFound is returned when the server answers a fetch with 404.
type ResourceNotFound struct {
	URL string
}

func (e *ResourceNotFound) Error() string {
	return fmt.Sprintf("fetch: resource not found: %s", e.URL)
}

// HashMismatch is returned when the downloaded body's digest disagrees with
// the caller-supplied expected hash. The partially written temp file is
// deleted before this error is returned.
type HashMismatch struct {
	URL      string
	Expected string
	Actual   string
}

func (e *HashMismatch) Error() string {
	return fmt.Sprintf("fetch: hash mismatch for %s: expected %s, got %s", e.URL, e.Expected, e.Actual)
}

// Options configures a single Fetch call.
type Options struct {
	// ExpectedHash, if non-empty, is a lowercase hex SHA256 digest the
	// downloaded body must match.
	ExpectedHash string
	// MaxAge caps how long a cache entry may be trusted even if the server
	// offered a longer max-age.
	MaxAge time.Duration
	// Bar, if non-nil, is advanced by each chunk's byte count as the body
	// streams in.
	Bar *progressbar.ProgressBar
}

// Fetcher downloads URLs into a local destination tree, consulting and
// updating store-resident cache metadata along the way.
type Fetcher struct {
	client *http.Client
	store  *store.Store
	log    *zap.SugaredLogger
}

// New builds a Fetcher. client may be nil to use http.DefaultClient.
func New(client *http.Client, st *store.Store, log *zap.SugaredLogger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, store: st, log: log}
}

// Fetch retrieves url into destPath, skipping the network entirely if a
// still-fresh cache entry exists, and otherwise performing a conditional GET
// so an unchanged upstream resource costs a 304 instead of a full body.
func (f *Fetcher) Fetch(ctx context.Context, url, destPath string, opts Options) error {
	entry, cached, err := f.store.SelectDownloadedFile(ctx, url)
	if err != nil {
		return fmt.Errorf("fetch %s: reading cache entry: %w", url, err)
	}

	if cached && entry.Expires > time.Now().Unix() {
		if fi, statErr := os.Stat(destPath); statErr == nil && fi.Size() == entry.Size {
			f.log.Debugw("fetch: cache hit, skipping network", "url", url)
			return nil
		}
	}

	return f.fetchConditional(ctx, url, destPath, entry, cached, opts, true)
}

func (f *Fetcher) fetchConditional(ctx context.Context, url, destPath string, entry store.DownloadedFile, cached bool, opts Options, allowRetry bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	req.Header.Set("User-Agent", UserAgent)

	if _, statErr := os.Stat(destPath); statErr == nil && cached {
		if entry.ETag != "" {
			req.Header.Set("If-None-Match", entry.ETag)
		}
		if entry.LastModified != "" {
			req.Header.Set("If-Modified-Since", entry.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Errorw("fetch: network error", "url", url, "error", err)
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		f.log.Warnw("fetch: not found", "url", url)
		return &ResourceNotFound{URL: url}

	case resp.StatusCode == http.StatusNotModified:
		fi, statErr := os.Stat(destPath)
		if statErr == nil && fi.Size() == entry.Size {
			f.log.Debugw("fetch: 304 not modified", "url", url)
			return nil
		}
		if !allowRetry {
			return fmt.Errorf("fetch %s: 304 response but cached size disagrees with on-disk file after retry", url)
		}
		f.log.Warnw("fetch: cache poisoned, on-disk size disagrees with cached size, retrying unconditionally", "url", url)
		return f.fetchConditional(ctx, url, destPath, store.DownloadedFile{}, false, opts, false)

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return f.saveBody(ctx, url, destPath, resp, opts)

	default:
		f.log.Errorw("fetch: unexpected status", "url", url, "status", resp.StatusCode)
		return fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
}

func (f *Fetcher) saveBody(ctx context.Context, url, destPath string, resp *http.Response, opts Options) error {
	maxAge := effectiveMaxAge(resp.Header, opts.MaxAge)

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	tmpPath := filepath.Join(dir, "."+filepath.Base(destPath)+"."+uuid.NewString()+".tmp")

	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("fetch %s: creating temp file: %w", url, err)
	}
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	hw := hashio.NewWriter(tmp, hashio.SHA256)
	var w io.Writer = hw
	if opts.Bar != nil {
		w = io.MultiWriter(hw, opts.Bar)
	}

	_, copyErr := io.Copy(w, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil {
		return fmt.Errorf("fetch %s: %w", url, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("fetch %s: %w", url, closeErr)
	}

	actual := hw.Digest(hashio.SHA256).Hex()
	if opts.ExpectedHash != "" && !strings.EqualFold(actual, opts.ExpectedHash) {
		os.Remove(tmpPath)
		f.log.Errorw("fetch: hash mismatch", "url", url, "expected", opts.ExpectedHash, "actual", actual)
		return &HashMismatch{URL: url, Expected: opts.ExpectedHash, Actual: actual}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("fetch %s: renaming into place: %w", url, err)
	}

	cacheEntry := store.DownloadedFile{
		URL:          url,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		Expires:      time.Now().Add(maxAge).Unix(),
		Size:         hw.Size(),
	}
	if err := f.store.UpsertDownloadedFile(ctx, cacheEntry); err != nil {
		return fmt.Errorf("fetch %s: caching metadata: %w", url, err)
	}

	f.log.Infow("fetch: downloaded", "url", url, "bytes", hw.Size())
	return nil
}

// effectiveMaxAge computes min(server max-age minus Age, configured max
// age). A missing or unparsable Cache-Control/Age pair is treated as zero
// server-side freshness, so the entry expires at once whatever the
// configured value; a configured value of zero sets no ceiling.
func effectiveMaxAge(h http.Header, configured time.Duration) time.Duration {
	serverMaxAge := parseMaxAge(h.Get("Cache-Control"))
	age := parseSeconds(h.Get("Age"))
	remaining := serverMaxAge - age
	if remaining < 0 {
		remaining = 0
	}
	if configured > 0 && remaining > configured {
		return configured
	}
	return remaining
}

func parseMaxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if name, val, ok := strings.Cut(directive, "="); ok && strings.EqualFold(strings.TrimSpace(name), "max-age") {
			if secs, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return 0
}

func parseSeconds(s string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Sum256Hex hashes r in one pass and returns its lowercase hex SHA256
// digest, for callers that need to compute an ExpectedHash ahead of a
// Fetch call (e.g. verifying a Release file's own listed checksum before
// trusting the Packages index it names).
func Sum256Hex(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
