// Package location resolves Location references (local paths or HTTP URLs)
// to bytes, caching by canonical identity so a corpus that references the
// same file twice only reads it once.
package location

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/devloop-run/dl/internal/dlerrors"
)

// Kind distinguishes the two Location variants.
type Kind int

const (
	KindPath Kind = iota
	KindHTTP
)

// Location is a fetchable reference: either a filesystem path (optionally
// recursed into a directory) or an HTTP URL.
type Location struct {
	Kind    Kind
	At      string // path kind: relative or absolute path; http kind: URL
	Recurse bool   // path kind only; meaningless for non-directories
}

// Resolved is one fetched file: its resolved absolute identity and content.
type Resolved struct {
	Path string // absolute path, or URL
	Body []byte
}

// Fetcher resolves Locations to bytes, relative to a base directory (the
// directory of the config file that introduced the Location), and caches
// results by canonical identity for the lifetime of the process.
type Fetcher struct {
	httpClient *http.Client

	mu    sync.Mutex
	cache map[string][]byte
	once  map[string]*sync.Once
	err   map[string]error
}

// New creates a Fetcher with a default HTTP client.
func New() *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      make(map[string][]byte),
		once:       make(map[string]*sync.Once),
		err:        make(map[string]error),
	}
}

// Fetch resolves loc relative to baseDir and returns every matching file
// (a single file for a non-recursing Path or an Http Location; possibly
// many for a recursing directory Path), in a stable, deterministic order.
func (f *Fetcher) Fetch(ctx context.Context, baseDir string, loc Location) ([]Resolved, error) {
	switch loc.Kind {
	case KindHTTP:
		body, err := f.fetchOnce(ctx, loc.At, func() ([]byte, error) {
			return f.fetchHTTP(ctx, loc.At)
		})
		if err != nil {
			return nil, err
		}
		return []Resolved{{Path: loc.At, Body: body}}, nil

	case KindPath:
		abs := loc.At
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(baseDir, loc.At)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, &dlerrors.FetchError{Location: abs, Reason: "stat", Err: err}
		}
		if !info.IsDir() {
			body, err := f.fetchOnce(ctx, abs, func() ([]byte, error) {
				return f.fetchPath(abs)
			})
			if err != nil {
				return nil, err
			}
			return []Resolved{{Path: abs, Body: body}}, nil
		}
		if !loc.Recurse {
			return nil, &dlerrors.FetchError{Location: abs, Reason: "is a directory but recurse is not set"}
		}
		var files []string
		err = filepath.WalkDir(abs, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, &dlerrors.FetchError{Location: abs, Reason: "walk", Err: err}
		}
		sort.Strings(files)
		out := make([]Resolved, 0, len(files))
		for _, p := range files {
			body, err := f.fetchOnce(ctx, p, func() ([]byte, error) {
				return f.fetchPath(p)
			})
			if err != nil {
				return nil, err
			}
			out = append(out, Resolved{Path: p, Body: body})
		}
		return out, nil

	default:
		return nil, fmt.Errorf("location: unknown kind %d", loc.Kind)
	}
}

// fetchOnce collapses concurrent first-fetches of the same key into a
// single underlying read/request, serving every later call the cached
// result without blocking callers fetching unrelated keys.
func (f *Fetcher) fetchOnce(ctx context.Context, key string, do func() ([]byte, error)) ([]byte, error) {
	f.mu.Lock()
	once, ok := f.once[key]
	if !ok {
		once = &sync.Once{}
		f.once[key] = once
	}
	f.mu.Unlock()

	once.Do(func() {
		body, err := do()
		f.mu.Lock()
		if err != nil {
			f.err[key] = err
		} else {
			f.cache[key] = body
		}
		f.mu.Unlock()
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.err[key]; ok {
		return nil, err
	}
	return f.cache[key], nil
}

func (f *Fetcher) fetchPath(path string) ([]byte, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, &dlerrors.FetchError{Location: path, Reason: "read", Err: err}
	}
	return body, nil
}

// fetchHTTP performs a GET with bounded retry: transient network errors and
// 5xx responses are retried with capped exponential backoff; 4xx responses
// fail immediately since a retry will not turn them into a 2xx.
func (f *Fetcher) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	op := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := f.httpClient.Do(req)
		if err != nil {
			return nil, err // network error: retryable
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return body, nil
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("http %d", resp.StatusCode) // retryable
		default:
			return nil, backoff.Permanent(fmt.Errorf("http %d", resp.StatusCode))
		}
	}

	body, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
		backoff.WithMaxElapsedTime(2*time.Second),
	)
	if err != nil {
		return nil, &dlerrors.FetchError{Location: url, Reason: "http", Err: err}
	}
	return body, nil
}
