// Package fetch loads HTML documents for LOAD statements. Sources may be
// http(s) URLs, file:// URLs, bare file paths or s3://bucket/key objects.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"

	"github.com/sambeau/scrapeql/pkg/scrapeql/dom"
	"github.com/sambeau/scrapeql/pkg/scrapeql/logging"
	"github.com/sambeau/scrapeql/pkg/scrapeql/objstore"
	"github.com/sambeau/scrapeql/pkg/scrapeql/runner"
)

// Defaults used when a Config field is zero.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "scrapeql/1.0"
	DefaultMaxBytes  = 10 << 20
)

// ErrTooLarge is returned when a document exceeds the configured maximum.
var ErrTooLarge = errors.New("document too large")

// Config configures a Fetcher.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
}

// DocumentCache stores decoded http(s) bodies by URI.
type DocumentCache interface {
	Get(uri string) ([]byte, bool, error)
	Put(uri string, body []byte) error
}

// ObjectOpener opens s3:// objects for reading.
type ObjectOpener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Fetcher implements runner.Fetcher.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	cache   DocumentCache
	objects ObjectOpener
	logger  logging.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithCache consults c before making http(s) requests.
func WithCache(c DocumentCache) Option { return func(f *Fetcher) { f.cache = c } }

// WithObjectStore enables s3:// sources.
func WithObjectStore(o ObjectOpener) Option { return func(f *Fetcher) { f.objects = o } }

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(f *Fetcher) { f.logger = l } }

// WithHTTPClient replaces the http client. Its timeout takes precedence
// over Config.Timeout.
func WithHTTPClient(c *http.Client) Option { return func(f *Fetcher) { f.client = c } }

// New creates a fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}

	f := &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logging.Null(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch loads uri and parses it as an HTML document.
func (f *Fetcher) Fetch(ctx context.Context, uri string) (runner.Value, error) {
	body, err := f.FetchBytes(ctx, uri)
	if err != nil {
		return nil, err
	}
	return dom.ParseHTML(bytes.NewReader(body))
}

// FetchBytes loads uri and returns its body decoded to UTF-8.
func (f *Fetcher) FetchBytes(ctx context.Context, uri string) ([]byte, error) {
	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return f.fetchHTTP(ctx, uri)
	case objstore.IsURI(uri):
		return f.fetchObject(ctx, uri)
	case strings.HasPrefix(uri, "file://"):
		u, err := url.Parse(uri)
		if err != nil {
			return nil, fmt.Errorf("invalid file url: %w", err)
		}
		return f.fetchFile(u.Path)
	case strings.Contains(uri, "://"):
		scheme, _, _ := strings.Cut(uri, "://")
		return nil, fmt.Errorf("unsupported scheme %q", scheme)
	}
	return f.fetchFile(uri)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, uri string) ([]byte, error) {
	if f.cache != nil {
		body, ok, err := f.cache.Get(uri)
		if err != nil {
			f.logger.Warn("cache read failed", "uri", uri, "error", err)
		} else if ok {
			f.logger.Debug("cache hit", "uri", uri)
			return body, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: %s", uri, resp.Status)
	}

	body, err := f.decode(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	f.logger.Debug("fetched", "uri", uri, "status", resp.StatusCode,
		"bytes", len(body), "duration", time.Since(start).String())

	if f.cache != nil {
		if err := f.cache.Put(uri, body); err != nil {
			f.logger.Warn("cache write failed", "uri", uri, "error", err)
		}
	}
	return body, nil
}

func (f *Fetcher) fetchObject(ctx context.Context, uri string) ([]byte, error) {
	if f.objects == nil {
		return nil, errors.New("s3 sources are not configured")
	}
	body, err := f.objects.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()
	return f.decode(body, "")
}

func (f *Fetcher) fetchFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	return f.decode(file, "")
}

// decode reads at most MaxBytes from r and converts it to UTF-8. The
// encoding comes from contentType, a byte order mark or a <meta> tag, in
// that order. A body with none of these that is valid UTF-8 is kept as is.
func (f *Fetcher) decode(r io.Reader, contentType string) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(raw)) > f.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.cfg.MaxBytes)
	}

	// The encoding is guessed from the first 1024 bytes only
	enc, name, certain := charset.DetermineEncoding(raw, contentType)
	if !certain && utf8.Valid(raw) {
		return raw, nil
	}
	body, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding %s body: %w", name, err)
	}
	return body, nil
}
