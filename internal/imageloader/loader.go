// Package imageloader turns the image references accepted by the service
// (data URLs, HTTP(S) URLs, s3:// object references and raw base64) into
// image bytes. Remote references are limited to the configured hosts and
// buckets, and the default client never dials link-local addresses.
package imageloader

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/saturnino-fabrica-de-software/facematch/internal/cache"
	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
	"github.com/saturnino-fabrica-de-software/facematch/internal/metrics"
	"github.com/saturnino-fabrica-de-software/facematch/internal/storage"
)

const (
	DefaultMaxBytes     int64 = 10 << 20
	DefaultFetchTimeout       = 20 * time.Second
	DefaultCacheTTL           = time.Hour
)

var errSourceNotAllowed = errors.New("image source not allowed")

// ObjectStore reads objects from S3 compatible storage
type ObjectStore interface {
	GetObject(ctx context.Context, bucket, key string, limit int64) ([]byte, error)
}

// Config for the loader
type Config struct {
	MaxBytes     int64
	FetchTimeout time.Duration
	// MaxDimension downsizes larger images to JPEG; zero disables it.
	MaxDimension int
	CacheTTL     time.Duration

	// AllowedHosts limits HTTP(S) references to these hosts. "*.example.com"
	// matches any subdomain. Empty allows every host.
	AllowedHosts []string
	// AllowedBuckets limits s3:// references to these buckets. Empty allows
	// every bucket.
	AllowedBuckets []string
	// AllowPrivateNetworks lets the default HTTP client reach loopback and
	// private addresses. Link-local addresses are never dialed.
	AllowPrivateNetworks bool
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		MaxBytes:     DefaultMaxBytes,
		FetchTimeout: DefaultFetchTimeout,
		CacheTTL:     DefaultCacheTTL,
	}
}

// Loader resolves image references to bytes
type Loader struct {
	cfg     Config
	http    *http.Client
	objects ObjectStore
	cache   cache.PhotoCache
	logger  *slog.Logger
}

// Option configures a Loader
type Option func(*Loader)

func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.http = c }
}

func WithObjectStore(s ObjectStore) Option {
	return func(l *Loader) { l.objects = s }
}

// WithPhotoCache caches remote photo bytes
func WithPhotoCache(c cache.PhotoCache) Option {
	return func(l *Loader) { l.cache = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// New creates a loader
func New(cfg Config, opts ...Option) *Loader {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	l := &Loader{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.http == nil {
		l.http = l.guardedClient()
	}
	return l
}

// guardedClient refuses to dial addresses outside the allowed networks and
// to follow redirects to hosts outside AllowedHosts.
func (l *Loader) guardedClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: l.cfg.FetchTimeout,
		Control: func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			ip := net.ParseIP(host)
			if ip == nil {
				return fmt.Errorf("unresolved address %q", address)
			}
			return l.checkAddress(ip)
		},
	}
	return &http.Client{
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConnsPerHost: 4,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return l.checkHost(req.URL.Hostname())
		},
	}
}

func (l *Loader) checkAddress(ip net.IP) error {
	switch {
	case ip.IsUnspecified(), ip.IsMulticast(),
		ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("%w: address %s", errSourceNotAllowed, ip)
	case !l.cfg.AllowPrivateNetworks && (ip.IsLoopback() || ip.IsPrivate()):
		return fmt.Errorf("%w: private address %s", errSourceNotAllowed, ip)
	}
	return nil
}

func (l *Loader) checkHost(host string) error {
	if len(l.cfg.AllowedHosts) == 0 {
		return nil
	}
	host = strings.ToLower(host)
	for _, allowed := range l.cfg.AllowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if suffix, ok := strings.CutPrefix(allowed, "*"); ok && strings.HasSuffix(host, suffix) {
			return nil
		}
		if host == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q", errSourceNotAllowed, host)
}

func (l *Loader) checkBucket(bucket string) error {
	if len(l.cfg.AllowedBuckets) == 0 {
		return nil
	}
	for _, allowed := range l.cfg.AllowedBuckets {
		if bucket == strings.TrimSpace(allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: bucket %q", errSourceNotAllowed, bucket)
}

// IsRemote reports whether ref is fetched from the network rather than
// carried inline.
func IsRemote(ref string) bool {
	ref = strings.TrimSpace(ref)
	return hasPrefixFold(ref, "http://") || hasPrefixFold(ref, "https://") || hasPrefixFold(ref, "s3://")
}

// Load resolves ref to image bytes.
func (l *Loader) Load(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domain.ErrImageDecode.WithError(errors.New("empty image reference"))
	}

	var (
		data []byte
		err  error
	)
	switch {
	case hasPrefixFold(ref, "data:"):
		data, err = decodeDataURL(ref)
	case hasPrefixFold(ref, "http://"), hasPrefixFold(ref, "https://"):
		data, err = l.cached(ctx, ref, l.fetchHTTP)
	case hasPrefixFold(ref, "s3://"):
		data, err = l.cached(ctx, ref, l.fetchObject)
	default:
		data, err = decodeBase64(ref)
	}
	if err != nil {
		return nil, err
	}

	if int64(len(data)) > l.cfg.MaxBytes {
		return nil, domain.ErrImageTooLarge.WithError(
			fmt.Errorf("image is %d bytes, limit is %d", len(data), l.cfg.MaxBytes))
	}
	if len(data) == 0 {
		return nil, domain.ErrImageDecode.WithError(errors.New("image is empty"))
	}

	if l.cfg.MaxDimension > 0 {
		resized, err := fitWithin(data, l.cfg.MaxDimension)
		if err != nil {
			l.logger.Debug("image left unscaled", "error", err)
			return data, nil
		}
		return resized, nil
	}
	return data, nil
}

// Func binds ref to a lazily evaluated loader call.
func (l *Loader) Func(ref string) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		return l.Load(ctx, ref)
	}
}

func (l *Loader) cached(ctx context.Context, ref string, fetch func(context.Context, string) ([]byte, error)) ([]byte, error) {
	if l.cache == nil {
		return fetch(ctx, ref)
	}

	data, err := l.cache.Get(ctx, ref)
	if err == nil {
		metrics.PhotoCacheLookups.WithLabelValues(metrics.ResultHit).Inc()
		return data, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l.logger.Warn("photo cache read failed", "error", err)
	}
	metrics.PhotoCacheLookups.WithLabelValues(metrics.ResultMiss).Inc()

	data, err = fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.cfg.MaxBytes {
		return nil, domain.ErrImageTooLarge.WithError(
			fmt.Errorf("image is %d bytes, limit is %d", len(data), l.cfg.MaxBytes))
	}

	if err := l.cache.Set(ctx, ref, data, l.cfg.CacheTTL); err != nil {
		l.logger.Warn("photo cache write failed", "error", err)
	}
	return data, nil
}

func (l *Loader) fetchHTTP(ctx context.Context, ref string) ([]byte, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Hostname() == "" {
		return nil, domain.ErrImageFetch.WithError(fmt.Errorf("malformed image url %q", ref))
	}
	if err := l.checkHost(u.Hostname()); err != nil {
		return nil, domain.ErrImageSourceForbidden.WithError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, domain.ErrImageFetch.WithError(fmt.Errorf("build request: %w", err))
	}

	resp, err := l.http.Do(req)
	if err != nil {
		if errors.Is(err, errSourceNotAllowed) {
			return nil, domain.ErrImageSourceForbidden.WithError(err)
		}
		return nil, domain.ErrImageFetch.WithError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.ErrImageFetch.WithError(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if resp.ContentLength > l.cfg.MaxBytes {
		return nil, domain.ErrImageTooLarge.WithError(
			fmt.Errorf("content length %d exceeds limit %d", resp.ContentLength, l.cfg.MaxBytes))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.cfg.MaxBytes+1))
	if err != nil {
		return nil, domain.ErrImageFetch.WithError(fmt.Errorf("read body: %w", err))
	}
	return data, nil
}

func (l *Loader) fetchObject(ctx context.Context, ref string) ([]byte, error) {
	if l.objects == nil {
		return nil, domain.ErrImageFetch.WithError(errors.New("object storage is not configured"))
	}

	bucket, key, ok := strings.Cut(ref[len("s3://"):], "/")
	if !ok || bucket == "" || key == "" {
		return nil, domain.ErrImageFetch.WithError(fmt.Errorf("malformed object reference %q", ref))
	}
	if err := l.checkBucket(bucket); err != nil {
		return nil, domain.ErrImageSourceForbidden.WithError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.FetchTimeout)
	defer cancel()

	data, err := l.objects.GetObject(ctx, bucket, key, l.cfg.MaxBytes)
	if err != nil {
		if errors.Is(err, storage.ErrObjectTooLarge) {
			return nil, domain.ErrImageTooLarge.WithError(err)
		}
		return nil, domain.ErrImageFetch.WithError(err)
	}
	return data, nil
}

func decodeDataURL(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(ref, ",")
	if !ok {
		return nil, domain.ErrImageDecode.WithError(errors.New("data url has no payload"))
	}
	if !strings.HasSuffix(strings.ToLower(meta), ";base64") {
		return nil, domain.ErrImageDecode.WithError(errors.New("data url is not base64 encoded"))
	}
	return decodeBase64(payload)
}

var encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)

	for _, enc := range encodings {
		if data, err := enc.DecodeString(s); err == nil {
			return data, nil
		}
	}
	return nil, domain.ErrImageDecode.WithError(errors.New("invalid base64 image"))
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
