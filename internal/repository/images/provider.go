package images

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/oshokin/swupdate-httpd/internal/config"
	"github.com/oshokin/swupdate-httpd/internal/domain/catalog"
	"github.com/oshokin/swupdate-httpd/internal/logger"
)

// Provider hands out catalog snapshots according to a rescan policy.
type Provider interface {
	// Snapshot returns a complete catalog. The caller must not modify it.
	Snapshot(ctx context.Context) (*catalog.Catalog, error)
	// Reload forces the next snapshot to reflect the directory as it is now.
	Reload(ctx context.Context) error
}

// errNilScanner is returned when a provider is built without a scanner.
var errNilScanner = errors.New("scanner must be provided")

// PerRequestProvider scans the directory on every Snapshot call.
type PerRequestProvider struct {
	scanner Scanner
}

// NewPerRequestProvider wraps scanner.
func NewPerRequestProvider(scanner Scanner) (*PerRequestProvider, error) {
	if scanner == nil {
		return nil, errNilScanner
	}

	return &PerRequestProvider{scanner: scanner}, nil
}

// Snapshot scans the directory.
func (p *PerRequestProvider) Snapshot(ctx context.Context) (*catalog.Catalog, error) {
	return p.scanner.Scan(ctx)
}

// Reload is a no-op: every snapshot is already fresh.
func (p *PerRequestProvider) Reload(context.Context) error {
	return nil
}

// ttlCacheKey is the only key used in the TTL cache.
const ttlCacheKey = "catalog"

// TTLProvider reuses a scan until it expires. Concurrent misses share one scan.
type TTLProvider struct {
	// scanner builds fresh snapshots.
	scanner Scanner
	// cache holds at most one snapshot with a TTL.
	cache *expirable.LRU[string, *catalog.Catalog]
	// group collapses concurrent scans of the same generation into one.
	group singleflight.Group
	// mu orders cache writes against Reload.
	mu sync.Mutex
	// generation is bumped by Reload; scans started before it are not cached.
	generation uint64
}

// NewTTLProvider creates a provider whose snapshots live for ttl.
func NewTTLProvider(scanner Scanner, ttl time.Duration) (*TTLProvider, error) {
	if scanner == nil {
		return nil, errNilScanner
	}

	return &TTLProvider{
		scanner: scanner,
		cache:   expirable.NewLRU[string, *catalog.Catalog](1, nil, ttl),
	}, nil
}

// Snapshot returns the cached catalog or scans a new one.
func (p *TTLProvider) Snapshot(ctx context.Context) (*catalog.Catalog, error) {
	if c, ok := p.cache.Get(ttlCacheKey); ok {
		return c, nil
	}

	p.mu.Lock()
	generation := p.generation
	p.mu.Unlock()

	key := ttlCacheKey + "/" + strconv.FormatUint(generation, 10)

	v, err, shared := p.group.Do(key, func() (any, error) {
		c, err := p.scanner.Scan(ctx)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		defer p.mu.Unlock()

		if p.generation == generation {
			p.cache.Add(ttlCacheKey, c)
		}

		return c, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		logger.Debug(ctx, "Catalog scan shared with a concurrent request")
	}

	c, ok := v.(*catalog.Catalog)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected snapshot type %T", ErrScan, v)
	}

	return c, nil
}

// Reload drops the cached snapshot. Scans already in flight still answer
// their callers but are not cached, so the next Snapshot scans again.
func (p *TTLProvider) Reload(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.generation++
	p.cache.Remove(ttlCacheKey)

	return nil
}

// StaticProvider keeps one snapshot until Reload replaces it.
type StaticProvider struct {
	// scanner builds replacement snapshots.
	scanner Scanner
	// current is swapped as a whole, never mutated.
	current atomic.Pointer[catalog.Catalog]
	// mu guards generation and stored.
	mu sync.Mutex
	// generation numbers reloads in the order they were requested.
	generation uint64
	// stored is the generation of the snapshot in current.
	stored uint64
}

// NewStaticProvider scans once and returns a provider serving that snapshot.
func NewStaticProvider(ctx context.Context, scanner Scanner) (*StaticProvider, error) {
	if scanner == nil {
		return nil, errNilScanner
	}

	p := &StaticProvider{scanner: scanner}
	if err := p.Reload(ctx); err != nil {
		return nil, err
	}

	return p, nil
}

// Snapshot returns the current snapshot without touching the filesystem.
func (p *StaticProvider) Snapshot(context.Context) (*catalog.Catalog, error) {
	return p.current.Load(), nil
}

// Reload scans the directory and swaps the snapshot. Every call scans on its
// own; a scan that finishes after a later reload's scan is discarded. On
// failure the previous snapshot stays in place.
func (p *StaticProvider) Reload(ctx context.Context) error {
	p.mu.Lock()
	p.generation++
	generation := p.generation
	p.mu.Unlock()

	c, err := p.scanner.Scan(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if generation < p.stored {
		logger.DebugKV(ctx, "Discarding catalog scan superseded by a later reload", "generation", generation)
		return nil
	}

	p.stored = generation
	p.current.Store(c)

	logger.InfoKV(ctx, "Catalog reloaded", "entries", c.Len(), "skipped", len(c.Skipped()))

	return nil
}

// ErrUnknownMode is returned by NewProvider for unrecognized catalog modes.
var ErrUnknownMode = errors.New("unknown catalog mode")

// NewProvider builds the provider selected by mode.
//
//nolint:ireturn // The mode picks the concrete type at runtime.
func NewProvider(ctx context.Context, mode config.CatalogMode, scanner Scanner, ttl time.Duration) (Provider, error) {
	var (
		provider Provider
		err      error
	)

	switch mode {
	case config.ModePerRequest, "":
		provider, err = NewPerRequestProvider(scanner)
	case config.ModeTTL:
		provider, err = NewTTLProvider(scanner, ttl)
	case config.ModeStatic:
		provider, err = NewStaticProvider(ctx, scanner)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	if err != nil {
		return nil, err
	}

	return provider, nil
}
