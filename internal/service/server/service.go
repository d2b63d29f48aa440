package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/swupdate-httpd/internal/domain/resolver"
	"github.com/oshokin/swupdate-httpd/internal/logger"
	"github.com/oshokin/swupdate-httpd/internal/metrics"
	"github.com/oshokin/swupdate-httpd/internal/repository/images"
)

// errNoProvider is returned when the service is built without a catalog provider.
var errNoProvider = errors.New("catalog provider is not set")

// service resolves update queries against snapshots from a provider.
// It is unexported to keep the transport decoupled from the implementation.
type service struct {
	// provider hands out catalog snapshots.
	provider images.Provider
}

// newService creates a service backed by provider.
func newService(provider images.Provider) (*service, error) {
	if provider == nil {
		return nil, errNoProvider
	}

	return &service{provider: provider}, nil
}

// Resolve answers q. Malformed queries are answered without reading the catalog.
// The returned error is set only when no snapshot could be obtained.
func (s *service) Resolve(ctx context.Context, q resolver.Query) (resolver.Resolution, error) {
	ctx = logger.WithKV(ctx,
		"image", q.ImageID,
		"device", q.DeviceType,
		"current_version", q.CurrentVersion)

	if err := q.Validate(); err != nil {
		s.record(ctx, resolver.Resolution{Outcome: resolver.MalformedRequest})

		logger.DebugKV(ctx, "Rejected update query", "reason", err)

		return resolver.Resolution{Outcome: resolver.MalformedRequest}, nil
	}

	snapshot, err := s.provider.Snapshot(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Unable to obtain catalog snapshot", "error", err)

		return resolver.Resolution{}, fmt.Errorf("catalog snapshot: %w", err)
	}

	resolution := resolver.Resolve(snapshot, q)
	s.record(ctx, resolution)

	return resolution, nil
}

// Reload forces the provider to pick up directory changes.
func (s *service) Reload(ctx context.Context) error {
	if err := s.provider.Reload(ctx); err != nil {
		return fmt.Errorf("reload catalog: %w", err)
	}

	return nil
}

// record counts and logs a resolution.
func (s *service) record(ctx context.Context, r resolver.Resolution) {
	metrics.ResolutionsTotal.WithLabelValues(r.Outcome.String()).Inc()

	switch r.Outcome {
	case resolver.Conflict:
		files := make([]string, 0, len(r.Matches))
		for _, m := range r.Matches {
			files = append(files, m.File)
		}

		logger.WarnKV(ctx, "More than one matching update image", "files", files)
	case resolver.UpdateAvailable:
		logger.InfoKV(ctx, "Update available", "file", r.Entry.File, "version", r.Entry.Version)
	case resolver.NoUpdate, resolver.MalformedRequest:
		logger.DebugKV(ctx, "No update offered", "outcome", r.Outcome.String())
	}
}
