package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oshokin/swupdate-httpd/internal/domain/catalog"
	"github.com/oshokin/swupdate-httpd/internal/logger"
	"github.com/oshokin/swupdate-httpd/internal/metrics"
)

// Scanner builds a catalog snapshot.
type Scanner interface {
	Scan(ctx context.Context) (*catalog.Catalog, error)
}

// ErrScan wraps every failure to read the images directory.
var ErrScan = errors.New("scan images directory")

// DirectoryScanner lists regular files in a directory and parses their names.
type DirectoryScanner struct {
	// dir is the images directory.
	dir string
	// layout maps filename fields to catalog fields.
	layout catalog.Layout
}

// NewDirectoryScanner creates a scanner for dir.
func NewDirectoryScanner(dir string, layout catalog.Layout) *DirectoryScanner {
	return &DirectoryScanner{
		dir:    filepath.Clean(dir),
		layout: layout,
	}
}

// Dir returns the scanned directory.
func (s *DirectoryScanner) Dir() string {
	return s.dir
}

// Scan reads the directory and builds a catalog. Sub-directories and dotfiles
// are not listed. Symlinks are followed so a link to an image counts as one.
func (s *DirectoryScanner) Scan(ctx context.Context) (*catalog.Catalog, error) {
	started := time.Now()

	names, err := s.list()
	if err != nil {
		metrics.CatalogScanErrorsTotal.Inc()

		return nil, fmt.Errorf("%w %s: %w", ErrScan, s.dir, err)
	}

	c := catalog.Build(names, s.layout)

	metrics.CatalogScanDuration.Observe(time.Since(started).Seconds())
	metrics.CatalogEntries.Set(float64(c.Len()))
	metrics.CatalogSkippedFiles.Set(float64(len(c.Skipped())))

	logger.DebugKV(ctx, "Scanned images directory",
		"dir", s.dir, "entries", c.Len(), "skipped", len(c.Skipped()))

	return c, nil
}

// Check reports whether the directory can be read. It neither builds a
// catalog nor touches the catalog metrics, which describe served snapshots.
func (s *DirectoryScanner) Check(context.Context) error {
	dir, err := os.Open(s.dir)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrScan, s.dir, err)
	}

	defer func() {
		_ = dir.Close()
	}()

	if _, err := dir.ReadDir(1); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w %s: %w", ErrScan, s.dir, err)
	}

	return nil
}

func (s *DirectoryScanner) list() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(dirEntries))

	for _, entry := range dirEntries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		if entry.Type()&os.ModeSymlink != 0 {
			info, err := os.Stat(filepath.Join(s.dir, name))
			if err != nil || !info.Mode().IsRegular() {
				continue
			}

			names = append(names, name)

			continue
		}

		if entry.Type().IsRegular() {
			names = append(names, name)
		}
	}

	return names, nil
}
