// Package images reads the images directory and hands out catalog snapshots.
//
// DirectoryScanner turns a directory listing into a catalog.Catalog. The
// providers decide how often that happens: PerRequestProvider scans on every
// call, TTLProvider reuses a scan for a fixed period, and StaticProvider keeps
// one snapshot until Reload swaps in a new one. Snapshots are never modified
// after they are built, so readers always see a complete catalog.
package images
