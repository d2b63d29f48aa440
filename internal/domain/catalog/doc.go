// Package catalog turns a listing of image filenames into an immutable Catalog.
//
// A filename is split on a configurable separator after its extension is
// removed; the image identifier, device type and version are picked out by
// zero-based field position. Names that cannot be parsed are not errors, they
// are simply left out of the catalog and reported through Skipped.
package catalog
