package catalog

import (
	"slices"
	"strings"
)

// Entry is one image file described by its parsed name.
type Entry struct {
	// ImageID identifies the image or application.
	ImageID string
	// DeviceType identifies the hardware the image targets.
	DeviceType string
	// Version is compared for equality only, never ordered.
	Version string
	// File is the bare filename inside the images directory.
	File string
}

// Catalog is an immutable snapshot of parsed image files.
type Catalog struct {
	// entries are the parseable files in lexical filename order.
	entries []Entry
	// skipped are names that did not match the layout.
	skipped []string
	// layout is the layout the catalog was built with.
	layout Layout
}

// ParseFilename extracts an Entry from name using layout.
// The extension (from the last dot on) is dropped before splitting, unless the
// dot is the first character. It returns false when the stem has too few
// fields, any extracted field is empty, or the layout itself is invalid.
func ParseFilename(name string, layout Layout) (Entry, bool) {
	if layout.Validate() != nil {
		return Entry{}, false
	}

	stem := name
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		stem = name[:i]
	}

	fields := strings.Split(stem, layout.Separator)
	if len(fields) < layout.minFields() {
		return Entry{}, false
	}

	entry := Entry{
		ImageID:    fields[layout.ImageIDField],
		DeviceType: fields[layout.DeviceTypeField],
		Version:    fields[layout.VersionField],
		File:       name,
	}

	if entry.ImageID == "" || entry.DeviceType == "" || entry.Version == "" {
		return Entry{}, false
	}

	return entry, true
}

// Build parses listing into a Catalog. The listing is sorted lexically first so
// the result does not depend on directory iteration order. Build never fails.
func Build(listing []string, layout Layout) *Catalog {
	names := slices.Clone(listing)
	slices.Sort(names)

	c := &Catalog{
		entries: make([]Entry, 0, len(names)),
		layout:  layout,
	}

	for _, name := range names {
		entry, ok := ParseFilename(name, layout)
		if !ok {
			c.skipped = append(c.skipped, name)
			continue
		}

		c.entries = append(c.entries, entry)
	}

	return c
}

// Empty returns a catalog with no entries.
func Empty(layout Layout) *Catalog {
	return &Catalog{layout: layout}
}

// Entries returns a copy of the catalog entries.
func (c *Catalog) Entries() []Entry {
	if c == nil {
		return nil
	}

	return slices.Clone(c.entries)
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}

	return len(c.entries)
}

// Skipped returns a copy of the names that were left out.
func (c *Catalog) Skipped() []string {
	if c == nil {
		return nil
	}

	return slices.Clone(c.skipped)
}

// Layout returns the layout used to build the catalog.
func (c *Catalog) Layout() Layout {
	if c == nil {
		return DefaultLayout()
	}

	return c.layout
}

// Match returns entries whose image identifier and device type are exactly
// imageID and deviceType. Comparison is case-sensitive with no trimming.
func (c *Catalog) Match(imageID, deviceType string) []Entry {
	if c == nil {
		return nil
	}

	var matches []Entry

	for _, entry := range c.entries {
		if entry.ImageID == imageID && entry.DeviceType == deviceType {
			matches = append(matches, entry)
		}
	}

	return matches
}
