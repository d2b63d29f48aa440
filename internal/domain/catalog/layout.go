package catalog

import (
	"errors"
	"fmt"
)

const (
	// DefaultSeparator splits filename fields unless configured otherwise.
	DefaultSeparator = "_"

	// DefaultImageIDField is the zero-based position of the image identifier.
	DefaultImageIDField = 0
	// DefaultDeviceTypeField is the zero-based position of the device type.
	DefaultDeviceTypeField = 1
	// DefaultVersionField is the zero-based position of the version.
	DefaultVersionField = 2
)

var (
	// ErrEmptySeparator is returned when the layout has no separator.
	ErrEmptySeparator = errors.New("filename fields separator must not be empty")
	// ErrNegativeField is returned for field positions below zero.
	ErrNegativeField = errors.New("filename field position must not be negative")
	// ErrDuplicateField is returned when two fields share a position.
	ErrDuplicateField = errors.New("filename field positions must be distinct")
)

// Layout describes how a filename maps onto catalog fields.
// Field positions are zero-based indices into the separator-split stem.
type Layout struct {
	// Separator splits the filename stem into fields.
	Separator string
	// ImageIDField is the position of the image identifier.
	ImageIDField int
	// DeviceTypeField is the position of the device type.
	DeviceTypeField int
	// VersionField is the position of the version.
	VersionField int
}

// DefaultLayout returns "<image>_<device>_<version>.<ext>".
func DefaultLayout() Layout {
	return Layout{
		Separator:       DefaultSeparator,
		ImageIDField:    DefaultImageIDField,
		DeviceTypeField: DefaultDeviceTypeField,
		VersionField:    DefaultVersionField,
	}
}

// Validate reports whether the layout can address three distinct fields.
func (l Layout) Validate() error {
	if l.Separator == "" {
		return ErrEmptySeparator
	}

	fields := map[string]int{
		"image identifier": l.ImageIDField,
		"device type":      l.DeviceTypeField,
		"version":          l.VersionField,
	}

	for name, position := range fields {
		if position < 0 {
			return fmt.Errorf("%s field %d: %w", name, position, ErrNegativeField)
		}
	}

	if l.ImageIDField == l.DeviceTypeField ||
		l.ImageIDField == l.VersionField ||
		l.DeviceTypeField == l.VersionField {
		return ErrDuplicateField
	}

	return nil
}

// minFields is the number of fields a stem needs to cover every position.
func (l Layout) minFields() int {
	return max(l.ImageIDField, l.DeviceTypeField, l.VersionField) + 1
}
