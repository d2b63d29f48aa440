package resolver

import (
	"errors"
	"fmt"

	"github.com/oshokin/swupdate-httpd/internal/domain/catalog"
)

// Outcome is the closed set of resolution results.
type Outcome int

const (
	// MalformedRequest means a query parameter was missing or empty.
	MalformedRequest Outcome = iota
	// NoUpdate means no image matched or the matching image is already installed.
	NoUpdate
	// UpdateAvailable means exactly one image matched with a different version.
	UpdateAvailable
	// Conflict means more than one image matched the image and device pair.
	Conflict
)

// String returns the snake_case name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case MalformedRequest:
		return "malformed_request"
	case NoUpdate:
		return "no_update"
	case UpdateAvailable:
		return "update_available"
	case Conflict:
		return "conflict"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Outcomes lists every outcome, in declaration order.
func Outcomes() []Outcome {
	return []Outcome{MalformedRequest, NoUpdate, UpdateAvailable, Conflict}
}

// ErrMalformedQuery is wrapped by Query.Validate with the missing parameter name.
var ErrMalformedQuery = errors.New("malformed query")

// Query is what a client sends to ask for an update.
type Query struct {
	ImageID        string
	DeviceType     string
	CurrentVersion string
}

// Validate reports the first missing parameter, using its query-string name.
func (q Query) Validate() error {
	switch {
	case q.ImageID == "":
		return fmt.Errorf("%w: image is required", ErrMalformedQuery)
	case q.DeviceType == "":
		return fmt.Errorf("%w: device is required", ErrMalformedQuery)
	case q.CurrentVersion == "":
		return fmt.Errorf("%w: current_version is required", ErrMalformedQuery)
	default:
		return nil
	}
}

// Resolution is the result of resolving a Query against a Catalog.
type Resolution struct {
	// Outcome classifies the result.
	Outcome Outcome
	// Entry is the single matching image for UpdateAvailable, and for NoUpdate
	// when the client already runs the matching version.
	Entry *catalog.Entry
	// Matches holds every matching entry when Outcome is Conflict.
	Matches []catalog.Entry
}

// Resolve classifies q against cat. A nil catalog is treated as empty.
// Versions are compared for string equality only.
func Resolve(cat *catalog.Catalog, q Query) Resolution {
	if err := q.Validate(); err != nil {
		return Resolution{Outcome: MalformedRequest}
	}

	matches := cat.Match(q.ImageID, q.DeviceType)

	switch len(matches) {
	case 0:
		return Resolution{Outcome: NoUpdate}
	case 1:
		entry := matches[0]
		if entry.Version == q.CurrentVersion {
			return Resolution{Outcome: NoUpdate, Entry: &entry}
		}

		return Resolution{Outcome: UpdateAvailable, Entry: &entry}
	default:
		return Resolution{Outcome: Conflict, Matches: matches}
	}
}
