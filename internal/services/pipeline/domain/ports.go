package domain

import (
	"context"

	"seriate/internal/core/splitter"
	"seriate/internal/services/manifest"
)

// Payload is one publish request handed to the transport
type Payload struct {
	// ParentAuthor and ParentLocator thread the part under the series
	// root; both empty for part 1
	ParentAuthor  string
	ParentLocator string

	Author string
	Title  string

	// Body is the part content with the compact marker already appended
	Body string

	// SuggestedID is a deterministic slug the transport may use or ignore
	SuggestedID string

	// Manifest is a read-only snapshot attached as structured metadata
	Manifest *manifest.Manifest
	Tags     []string
}

// TransportPort publishes one payload and returns where it landed
// A nil error with an empty locator is a contract violation and is
// surfaced to the caller as an error
type TransportPort interface {
	Publish(ctx context.Context, p Payload) (manifest.Ref, error)
}

// ObserverPort receives a notification after every state transition
type ObserverPort interface {
	OnProgress(p Progress)
}

// StoragePort is the durable side of the pipeline: split parts plus the
// manifest in one blob, state snapshots in another
type StoragePort interface {
	SaveParts(ctx context.Context, seriesID string, parts []splitter.Part, m *manifest.Manifest) error
	LoadParts(ctx context.Context, seriesID string) ([]splitter.Part, *manifest.Manifest, error)
	DeleteParts(ctx context.Context, seriesID string) error

	SaveState(ctx context.Context, st *State) error
	LoadState(ctx context.Context, seriesID string) (*State, error)
	DeleteState(ctx context.Context, seriesID string) error

	// ListIncomplete returns series ids whose persisted status is resumable
	ListIncomplete(ctx context.Context) ([]string, error)
}
