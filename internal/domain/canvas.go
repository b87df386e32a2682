package domain

import (
	"context"
	"errors"
)

// ErrInvalidSnapshot is returned by Canvas.Replace when the snapshot cannot be
// parsed or does not match the canvas schema.
var ErrInvalidSnapshot = errors.New("invalid canvas snapshot")

// Snapshot is the opaque serialized form of a full canvas document.
type Snapshot string

type MutationSource string

const (
	SourceUser         MutationSource = "user"
	SourceProgrammatic MutationSource = "programmatic"
)

type MutationScope string

const (
	// ScopeDocument covers persisted state (shapes).
	ScopeDocument MutationScope = "document"
	// ScopeSession covers viewport-only state (camera) that is never saved on its own.
	ScopeSession MutationScope = "session"
)

// MutationEvent is delivered to subscribers after the canvas changes.
type MutationEvent struct {
	Source  MutationSource `json:"source"`
	Scope   MutationScope  `json:"scope"`
	Changes int            `json:"changes"`
}

type MutationHandler func(MutationEvent)

// Canvas is the live document capability driven by the sync controller.
type Canvas interface {
	Serialize() (Snapshot, error)
	// Replace installs snap. On ErrInvalidSnapshot the document is left untouched.
	Replace(snap Snapshot) error
	Clear()
	Subscribe(h MutationHandler) (unsubscribe func())
}

// Quiescer is implemented by canvases that can report when every mutation
// event produced so far has been delivered to subscribers.
type Quiescer interface {
	Quiesce(ctx context.Context) error
}

// Versioned is implemented by canvases that count document-scope mutations.
// The count lets a caller tell whether the document changed since it last looked.
type Versioned interface {
	Version() uint64
}
