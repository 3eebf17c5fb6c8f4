package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotTracked marks events whose sender is not in the tracked wallet set.
	// Such events are dropped silently.
	ErrNotTracked = errors.New("sender is not a tracked wallet")
	// ErrRunInProgress is returned when another run holds the lease for the chain.
	ErrRunInProgress = errors.New("run already in progress")
)

// FetchError is a transport or malformed-response failure for a whole sub-range.
// The run aborts and the range is retried by the next invocation.
type FetchError struct {
	Range BlockRange
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch events %s: %v", e.Range, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// DataShapeError describes a single malformed event. The event is dropped and
// the rest of the sub-range proceeds.
type DataShapeError struct {
	EventID string
	Kind    EventKind
	Reason  string
}

func (e *DataShapeError) Error() string {
	return fmt.Sprintf("malformed %s event %q: %s", e.Kind, e.EventID, e.Reason)
}

// PersistenceError reports failed chunk writes for a sub-range. Its checkpoint
// must not be committed.
type PersistenceError struct {
	Range        BlockRange
	FailedChunks int
	TotalChunks  int
	Err          error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %d of %d chunks failed: %v", e.Range, e.FailedChunks, e.TotalChunks, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

type RegistryError struct {
	Err error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("read tracking registry: %v", e.Err)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

type NotificationError struct {
	Sender string
	Err    error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify via %s: %v", e.Sender, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// CommitError is a failed checkpoint write. Records already persisted stay
// valid; the next run re-scans the range.
type CommitError struct {
	ChainID string
	Block   uint64
	Err     error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit checkpoint %s@%d: %v", e.ChainID, e.Block, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}
