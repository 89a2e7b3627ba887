// Package handle implements the process-local identifier registry mapping
// opaque integer handles to dispatch objects.
//
// The dispatch core itself passes object values directly; the handle table
// exists for embedders that need integer handles at their own API
// boundary. Handles are never persisted or transmitted.
package handle

import (
	"sync"

	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/errors"
)

// ID is an opaque process-local handle
type ID uint64

// ReleaseFunc runs when a handle's reference count reaches zero
type ReleaseFunc func(kind core.ObjectKind, payload interface{}) error

type entry struct {
	kind    core.ObjectKind
	payload interface{}
	refs    int
}

// Table is one handle registry. All operations are serialized; the table
// is the only dispatch collaborator that guarantees its own concurrency.
type Table struct {
	mu        sync.Mutex
	entries   map[ID]*entry
	next      ID
	onRelease ReleaseFunc
}

// NewTable creates an empty handle table
func NewTable() *Table {
	return &Table{entries: make(map[ID]*entry)}
}

var defaultTable = NewTable()

// Default returns the process-wide handle table
func Default() *Table {
	return defaultTable
}

// SetReleaseFunc installs the callback invoked when a handle's last
// reference is dropped
func (t *Table) SetReleaseFunc(fn ReleaseFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRelease = fn
}

// Register assigns a fresh handle to a payload with one reference
func (t *Table) Register(kind core.ObjectKind, payload interface{}) (ID, error) {
	if payload == nil {
		return 0, errors.New(errors.ErrorTypeValidation, "cannot register nil payload")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	id := t.next
	t.entries[id] = &entry{kind: kind, payload: payload, refs: 1}
	return id, nil
}

// Resolve returns the kind and payload behind a handle
func (t *Table) Resolve(id ID) (core.ObjectKind, interface{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return 0, nil, errors.Newf(errors.ErrorTypeHandle, "handle %d is not valid", id)
	}
	return e.kind, e.payload, nil
}

// ResolveKind resolves a handle and checks it has the expected kind
func (t *Table) ResolveKind(id ID, kind core.ObjectKind) (interface{}, error) {
	k, payload, err := t.Resolve(id)
	if err != nil {
		return nil, err
	}
	if k != kind {
		return nil, errors.Newf(errors.ErrorTypeHandle,
			"handle %d is a %s, expected %s", id, k, kind)
	}
	return payload, nil
}

// IncRef acquires one reference to a handle
func (t *Table) IncRef(id ID) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return 0, errors.Newf(errors.ErrorTypeHandle, "handle %d is not valid", id)
	}
	e.refs++
	return e.refs, nil
}

// DecRef releases one reference. When the count reaches zero the entry is
// removed and the release callback runs.
func (t *Table) DecRef(id ID) (int, error) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok {
		t.mu.Unlock()
		return 0, errors.Newf(errors.ErrorTypeHandle, "handle %d is not valid", id)
	}
	e.refs--
	refs := e.refs
	var release ReleaseFunc
	if refs == 0 {
		delete(t.entries, id)
		release = t.onRelease
	}
	t.mu.Unlock()

	if release != nil {
		if err := release(e.kind, e.payload); err != nil {
			return 0, err
		}
	}
	return refs, nil
}

// Len returns the number of live handles
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
