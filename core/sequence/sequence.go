package sequence

import (
	"fmt"

	"dropforge/core/catalog"
)

// KV is the narrow slice of the state manager the sequence engine needs.
type KV interface {
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
}

// Cursor is the persisted distribution primitive: an ordered permutation of
// catalog indices plus the wrap-around read position. Order grows only during
// the build phase; Position is mutated only by Reserve.
type Cursor struct {
	Order     []uint64
	Position  uint64
	Expected  uint64
	Finalized bool
}

// Reservation is the ephemeral window granted by one Reserve call. It is never
// persisted; it only drives the catalog lookups that follow.
type Reservation struct {
	Group  catalog.GroupKey
	Start  uint64
	Count  uint64
	Length uint64
}

// Engine owns the per-group cursors. Building a sequence is a three-phase
// protocol (Initialize, Append any number of times, Finalize); consumption
// goes through Reserve and Resolve.
type Engine struct {
	state   KV
	catalog *catalog.Engine
}

func NewEngine(state KV, cat *catalog.Engine) *Engine {
	return &Engine{state: state, catalog: cat}
}

func (e *Engine) loadCursor(group catalog.GroupKey) (Cursor, bool, error) {
	var cursor Cursor
	ok, err := e.state.KVGet(cursorKeyBytes(group), &cursor)
	if err != nil {
		return Cursor{}, false, err
	}
	return cursor, ok, nil
}

func (e *Engine) storeCursor(group catalog.GroupKey, cursor Cursor) error {
	return e.state.KVPut(cursorKeyBytes(group), cursor)
}

// Initialize starts (or restarts) the build phase for a group, discarding any
// prior order and position. Re-initialising a finalized sequence is the
// supported replace path. expectedLength is advisory, recorded only for
// operator progress tracking.
func (e *Engine) Initialize(group catalog.GroupKey, expectedLength uint64) error {
	if !group.Valid() {
		return catalog.ErrInvalidGroup
	}
	if expectedLength == 0 {
		return ErrZeroExpected
	}
	group = group.Normalize()
	return e.storeCursor(group, Cursor{Expected: expectedLength})
}

// Append validates each index against the current catalog length and pushes
// the batch onto the order. The caller supplies an intentionally shuffled
// ordering; the engine never reorders. A failed validation leaves the stored
// cursor untouched. Once a sequence is finalized its order is closed; the only
// way to change it is the re-Initialize replace path.
func (e *Engine) Append(group catalog.GroupKey, indices []uint64) error {
	if !group.Valid() {
		return catalog.ErrInvalidGroup
	}
	if len(indices) == 0 {
		return ErrZeroCount
	}
	group = group.Normalize()
	cursor, ok, err := e.loadCursor(group)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: group %s", ErrNotInitialized, group)
	}
	if cursor.Finalized {
		return fmt.Errorf("%w: group %s", ErrFinalized, group)
	}
	length, err := e.catalog.Length(group)
	if err != nil {
		return err
	}
	for _, index := range indices {
		if index >= length {
			return fmt.Errorf("%w: sequence entry %d catalog length %d", catalog.ErrIndexOutOfRange, index, length)
		}
	}
	cursor.Order = append(cursor.Order, indices...)
	return e.storeCursor(group, cursor)
}

// Finalize marks the sequence consumable and resets the read position. A
// sequence with no entries cannot be finalized, and a live finalized cursor
// cannot be finalized again (that would reset a position only Reserve may
// advance).
func (e *Engine) Finalize(group catalog.GroupKey) error {
	if !group.Valid() {
		return catalog.ErrInvalidGroup
	}
	group = group.Normalize()
	cursor, ok, err := e.loadCursor(group)
	if err != nil {
		return err
	}
	if !ok || len(cursor.Order) == 0 {
		return fmt.Errorf("%w: group %s", ErrEmptySequence, group)
	}
	if cursor.Finalized {
		return fmt.Errorf("%w: group %s", ErrFinalized, group)
	}
	cursor.Position = 0
	cursor.Finalized = true
	return e.storeCursor(group, cursor)
}

// Status returns the stored cursor and whether one exists. Used by the audit
// and progress queries.
func (e *Engine) Status(group catalog.GroupKey) (Cursor, bool, error) {
	if !group.Valid() {
		return Cursor{}, false, catalog.ErrInvalidGroup
	}
	return e.loadCursor(group.Normalize())
}

// Reserve claims a contiguous logical range of count cursor advances in a
// single read-modify-write: the start is read and the position advanced modulo
// the order length in one step, so no other call can ever observe a position
// inside the granted window. It never mutates the order itself.
func (e *Engine) Reserve(group catalog.GroupKey, count uint64) (Reservation, error) {
	if !group.Valid() {
		return Reservation{}, catalog.ErrInvalidGroup
	}
	if count == 0 {
		return Reservation{}, ErrZeroCount
	}
	group = group.Normalize()
	cursor, ok, err := e.loadCursor(group)
	if err != nil {
		return Reservation{}, err
	}
	if !ok || !cursor.Finalized {
		return Reservation{}, fmt.Errorf("%w: group %s", ErrNotFinalized, group)
	}
	length := uint64(len(cursor.Order))
	if length == 0 {
		return Reservation{}, fmt.Errorf("%w: group %s", ErrEmptySequence, group)
	}
	start := cursor.Position
	cursor.Position = (cursor.Position + count) % length
	if err := e.storeCursor(group, cursor); err != nil {
		return Reservation{}, err
	}
	return Reservation{Group: group, Start: start, Count: count, Length: length}, nil
}

// Resolve maps the logical offsets of a reservation onto concrete catalog
// templates: offset i resolves to order[(start+i) mod len(order)].
func (e *Engine) Resolve(group catalog.GroupKey, start, count uint64) ([]catalog.ItemTemplate, error) {
	if !group.Valid() {
		return nil, catalog.ErrInvalidGroup
	}
	if count == 0 {
		return nil, ErrZeroCount
	}
	group = group.Normalize()
	cursor, ok, err := e.loadCursor(group)
	if err != nil {
		return nil, err
	}
	if !ok || !cursor.Finalized {
		return nil, fmt.Errorf("%w: group %s", ErrNotFinalized, group)
	}
	length := uint64(len(cursor.Order))
	if length == 0 {
		return nil, fmt.Errorf("%w: group %s", ErrEmptySequence, group)
	}
	if start >= length {
		return nil, fmt.Errorf("%w: start %d length %d", catalog.ErrIndexOutOfRange, start, length)
	}
	items := make([]catalog.ItemTemplate, 0, count)
	for i := uint64(0); i < count; i++ {
		index := cursor.Order[(start+i)%length]
		item, err := e.catalog.Get(group, index)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
