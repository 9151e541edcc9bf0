// Package handles implements the opaque-handle object model: the four handle
// kinds, their ownership tree, and the generation-checked arena that maps the
// untyped handle values crossing the boundary back to typed driver objects
// without ever trusting a raw address.
package handles

import (
	"sync"

	"docstore-odbc/internal/diag"
)

// Handle is the opaque value handed across the boundary: a 32-bit arena slot
// index in the low half and the slot's generation in the high half. Zero is
// never a valid handle.
type Handle uint64

// NullHandle is the invalid zero handle.
const NullHandle Handle = 0

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index))
}

func (h Handle) index() uint32 { return uint32(h) }
func (h Handle) gen() uint32   { return uint32(h >> 32) }

// Kind identifies the four handle variants.
type Kind int

const (
	KindEnvironment Kind = 1
	KindConnection  Kind = 2
	KindStatement   Kind = 3
	KindDescriptor  Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindEnvironment:
		return "environment"
	case KindConnection:
		return "connection"
	case KindStatement:
		return "statement"
	case KindDescriptor:
		return "descriptor"
	default:
		return "unknown"
	}
}

// Object is implemented by all four handle variants.
type Object interface {
	Kind() Kind
	Diagnostics() *diag.Ledger
}

type slot struct {
	gen uint32
	obj Object
}

// arena is the process-wide handle table. Slots are reused with a bumped
// generation, so a stale handle can never resolve to a newer occupant.
type arena struct {
	mu    sync.RWMutex
	slots []slot
	free  []uint32
}

var handleArena = &arena{
	// Slot 0 is burned so that the zero handle never resolves.
	slots: make([]slot, 1),
}

func (a *arena) alloc(obj Object) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	var index uint32
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot{})
		index = uint32(len(a.slots) - 1)
	}
	a.slots[index].gen++
	a.slots[index].obj = obj
	return makeHandle(index, a.slots[index].gen)
}

func (a *arena) resolve(h Handle) (Object, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	i := h.index()
	if i == 0 || int(i) >= len(a.slots) {
		return nil, false
	}
	s := a.slots[i]
	if s.obj == nil || s.gen != h.gen() {
		return nil, false
	}
	return s.obj, true
}

func (a *arena) release(h Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := h.index()
	if i == 0 || int(i) >= len(a.slots) {
		return false
	}
	s := &a.slots[i]
	if s.obj == nil || s.gen != h.gen() {
		return false
	}
	s.obj = nil
	a.free = append(a.free, i)
	return true
}

// Resolve downcasts an untyped handle to its object. The second return is
// false for null, stale or never-allocated handles; no access ever faults.
func Resolve(h Handle) (Object, bool) {
	return handleArena.resolve(h)
}

func invalidHandle(h Handle, want Kind) *diag.Error {
	return diag.New(diag.GeneralError, "handles", "invalid %s handle %#x", want, uint64(h))
}
