package resource

import (
	"fmt"
	"reflect"

	"github.com/wippyai/wbg-runtime/errors"
	"github.com/wippyai/wbg-runtime/value"
)

type slot struct {
	value    any
	next     Handle
	occupied bool
}

// Table maps integer handles to host values.
//
// Released slots are threaded into an intrusive free list through slot.next,
// so the most recently released handle is reused first. free == len(slots)
// means the list is empty. The table is not safe for concurrent use; it is
// owned by the goroutine that runs the instance.
type Table struct {
	slots     []slot
	observers []subscription
	refs      map[Dropper]int
	free      Handle
	live      int
	nextSub   int
}

type subscription struct {
	o  Observer
	id int
}

// NewTable creates a table with the reserved and constant slots populated.
func NewTable() *Table {
	t := &Table{}
	t.reset()
	return t
}

func (t *Table) reset() {
	t.slots = make([]slot, FirstFree, 2*FirstFree)
	for i := range t.slots[:ReservedSlots] {
		t.slots[i] = slot{value: value.Undefined, occupied: true}
	}
	t.slots[HandleUndefined] = slot{value: value.Undefined, occupied: true}
	t.slots[HandleNull] = slot{value: value.Null, occupied: true}
	t.slots[HandleTrue] = slot{value: true, occupied: true}
	t.slots[HandleFalse] = slot{value: false, occupied: true}
	t.free = Handle(len(t.slots))
	t.live = 0
	t.refs = make(map[Dropper]int)
}

// counted returns v as a reference-counted Dropper. Only pointer values
// are counted, so clones of one value share a count.
func counted(v any) (Dropper, bool) {
	d, ok := v.(Dropper)
	if !ok || reflect.TypeOf(v).Kind() != reflect.Pointer {
		return nil, false
	}
	return d, true
}

// Put stores v in a free slot and returns its handle.
func (t *Table) Put(v any) Handle {
	if int(t.free) == len(t.slots) {
		t.slots = append(t.slots, slot{next: t.free + 1})
	}
	h := t.free
	t.free = t.slots[h].next
	t.slots[h] = slot{value: v, occupied: true}
	t.live++
	if d, ok := counted(v); ok {
		t.refs[d]++
	}

	t.notify(Event{Type: EventCreated, Handle: h, Value: v})
	return h
}

// Get returns the value stored at h.
func (t *Table) Get(h Handle) (any, error) {
	if int(h) >= len(t.slots) {
		return nil, errors.InvalidHandle(uint32(h), fmt.Sprintf("beyond table size %d", len(t.slots)))
	}
	s := &t.slots[h]
	if !s.occupied {
		return nil, errors.InvalidHandle(uint32(h), "slot is not occupied")
	}
	return s.value, nil
}

// Drop releases h. Reserved and constant handles are ignored.
// Releasing a free slot fails with a double free and leaves the table unchanged.
// When h was the last handle to a pointer Dropper, its Drop method runs.
func (t *Table) Drop(h Handle) error {
	_, err := t.release(h, true)
	return err
}

// Take returns the value at h and releases the slot. The caller owns the
// value afterwards, so Drop is not called on it.
func (t *Table) Take(h Handle) (any, error) {
	v, err := t.Get(h)
	if err != nil {
		return nil, err
	}
	if _, err := t.release(h, false); err != nil {
		return nil, err
	}
	return v, nil
}

// Clone stores the value at h in a new slot.
func (t *Table) Clone(h Handle) (Handle, error) {
	v, err := t.Get(h)
	if err != nil {
		return 0, err
	}
	return t.Put(v), nil
}

func (t *Table) release(h Handle, drop bool) (any, error) {
	if h.IsReserved() {
		return nil, nil
	}
	if int(h) >= len(t.slots) {
		return nil, errors.InvalidHandle(uint32(h), fmt.Sprintf("beyond table size %d", len(t.slots)))
	}
	s := &t.slots[h]
	if !s.occupied {
		return nil, errors.DoubleFree(uint32(h))
	}
	v := s.value
	*s = slot{next: t.free}
	t.free = h
	t.live--

	t.notify(Event{Type: EventDropped, Handle: h, Value: v})
	if d, ok := counted(v); ok {
		t.refs[d]--
		if t.refs[d] <= 0 {
			delete(t.refs, d)
			if drop {
				d.Drop()
			}
		}
	}
	return v, nil
}

// Subscribe adds an observer for lifecycle events and returns a function
// that removes it. Calling the function again has no effect.
func (t *Table) Subscribe(o Observer) (unsubscribe func()) {
	t.nextSub++
	id := t.nextSub
	t.observers = append(t.observers, subscription{o: o, id: id})
	return func() {
		for i, sub := range t.observers {
			if sub.id == id {
				t.observers = append(t.observers[:i], t.observers[i+1:]...)
				return
			}
		}
	}
}

// Len returns the number of live, non-reserved handles.
func (t *Table) Len() int {
	return t.live
}

// Each iterates over live, non-reserved handles in index order.
func (t *Table) Each(fn func(Handle, any) bool) {
	for i := int(FirstFree); i < len(t.slots); i++ {
		if t.slots[i].occupied {
			if !fn(Handle(i), t.slots[i].value) {
				return
			}
		}
	}
}

// Clear releases every live handle and rebuilds an empty free list.
// Dropper values are not dropped.
func (t *Table) Clear() {
	var handles []Handle
	t.Each(func(h Handle, _ any) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		_, _ = t.release(h, false)
	}
	t.reset()
}

// Close calls Drop once on every live Dropper value and clears the table.
func (t *Table) Close() error {
	seen := make(map[Dropper]bool, len(t.refs))
	t.Each(func(_ Handle, v any) bool {
		d, ok := v.(Dropper)
		if !ok {
			return true
		}
		if _, ptr := counted(v); ptr {
			if seen[d] {
				return true
			}
			seen[d] = true
		}
		d.Drop()
		return true
	})
	t.Clear()
	return nil
}

func (t *Table) notify(e Event) {
	for _, sub := range t.observers {
		sub.o.OnResourceEvent(e)
	}
}

// Lookup returns the value at h when it has type T.
func Lookup[T any](t *Table, h Handle) (T, error) {
	var zero T
	v, err := t.Get(h)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, errors.New(errors.PhaseHandle, errors.KindTypeMismatch).
			Handle(uint32(h)).
			GoType(fmt.Sprintf("%T", v)).
			Detail("expected %T", zero).
			Build()
	}
	return typed, nil
}
