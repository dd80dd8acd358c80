package resource

// Handle is an index into a handle table.
// Handles below FirstFree are reserved and never allocated.
type Handle uint32

const (
	// ReservedSlots is the number of leading slots that always read as undefined.
	ReservedSlots = 128

	HandleUndefined Handle = 128
	HandleNull      Handle = 129
	HandleTrue      Handle = 130
	HandleFalse     Handle = 131

	// FirstFree is the lowest handle Put can return.
	FirstFree Handle = 132
)

// IsReserved reports whether h is a reserved or constant slot.
func (h Handle) IsReserved() bool {
	return h < FirstFree
}

// Event types for handle lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	}
	return "unknown"
}

// Event represents a handle lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Dropper is optionally implemented by values that hold releasable host
// state, such as open response bodies. For pointer values Drop runs when
// the last handle to the value is dropped (clones share one count) or when
// the table closes; Take hands the value to the caller without dropping it.
// Drop must tolerate being called more than once.
type Dropper interface {
	Drop()
}
