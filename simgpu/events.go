package simgpu

import "fmt"

// EventKind identifies an entry of the device call log.
type EventKind uint8

const (
	EventCreateQueue EventKind = iota
	EventCreateAllocator
	EventCreateCommandList
	EventCreateFence
	EventCreateBuffer
	EventAllocatorReset
	EventListReset
	EventListClose
	EventExecute
	EventSignal
	EventWait
	EventBlocked
	EventRetire
	EventPresent
	EventRelease
	EventDeviceLost
	EventViolation
)

var eventNames = [...]string{
	EventCreateQueue:       "create_queue",
	EventCreateAllocator:   "create_allocator",
	EventCreateCommandList: "create_list",
	EventCreateFence:       "create_fence",
	EventCreateBuffer:      "create_buffer",
	EventAllocatorReset:    "allocator_reset",
	EventListReset:         "list_reset",
	EventListClose:         "list_close",
	EventExecute:           "execute",
	EventSignal:            "signal",
	EventWait:              "wait",
	EventBlocked:           "blocked",
	EventRetire:            "retire",
	EventPresent:           "present",
	EventRelease:           "release",
	EventDeviceLost:        "device_lost",
	EventViolation:         "violation",
}

// String returns the event name.
func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", k)
}

// Event is one entry of the device call log.
type Event struct {
	Kind   EventKind
	Object string
	Value  uint64
}

// String formats the event as "kind object=value".
func (e Event) String() string {
	return fmt.Sprintf("%s %s=%d", e.Kind, e.Object, e.Value)
}

func (d *Device) recordLocked(kind EventKind, object string, value uint64) {
	d.events = append(d.events, Event{Kind: kind, Object: object, Value: value})
}

// Events returns a copy of the call log.
func (d *Device) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

// EventsOf returns the logged events of the given kinds, in order.
func (d *Device) EventsOf(kinds ...EventKind) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Event
	for _, e := range d.events {
		for _, k := range kinds {
			if e.Kind == k {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// ResetEvents clears the call log.
func (d *Device) ResetEvents() {
	d.mu.Lock()
	d.events = nil
	d.mu.Unlock()
}
