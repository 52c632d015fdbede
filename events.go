// Package tethercam implements per-device tethered capture on top of the
// gphoto2 command-line tool: a session per camera runs a file-detection loop
// and a download loop, a manager owns the sessions, and consumers observe
// lifecycle events on a multiplexed bus.
package tethercam

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names a tethering lifecycle event.
type EventType string

const (
	// EventFileAdded fires when a new file appears on the camera.
	EventFileAdded EventType = "file_added"
	// EventFileDownloaded fires after a file landed on local disk.
	EventFileDownloaded EventType = "file_downloaded"
	// EventDeviceBusy brackets the start of a download.
	EventDeviceBusy EventType = "device_busy"
	// EventDeviceReady brackets the end of a download, and fires on session start.
	EventDeviceReady EventType = "device_ready"
	// EventError reports a failure that did not end the session.
	EventError EventType = "error"
)

// Event is one occurrence on a device. Events are immutable and delivered at
// most once per subscriber; ordering is FIFO per device, unspecified across
// devices.
type Event struct {
	ID        string
	Type      EventType
	Port      string
	Timestamp time.Time
	Payload   map[string]string
}

// Bus fans events out to any number of subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a receive channel and an unsubscribe func. Callers must
// invoke the cleanup when done; the channel is closed by it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, unsub
}

// Publish stamps and delivers an event to every subscriber.
func (b *Bus) Publish(evtType EventType, port string, payload map[string]string) {
	evt := Event{
		ID:        uuid.NewString(),
		Type:      evtType,
		Port:      port,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// subscriber buffer full, drop
		}
	}
}
