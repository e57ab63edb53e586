package server

import (
	"sync"

	"github.com/mediacut/highlightd/internal/ports"
	"github.com/mediacut/highlightd/internal/types"
)

const subscriberBuffer = 64

// Hub fans job notifications out to per-job subscribers. It implements
// ports.Notifier; Notify never blocks, a subscriber that falls behind
// has events dropped rather than stalling the pipeline.
type Hub struct {
	mu   sync.Mutex
	subs map[string][]chan types.Notification
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string][]chan types.Notification)}
}

// Subscribe returns a channel of the job's notifications and a cancel
// function. The channel is closed after the job's terminal notification
// is delivered, or when cancel is called.
func (h *Hub) Subscribe(jobID string) (<-chan types.Notification, func()) {
	ch := make(chan types.Notification, subscriberBuffer)
	h.mu.Lock()
	h.subs[jobID] = append(h.subs[jobID], ch)
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { h.remove(jobID, ch) })
	}
	return ch, cancel
}

// Notify delivers to every subscriber of the notification's job. The
// terminal notification (marked final) also ends every subscription.
// Delivery happens under the lock so a concurrent cancel cannot close a
// channel mid-send; the sends never block, so holding it is cheap.
func (h *Hub) Notify(n types.Notification) {
	final := n.Extras["final"] == "true"

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[n.JobID] {
		select {
		case ch <- n:
		default:
			if final {
				// the terminal event must arrive even on a full
				// buffer: sacrifice the oldest queued event for it
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- n:
				default:
				}
			}
		}
		if final {
			close(ch)
		}
	}
	if final {
		delete(h.subs, n.JobID)
	}
}

func (h *Hub) remove(jobID string, ch chan types.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	chans := h.subs[jobID]
	for i, c := range chans {
		if c == ch {
			h.subs[jobID] = append(chans[:i], chans[i+1:]...)
			close(ch)
			return
		}
	}
}

var _ ports.Notifier = (*Hub)(nil)
