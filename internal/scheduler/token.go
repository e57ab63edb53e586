package scheduler

import "sync/atomic"

// token is the cancellation flag shared between the controller and one
// executor run. The executor only reads it at stage boundaries.
type token struct {
	requested atomic.Bool
}

func (t *token) Request()        { t.requested.Store(true) }
func (t *token) Requested() bool { return t.requested.Load() }
