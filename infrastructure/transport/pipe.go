// Package transport holds what every pub/sub adapter shares.
package transport

import (
	"sync"
)

// Pipe is the delivery side of one subscription. Producers call Deliver,
// the session engine reads Frames until Done is closed.
//
// Frames is never closed so Deliver can race with Close safely.
type Pipe struct {
	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once
	onClose   func() error
}

// NewPipe creates a pipe buffering up to size frames. onClose runs once,
// on the first Unsubscribe or Close.
func NewPipe(size int, onClose func() error) *Pipe {
	return &Pipe{
		frames:  make(chan []byte, size),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// Deliver blocks until the frame is queued or the pipe is closed.
// It returns false when the frame was not delivered.
func (p *Pipe) Deliver(frame []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.frames <- frame:
		return true
	case <-p.done:
		return false
	}
}

func (p *Pipe) Frames() <-chan []byte { return p.frames }
func (p *Pipe) Done() <-chan struct{} { return p.done }

// Unsubscribe releases the transport side and closes Done. Safe to call many times.
func (p *Pipe) Unsubscribe() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		if p.onClose != nil {
			err = p.onClose()
		}
	})
	return err
}

// Close ends the pipe without running onClose, used when the connection is already gone.
func (p *Pipe) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}
