package call

import (
	"sync"
	"time"
)

// idleTimer fires once after timeout of silence. Speech stops it, the end
// of speech re-arms it.
type idleTimer struct {
	timeout time.Duration
	mu      sync.Mutex
	timer   *time.Timer
	onIdle  func()
}

func newIdleTimer(timeout time.Duration, onIdle func()) *idleTimer {
	return &idleTimer{timeout: timeout, onIdle: onIdle}
}

func (d *idleTimer) speechStarted() {
	d.stop()
}

func (d *idleTimer) speechEnded() {
	if d == nil || d.timeout <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.timeout, func() {
		d.mu.Lock()
		callback := d.onIdle
		d.timer = nil
		d.mu.Unlock()

		if callback != nil {
			callback()
		}
	})
}

func (d *idleTimer) stop() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
