// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package state

import (
	"sync"
	"time"
)

// refresher coalesces list refresh requests: requests that arrive while a refresh is pending are
// merged into it.
type refresher struct {
	mu       sync.Mutex
	delay    time.Duration
	timer    *time.Timer
	callback func()
}

func newRefresher(delay time.Duration, callback func()) *refresher {
	return &refresher{
		delay:    delay,
		callback: callback,
	}
}

// Kick schedules a refresh. No effect if a refresh is already pending
func (r *refresher) Kick() {
	if r.delay <= 0 {
		r.callback()
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		return
	}
	r.timer = time.AfterFunc(r.delay, r.fire)
}

// Pending returns true if a refresh is scheduled
func (r *refresher) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}

func (r *refresher) fire() {
	r.mu.Lock()
	r.timer = nil
	r.mu.Unlock()
	r.callback()
}

// Stop cancels a pending refresh
func (r *refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
