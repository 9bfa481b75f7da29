// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package deduplicate

import (
	"errors"
	"sync"
	"time"

	"github.com/sensorvision/agent/middleware"
	"github.com/sensorvision/agent/types"
)

// DefaultWindow is the period in which an identical message is considered a duplicate
const DefaultWindow = 200 * time.Millisecond

// pruneThreshold is the number of remembered messages after which expired ones are forgotten
const pruneThreshold = 1024

// NewDeduplicate returns a middleware that drops messages that a broker delivers more than once
// because they match more than one of our subscriptions
func NewDeduplicate(window time.Duration) *Deduplicate {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Deduplicate{
		window:   window,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
}

// Deduplicate middleware
type Deduplicate struct {
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// ErrDuplicateMessage is returned when a message is received multiple times
var ErrDuplicateMessage = errors.New("deduplicate: already handled this message")

func key(msg *types.Message) string {
	return msg.Topic + "\x00" + string(msg.Payload)
}

// HandleInbound blocks duplicate messages
func (d *Deduplicate) HandleInbound(_ middleware.Context, msg *types.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	k := key(msg)
	if last, ok := d.lastSeen[k]; ok && now.Sub(last) < d.window {
		return ErrDuplicateMessage
	}
	d.lastSeen[k] = now
	if len(d.lastSeen) > pruneThreshold {
		d.prune(now)
	}
	return nil
}

func (d *Deduplicate) prune(now time.Time) {
	for k, last := range d.lastSeen {
		if now.Sub(last) >= d.window {
			delete(d.lastSeen, k)
		}
	}
}
