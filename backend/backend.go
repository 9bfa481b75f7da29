// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package backend

import (
	"github.com/sensorvision/agent/events"
	"github.com/sensorvision/agent/types"
)

// Handler is called for every message that a Southbound backend receives. Messages are handed to
// the handler one at a time, in arrival order.
type Handler func(msg *types.Message)

// Southbound backends talk to the device agent that is down the chain
type Southbound interface {
	Connect() error
	Disconnect() error
	SetHandler(handler Handler)

	// Publish does not wait for a reply; replies arrive later through the Handler
	Publish(topic string, payload []byte) error

	// Subscribe and Unsubscribe are idempotent
	Subscribe(topic string) error
	Unsubscribe(topic string) error
}

// Northbound backends forward events to services that are up the chain
type Northbound interface {
	Connect() error
	Disconnect() error
	PublishEvent(event events.Event) error
}
