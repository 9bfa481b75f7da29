// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package dummy implements an in-memory backend. As a southbound backend it records published
// requests and lets tests inject replies; as a northbound backend it records events.
package dummy

import (
	"errors"
	"sort"
	"sync"

	"github.com/apex/log"
	"github.com/deckarep/golang-set"
	"github.com/sensorvision/agent/backend"
	"github.com/sensorvision/agent/events"
	"github.com/sensorvision/agent/types"
)

// ErrNotConnected is returned when publishing before Connect
var ErrNotConnected = errors.New("dummy is not connected")

// Dummy backend
type Dummy struct {
	mu            sync.Mutex
	ctx           log.Interface
	connected     bool
	handler       backend.Handler
	subscriptions mapset.Set
	published     []types.Message
	events        []events.Event
}

// New returns a new Dummy backend
func New(ctx log.Interface) *Dummy {
	return &Dummy{
		ctx:           ctx.WithField("Connector", "Dummy"),
		subscriptions: mapset.NewSet(),
	}
}

// Connect implements backend interfaces
func (d *Dummy) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
	d.ctx.Debug("Connected")
	return nil
}

// Disconnect implements backend interfaces
func (d *Dummy) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	d.ctx.Debug("Disconnected")
	return nil
}

// SetHandler implements backend.Southbound
func (d *Dummy) SetHandler(handler backend.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = handler
}

// Publish implements backend.Southbound
func (d *Dummy) Publish(topic string, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	d.published = append(d.published, types.Message{Topic: topic, Payload: payload})
	d.ctx.WithField("Topic", topic).Debug("Published")
	return nil
}

// Subscribe implements backend.Southbound
func (d *Dummy) Subscribe(topic string) error {
	if d.subscriptions.Add(topic) {
		d.ctx.WithField("Topic", topic).Debug("Subscribed")
	}
	return nil
}

// Unsubscribe implements backend.Southbound
func (d *Dummy) Unsubscribe(topic string) error {
	if d.subscriptions.Contains(topic) {
		d.subscriptions.Remove(topic)
		d.ctx.WithField("Topic", topic).Debug("Unsubscribed")
	}
	return nil
}

// Inject a message as if it was received from the broker. The handler is called before Inject
// returns.
func (d *Dummy) Inject(topic string, payload []byte) {
	d.mu.Lock()
	handler := d.handler
	d.mu.Unlock()
	if handler == nil {
		d.ctx.WithField("Topic", topic).Debug("Did not inject message [no handler]")
		return
	}
	handler(&types.Message{Topic: topic, Payload: payload})
}

// Published returns the published messages and forgets them
func (d *Dummy) Published() []types.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	published := d.published
	d.published = nil
	return published
}

// Subscriptions returns the sorted subscribed topics
func (d *Dummy) Subscriptions() []string {
	topics := make([]string, 0, d.subscriptions.Cardinality())
	for _, topic := range d.subscriptions.ToSlice() {
		topics = append(topics, topic.(string))
	}
	sort.Strings(topics)
	return topics
}

// PublishEvent implements backend.Northbound
func (d *Dummy) PublishEvent(event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	d.ctx.WithField("Event", event.Type()).Debug("Published event")
	return nil
}

// Events returns the published events
func (d *Dummy) Events() []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]events.Event(nil), d.events...)
}
