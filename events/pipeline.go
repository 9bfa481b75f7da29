// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package events

import (
	"fmt"
	"sync"

	"github.com/apex/log"
)

// Observer receives the events of a Pipeline. Observers are called from the delivery goroutine,
// one event at a time, in registration order.
type Observer interface {
	HandleEvent(Event) error
}

// ObserverFunc is a function that implements Observer
type ObserverFunc func(Event) error

// HandleEvent implements Observer
func (f ObserverFunc) HandleEvent(event Event) error {
	return f(event)
}

// Pipeline decouples the producer of events (the network callback that runs the state engine) from
// the observers. Emit never blocks: events are appended to an unbounded ordered queue that a single
// delivery goroutine drains.
type Pipeline struct {
	ctx log.Interface

	mu     sync.Mutex
	queue  []Event
	closed bool
	wake   chan struct{}

	observersLock sync.RWMutex
	observers     []Observer

	startOnce sync.Once
	started   bool
	done      chan struct{}
}

// NewPipeline returns a new Pipeline. Call Start to begin delivery.
func NewPipeline(ctx log.Interface) *Pipeline {
	return &Pipeline{
		ctx:  ctx.WithField("Component", "Pipeline"),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Register observers
func (p *Pipeline) Register(observers ...Observer) {
	p.observersLock.Lock()
	defer p.observersLock.Unlock()
	p.observers = append(p.observers, observers...)
}

// Emit enqueues events in the given order. Events emitted after Close are dropped.
func (p *Pipeline) Emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.ctx.WithField("Events", len(events)).Debug("Dropped events emitted after close")
		return
	}
	p.queue = append(p.queue, events...)
	queueLength.Set(float64(len(p.queue)))
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of events that wait for delivery
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Start the delivery goroutine
func (p *Pipeline) Start() {
	p.startOnce.Do(func() {
		p.mu.Lock()
		p.started = true
		p.mu.Unlock()
		go p.loop()
	})
}

// Close stops accepting events, waits until all pending events are delivered and stops the
// delivery goroutine.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	started := p.started
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
	if started {
		<-p.done
	}
}

func (p *Pipeline) loop() {
	defer close(p.done)
	for {
		p.mu.Lock()
		batch := p.queue
		p.queue = nil
		closed := p.closed
		queueLength.Set(0)
		p.mu.Unlock()

		for _, event := range batch {
			p.deliver(event)
		}

		if len(batch) > 0 {
			continue
		}
		if closed {
			p.ctx.Debug("Delivery stopped")
			return
		}
		<-p.wake
	}
}

func (p *Pipeline) deliver(event Event) {
	p.observersLock.RLock()
	observers := p.observers
	p.observersLock.RUnlock()
	for _, observer := range observers {
		if err := p.notify(observer, event); err != nil {
			observerErrors.Inc()
			p.ctx.WithError(err).WithField("Event", event.Type()).Warn("Observer could not handle event")
		}
	}
	deliveredCounter.WithLabelValues(event.Type()).Inc()
}

func (p *Pipeline) notify(observer Observer, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	return observer.HandleEvent(event)
}
