// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package agent

import (
	"errors"
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/sensorvision/agent/backend"
	"github.com/sensorvision/agent/events"
	"github.com/sensorvision/agent/middleware"
	"github.com/sensorvision/agent/state"
	"github.com/sensorvision/agent/topic"
	"github.com/sensorvision/agent/types"
)

// Agent routes messages between the southbound backend (the device agent behind the MQTT broker)
// and the northbound backends (servers that receive the events of the model).
//
// - Replies are routed from the southbound backend through the inbound middleware to the state engine
// - Requests are routed from the operations and the state engine through the outbound middleware
//   to the southbound backend
// - Events are routed from the state engine through the pipeline to the observers and the
//   northbound backends
type Agent struct {
	ctx       log.Interface
	mu        sync.Mutex
	lifecycle sync.Mutex

	southbound         backend.Southbound
	northboundBackends []backend.Northbound
	middleware         middleware.Chain

	engine   *state.Engine
	pipeline *events.Pipeline
	scheme   topic.Scheme

	started bool
	stopped bool
}

// ErrStopped is returned when starting an Agent that was stopped
var ErrStopped = errors.New("agent: stopped agents can not be restarted")

// New initializes a new Agent for the given connector
func New(connectorID string, southbound backend.Southbound, ctx log.Interface, options ...state.Option) *Agent {
	a := &Agent{
		ctx:        ctx.WithField("ConnectorID", connectorID),
		southbound: southbound,
		pipeline:   events.NewPipeline(ctx),
	}
	a.engine = state.New(connectorID, &outbound{a}, a.pipeline, ctx, options...)
	a.scheme = a.engine.Scheme()
	return a
}

// Scheme returns the topic scheme of the connector
func (a *Agent) Scheme() topic.Scheme {
	return a.scheme
}

// AddMiddleware adds middleware to the chain. It must be called before Start.
func (a *Agent) AddMiddleware(middleware ...interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.middleware = append(a.middleware, middleware...)
}

// AddNorthbound adds a new northbound backend. It must be called before Start.
func (a *Agent) AddNorthbound(backend ...backend.Northbound) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.northboundBackends = append(a.northboundBackends, backend...)
}

// Observe registers observers on the event pipeline. Observers are called in registration order;
// the northbound backends are registered when the Agent starts.
func (a *Agent) Observe(observers ...events.Observer) {
	a.pipeline.Register(observers...)
}

func (a *Agent) chain() middleware.Chain {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.middleware
}

func forward(backend backend.Northbound) events.Observer {
	return events.ObserverFunc(func(event events.Event) error {
		if err := backend.PublishEvent(event); err != nil {
			return fmt.Errorf("%T: %w", backend, err)
		}
		return nil
	})
}

func (a *Agent) handleInbound(msg *types.Message) {
	if err := a.chain().ExecuteInbound(middleware.NewContext(), msg); err != nil {
		registerDropped()
		a.ctx.WithField("Topic", msg.Topic).WithError(err).Debug("Dropped message")
		return
	}
	a.engine.Handle(msg) // errors are logged by the engine
}

// Start the Agent: start delivering events, connect the backends and request the sensor list.
// An error is returned when the southbound backend could not connect; the Agent is then shut down
// and can not be started again.
func (a *Agent) Start() error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return nil
	}
	if a.stopped {
		a.mu.Unlock()
		return ErrStopped
	}
	a.started = true
	northbound := a.northboundBackends
	a.mu.Unlock()

	for _, backend := range northbound {
		if err := backend.Connect(); err != nil {
			a.ctx.WithError(err).Errorf("Could not set up backend %T", backend)
		}
		a.pipeline.Register(forward(backend))
	}

	a.pipeline.Start()
	a.southbound.SetHandler(a.handleInbound)
	if err := a.southbound.Connect(); err != nil {
		a.ctx.WithError(err).Error("Could not connect southbound backend")
		a.shutdown(northbound)
		return err
	}
	a.ctx.Info("Started")
	a.engine.RequestList()
	return nil
}

// Running returns whether the Agent is started
func (a *Agent) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}

// Stop the Agent. The southbound backend is disconnected first, then the pending events are
// delivered before the northbound backends are disconnected.
func (a *Agent) Stop() {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return
	}
	northbound := a.northboundBackends
	a.mu.Unlock()

	a.shutdown(northbound)
	a.ctx.Info("Stopped")
}

func (a *Agent) shutdown(northbound []backend.Northbound) {
	a.mu.Lock()
	a.started, a.stopped = false, true
	a.mu.Unlock()

	if err := a.southbound.Disconnect(); err != nil {
		a.ctx.WithError(err).Warn("Could not disconnect southbound backend")
	}
	a.engine.Close()
	a.pipeline.Close()
	for _, backend := range northbound {
		if err := backend.Disconnect(); err != nil {
			a.ctx.WithError(err).Warnf("Could not disconnect backend %T", backend)
		}
	}
}

// filter runs the outbound middleware on a request
func (a *Agent) filter(msg *types.Message) error {
	route := a.scheme.ParseRequest(msg.Topic)
	if err := a.chain().ExecuteOutbound(middleware.NewContext(), msg); err != nil {
		registerRefused(route)
		a.ctx.WithField("Topic", msg.Topic).WithError(err).Debug("Refused request")
		return err
	}
	registerRequest(route)
	return nil
}

// outbound is the transport of the engine; its requests pass the outbound middleware
type outbound struct {
	*Agent
}

func (o *outbound) Publish(topic string, payload []byte) error {
	msg := &types.Message{Topic: topic, Payload: payload}
	if err := o.filter(msg); err != nil {
		return err
	}
	return o.southbound.Publish(msg.Topic, msg.Payload)
}

func (o *outbound) Subscribe(topic string) error {
	return o.southbound.Subscribe(topic)
}

func (o *outbound) Unsubscribe(topic string) error {
	return o.southbound.Unsubscribe(topic)
}
