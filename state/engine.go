// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package state implements the client-side model of the sensors and metrics of a device agent.
//
// The Engine is the only writer of the model and of the entity subscriptions. It consumes the
// replies of the device agent, reconciles them with the model and emits events for every change.
// Metric deletions that are not announced by the agent are inferred from the difference between
// the model and a sensor list.
package state

import (
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/sensorvision/agent/events"
	"github.com/sensorvision/agent/topic"
	"github.com/sensorvision/agent/types"
)

// Transport is used by the engine to request metadata and to manage entity subscriptions.
// Implementations must not block on the reply.
type Transport interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string) error
	Unsubscribe(topic string) error
}

// Emitter receives the events of the engine
type Emitter interface {
	Emit(...events.Event)
}

// DefaultRefreshDelay is the time that list refreshes are coalesced
const DefaultRefreshDelay = 500 * time.Millisecond

// Option configures the Engine
type Option func(*Engine)

// WithRefreshDelay sets the delay of list refreshes. A delay of zero refreshes immediately.
func WithRefreshDelay(delay time.Duration) Option {
	return func(e *Engine) {
		e.refreshDelay = delay
	}
}

// Engine owns the sensor model
type Engine struct {
	ctx       log.Interface
	scheme    topic.Scheme
	transport Transport
	emitter   Emitter

	mu            sync.RWMutex
	sensors       types.Sensors
	subscriptions *subscriptionSet

	refreshDelay time.Duration
	refresh      *refresher
}

// New returns a new Engine for the given connector
func New(connectorID string, transport Transport, emitter Emitter, ctx log.Interface, options ...Option) *Engine {
	ctx = ctx.WithField("Component", "State")
	scheme := topic.NewScheme(connectorID)
	e := &Engine{
		ctx:           ctx,
		scheme:        scheme,
		transport:     transport,
		emitter:       emitter,
		sensors:       make(types.Sensors),
		subscriptions: newSubscriptionSet(ctx, scheme, transport),
		refreshDelay:  DefaultRefreshDelay,
	}
	for _, option := range options {
		option(e)
	}
	e.refresh = newRefresher(e.refreshDelay, e.RequestList)
	return e
}

// Scheme returns the topic scheme of the connector
func (e *Engine) Scheme() topic.Scheme {
	return e.scheme
}

// Close cancels a pending list refresh
func (e *Engine) Close() {
	e.refresh.Stop()
}

var emptyObject = []byte("{}")

func (e *Engine) publish(topic string, payload []byte) {
	if err := e.transport.Publish(topic, payload); err != nil {
		e.ctx.WithError(err).WithField("Topic", topic).Warn("Could not publish request")
	}
}

// RequestList publishes a sensor list request
func (e *Engine) RequestList() {
	e.publish(e.scheme.Request(topic.SensorList), emptyObject)
}

func (e *Engine) requestDescribe(sensorID, metricID string) {
	e.publish(e.scheme.Request(topic.MetricDescribe, sensorID, metricID), emptyObject)
}

// Handle a message from the device agent. Messages on unknown topics are ignored. A DecodeError is
// returned (and logged) for a payload that can not be decoded; the model is then left unchanged.
func (e *Engine) Handle(msg *types.Message) error {
	route := e.scheme.Parse(msg.Topic)
	if route.Kind == topic.Unknown {
		return nil
	}
	ctx := e.ctx.WithFields(log.Fields{
		"Topic": msg.Topic,
		"Type":  messageType(route),
	})
	registerHandled(route)

	e.mu.Lock()
	defer e.mu.Unlock()

	if route.Kind.SensorScoped() {
		if _, ok := e.sensors[route.SensorID]; !ok {
			ctx.WithField("SensorID", route.SensorID).Debug("Ignore reply for unknown sensor")
			return nil
		}
	}

	var (
		out []events.Event
		err error
	)
	if route.Error {
		out, err = e.handleError(route, msg)
	} else {
		switch route.Kind {
		case topic.SensorList:
			out, err = e.handleList(route, msg)
		case topic.SensorCreate:
			out, err = e.handleSensorCreated(route, msg)
		case topic.SensorUpdate, topic.MetricDelete:
			ctx.Debug("Refresh sensor list")
			e.refresh.Kick()
		case topic.SensorDelete:
			out = e.removeSensor(route.SensorID)
		case topic.MetricCreate:
			out, err = e.handleMetricsCreated(route, msg)
		case topic.MetricUpdate:
			for _, metricID := range e.sensors[route.SensorID].MetricIDs() {
				e.requestDescribe(route.SensorID, metricID)
			}
		case topic.MetricDescribe:
			out, err = e.handleDescribe(route, msg)
		case topic.PushValues:
			ctx.WithField("Payload", string(msg.Payload)).Debug("Values pushed")
		case topic.Livedata:
			out, err = e.handleLivedata(route, msg)
		case topic.Ping:
			out, err = e.handlePong(route, msg)
		}
	}
	if err != nil {
		registerDecodeError(route)
		ctx.WithError(err).Warn("Could not handle message")
		return err
	}

	e.updateGauges()
	if len(out) > 0 {
		e.emitter.Emit(out...)
	}
	return nil
}

func (e *Engine) updateGauges() {
	var metrics int
	for _, sensor := range e.sensors {
		metrics += len(sensor.Metrics)
	}
	sensorsGauge.Set(float64(len(e.sensors)))
	metricsGauge.Set(float64(metrics))
	subscriptionsGauge.Set(float64(e.subscriptions.Len()))
}

// Snapshot returns a deep copy of the model
func (e *Engine) Snapshot() types.Sensors {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snapshot := make(types.Sensors, len(e.sensors))
	for id, sensor := range e.sensors {
		snapshot[id] = sensor.Copy()
	}
	return snapshot
}

// Sensor returns a copy of a single sensor
func (e *Engine) Sensor(sensorID string) (*types.Sensor, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sensor, ok := e.sensors[sensorID]
	if !ok {
		return nil, false
	}
	return sensor.Copy(), true
}

// SensorIDByName returns the id of the sensor with the given name. If several sensors share the
// name, the smallest id is returned.
func (e *Engine) SensorIDByName(name string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, id := range e.sensors.IDs() {
		if e.sensors[id].Name == name {
			return id, true
		}
	}
	return "", false
}

// MetricIDByName returns the id of the described metric with the given name
func (e *Engine) MetricIDByName(sensorID, name string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sensor, ok := e.sensors[sensorID]
	if !ok {
		return "", false
	}
	for _, id := range sensor.MetricIDs() {
		if metric := sensor.Metrics[id]; metric.Described && metric.Name == name {
			return id, true
		}
	}
	return "", false
}

// MetricIDs returns the sorted metric ids of a sensor
func (e *Engine) MetricIDs(sensorID string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sensor, ok := e.sensors[sensorID]
	if !ok {
		return nil
	}
	return sensor.MetricIDs()
}

// Subscriptions returns the sorted topics of the active entity subscriptions
func (e *Engine) Subscriptions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.subscriptions.Topics()
}
