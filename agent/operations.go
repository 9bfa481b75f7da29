// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package agent

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sensorvision/agent/topic"
	"github.com/sensorvision/agent/types"
)

// Operation errors
var (
	ErrNoMetrics       = errors.New("no metrics given")
	ErrNothingToUpdate = errors.New("nothing to update")
)

// pingRequest is the payload of a ping request
const pingRequest = "Ping!"

// request publishes a request. Errors of the outbound middleware are returned; the device agent
// replies asynchronously, so publish failures are only logged.
func (a *Agent) request(kind topic.Kind, payload interface{}, ids ...string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := &types.Message{Topic: a.scheme.Request(kind, ids...), Payload: data}
	if err := a.filter(msg); err != nil {
		return err
	}
	if err := a.southbound.Publish(msg.Topic, msg.Payload); err != nil {
		a.ctx.WithError(err).WithField("Topic", msg.Topic).Warn("Could not publish request")
	}
	return nil
}

func normalizeIDs(ids ...string) ([]string, error) {
	normalized := make([]string, len(ids))
	for i, id := range ids {
		n, err := topic.NormalizeID(id)
		if err != nil {
			return nil, err
		}
		normalized[i] = n
	}
	return normalized, nil
}

// LoadSensors requests the sensor list. The model is reconciled when the list arrives.
func (a *Agent) LoadSensors() error {
	return a.request(topic.SensorList, struct{}{})
}

// CreateSensor requests the creation of a sensor. A NewSensor event follows when the device
// agent has created it.
func (a *Agent) CreateSensor(name string) error {
	if err := types.ValidateName(name); err != nil {
		return err
	}
	return a.request(topic.SensorCreate, types.CreateSensorRequest{Name: name})
}

// UpdateSensor requests a new name, and optionally a new state, for a sensor
func (a *Agent) UpdateSensor(sensorID, name string, state *uint8) error {
	ids, err := normalizeIDs(sensorID)
	if err != nil {
		return err
	}
	if err := types.ValidateName(name); err != nil {
		return err
	}
	return a.request(topic.SensorUpdate, types.UpdateSensorRequest{Name: name, State: state}, ids...)
}

// DeleteSensor requests the deletion of a sensor and its metrics
func (a *Agent) DeleteSensor(sensorID string) error {
	ids, err := normalizeIDs(sensorID)
	if err != nil {
		return err
	}
	return a.request(topic.SensorDelete, struct{}{}, ids...)
}

// CreateMetrics requests the creation of metrics on a sensor. The metrics are numbered with
// matching ids in the given order.
func (a *Agent) CreateMetrics(sensorID string, definitions ...types.MetricDefinition) error {
	ids, err := normalizeIDs(sensorID)
	if err != nil {
		return err
	}
	if len(definitions) == 0 {
		return ErrNoMetrics
	}
	metrics := make([]types.CreateMetricPayload, len(definitions))
	for i, definition := range definitions {
		if err := definition.Validate(); err != nil {
			return fmt.Errorf("metric %d: %w", i, err)
		}
		metrics[i] = types.CreateMetricPayload{MetricDefinition: definition, MatchingID: types.MatchingIDFor(i)}
	}
	return a.request(topic.MetricCreate, types.MetricsArray{Metrics: metrics}, ids...)
}

// UpdateMetric requests a new name and/or value annotation for a metric
func (a *Agent) UpdateMetric(sensorID, metricID string, name, annotation *string) error {
	ids, err := normalizeIDs(sensorID, metricID)
	if err != nil {
		return err
	}
	if name == nil && annotation == nil {
		return ErrNothingToUpdate
	}
	if name != nil {
		if err := types.ValidateName(*name); err != nil {
			return err
		}
	}
	update := types.UpdateMetricRequest{MetricID: ids[1], Name: name, ValueAnnotation: annotation}
	return a.request(topic.MetricUpdate, types.MetricsArray{Metrics: []types.UpdateMetricRequest{update}}, ids[0])
}

// DeleteMetric requests the deletion of metrics of a sensor
func (a *Agent) DeleteMetric(sensorID string, metricIDs ...string) error {
	ids, err := normalizeIDs(sensorID)
	if err != nil {
		return err
	}
	if len(metricIDs) == 0 {
		return ErrNoMetrics
	}
	metricIDs, err = normalizeIDs(metricIDs...)
	if err != nil {
		return err
	}
	metrics := make([]types.DeleteMetricRequest, len(metricIDs))
	for i, id := range metricIDs {
		metrics[i] = types.DeleteMetricRequest{MetricID: id}
	}
	return a.request(topic.MetricDelete, types.MetricsArray{Metrics: metrics}, ids...)
}

// PushValue pushes a value of a metric to the device agent. The timestamp is in milliseconds
// since the epoch; without a timestamp the device agent uses the time of arrival.
func (a *Agent) PushValue(sensorID, metricID string, value types.MetricValue, timestamp *int64) error {
	ids, err := normalizeIDs(sensorID, metricID)
	if err != nil {
		return err
	}
	push := types.PushMetricValueRequest{MetricID: ids[1], Value: value, Timestamp: timestamp}
	return a.request(topic.PushValues, types.MetricsArray{Metrics: []types.PushMetricValueRequest{push}}, ids[0])
}

// Ping the device agent. A Pong event follows when it replies.
func (a *Agent) Ping() error {
	return a.request(topic.Ping, types.PingRequest{Request: pingRequest})
}

// Snapshot returns a copy of the sensor model
func (a *Agent) Snapshot() types.Sensors {
	return a.engine.Snapshot()
}

// SensorIDByName returns the id of the sensor with the given name
func (a *Agent) SensorIDByName(name string) (string, bool) {
	return a.engine.SensorIDByName(name)
}

// MetricIDByName returns the id of the described metric with the given name
func (a *Agent) MetricIDByName(sensorID, name string) (string, bool) {
	return a.engine.MetricIDByName(sensorID, name)
}

// Subscriptions returns the entity subscriptions of the model
func (a *Agent) Subscriptions() []string {
	return a.engine.Subscriptions()
}
