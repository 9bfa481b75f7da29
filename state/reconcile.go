// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package state

import (
	"encoding/json"
	"sort"

	"github.com/apex/log"
	"github.com/deckarep/golang-set"
	"github.com/sensorvision/agent/events"
	"github.com/sensorvision/agent/topic"
	"github.com/sensorvision/agent/types"
)

// normalizeSensor validates the ids of a listed sensor and drops duplicate metrics
func normalizeSensor(listed types.ListedSensor) (types.ListedSensor, error) {
	sensorID, err := topic.NormalizeID(listed.SensorID)
	if err != nil {
		return listed, err
	}
	out := types.ListedSensor{SensorID: sensorID, Name: listed.Name}
	seen := mapset.NewThreadUnsafeSet()
	for _, metric := range listed.Metrics {
		metricID, err := topic.NormalizeID(metric.MetricID)
		if err != nil {
			return listed, err
		}
		if !seen.Add(metricID) {
			continue
		}
		out.Metrics = append(out.Metrics, types.LinkedMetric{MetricID: metricID, Link: metric.Link})
	}
	return out, nil
}

func sortedIDs(set mapset.Set) []string {
	ids := make([]string, 0, set.Cardinality())
	for _, id := range set.ToSlice() {
		ids = append(ids, id.(string))
	}
	sort.Strings(ids)
	return ids
}

func newMetricEvent(sensorID string, metric *types.Metric) events.NewMetric {
	return events.NewMetric{
		SensorID:        sensorID,
		MetricID:        metric.MetricID,
		Described:       metric.Described,
		Name:            metric.Name,
		ValueAnnotation: metric.ValueAnnotation,
		ValueType:       metric.ValueType,
	}
}

// addSensor creates a sensor with a stub per linked metric and requests the metadata of the metrics
func (e *Engine) addSensor(listed types.ListedSensor) []events.Event {
	sensor := types.NewSensor(listed.SensorID, listed.Name)
	e.sensors[sensor.SensorID] = sensor
	e.subscriptions.AddSensor(sensor.SensorID)
	e.ctx.WithFields(log.Fields{
		"SensorID": sensor.SensorID,
		"Metrics":  len(listed.Metrics),
	}).Debug("Add sensor")

	out := []events.Event{events.NewSensor{SensorID: sensor.SensorID, Name: sensor.Name}}
	for _, linked := range listed.Metrics {
		out = append(out, e.addStub(sensor, linked))
	}
	for _, linked := range listed.Metrics {
		e.requestDescribe(sensor.SensorID, linked.MetricID)
	}
	return out
}

// addStub creates a linked metric
func (e *Engine) addStub(sensor *types.Sensor, linked types.LinkedMetric) events.Event {
	metric := &types.Metric{MetricID: linked.MetricID, Link: linked.Link}
	sensor.Metrics[metric.MetricID] = metric
	e.subscriptions.AddMetric(sensor.SensorID, metric.MetricID)
	return newMetricEvent(sensor.SensorID, metric)
}

func (e *Engine) removeMetric(sensor *types.Sensor, metricID string) events.Event {
	e.subscriptions.RemoveMetric(sensor.SensorID, metricID)
	delete(sensor.Metrics, metricID)
	return events.MetricDeleted{SensorID: sensor.SensorID, MetricID: metricID}
}

// removeSensor removes the metrics of a sensor before the sensor itself
func (e *Engine) removeSensor(sensorID string) []events.Event {
	sensor, ok := e.sensors[sensorID]
	if !ok {
		return nil
	}
	e.ctx.WithField("SensorID", sensorID).Debug("Remove sensor")
	var out []events.Event
	for _, metricID := range sensor.MetricIDs() {
		out = append(out, e.removeMetric(sensor, metricID))
	}
	e.subscriptions.RemoveSensor(sensorID)
	delete(e.sensors, sensorID)
	return append(out, events.SensorDeleted{SensorID: sensorID})
}

// reconcileSensor merges a listed sensor into a sensor of the model. Metrics that are no longer
// listed are deleted.
func (e *Engine) reconcileSensor(sensor *types.Sensor, listed types.ListedSensor) []events.Event {
	current := mapset.NewThreadUnsafeSet()
	for metricID := range sensor.Metrics {
		current.Add(metricID)
	}
	snapshot := mapset.NewThreadUnsafeSet()
	metricIDs := make([]string, 0, len(listed.Metrics))
	for _, linked := range listed.Metrics {
		snapshot.Add(linked.MetricID)
		metricIDs = append(metricIDs, linked.MetricID)
	}

	var out []events.Event
	for _, metricID := range sortedIDs(current.Difference(snapshot)) {
		e.ctx.WithField("SensorID", sensor.SensorID).WithField("MetricID", metricID).Debug("Metric no longer listed")
		out = append(out, e.removeMetric(sensor, metricID))
	}
	for _, linked := range listed.Metrics {
		if metric, ok := sensor.Metrics[linked.MetricID]; ok {
			metric.Link = linked.Link
			continue
		}
		out = append(out, e.addStub(sensor, linked))
	}
	if listed.Name != sensor.Name {
		sensor.Name = listed.Name
		out = append(out, events.SensorNameChanged{SensorID: sensor.SensorID, Name: sensor.Name})
	}
	out = append(out, events.ExistingSensorLoaded{SensorID: sensor.SensorID, MetricIDs: metricIDs})

	for _, metricID := range metricIDs {
		e.requestDescribe(sensor.SensorID, metricID)
	}
	return out
}

func (e *Engine) handleList(route topic.Route, msg *types.Message) ([]events.Event, error) {
	var list []types.ListedSensor
	if err := json.Unmarshal(msg.Payload, &list); err != nil {
		return nil, decodeError(msg.Topic, err)
	}
	for i, listed := range list {
		normalized, err := normalizeSensor(listed)
		if err != nil {
			return nil, decodeError(msg.Topic, err)
		}
		list[i] = normalized
	}

	var out []events.Event
	for _, listed := range list {
		if sensor, ok := e.sensors[listed.SensorID]; ok {
			out = append(out, e.reconcileSensor(sensor, listed)...)
			continue
		}
		out = append(out, e.addSensor(listed)...)
	}
	return out, nil
}

func (e *Engine) handleSensorCreated(route topic.Route, msg *types.Message) ([]events.Event, error) {
	var created types.ListedSensor
	if err := json.Unmarshal(msg.Payload, &created); err != nil {
		return nil, decodeError(msg.Topic, err)
	}
	created, err := normalizeSensor(created)
	if err != nil {
		return nil, decodeError(msg.Topic, err)
	}
	if _, ok := e.sensors[created.SensorID]; ok {
		e.ctx.WithField("SensorID", created.SensorID).Debug("Sensor already known")
		return nil, nil
	}
	return e.addSensor(created), nil
}

func (e *Engine) handleMetricsCreated(route topic.Route, msg *types.Message) ([]events.Event, error) {
	var created []types.CreateMetricResponse
	if err := json.Unmarshal(msg.Payload, &created); err != nil {
		return nil, decodeError(msg.Topic, err)
	}
	metricIDs := make([]string, 0, len(created))
	for _, response := range created {
		metricID, err := topic.NormalizeID(response.MetricID)
		if err != nil {
			return nil, decodeError(msg.Topic, err)
		}
		metricIDs = append(metricIDs, metricID)
	}

	sensor := e.sensors[route.SensorID]
	var out []events.Event
	for _, metricID := range metricIDs {
		if _, ok := sensor.Metrics[metricID]; ok {
			continue
		}
		out = append(out, e.addStub(sensor, types.LinkedMetric{MetricID: metricID}))
		e.requestDescribe(sensor.SensorID, metricID)
	}
	return out, nil
}

// handleDescribe merges the metadata of a metric. The first description of a metric emits a
// NewMetric event; later descriptions emit an event per changed field, name before annotation.
func (e *Engine) handleDescribe(route topic.Route, msg *types.Message) ([]events.Event, error) {
	var described types.DescribedMetric
	if err := json.Unmarshal(msg.Payload, &described); err != nil {
		return nil, decodeError(msg.Topic, err)
	}
	if described.Name == nil || *described.Name == "" {
		return nil, decodeError(msg.Topic, errUnnamedMetric)
	}

	sensor := e.sensors[route.SensorID]
	metric, ok := sensor.Metrics[route.MetricID]
	if !ok {
		metric = &types.Metric{MetricID: route.MetricID}
		sensor.Metrics[metric.MetricID] = metric
		e.subscriptions.AddMetric(sensor.SensorID, metric.MetricID)
	}
	if described.ValueType != "" {
		metric.ValueType = described.ValueType
	}
	if described.ValueUnit != nil {
		metric.ValueUnit = *described.ValueUnit
	}

	if !metric.Described {
		metric.Name = *described.Name
		if annotation := described.Annotation(); annotation != nil {
			metric.ValueAnnotation = *annotation
		}
		metric.Described = true
		return []events.Event{newMetricEvent(sensor.SensorID, metric)}, nil
	}

	var out []events.Event
	if *described.Name != metric.Name {
		metric.Name = *described.Name
		out = append(out, events.MetricNameChanged{
			SensorID: sensor.SensorID,
			MetricID: metric.MetricID,
			Name:     metric.Name,
		})
	}
	if annotation := described.Annotation(); annotation != nil && *annotation != metric.ValueAnnotation {
		metric.ValueAnnotation = *annotation
		out = append(out, events.MetricValueAnnotationChanged{
			SensorID:   sensor.SensorID,
			MetricID:   metric.MetricID,
			Annotation: metric.ValueAnnotation,
		})
	}
	return out, nil
}

// livedataMessage accepts both the batched and the single-value form
type livedataMessage struct {
	types.LivedataPayload
	types.MetricValueUpdate
}

func (e *Engine) handleLivedata(route topic.Route, msg *types.Message) ([]events.Event, error) {
	var livedata livedataMessage
	if err := json.Unmarshal(msg.Payload, &livedata); err != nil {
		return nil, decodeError(msg.Topic, err)
	}
	values := livedata.Metrics
	if len(values) == 0 && livedata.MetricID != "" {
		values = []types.MetricValueUpdate{livedata.MetricValueUpdate}
	}
	out := make([]events.Event, 0, len(values))
	for _, value := range values {
		metricID, err := topic.NormalizeID(value.MetricID)
		if err != nil {
			return nil, decodeError(msg.Topic, err)
		}
		out = append(out, events.Livedata{
			SensorID:  route.SensorID,
			MetricID:  metricID,
			Value:     value.Value,
			Timestamp: livedata.Timestamp,
		})
	}
	return out, nil
}

func (e *Engine) handleError(route topic.Route, msg *types.Message) ([]events.Event, error) {
	var response types.ErrorResponse
	if err := json.Unmarshal(msg.Payload, &response); err != nil {
		return nil, decodeError(msg.Topic, err)
	}
	e.ctx.WithFields(log.Fields{
		"Topic": msg.Topic,
		"Code":  response.Code,
	}).Warnf("Agent error: %s", response.Message)
	return []events.Event{events.AgentError{
		Topic:   msg.Topic,
		Code:    response.Code,
		Message: response.Message,
	}}, nil
}

func (e *Engine) handlePong(route topic.Route, msg *types.Message) ([]events.Event, error) {
	var response types.PingResponse
	if err := json.Unmarshal(msg.Payload, &response); err != nil {
		return nil, decodeError(msg.Topic, err)
	}
	return []events.Event{events.Pong{Answer: response.Answer}}, nil
}
