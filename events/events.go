// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package events contains the notifications of the state engine and the pipeline that delivers
// them to observers.
package events

import (
	"encoding/json"

	"github.com/sensorvision/agent/types"
)

// Event is a change of the sensor model, or a value or error reported by the device agent
type Event interface {
	// Type of the event, used for logging, metrics and routing
	Type() string
}

// NewSensor is emitted when a sensor enters the model
type NewSensor struct {
	SensorID string `json:"sensorId"`
	Name     string `json:"name"`
}

// SensorNameChanged is emitted when a sensor list reports a new name
type SensorNameChanged struct {
	SensorID string `json:"sensorId"`
	Name     string `json:"name"`
}

// SensorDeleted is emitted after a sensor and all its metrics left the model
type SensorDeleted struct {
	SensorID string `json:"sensorId"`
}

// ExistingSensorLoaded is emitted for every already known sensor of a sensor list
type ExistingSensorLoaded struct {
	SensorID  string   `json:"sensorId"`
	MetricIDs []string `json:"metricIds"`
}

// NewMetric is emitted when a metric enters the model as a linked stub, and when its metadata
// arrives for the first time
type NewMetric struct {
	SensorID        string          `json:"sensorId"`
	MetricID        string          `json:"metricId"`
	Described       bool            `json:"described"`
	Name            string          `json:"name,omitempty"`
	ValueAnnotation string          `json:"valueAnnotation,omitempty"`
	ValueType       types.ValueType `json:"valueType,omitempty"`
}

// MetricNameChanged is emitted when a describe reply reports a new name
type MetricNameChanged struct {
	SensorID string `json:"sensorId"`
	MetricID string `json:"metricId"`
	Name     string `json:"name"`
}

// MetricValueAnnotationChanged is emitted when a describe reply reports a new value annotation
type MetricValueAnnotationChanged struct {
	SensorID   string `json:"sensorId"`
	MetricID   string `json:"metricId"`
	Annotation string `json:"annotation"`
}

// MetricDeleted is emitted when a metric left the model
type MetricDeleted struct {
	SensorID string `json:"sensorId"`
	MetricID string `json:"metricId"`
}

// Livedata is emitted for every value pushed by the device agent
type Livedata struct {
	SensorID  string            `json:"sensorId"`
	MetricID  string            `json:"metricId"`
	Value     types.MetricValue `json:"value"`
	Timestamp uint64            `json:"timestamp,omitempty"`
}

// AgentError is emitted when the device agent replies on an error inbox
type AgentError struct {
	Topic   string `json:"topic"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Pong is emitted when the device agent answers a ping
type Pong struct {
	Answer string `json:"answer"`
}

// Type implements Event
func (NewSensor) Type() string { return "NewSensor" }

// Type implements Event
func (SensorNameChanged) Type() string { return "SensorNameChanged" }

// Type implements Event
func (SensorDeleted) Type() string { return "SensorDeleted" }

// Type implements Event
func (ExistingSensorLoaded) Type() string { return "ExistingSensorLoaded" }

// Type implements Event
func (e NewMetric) Type() string {
	if e.Described {
		return "NewMetricDescribed"
	}
	return "NewMetricLinked"
}

// Type implements Event
func (MetricNameChanged) Type() string { return "MetricNameChanged" }

// Type implements Event
func (MetricValueAnnotationChanged) Type() string { return "MetricValueAnnotationChanged" }

// Type implements Event
func (MetricDeleted) Type() string { return "MetricDeleted" }

// Type implements Event
func (Livedata) Type() string { return "Livedata" }

// Type implements Event
func (AgentError) Type() string { return "AgentError" }

// Type implements Event
func (Pong) Type() string { return "Pong" }

// SensorID returns the sensor an event belongs to, or an empty string
func SensorID(event Event) string {
	switch event := event.(type) {
	case NewSensor:
		return event.SensorID
	case SensorNameChanged:
		return event.SensorID
	case SensorDeleted:
		return event.SensorID
	case ExistingSensorLoaded:
		return event.SensorID
	case NewMetric:
		return event.SensorID
	case MetricNameChanged:
		return event.SensorID
	case MetricValueAnnotationChanged:
		return event.SensorID
	case MetricDeleted:
		return event.SensorID
	case Livedata:
		return event.SensorID
	}
	return ""
}

type envelope struct {
	Type  string `json:"type"`
	Event Event  `json:"event"`
}

// Marshal an event into its JSON envelope
func Marshal(event Event) ([]byte, error) {
	return json.Marshal(envelope{Type: event.Type(), Event: event})
}
