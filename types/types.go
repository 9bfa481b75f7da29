// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package types

import (
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"
)

// Message is an MQTT message on the connector namespace, either a reply handed from a southbound
// backend to the state engine or a request on its way to the device agent
type Message struct {
	Topic   string
	Payload []byte
}

// Name length limits enforced by the device agent
const (
	MinNameLength = 2
	MaxNameLength = 64
)

// ErrInvalidName is returned when a sensor or metric name does not satisfy the length limits
var ErrInvalidName = errors.New("name must be between 2 and 64 characters")

// ValidateName checks a sensor or metric name
func ValidateName(name string) error {
	if l := utf8.RuneCountInString(name); l < MinNameLength || l > MaxNameLength {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Metric is the client-side view of a remote metric. A metric that is not Described is a linked
// stub: it is known from a sensor list but its metadata has not arrived yet.
type Metric struct {
	MetricID        string    `json:"metricId" yaml:"metricId"`
	Name            string    `json:"name,omitempty" yaml:"name,omitempty"`
	ValueAnnotation string    `json:"valueAnnotation,omitempty" yaml:"valueAnnotation,omitempty"`
	ValueUnit       string    `json:"valueUnit,omitempty" yaml:"valueUnit,omitempty"`
	ValueType       ValueType `json:"valueType,omitempty" yaml:"valueType,omitempty"`
	Link            string    `json:"link,omitempty" yaml:"link,omitempty"`
	Described       bool      `json:"described" yaml:"described"`
}

// Sensor is the client-side view of a remote sensor
type Sensor struct {
	SensorID string             `json:"sensorId" yaml:"sensorId"`
	Name     string             `json:"name" yaml:"name"`
	Metrics  map[string]*Metric `json:"metrics" yaml:"metrics"`
}

// NewSensor returns a sensor without metrics
func NewSensor(sensorID, name string) *Sensor {
	return &Sensor{
		SensorID: sensorID,
		Name:     name,
		Metrics:  make(map[string]*Metric),
	}
}

// Copy returns a deep copy of the sensor
func (s *Sensor) Copy() *Sensor {
	cp := NewSensor(s.SensorID, s.Name)
	for id, metric := range s.Metrics {
		m := *metric
		cp.Metrics[id] = &m
	}
	return cp
}

// MetricIDs returns the sorted ids of the metrics of the sensor
func (s *Sensor) MetricIDs() []string {
	ids := make([]string, 0, len(s.Metrics))
	for id := range s.Metrics {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sensors is a snapshot of the sensor model, keyed by sensor id
type Sensors map[string]*Sensor

// IDs returns the sorted sensor ids of the snapshot
func (s Sensors) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
