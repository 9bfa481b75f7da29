// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Value units of predefined metrics
var ValueUnits = []string{
	"SI.ElectricCurrent.AMPERE",
	"SI.DataAmount.BIT",
	"SI.LuminousIntensity.CANDELA",
	"SI.Temperature.CELSIUS",
	"NoSI.Dimensionless.DECIBEL",
	"SI.ElectricCapacitance.FARAD",
	"SI.Frequency.HERTZ",
	"SI.Energy.JOULE",
	"SI.Mass.KILOGRAM",
	"NoSI.Location.LATITUDE",
	"NoSI.Location.LONGITUDE",
	"SI.Length.METER",
	"SI.Velocity.METERS_PER_SECOND",
	"SI.Acceleration.METERS_PER_SQUARE_SECOND",
	"SI.AmountOfSubstance.MOLE",
	"SI.Force.NEWTON",
	"SI.ElectricResistance.OHM",
	"SI.Pressure.PASCAL",
	"NoSI.Dimensionless.PERCENT",
	"SI.Angle.RADIAN",
	"SI.Duration.SECOND",
	"SI.Area.SQUARE_METRE",
	"SI.ElectricPotential.VOLT",
	"SI.Power.WATT",
}

// ErrInvalidMetric is returned when a metric definition is neither predefined nor custom
var ErrInvalidMetric = errors.New("metric must have either a value unit or a value type and annotation")

// MetricDefinition is the metadata of a metric to create. A predefined metric has a ValueUnit, a
// custom metric has a ValueType and a ValueAnnotation.
type MetricDefinition struct {
	Name            string    `json:"name"`
	ValueUnit       string    `json:"valueUnit,omitempty"`
	ValueType       ValueType `json:"valueType,omitempty"`
	ValueAnnotation string    `json:"valueAnnotation,omitempty"`
}

// PredefinedMetric returns the definition of a metric with a well-known unit
func PredefinedMetric(name, unit string) MetricDefinition {
	return MetricDefinition{Name: name, ValueUnit: unit}
}

// CustomMetric returns the definition of a metric with a custom type and annotation
func CustomMetric(name string, typ ValueType, annotation string) MetricDefinition {
	return MetricDefinition{Name: name, ValueType: typ, ValueAnnotation: annotation}
}

// Validate the metric definition
func (d MetricDefinition) Validate() error {
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if d.ValueUnit != "" {
		for _, unit := range ValueUnits {
			if unit == d.ValueUnit {
				return nil
			}
		}
		return fmt.Errorf("%w: unknown value unit %q", ErrInvalidMetric, d.ValueUnit)
	}
	switch d.ValueType {
	case Boolean, Double, Integer, String:
	default:
		return fmt.Errorf("%w: unknown value type %q", ErrInvalidMetric, d.ValueType)
	}
	if d.ValueAnnotation == "" {
		return ErrInvalidMetric
	}
	return nil
}

// CreateSensorRequest is published on sensor/create
type CreateSensorRequest struct {
	Name string `json:"name"`
}

// UpdateSensorRequest is published on sensor/<id>/update
type UpdateSensorRequest struct {
	Name  string `json:"name"`
	State *uint8 `json:"state,omitempty"`
}

// MetricsArray wraps the metric-level requests and responses
type MetricsArray struct {
	Metrics   interface{} `json:"metrics"`
	Timestamp *uint64     `json:"timestamp,omitempty"`
}

// CreateMetricPayload is a single entry of a create metrics request
type CreateMetricPayload struct {
	MetricDefinition
	MatchingID string `json:"matchingId"`
}

// CreateMetricResponse is a single entry of the reply to a create metrics request
type CreateMetricResponse struct {
	MatchingID MatchingID `json:"matchingId"`
	MetricID   string     `json:"metricId"`
}

// MatchingID correlates created metrics with the request; the agent sends it as a string or a number
type MatchingID string

// UnmarshalJSON implements json.Unmarshaler
func (m *MatchingID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = MatchingID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*m = MatchingID(n.String())
	return nil
}

// UpdateMetricRequest is a single entry of an update metrics request
type UpdateMetricRequest struct {
	MetricID        string  `json:"metricId"`
	Name            *string `json:"name,omitempty"`
	ValueAnnotation *string `json:"valueAnnotation,omitempty"`
}

// DeleteMetricRequest is a single entry of a delete metrics request
type DeleteMetricRequest struct {
	MetricID string `json:"metricId"`
}

// PushMetricValueRequest is a single entry of a push values request
type PushMetricValueRequest struct {
	MetricID  string      `json:"metricId"`
	Value     MetricValue `json:"value"`
	Timestamp *int64      `json:"timestamp,omitempty"`
}

// MetricValueUpdate is a single value of a livedata message
type MetricValueUpdate struct {
	MetricID string      `json:"metricId"`
	Value    MetricValue `json:"value"`
}

// LivedataPayload is received on sensor/<id>/livedata
type LivedataPayload struct {
	Metrics   []MetricValueUpdate `json:"metrics"`
	Timestamp uint64              `json:"timestamp"`
}

// LinkedMetric is a metric as it appears in a sensor list
type LinkedMetric struct {
	MetricID string `json:"metricId"`
	Link     string `json:"link"`
}

// ListedSensor is a single entry of a sensor list
type ListedSensor struct {
	SensorID string         `json:"sensorId"`
	Name     string         `json:"name"`
	Metrics  []LinkedMetric `json:"metrics"`
}

// DescribedMetric is the metadata of a metric as returned by the inventory request
type DescribedMetric struct {
	MetricID        string    `json:"metricId"`
	Name            *string   `json:"name"`
	ValueAnnotation *string   `json:"valueAnnotation"`
	ValueUnit       *string   `json:"valueUnit"`
	ValueType       ValueType `json:"valueType"`
}

// Annotation returns the value annotation; for predefined metrics this is the value unit
func (d DescribedMetric) Annotation() *string {
	if d.ValueAnnotation != nil {
		return d.ValueAnnotation
	}
	return d.ValueUnit
}

// PingRequest is published on ping
type PingRequest struct {
	Request string `json:"request"`
}

// PingResponse is received on ping/info/inbox
type PingResponse struct {
	Answer string `json:"answer"`
}

// ErrorResponse is received on the error inboxes
type ErrorResponse struct {
	Message string `json:"errorMessage"`
	Code    int    `json:"errorcode"`
}

// MatchingIDFor returns the matching id of the n-th (zero-based) metric of a create request
func MatchingIDFor(n int) string {
	return strconv.Itoa(n + 1)
}
