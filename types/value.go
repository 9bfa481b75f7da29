// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ValueType of a custom metric
type ValueType string

// Value types understood by the device agent
const (
	Boolean ValueType = "boolean"
	Double  ValueType = "double"
	Integer ValueType = "integer"
	String  ValueType = "string"
)

// ErrInvalidValue is returned when a metric value can not be decoded or parsed
var ErrInvalidValue = errors.New("invalid metric value")

// MetricValue is a single metric value: an integer, a double, a string or a boolean
type MetricValue struct {
	Type  ValueType
	value interface{}
}

// IntegerValue returns an integer MetricValue
func IntegerValue(v int64) MetricValue { return MetricValue{Type: Integer, value: v} }

// DoubleValue returns a double MetricValue
func DoubleValue(v float64) MetricValue { return MetricValue{Type: Double, value: v} }

// StringValue returns a string MetricValue
func StringValue(v string) MetricValue { return MetricValue{Type: String, value: v} }

// BooleanValue returns a boolean MetricValue
func BooleanValue(v bool) MetricValue { return MetricValue{Type: Boolean, value: v} }

// ParseValue parses the textual representation of a value of the given type
func ParseValue(typ ValueType, s string) (MetricValue, error) {
	switch typ {
	case Integer:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return MetricValue{}, fmt.Errorf("%w: %s", ErrInvalidValue, err)
		}
		return IntegerValue(v), nil
	case Double:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return MetricValue{}, fmt.Errorf("%w: %s", ErrInvalidValue, err)
		}
		return DoubleValue(v), nil
	case Boolean:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return MetricValue{}, fmt.Errorf("%w: %s", ErrInvalidValue, err)
		}
		return BooleanValue(v), nil
	case String:
		return StringValue(s), nil
	}
	return MetricValue{}, fmt.Errorf("%w: unknown value type %q", ErrInvalidValue, typ)
}

func (v MetricValue) String() string {
	if v.value == nil {
		return ""
	}
	return fmt.Sprint(v.value)
}

// MarshalJSON implements json.Marshaler
func (v MetricValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.value)
}

// UnmarshalJSON implements json.Unmarshaler
func (v *MetricValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch raw := raw.(type) {
	case bool:
		*v = BooleanValue(raw)
	case string:
		*v = StringValue(raw)
	case json.Number:
		if i, err := raw.Int64(); err == nil {
			*v = IntegerValue(i)
			return nil
		}
		f, err := raw.Float64()
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidValue, err)
		}
		*v = DoubleValue(f)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidValue, string(data))
	}
	return nil
}
