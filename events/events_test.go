// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package events

import (
	"encoding/json"
	"testing"

	"github.com/sensorvision/agent/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEvents(t *testing.T) {
	Convey("Given events of every kind", t, func() {
		all := []Event{
			NewSensor{SensorID: "s1", Name: "Kitchen"},
			SensorNameChanged{SensorID: "s1", Name: "Hall"},
			SensorDeleted{SensorID: "s1"},
			ExistingSensorLoaded{SensorID: "s1"},
			NewMetric{SensorID: "s1", MetricID: "m1"},
			MetricNameChanged{SensorID: "s1", MetricID: "m1"},
			MetricValueAnnotationChanged{SensorID: "s1", MetricID: "m1"},
			MetricDeleted{SensorID: "s1", MetricID: "m1"},
			Livedata{SensorID: "s1", MetricID: "m1", Value: types.IntegerValue(3)},
		}

		Convey("Then every sensor event should return its sensor", func() {
			for _, event := range all {
				So(SensorID(event), ShouldEqual, "s1")
			}
		})

		Convey("Then agent events should not belong to a sensor", func() {
			So(SensorID(AgentError{Code: 1}), ShouldBeEmpty)
			So(SensorID(Pong{Answer: "pong"}), ShouldBeEmpty)
		})

		Convey("Then the type of a new metric should depend on its description", func() {
			So(NewMetric{}.Type(), ShouldEqual, "NewMetricLinked")
			So(NewMetric{Described: true}.Type(), ShouldEqual, "NewMetricDescribed")
		})
	})

	Convey("When marshaling a livedata event", t, func() {
		data, err := Marshal(Livedata{SensorID: "s1", MetricID: "m1", Value: types.DoubleValue(21.5), Timestamp: 1500000000})
		So(err, ShouldBeNil)

		Convey("Then the envelope should carry the type and the event", func() {
			var out struct {
				Type  string `json:"type"`
				Event struct {
					SensorID  string  `json:"sensorId"`
					MetricID  string  `json:"metricId"`
					Value     float64 `json:"value"`
					Timestamp uint64  `json:"timestamp"`
				} `json:"event"`
			}
			So(json.Unmarshal(data, &out), ShouldBeNil)
			So(out.Type, ShouldEqual, "Livedata")
			So(out.Event.SensorID, ShouldEqual, "s1")
			So(out.Event.MetricID, ShouldEqual, "m1")
			So(out.Event.Value, ShouldEqual, 21.5)
			So(out.Event.Timestamp, ShouldEqual, 1500000000)
		})
	})
}
