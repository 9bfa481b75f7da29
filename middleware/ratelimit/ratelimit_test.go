// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package ratelimit

import (
	"testing"

	"github.com/sensorvision/agent/events"
	"github.com/sensorvision/agent/middleware"
	"github.com/sensorvision/agent/topic"
	"github.com/sensorvision/agent/types"
	. "github.com/smartystreets/goconvey/convey"
)

const (
	sensorID = "0f3c8a5d1e2b4c6d8e9fa0b1c2d3e4f5"
	otherID  = "1f3c8a5d1e2b4c6d8e9fa0b1c2d3e4f5"
	metricID = "a1b2c3d4e5f60718293a4b5c6d7e8f90"
)

var scheme = topic.NewScheme("6d69c58223fb44a7b76ae61a18faf37c")

func request(kind topic.Kind, ids ...string) *types.Message {
	return &types.Message{Topic: scheme.Request(kind, ids...), Payload: []byte("{}")}
}

func TestRateLimit(t *testing.T) {
	Convey("Given a new RateLimit", t, func(c C) {
		i := NewRateLimit(scheme, Limits{
			Push:     1,
			Requests: 1,
		})
		handle := func(msg *types.Message) error {
			return i.HandleOutbound(middleware.NewContext(), msg)
		}

		Convey("When pushing values", func() {
			err := handle(request(topic.PushValues, sensorID))
			Convey("There should be no error", func() {
				So(err, ShouldBeNil)
			})

			Convey("When pushing values again", func() {
				err := handle(request(topic.PushValues, sensorID))
				Convey("There should be an error", func() {
					So(err, ShouldEqual, ErrRateLimited)
				})
			})

			Convey("When pushing values for another sensor", func() {
				err := handle(request(topic.PushValues, otherID))
				Convey("There should be no error", func() {
					So(err, ShouldBeNil)
				})
			})

			Convey("When updating the sensor", func() {
				err := handle(request(topic.SensorUpdate, sensorID))
				Convey("There should be no error", func() {
					So(err, ShouldBeNil)
				})

				Convey("When deleting a metric of the sensor", func() {
					err := handle(request(topic.MetricDelete, sensorID))
					Convey("There should be an error", func() {
						So(err, ShouldEqual, ErrRateLimited)
					})
				})
			})

			Convey("When the sensor is deleted", func() {
				So(i.HandleEvent(events.SensorDeleted{SensorID: sensorID}), ShouldBeNil)
				Convey("The sensor limits should have been unset", func() {
					So(i.sensors, ShouldNotContainKey, sensorID)
				})
			})
		})

		Convey("When creating sensors", func() {
			So(handle(request(topic.SensorCreate)), ShouldBeNil)
			Convey("The next creation should be limited", func() {
				So(handle(request(topic.SensorCreate)), ShouldEqual, ErrRateLimited)
			})
		})

		Convey("When sending requests that do not modify", func() {
			for n := 0; n < 3; n++ {
				So(handle(request(topic.SensorList)), ShouldBeNil)
				So(handle(request(topic.MetricDescribe, sensorID, metricID)), ShouldBeNil)
				So(handle(request(topic.Ping)), ShouldBeNil)
			}
			Convey("No limiters should have been created", func() {
				So(i.sensors, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a RateLimit without limits", t, func() {
		i := NewRateLimit(scheme, Limits{})
		for n := 0; n < 3; n++ {
			So(i.HandleOutbound(middleware.NewContext(), request(topic.PushValues, sensorID)), ShouldBeNil)
		}
	})
}
