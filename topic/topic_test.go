// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package topic

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

const (
	connectorID = "6d69c58223fb44a7b76ae61a18faf37c"
	sensorID    = "0f3c8a5d1e2b4c6d8e9fa0b1c2d3e4f5"
	metricID    = "a1b2c3d4e5f60718293a4b5c6d7e8f90"
)

func TestScheme(t *testing.T) {
	Convey("Given a Scheme for a connector", t, func(c C) {
		s := NewScheme(connectorID)

		Convey("The root should cover the connector namespace", func() {
			So(s.Root(), ShouldEqual, "/v1.0/6d69c58223fb44a7b76ae61a18faf37c/#")
		})

		Convey("Request topics should be rendered with their ids", func() {
			So(s.Request(SensorList), ShouldEqual, "/v1.0/"+connectorID+"/sensor/list")
			So(s.Request(SensorUpdate, sensorID), ShouldEqual, "/v1.0/"+connectorID+"/sensor/"+sensorID+"/update")
			So(s.Request(MetricDescribe, sensorID, metricID), ShouldEqual, "/v1.0/"+connectorID+"/sensor/"+sensorID+"/metric/"+metricID+"/inventory")
			So(s.Request(PushValues, sensorID), ShouldEqual, "/v1.0/"+connectorID+"/sensor/"+sensorID+"/metric/pushValues")
		})

		Convey("The sensor topics should contain the six sensor replies", func() {
			topics := s.SensorTopics(sensorID)
			So(topics, ShouldHaveLength, 6)
			So(topics, ShouldContain, "/v1.0/"+connectorID+"/sensor/"+sensorID+"/livedata")
			So(topics, ShouldContain, "/v1.0/"+connectorID+"/sensor/"+sensorID+"/delete/info/inbox")
		})

		Convey("When parsing reply topics", func() {
			for _, kind := range []Kind{SensorList, SensorCreate, SensorUpdate, SensorDelete, MetricCreate, MetricUpdate, MetricDelete, PushValues, Livedata, Ping} {
				route := s.Parse(s.Reply(kind, sensorID))
				So(route.Kind, ShouldEqual, kind)
				So(route.Error, ShouldBeFalse)
				if kind.SensorScoped() {
					So(route.SensorID, ShouldEqual, sensorID)
				}
			}
			Convey("The describe reply should carry both ids", func() {
				route := s.Parse(s.DescribeTopic(sensorID, metricID))
				So(route, ShouldResemble, Route{Kind: MetricDescribe, SensorID: sensorID, MetricID: metricID})
			})
		})

		Convey("When parsing error topics", func() {
			route := s.Parse(s.ErrorReply(SensorUpdate, sensorID))
			So(route, ShouldResemble, Route{Kind: SensorUpdate, Error: true, SensorID: sensorID})
			Convey("The metric delete error topic should be shared with metric create", func() {
				So(s.ErrorReply(MetricDelete, sensorID), ShouldEqual, s.ErrorReply(MetricCreate, sensorID))
			})
		})

		Convey("Ids in the dashed form should be normalized", func() {
			route := s.Parse("/v1.0/" + connectorID + "/sensor/0f3c8a5d-1e2b-4c6d-8e9f-a0b1c2d3e4f5/livedata")
			So(route.Kind, ShouldEqual, Livedata)
			So(route.SensorID, ShouldEqual, sensorID)
		})

		Convey("Request topics echoed on the root subscription should be unknown", func() {
			So(s.Parse(s.Request(SensorList)).Kind, ShouldEqual, Unknown)
			So(s.Parse(s.Request(MetricDescribe, sensorID, metricID)).Kind, ShouldEqual, Unknown)
		})

		Convey("When parsing request topics", func() {
			So(s.ParseRequest(s.Request(SensorList)).Kind, ShouldEqual, SensorList)
			route := s.ParseRequest(s.Request(PushValues, sensorID))
			So(route.Kind, ShouldEqual, PushValues)
			So(route.SensorID, ShouldEqual, sensorID)
			route = s.ParseRequest(s.Request(MetricDescribe, sensorID, metricID))
			So(route.Kind, ShouldEqual, MetricDescribe)
			So(route.MetricID, ShouldEqual, metricID)
			So(s.ParseRequest(s.Reply(Livedata, sensorID)).Kind, ShouldEqual, Unknown)
		})

		Convey("Topics of another connector should be unknown", func() {
			So(s.Parse("/v1.0/ffffffffffffffffffffffffffffffff/inventory/inbox").Kind, ShouldEqual, Unknown)
		})

		Convey("Topics with invalid ids should be unknown", func() {
			So(s.Parse("/v1.0/"+connectorID+"/sensor/not-an-id/livedata").Kind, ShouldEqual, Unknown)
		})
	})
}

func TestNormalizeID(t *testing.T) {
	Convey("When normalizing ids", t, func(c C) {
		id, err := NormalizeID("0F3C8A5D-1E2B-4C6D-8E9F-A0B1C2D3E4F5")
		So(err, ShouldBeNil)
		So(id, ShouldEqual, sensorID)

		_, err = NormalizeID("+")
		So(err, ShouldNotBeNil)
	})
}

func TestCertificateReply(t *testing.T) {
	Convey("The certificate reply topic should contain the hash", t, func() {
		So(CertificateReply("abc"), ShouldEqual, "/certBack/abc")
	})
}
