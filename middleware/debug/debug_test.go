// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package debug

import (
	"bytes"
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	"github.com/sensorvision/agent/middleware"
	"github.com/sensorvision/agent/topic"
	"github.com/sensorvision/agent/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDebug(t *testing.T) {
	Convey("Given a new Debug middleware", t, func(c C) {
		var logs bytes.Buffer
		ctx := &log.Logger{
			Handler: text.New(&logs),
			Level:   log.DebugLevel,
		}
		scheme := topic.NewScheme("6d69c58223fb44a7b76ae61a18faf37c")
		d := New(ctx, scheme)

		Convey("When handling an inbound Message", func() {
			err := d.HandleInbound(middleware.NewContext(), &types.Message{
				Topic:   scheme.Reply(topic.Livedata, "0f3c8a5d1e2b4c6d8e9fa0b1c2d3e4f5"),
				Payload: []byte("{}"),
			})
			So(err, ShouldBeNil)
			Convey("It should be logged with its kind", func() {
				So(logs.String(), ShouldContainSubstring, "Received message")
				So(logs.String(), ShouldContainSubstring, "Livedata")
				So(logs.String(), ShouldContainSubstring, "0f3c8a5d1e2b4c6d8e9fa0b1c2d3e4f5")
			})
		})

		Convey("When handling an outbound Message", func() {
			err := d.HandleOutbound(middleware.NewContext(), &types.Message{
				Topic:   scheme.Request(topic.SensorList),
				Payload: []byte("{}"),
			})
			So(err, ShouldBeNil)
			Convey("It should be logged with its kind", func() {
				So(logs.String(), ShouldContainSubstring, "Publishing request")
				So(logs.String(), ShouldContainSubstring, "SensorList")
			})
		})
	})
}
