// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package protect

import (
	"bytes"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	"github.com/sensorvision/agent/middleware"
	"github.com/sensorvision/agent/topic"
	"github.com/sensorvision/agent/types"
	. "github.com/smartystreets/goconvey/convey"
)

const (
	connectorID = "6d69c58223fb44a7b76ae61a18faf37c"
	protected   = "0f3c8a5d1e2b4c6d8e9fa0b1c2d3e4f5"
	other       = "2f3c8a5d1e2b4c6d8e9fa0b1c2d3e4f5"
)

func TestProtect(t *testing.T) {
	exampleList := filepath.Join("..", "..", "assets", "protected.example.yml")
	scheme := topic.NewScheme(connectorID)

	testExample := func(ctx log.Interface, list string) {
		p, err := NewProtect(ctx, scheme, list)
		Convey("Then there should be no error", func() { So(err, ShouldBeNil) })
		Reset(func() { p.Close() })
		Convey("Then the protected sensors should be known", func() {
			So(p.IsProtected(protected), ShouldBeTrue)
			So(p.IsProtected("1f3c8a5d1e2b4c6d8e9fa0b1c2d3e4f5"), ShouldBeTrue)
			So(p.IsProtected(other), ShouldBeFalse)
		})
		Convey("When deleting a protected sensor", func() {
			err := p.HandleOutbound(middleware.NewContext(), &types.Message{Topic: scheme.Request(topic.SensorDelete, protected)})
			Convey("Then the Protected error should be returned", func() { So(err, ShouldEqual, ErrProtected) })
		})
		Convey("When pushing values to a protected sensor", func() {
			err := p.HandleOutbound(middleware.NewContext(), &types.Message{Topic: scheme.Request(topic.PushValues, protected)})
			Convey("Then the Protected error should be returned", func() { So(err, ShouldEqual, ErrProtected) })
		})
		Convey("When describing a metric of a protected sensor", func() {
			err := p.HandleOutbound(middleware.NewContext(), &types.Message{Topic: scheme.Request(topic.MetricDescribe, protected, other)})
			Convey("Then there should be no error", func() { So(err, ShouldBeNil) })
		})
		Convey("When deleting another sensor", func() {
			err := p.HandleOutbound(middleware.NewContext(), &types.Message{Topic: scheme.Request(topic.SensorDelete, other)})
			Convey("Then there should be no error", func() { So(err, ShouldBeNil) })
		})
	}

	Convey("Given a logger", t, func(c C) {
		var logs bytes.Buffer
		ctx := &log.Logger{
			Handler: text.New(&logs),
			Level:   log.DebugLevel,
		}
		defer func() {
			if logs.Len() > 0 {
				c.Printf("\n%s", logs.String())
			}
		}()

		Convey("When creating a new Protect using the example file", func() {
			testExample(ctx, exampleList)
		})

		Convey("When creating a new Protect using the example file on an HTTP server", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.ServeFile(w, r, exampleList)
			}))
			Reset(func() { srv.Close() })
			testExample(ctx, srv.URL+"/protected.yml")
		})

		Convey("When the list file changes", func() {
			dir, err := ioutil.TempDir("", "protect")
			So(err, ShouldBeNil)
			Reset(func() { os.RemoveAll(dir) })
			list := filepath.Join(dir, "protected.yml")
			So(ioutil.WriteFile(list, []byte("- sensor: "+protected+"\n"), 0644), ShouldBeNil)

			p, err := NewProtect(ctx, scheme, list)
			So(err, ShouldBeNil)
			Reset(func() { p.Close() })
			So(p.IsProtected(other), ShouldBeFalse)

			So(ioutil.WriteFile(list, []byte("- sensor: "+other+"\n"), 0644), ShouldBeNil)
			deadline := time.Now().Add(2 * time.Second)
			for !p.IsProtected(other) && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}
			Convey("Then the list should be reloaded", func() {
				So(p.IsProtected(other), ShouldBeTrue)
			})
		})

		Convey("When a list contains an invalid sensor id", func() {
			p, err := NewProtect(ctx, scheme)
			So(err, ShouldBeNil)
			Reset(func() { p.Close() })
			err = p.set("invalid", []byte("- sensor: nope\n"))
			Convey("Then there should be an error", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}
