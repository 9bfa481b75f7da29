// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package mqtt

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	"github.com/sensorvision/agent/auth"
	"github.com/sensorvision/agent/topic"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBootstrap(t *testing.T) {
	Convey("Given certificate material and a certificate directory", t, func(c C) {
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

		certPEM, keyPEM, csrPEM := generate(connectorID)
		hash := sha256.Sum256(csrPEM)
		replyTopic := "/certBack/" + hex.EncodeToString(hash[:])

		dir, err := ioutil.TempDir("", "bootstrap")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)
		So(ioutil.WriteFile(filepath.Join(dir, auth.KeyFile), keyPEM, 0600), ShouldBeNil)
		So(ioutil.WriteFile(filepath.Join(dir, auth.CSRFile), csrPEM, 0644), ShouldBeNil)
		store := auth.NewFileStore(dir)

		config := BootstrapConfig{
			Brokers: []string{"ssl://localhost:18883"},
			Timeout: 50 * time.Millisecond,
		}

		Convey("The hash should be the hexadecimal SHA-256 of the request", func() {
			So(topic.CertificateReply(CSRHash(csrPEM)), ShouldEqual, replyTopic)
		})

		Convey("When the agent replies with a certificate", func() {
			broker, restore := useFakeBroker(func(s *fakeSession) {
				s.onPublish = func(s *fakeSession, topic string, payload []byte) {
					s.deliver(replyTopic, replyTopic, certPEM, false)
				}
			})
			defer restore()
			config.Timeout = time.Second
			err := NewBootstrapper(config, store, ctx).Run(context.Background())

			Convey("Then the certificate should be saved", func() {
				So(err, ShouldBeNil)
				material, err := store.Load()
				So(err, ShouldBeNil)
				id, err := material.ConnectorID()
				So(err, ShouldBeNil)
				So(id, ShouldEqual, connectorID)
			})

			Convey("Then the request should be published on the provisioning topic", func() {
				session := broker.session("sv_cert")
				So(session, ShouldNotBeNil)
				So(session.Subscribed(), ShouldResemble, []string{replyTopic})
				published := session.Published()
				So(published, ShouldHaveLength, 1)
				So(published[0].Topic, ShouldEqual, topic.CreateClientTopic)
				So(published[0].Payload, ShouldResemble, csrPEM)
				So(session.connected, ShouldBeFalse)
			})
		})

		Convey("When the agent does not reply", func() {
			_, restore := useFakeBroker(nil)
			defer restore()
			err := NewBootstrapper(config, store, ctx).Run(context.Background())

			Convey("Then the bootstrap should time out", func() {
				So(errors.Is(err, ErrBootstrapTimeout), ShouldBeTrue)
			})

			Convey("Then no certificate file should be written", func() {
				_, err := os.Stat(filepath.Join(dir, auth.CertificateFile))
				So(os.IsNotExist(err), ShouldBeTrue)
				_, err = store.Load()
				So(err, ShouldEqual, auth.ErrNoCertificate)
			})
		})

		Convey("When the agent replies with something else", func() {
			_, restore := useFakeBroker(func(s *fakeSession) {
				s.onPublish = func(s *fakeSession, topic string, payload []byte) {
					s.deliver(replyTopic, replyTopic, []byte(`{"errorMessage":"unknown device","errorcode":1}`), false)
				}
			})
			defer restore()
			config.Timeout = time.Second
			err := NewBootstrapper(config, store, ctx).Run(context.Background())

			Convey("Then the bootstrap should be rejected", func() {
				So(errors.Is(err, ErrBootstrapRejected), ShouldBeTrue)
				_, err = store.Load()
				So(err, ShouldEqual, auth.ErrNoCertificate)
			})
		})

		Convey("When the broker can not be reached", func() {
			_, restore := useFakeBroker(func(s *fakeSession) {
				s.connectErr = errors.New("connection refused")
			})
			defer restore()
			err := NewBootstrapper(config, store, ctx).Run(context.Background())

			Convey("Then there should be a connect error", func() {
				So(errors.Is(err, ErrConnect), ShouldBeTrue)
			})
		})

		Convey("When there is no certificate signing request", func() {
			err := NewBootstrapper(config, auth.NewMemory(keyPEM, nil), ctx).Run(context.Background())
			So(err, ShouldEqual, auth.ErrNoCSR)
		})
	})
}
