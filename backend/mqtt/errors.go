// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package mqtt

import "errors"

var (
	// ErrConnect is returned when a session could not connect to the broker
	ErrConnect = errors.New("could not connect to MQTT")
	// ErrNoConnectorID is returned when the configuration lacks a connector id
	ErrNoConnectorID = errors.New("no connector id")
	// ErrBootstrapTimeout is returned when no certificate arrived in time
	ErrBootstrapTimeout = errors.New("bootstrap timed out")
	// ErrBootstrapRejected is returned when the reply to the bootstrap is not a certificate
	ErrBootstrapRejected = errors.New("bootstrap rejected")
)
