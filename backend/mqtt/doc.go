// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package mqtt connects to the MQTT broker of a device agent.
//
// The backend keeps two sessions with the broker. The request session
// ("<client-id>_request") publishes requests. The event session
// ("<client-id>_event") subscribes to the entire connector namespace
// ("/v1.0/<connector-id>/#") and hands every message to a single handler, in
// arrival order. Subscriptions for individual sensors and metrics are made on the
// event session as well, but without a handler of their own, so that a message is
// handled once.
//
// Before the first connection, the client certificate is obtained with
// Bootstrap: the certificate signing request is published on
// "/v1.0/createClient" and the certificate arrives on "/certBack/<hash>", where
// hash is the hexadecimal SHA-256 of the request.
package mqtt
