// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package state

import (
	"errors"
	"fmt"
)

// ErrDecode is matched by every DecodeError
var ErrDecode = errors.New("could not decode payload")

var errUnnamedMetric = errors.New("metric description without a name")

// DecodeError is returned when the payload of a recognized topic can not be decoded. The model is
// left unchanged.
type DecodeError struct {
	Topic string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not decode payload on %s: %v", e.Topic, e.Err)
}

// Unwrap returns the underlying error
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrDecode) true for every DecodeError
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func decodeError(topic string, err error) error {
	return &DecodeError{Topic: topic, Err: err}
}
