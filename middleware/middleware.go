// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package middleware

import (
	"github.com/sensorvision/agent/types"
)

// Context for middleware
type Context interface {
	Set(k, v interface{})
	Get(k interface{}) interface{}
}

// NewContext returns a new middleware context
func NewContext() Context {
	return &context{
		data: make(map[interface{}]interface{}),
	}
}

type context struct {
	data map[interface{}]interface{}
}

func (c *context) Set(k, v interface{}) {
	c.data[k] = v
}

func (c *context) Get(k interface{}) interface{} {
	if v, ok := c.data[k]; ok {
		return v
	}
	return nil
}

// Chain of middleware
type Chain []interface{}

// ExecuteInbound executes the chain on a message that was received from the device agent
func (c Chain) ExecuteInbound(ctx Context, msg *types.Message) error {
	return c.filterInbound().Execute(ctx, msg)
}

// ExecuteOutbound executes the chain on a request that is about to be published
func (c Chain) ExecuteOutbound(ctx Context, msg *types.Message) error {
	return c.filterOutbound().Execute(ctx, msg)
}

// Inbound middleware
type Inbound interface {
	HandleInbound(Context, *types.Message) error
}

type inboundChain []Inbound

func (c inboundChain) Execute(ctx Context, msg *types.Message) error {
	for _, middleware := range c {
		err := middleware.HandleInbound(ctx, msg)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c Chain) filterInbound() (filtered inboundChain) {
	for _, middleware := range c {
		if c, ok := middleware.(Inbound); ok {
			filtered = append(filtered, c)
		}
	}
	return
}

// Outbound middleware
type Outbound interface {
	HandleOutbound(Context, *types.Message) error
}

type outboundChain []Outbound

func (c outboundChain) Execute(ctx Context, msg *types.Message) error {
	for _, middleware := range c {
		err := middleware.HandleOutbound(ctx, msg)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c Chain) filterOutbound() (filtered outboundChain) {
	for _, middleware := range c {
		if c, ok := middleware.(Outbound); ok {
			filtered = append(filtered, c)
		}
	}
	return
}
