// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/prism/core"
)

func TestFrameSubmitsOnce(t *testing.T) {
	c := qt.New(t)

	var calls int
	var painted core.RenderTarget
	target := &fakeTarget{}

	frame := core.NewFrame(target, func(t core.RenderTarget) bool {
		calls++
		painted = t
		return true
	})

	c.Assert(frame.Target(), qt.Equals, core.RenderTarget(target))
	c.Assert(frame.Submit(), qt.Equals, true)
	c.Assert(calls, qt.Equals, 1)
	c.Assert(painted, qt.Equals, core.RenderTarget(target))

	// The frame is spent; nothing further reaches the callback.
	c.Assert(frame.Submit(), qt.Equals, false)
	frame.Discard()
	c.Assert(calls, qt.Equals, 1)
}

func TestFrameDiscardNotifiesWithNil(t *testing.T) {
	c := qt.New(t)

	var calls int
	var painted core.RenderTarget = &fakeTarget{}

	frame := core.NewFrame(&fakeTarget{}, func(t core.RenderTarget) bool {
		calls++
		painted = t
		return true
	})

	frame.Discard()
	c.Assert(calls, qt.Equals, 1)
	c.Assert(painted, qt.IsNil)

	frame.Discard()
	c.Assert(frame.Submit(), qt.Equals, false)
	c.Assert(calls, qt.Equals, 1)
}

func TestFrameNilReceiver(t *testing.T) {
	c := qt.New(t)

	var frame *core.Frame
	c.Assert(frame.Submit(), qt.Equals, false)
	c.Assert(frame.Target(), qt.IsNil)
	frame.Discard()
}
