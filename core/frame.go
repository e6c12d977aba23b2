// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

// SubmitCallback is invoked exactly once per frame with the painted
// render target, or with nil when the frame was dropped undrawn. The
// return value reports whether the backing chain accepted the frame.
type SubmitCallback func(RenderTarget) bool

// NewFrame pairs a render target with its submit callback for one
// frame's drawing.
func NewFrame(target RenderTarget, submit SubmitCallback) *Frame {
	return &Frame{
		target: target,
		submit: submit,
	}
}

// Frame is a one-shot handle to a single frame's render target. The
// holder either submits it or discards it; the backing resource is
// notified exactly once on every control-flow path. Typical use:
//
//	frame, status := chain.AcquireFrame()
//	if status != AcquireSuccess {
//		return status
//	}
//	defer frame.Discard()
//	paint(frame.Target())
//	frame.Submit()
type Frame struct {
	target RenderTarget
	submit SubmitCallback
	done   bool
}

// Target returns the render target to paint into. Nil after the frame
// has been consumed.
func (f *Frame) Target() RenderTarget {
	if f == nil || f.done {
		return nil
	}
	return f.target
}

// Submit hands the frame back to the presentation queue. At most one
// submission happens; repeated calls report failure without touching
// the device queue.
func (f *Frame) Submit() bool {
	if f == nil || f.done || f.submit == nil {
		return false
	}
	f.done = true
	return f.submit(f.target)
}

// Discard drops the frame without drawing. The callback still runs,
// with a nil target, so the chain can retire the frame's slot. Safe to
// call after Submit; only the first notification goes through.
func (f *Frame) Discard() {
	if f == nil || f.done || f.submit == nil {
		return
	}
	f.done = true
	f.submit(nil)
}
