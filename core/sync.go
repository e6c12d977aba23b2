// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"math"

	vk "github.com/devblok/vulkan"
)

// NewBackbuffer creates the full synchronization primitive set for one
// in-flight frame slot: two fences, two semaphores and the two per-leg
// command buffers. Creation is all-or-nothing; on any failure the
// primitives created so far are released and an error is returned.
// Both fences start signaled so the first use of the slot does not wait.
func NewBackbuffer(device Device) (*Backbuffer, error) {
	if device == nil || !device.IsValid() {
		return nil, errors.New("core.NewBackbuffer(): device is invalid")
	}

	b := &Backbuffer{device: device}

	var err error
	if b.usageFence, err = device.CreateFence(true); err != nil {
		return nil, errors.New("vk.CreateFence(): " + err.Error())
	}
	if b.renderFence, err = device.CreateFence(true); err != nil {
		b.Release()
		return nil, errors.New("vk.CreateFence(): " + err.Error())
	}
	if b.usageSemaphore, err = device.CreateSemaphore(); err != nil {
		b.Release()
		return nil, errors.New("vk.CreateSemaphore(): " + err.Error())
	}
	if b.renderSemaphore, err = device.CreateSemaphore(); err != nil {
		b.Release()
		return nil, errors.New("vk.CreateSemaphore(): " + err.Error())
	}
	if b.usageCommands, err = NewCommandBuffer(device); err != nil {
		b.Release()
		return nil, err
	}
	if b.renderCommands, err = NewCommandBuffer(device); err != nil {
		b.Release()
		return nil, err
	}

	b.valid = true
	return b, nil
}

// Backbuffer is the reusable synchronization primitive set for one
// in-flight frame. The usage leg covers image acquisition, the render
// leg covers present hand-off; the two are fenced independently so
// acquisition completion never falsely gates render completion.
type Backbuffer struct {
	device Device

	usageFence  vk.Fence
	renderFence vk.Fence

	usageSemaphore  vk.Semaphore
	renderSemaphore vk.Semaphore

	usageCommands  *CommandBuffer
	renderCommands *CommandBuffer

	valid bool
}

// IsValid reports whether the slot's primitives are all usable.
func (b *Backbuffer) IsValid() bool {
	return b != nil && b.valid
}

// UsageFence returns the fence gating slot reuse after acquisition.
func (b *Backbuffer) UsageFence() vk.Fence {
	return b.usageFence
}

// RenderFence returns the fence tracking render-leg completion.
func (b *Backbuffer) RenderFence() vk.Fence {
	return b.renderFence
}

// UsageSemaphore returns the semaphore signaled by image acquisition.
func (b *Backbuffer) UsageSemaphore() vk.Semaphore {
	return b.usageSemaphore
}

// RenderSemaphore returns the semaphore the present waits on.
func (b *Backbuffer) RenderSemaphore() vk.Semaphore {
	return b.renderSemaphore
}

// UsageCommands returns the acquire-leg command buffer.
func (b *Backbuffer) UsageCommands() *CommandBuffer {
	return b.usageCommands
}

// RenderCommands returns the submit-leg command buffer.
func (b *Backbuffer) RenderCommands() *CommandBuffer {
	return b.renderCommands
}

// WaitFences blocks until the slot's prior GPU work is known complete.
// Both fences are waited on together; a slot may not be reused while
// either frame leg is still executing.
func (b *Backbuffer) WaitFences() error {
	fences := []vk.Fence{b.usageFence, b.renderFence}
	if err := b.device.WaitForFences(fences, math.MaxUint64); err != nil {
		return errors.New("vk.WaitForFences(): " + err.Error())
	}
	return nil
}

// ResetFences puts both fences back in the unsignaled state before the
// slot's next frame is recorded.
func (b *Backbuffer) ResetFences() error {
	fences := []vk.Fence{b.usageFence, b.renderFence}
	if err := b.device.ResetFences(fences); err != nil {
		return errors.New("vk.ResetFences(): " + err.Error())
	}
	return nil
}

// Release destroys the slot's primitives. Safe to call on a partially
// constructed slot.
func (b *Backbuffer) Release() {
	if b.usageCommands != nil {
		b.usageCommands.Release()
		b.usageCommands = nil
	}
	if b.renderCommands != nil {
		b.renderCommands.Release()
		b.renderCommands = nil
	}
	if b.usageSemaphore != vk.NullSemaphore {
		b.device.DestroySemaphore(b.usageSemaphore)
		b.usageSemaphore = vk.NullSemaphore
	}
	if b.renderSemaphore != vk.NullSemaphore {
		b.device.DestroySemaphore(b.renderSemaphore)
		b.renderSemaphore = vk.NullSemaphore
	}
	if b.usageFence != vk.NullFence {
		b.device.DestroyFence(b.usageFence)
		b.usageFence = vk.NullFence
	}
	if b.renderFence != vk.NullFence {
		b.device.DestroyFence(b.renderFence)
		b.renderFence = vk.NullFence
	}
	b.valid = false
}

// NewBackbufferPool creates count slots. The count is independent of the
// chain's image count; it bounds how many frames may be in flight.
func NewBackbufferPool(device Device, count int) (*BackbufferPool, error) {
	if count <= 0 {
		return nil, errors.New("core.NewBackbufferPool(): slot count must be positive")
	}

	pool := &BackbufferPool{}
	for i := 0; i < count; i++ {
		backbuffer, err := NewBackbuffer(device)
		if err != nil {
			pool.Release()
			return nil, err
		}
		pool.backbuffers = append(pool.backbuffers, backbuffer)
	}
	return pool, nil
}

// BackbufferPool cycles a fixed set of backbuffer slots round-robin.
// Slot selection is two-phase: Next proposes the slot that follows the
// current one, Commit advances to it. A failed frame never commits, so
// the sequence observed by callers has no partial advances.
type BackbufferPool struct {
	backbuffers []*Backbuffer
	current     int
}

// Size returns the number of slots.
func (p *BackbufferPool) Size() int {
	return len(p.backbuffers)
}

// Current returns the slot the last committed frame is using.
func (p *BackbufferPool) Current() *Backbuffer {
	if len(p.backbuffers) == 0 {
		return nil
	}
	return p.backbuffers[p.current]
}

// CurrentIndex returns the index of the committed slot.
func (p *BackbufferPool) CurrentIndex() int {
	return p.current
}

// Next proposes the slot following the current one without advancing.
// Returns nil when the pool is empty or the slot is unusable.
func (p *BackbufferPool) Next() (*Backbuffer, int) {
	if len(p.backbuffers) == 0 {
		return nil, 0
	}

	index := (p.current + 1) % len(p.backbuffers)
	backbuffer := p.backbuffers[index]
	if !backbuffer.IsValid() {
		return nil, 0
	}
	return backbuffer, index
}

// Commit advances the round-robin to the slot proposed by Next.
func (p *BackbufferPool) Commit(index int) {
	p.current = index
}

// Release destroys every slot in the pool.
func (p *BackbufferPool) Release() {
	for _, b := range p.backbuffers {
		b.Release()
	}
	p.backbuffers = nil
	p.current = 0
}
