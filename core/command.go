// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"

	vk "github.com/devblok/vulkan"
)

// NewCommandBuffer allocates a single primary command buffer from the
// device command pool and wraps it for single-use-per-frame recording.
func NewCommandBuffer(device Device) (*CommandBuffer, error) {
	if device == nil || !device.IsValid() {
		return nil, errors.New("core.NewCommandBuffer(): device is invalid")
	}

	handle, err := device.AllocateCommandBuffer()
	if err != nil {
		return nil, errors.New("core.NewCommandBuffer(): " + err.Error())
	}

	return &CommandBuffer{
		device: device,
		handle: handle,
	}, nil
}

// CommandBuffer wraps one driver command buffer. A chain records into it
// once per frame leg, between Begin and End.
type CommandBuffer struct {
	device Device
	handle vk.CommandBuffer
}

// Device returns the device the buffer was allocated from.
func (c *CommandBuffer) Device() Device {
	return c.device
}

// Handle returns the driver command buffer handle.
func (c *CommandBuffer) Handle() vk.CommandBuffer {
	return c.handle
}

// Begin starts recording. The previous recording is implicitly reset.
func (c *CommandBuffer) Begin() error {
	if err := c.device.BeginCommandBuffer(c.handle); err != nil {
		return errors.New("vk.BeginCommandBuffer(): " + err.Error())
	}
	return nil
}

// End finishes recording.
func (c *CommandBuffer) End() error {
	if err := c.device.EndCommandBuffer(c.handle); err != nil {
		return errors.New("vk.EndCommandBuffer(): " + err.Error())
	}
	return nil
}

// Release returns the command buffer to the pool.
func (c *CommandBuffer) Release() {
	if c.handle != nil {
		c.device.FreeCommandBuffer(c.handle)
		c.handle = nil
	}
}
