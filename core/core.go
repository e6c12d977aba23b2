// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package core implements the swapchain presentation engine. It owns one
// presentation chain's lifecycle: negotiating the chain with the driver,
// handing each acquired image to a rasterizer as a render target and
// handing it back to the presentation queue with the required GPU-side
// synchronization.
package core

import (
	vk "github.com/devblok/vulkan"
)

// Device describes the device context the presentation engine drives.
// Every driver call the engine makes goes through this interface,
// so a chain never touches the Vulkan dispatch tables directly.
type Device interface {
	// IsValid reports whether the device is usable.
	IsValid() bool

	// SurfaceCapabilities queries the surface capabilities,
	// already dereferenced and ready to read.
	SurfaceCapabilities(Surface) (vk.SurfaceCapabilities, error)

	// ChooseSurfaceFormat picks a surface format from the
	// device-advertised support for the given surface.
	ChooseSurfaceFormat(Surface) (vk.SurfaceFormat, error)

	// ChoosePresentMode picks a present mode from the
	// device-advertised support for the given surface.
	ChoosePresentMode(Surface) (vk.PresentMode, error)

	// SupportsPresent reports whether the queue family can
	// present to the given surface.
	SupportsPresent(Surface, uint32) (bool, error)

	// CreateSwapchain asks the driver for a new swapchain.
	CreateSwapchain(info vk.SwapchainCreateInfo) (vk.Swapchain, error)

	// DestroySwapchain releases a swapchain handle.
	DestroySwapchain(vk.Swapchain)

	// SwapchainImages enumerates the images owned by a swapchain.
	SwapchainImages(vk.Swapchain) ([]vk.Image, error)

	// AcquireNextImage asks the driver for the next presentable image
	// index, signaling the given semaphore when the image is ready.
	// The raw driver result is returned for classification.
	AcquireNextImage(chain vk.Swapchain, timeout uint64, semaphore vk.Semaphore) (uint32, vk.Result)

	// Present queues a present operation for the image index,
	// waiting on the given semaphores.
	Present(chain vk.Swapchain, imageIndex uint32, waitSemaphores []vk.Semaphore) vk.Result

	// CreateFence creates a fence, optionally in the signaled state.
	CreateFence(signaled bool) (vk.Fence, error)

	// WaitForFences blocks until all given fences are signaled.
	WaitForFences(fences []vk.Fence, timeout uint64) error

	// ResetFences puts the given fences in the unsignaled state.
	ResetFences(fences []vk.Fence) error

	// DestroyFence releases a fence.
	DestroyFence(vk.Fence)

	// CreateSemaphore creates a binary semaphore.
	CreateSemaphore() (vk.Semaphore, error)

	// DestroySemaphore releases a semaphore.
	DestroySemaphore(vk.Semaphore)

	// AllocateCommandBuffer allocates a primary command buffer
	// from the device command pool.
	AllocateCommandBuffer() (vk.CommandBuffer, error)

	// FreeCommandBuffer returns a command buffer to the pool.
	FreeCommandBuffer(vk.CommandBuffer)

	// BeginCommandBuffer starts recording.
	BeginCommandBuffer(vk.CommandBuffer) error

	// EndCommandBuffer ends recording.
	EndCommandBuffer(vk.CommandBuffer) error

	// CmdPipelineBarrier records an image memory barrier.
	CmdPipelineBarrier(cmd vk.CommandBuffer, srcStage, dstStage vk.PipelineStageFlags, barriers []vk.ImageMemoryBarrier)

	// CmdClearColorImage records a color clear of an image.
	CmdClearColorImage(cmd vk.CommandBuffer, image vk.Image, layout vk.ImageLayout, color vk.ClearColorValue, ranges []vk.ImageSubresourceRange)

	// QueueSubmit submits command buffers to the device queue with the
	// given wait stages, wait and signal semaphores, fenced by fence.
	// All slices may be empty; a null fence is allowed.
	QueueSubmit(waitStages []vk.PipelineStageFlags, waitSemaphores, signalSemaphores []vk.Semaphore, commandBuffers []vk.CommandBuffer, fence vk.Fence) error

	// WaitIdle blocks until the device queue drains.
	WaitIdle() error
}

// Surface describes the window surface a chain presents to.
type Surface interface {
	// Handle returns the native surface handle.
	Handle() vk.Surface

	// IsValid reports whether the surface is usable.
	IsValid() bool
}

// RasterContext turns a driver image into a render target the
// rasterizer can paint into. Implementations return an error when the
// image format is not supported by the rasterizer.
type RasterContext interface {
	RenderTargetFor(image vk.Image, format vk.Format, colorSpace vk.ColorSpace, extent vk.Extent2D) (RenderTarget, error)
}

// RenderTarget is one frame's paintable surface, bound to a single
// presentable image for the lifetime of the chain.
type RenderTarget interface {
	// Extent returns the pixel size of the target.
	Extent() vk.Extent2D

	// Format returns the pixel format of the target.
	Format() vk.Format
}

// AcquireStatus classifies the outcome of Swapchain.Acquire.
type AcquireStatus int

// Acquire outcomes. Anything except AcquireSuccess comes without a
// render target. OutOfDate asks for a chain recreation, SurfaceLost
// asks for a surface rebuild, InvalidState flags caller misuse.
const (
	AcquireSuccess AcquireStatus = iota
	AcquireOutOfDate
	AcquireSurfaceLost
	AcquireInvalidState
)

// String implements fmt.Stringer.
func (s AcquireStatus) String() string {
	switch s {
	case AcquireSuccess:
		return "Success"
	case AcquireOutOfDate:
		return "OutOfDate"
	case AcquireSurfaceLost:
		return "SurfaceLost"
	case AcquireInvalidState:
		return "InvalidState"
	}
	return "Unknown"
}
