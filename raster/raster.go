// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package raster is the minimal rasterizer-context collaborator for the
// presentation engine: it binds an acquired swapchain image to a
// clear-capable render target. A real drawing library would replace it;
// the interfaces it satisfies are the ones such a library plugs into.
package raster

import (
	"errors"
	"fmt"

	vk "github.com/devblok/vulkan"

	"github.com/devblok/prism/core"
)

// Device is the slice of the device context the rasterizer records
// through. core.Device satisfies it.
type Device interface {
	AllocateCommandBuffer() (vk.CommandBuffer, error)
	FreeCommandBuffer(vk.CommandBuffer)
	BeginCommandBuffer(vk.CommandBuffer) error
	EndCommandBuffer(vk.CommandBuffer) error
	CmdPipelineBarrier(cmd vk.CommandBuffer, srcStage, dstStage vk.PipelineStageFlags, barriers []vk.ImageMemoryBarrier)
	CmdClearColorImage(cmd vk.CommandBuffer, image vk.Image, layout vk.ImageLayout, color vk.ClearColorValue, ranges []vk.ImageSubresourceRange)
	QueueSubmit(waitStages []vk.PipelineStageFlags, waitSemaphores, signalSemaphores []vk.Semaphore, commandBuffers []vk.CommandBuffer, fence vk.Fence) error
}

// NewContext creates a raster context recording through the given
// device.
func NewContext(device Device) *Context {
	return &Context{device: device}
}

// Context implements core.RasterContext.
type Context struct {
	device Device
}

// RenderTargetFor implements core.RasterContext. Formats outside the
// 32-bit RGBA/BGRA family are rejected.
func (c *Context) RenderTargetFor(image vk.Image, format vk.Format, colorSpace vk.ColorSpace, extent vk.Extent2D) (core.RenderTarget, error) {
	if !FormatSupported(format) {
		return nil, fmt.Errorf("raster: unsupported surface format %d", format)
	}
	if image == vk.NullImage {
		return nil, errors.New("raster: render target needs a live image")
	}

	commands, err := c.device.AllocateCommandBuffer()
	if err != nil {
		return nil, err
	}

	return &Target{
		device:   c.device,
		image:    image,
		format:   format,
		extent:   extent,
		commands: commands,
	}, nil
}

// FormatSupported reports whether the rasterizer can paint the given
// pixel format.
func FormatSupported(format vk.Format) bool {
	switch format {
	case vk.FormatB8g8r8a8Unorm, vk.FormatB8g8r8a8Srgb,
		vk.FormatR8g8b8a8Unorm, vk.FormatR8g8b8a8Srgb:
		return true
	}
	return false
}

// Target implements core.RenderTarget over one swapchain image, with a
// dedicated command buffer for its draw leg.
type Target struct {
	device   Device
	image    vk.Image
	format   vk.Format
	extent   vk.Extent2D
	commands vk.CommandBuffer
}

// Extent implements core.RenderTarget.
func (t *Target) Extent() vk.Extent2D {
	return t.extent
}

// Format implements core.RenderTarget.
func (t *Target) Format() vk.Format {
	return t.format
}

// Clear fills the whole target with the given RGBA color. The image
// arrives in the color-attachment layout established by the acquire
// leg; it is moved to transfer-destination for the clear and back
// again, so the chain's tracked layout stays truthful.
func (t *Target) Clear(r, g, b, a float32) error {
	if err := t.device.BeginCommandBuffer(t.commands); err != nil {
		return err
	}

	subresource := vk.ImageSubresourceRange{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LevelCount: 1,
		LayerCount: 1,
	}

	t.device.CmdPipelineBarrier(t.commands,
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		[]vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			DstAccessMask:       vk.AccessFlags(vk.AccessTransferWriteBit),
			OldLayout:           vk.ImageLayoutColorAttachmentOptimal,
			NewLayout:           vk.ImageLayoutTransferDstOptimal,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               t.image,
			SubresourceRange:    subresource,
		}})

	var clear vk.ClearValue
	clear.SetColor([]float32{r, g, b, a})
	color := vk.ClearColorValue(clear)
	t.device.CmdClearColorImage(t.commands, t.image, vk.ImageLayoutTransferDstOptimal, color, []vk.ImageSubresourceRange{subresource})

	t.device.CmdPipelineBarrier(t.commands,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		[]vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(vk.AccessTransferWriteBit),
			DstAccessMask:       vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			OldLayout:           vk.ImageLayoutTransferDstOptimal,
			NewLayout:           vk.ImageLayoutColorAttachmentOptimal,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               t.image,
			SubresourceRange:    subresource,
		}})

	if err := t.device.EndCommandBuffer(t.commands); err != nil {
		return err
	}

	return t.device.QueueSubmit(nil, nil, nil, []vk.CommandBuffer{t.commands}, vk.NullFence)
}

// Release returns the target's command buffer to the pool.
func (t *Target) Release() {
	if t.commands != nil {
		t.device.FreeCommandBuffer(t.commands)
		t.commands = nil
	}
}
