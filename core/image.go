// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"

	vk "github.com/devblok/vulkan"
)

// NewPresentableImage wraps a driver-owned swapchain image. The image
// starts at the top of the pipe with an undefined layout, which is what
// the driver guarantees for a freshly created chain.
func NewPresentableImage(handle vk.Image) *PresentableImage {
	return &PresentableImage{
		handle: handle,
		stage:  vk.PipelineStageTopOfPipeBit,
		layout: vk.ImageLayoutUndefined,
	}
}

// PresentableImage tracks the pipeline stage, access flags and memory
// layout of one driver-owned image, so barriers always transition from
// a known prior state. Mutated only through InsertMemoryBarrier.
type PresentableImage struct {
	handle vk.Image
	stage  vk.PipelineStageFlagBits
	access vk.AccessFlagBits
	layout vk.ImageLayout
}

// IsValid reports whether the wrapped handle is usable.
func (i *PresentableImage) IsValid() bool {
	return i != nil && i.handle != vk.NullImage
}

// Handle returns the driver image handle.
func (i *PresentableImage) Handle() vk.Image {
	return i.handle
}

// Stage returns the pipeline stage the image was last transitioned to.
func (i *PresentableImage) Stage() vk.PipelineStageFlagBits {
	return i.stage
}

// Layout returns the memory layout the image was last transitioned to.
func (i *PresentableImage) Layout() vk.ImageLayout {
	return i.layout
}

// InsertMemoryBarrier records a barrier on cmd transitioning the image
// from its tracked state to the destination stage, access and layout.
// The tracked state is updated once the barrier is recorded.
func (i *PresentableImage) InsertMemoryBarrier(cmd *CommandBuffer, dstStage vk.PipelineStageFlagBits, dstAccess vk.AccessFlagBits, dstLayout vk.ImageLayout) error {
	if !i.IsValid() {
		return errors.New("core: barrier on an invalid presentable image")
	}
	if cmd == nil || cmd.Handle() == nil {
		return errors.New("core: barrier needs a recording command buffer")
	}

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(i.access),
		DstAccessMask:       vk.AccessFlags(dstAccess),
		OldLayout:           i.layout,
		NewLayout:           dstLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               i.handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	cmd.Device().CmdPipelineBarrier(cmd.Handle(),
		vk.PipelineStageFlags(i.stage),
		vk.PipelineStageFlags(dstStage),
		[]vk.ImageMemoryBarrier{barrier})

	i.stage = dstStage
	i.access = dstAccess
	i.layout = dstLayout
	return nil
}
