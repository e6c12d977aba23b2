// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"testing"

	vk "github.com/devblok/vulkan"

	"github.com/devblok/prism/core"
)

func TestPresentableImageBarrierChain(t *testing.T) {
	device := newFakeDevice(1)
	commands, err := core.NewCommandBuffer(device)
	if err != nil {
		t.Fatal(err)
	}
	defer commands.Release()

	image := core.NewPresentableImage(device.images[0])
	if image.Layout() != vk.ImageLayoutUndefined {
		t.Fatalf("a fresh image starts in layout %v", image.Layout())
	}

	// Acquire leg: undefined to color-attachment-writable.
	if err := image.InsertMemoryBarrier(commands,
		vk.PipelineStageColorAttachmentOutputBit,
		vk.AccessColorAttachmentWriteBit,
		vk.ImageLayoutColorAttachmentOptimal); err != nil {
		t.Fatal(err)
	}

	if len(device.barriers) != 1 {
		t.Fatalf("expected 1 recorded barrier, got %d", len(device.barriers))
	}
	first := device.barriers[0]
	if first.OldLayout != vk.ImageLayoutUndefined {
		t.Errorf("first barrier transitions from layout %v", first.OldLayout)
	}
	if first.NewLayout != vk.ImageLayoutColorAttachmentOptimal {
		t.Errorf("first barrier transitions to layout %v", first.NewLayout)
	}
	if first.SrcQueueFamilyIndex != vk.QueueFamilyIgnored || first.DstQueueFamilyIndex != vk.QueueFamilyIgnored {
		t.Error("barrier attempts a queue family ownership transfer")
	}
	if image.Layout() != vk.ImageLayoutColorAttachmentOptimal {
		t.Errorf("tracked layout is %v after the barrier", image.Layout())
	}

	// Present leg: the second barrier's source is the first's destination.
	if err := image.InsertMemoryBarrier(commands,
		vk.PipelineStageBottomOfPipeBit,
		vk.AccessMemoryReadBit,
		vk.ImageLayoutPresentSrc); err != nil {
		t.Fatal(err)
	}

	second := device.barriers[1]
	if second.OldLayout != vk.ImageLayoutColorAttachmentOptimal {
		t.Errorf("second barrier transitions from layout %v", second.OldLayout)
	}
	if second.SrcAccessMask != vk.AccessFlags(vk.AccessColorAttachmentWriteBit) {
		t.Errorf("second barrier carries source access %v", second.SrcAccessMask)
	}
	if image.Layout() != vk.ImageLayoutPresentSrc {
		t.Errorf("tracked layout is %v after the present barrier", image.Layout())
	}
}

func TestPresentableImageRejectsInvalid(t *testing.T) {
	device := newFakeDevice(1)
	commands, err := core.NewCommandBuffer(device)
	if err != nil {
		t.Fatal(err)
	}
	defer commands.Release()

	invalid := core.NewPresentableImage(vk.NullImage)
	if invalid.IsValid() {
		t.Error("a null image reports valid")
	}
	if err := invalid.InsertMemoryBarrier(commands,
		vk.PipelineStageColorAttachmentOutputBit,
		vk.AccessColorAttachmentWriteBit,
		vk.ImageLayoutColorAttachmentOptimal); err == nil {
		t.Error("a barrier on a null image was accepted")
	}

	image := core.NewPresentableImage(device.images[0])
	if err := image.InsertMemoryBarrier(nil,
		vk.PipelineStageColorAttachmentOutputBit,
		vk.AccessColorAttachmentWriteBit,
		vk.ImageLayoutColorAttachmentOptimal); err == nil {
		t.Error("a barrier without a command buffer was accepted")
	}
	if image.Layout() != vk.ImageLayoutUndefined {
		t.Error("a rejected barrier mutated the tracked layout")
	}
}
