// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	vk "github.com/devblok/vulkan"
)

// DefaultBackbufferCount is the number of in-flight frame slots a chain
// keeps when the configuration does not say otherwise.
const DefaultBackbufferCount = 2

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time      TimeConfiguration
	Presenter PresenterConfiguration
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the delay between window event polls,
	// in milliseconds
	EventPollDelay int
}

// PresenterConfiguration is used to configure the presentation chain
type PresenterConfiguration struct {
	// BackbufferCount is the number of in-flight frame slots.
	// Independent of how many images the driver hands out for
	// the chain. Zero selects DefaultBackbufferCount.
	BackbufferCount uint32

	// ImageUsage is the usage the chain's images are created with.
	// Zero selects plain color-attachment usage; a rasterizer that
	// blits or clears by transfer adds the transfer-destination bit.
	ImageUsage vk.ImageUsageFlags

	ScreenWidth  uint32
	ScreenHeight uint32
}

// Backbuffers returns the configured slot count with the
// default applied.
func (c PresenterConfiguration) Backbuffers() int {
	if c.BackbufferCount == 0 {
		return DefaultBackbufferCount
	}
	return int(c.BackbufferCount)
}

// Usage returns the configured image usage with the default applied.
func (c PresenterConfiguration) Usage() vk.ImageUsageFlags {
	if c.ImageUsage == 0 {
		return vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}
	return c.ImageUsage
}
