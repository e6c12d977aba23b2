// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"testing"

	vk "github.com/devblok/vulkan"
	qt "github.com/frankban/quicktest"

	"github.com/devblok/prism/core"
)

func TestPresenterConfigurationDefaults(t *testing.T) {
	c := qt.New(t)

	var cfg core.PresenterConfiguration
	c.Assert(cfg.Backbuffers(), qt.Equals, core.DefaultBackbufferCount)
	c.Assert(cfg.Usage(), qt.Equals, vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit))

	cfg.BackbufferCount = 3
	cfg.ImageUsage = vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit)
	c.Assert(cfg.Backbuffers(), qt.Equals, 3)
	c.Assert(cfg.Usage(), qt.Equals, vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit|vk.ImageUsageTransferDstBit))
}
