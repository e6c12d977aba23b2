// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package device implements the Vulkan device context consumed by the
// presentation engine: instance setup, physical device selection, the
// logical device with its present-capable queue, and the full driver
// call surface the core drives through its Device interface.
package device

import (
	"unsafe"

	vk "github.com/devblok/vulkan"
)

// DefaultApplicationInfo application info describes a Vulkan application
var DefaultApplicationInfo = &vk.ApplicationInfo{
	SType:              vk.StructureTypeApplicationInfo,
	ApiVersion:         vk.MakeVersion(1, 0, 0),
	ApplicationVersion: vk.MakeVersion(1, 0, 0),
	PApplicationName:   "Prism\x00",
	PEngineName:        "Prism\x00",
}

// Configuration is used to configure instance and device creation
type Configuration struct {
	// DebugMode loads the validation layers
	DebugMode bool

	// Extensions are instance extensions required by the window system
	Extensions []string

	// Layers are additional instance layers to load
	Layers []string
}

// PhysicalDeviceInfo describes available physical properties of a rendering device
type PhysicalDeviceInfo struct {
	ID            int
	VendorID      int
	DriverVersion int
	Name          string
	Invalid       bool
	Extensions    []string
	Layers        []string
	Memory        uint
}

// NewSurface wraps a window-system surface pointer, usually the one the
// SDL window hands out.
func NewSurface(pSurface unsafe.Pointer) *Surface {
	return &Surface{handle: vk.SurfaceFromPointer(uintptr(pSurface))}
}

// Surface implements core.Surface over a native surface handle.
type Surface struct {
	handle vk.Surface
}

// Handle implements core.Surface.
func (s *Surface) Handle() vk.Surface {
	return s.handle
}

// IsValid implements core.Surface.
func (s *Surface) IsValid() bool {
	return s != nil && s.handle != vk.NullSurface
}
