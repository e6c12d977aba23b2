// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"fmt"
	"math"

	vk "github.com/devblok/vulkan"
	log "github.com/sirupsen/logrus"
)

// NewSwapchain negotiates a presentation chain with the driver and
// returns it ready for the Acquire/Submit cycle. Construction is
// all-or-nothing: any failed step tears down whatever was built and
// returns an error, never a partially populated chain.
//
// When old is supplied its driver handle is chained into the new
// chain's creation so the hand-off is atomic and no black frame shows
// on resize. The old generation is consumed: its resources are released
// here, after its own device-idle wait, whether creation succeeds or
// not.
func NewSwapchain(device Device, surface Surface, raster RasterContext, old *Swapchain, queueFamilyIndex uint32, cfg PresenterConfiguration) (*Swapchain, error) {
	if device == nil || !device.IsValid() {
		return nil, errors.New("core.NewSwapchain(): device is invalid")
	}
	if surface == nil || !surface.IsValid() {
		return nil, errors.New("core.NewSwapchain(): surface is invalid")
	}
	if raster == nil {
		return nil, errors.New("core.NewSwapchain(): raster context is nil")
	}

	capabilities, err := device.SurfaceCapabilities(surface)
	if err != nil {
		return nil, errors.New("core.NewSwapchain(): " + err.Error())
	}

	format, err := device.ChooseSurfaceFormat(surface)
	if err != nil {
		return nil, errors.New("core.NewSwapchain(): " + err.Error())
	}

	presentMode, err := device.ChoosePresentMode(surface)
	if err != nil {
		return nil, errors.New("core.NewSwapchain(): " + err.Error())
	}

	supported, err := device.SupportsPresent(surface, queueFamilyIndex)
	if err != nil {
		return nil, errors.New("core.NewSwapchain(): " + err.Error())
	}
	if !supported {
		return nil, fmt.Errorf("core.NewSwapchain(): queue family %d cannot present to the surface", queueFamilyIndex)
	}

	oldHandle := vk.NullSwapchain
	if old.IsValid() {
		oldHandle = old.handle
	}
	if old != nil {
		// Consumed by value: the previous generation may not stay
		// live alongside the chained handle.
		defer old.Destroy()
	}

	handle, err := device.CreateSwapchain(vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface.Handle(),
		MinImageCount:    capabilities.MinImageCount,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      capabilities.CurrentExtent,
		ImageArrayLayers: 1,
		ImageUsage:       cfg.Usage(),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     vk.SurfaceTransformIdentityBit,
		CompositeAlpha:   vk.CompositeAlphaInheritBit,
		PresentMode:      presentMode,
		Clipped:          vk.False,
		OldSwapchain:     oldHandle,
	})
	if err != nil {
		return nil, errors.New("vk.CreateSwapchain(): " + err.Error())
	}

	s := &Swapchain{
		device:       device,
		surface:      surface,
		raster:       raster,
		handle:       handle,
		capabilities: capabilities,
		format:       format,
		presentMode:  presentMode,
	}

	if err := s.createImages(); err != nil {
		s.Destroy()
		return nil, err
	}

	pool, err := NewBackbufferPool(device, cfg.Backbuffers())
	if err != nil {
		s.Destroy()
		return nil, err
	}
	s.pool = pool

	s.valid = true
	return s, nil
}

// Swapchain owns one generation of the presentation chain: the driver
// handle, the presentable images with their render-target bindings, and
// the backbuffer pool. A single rendering thread drives it through
// Acquire and Submit; concurrent calls on one instance are not
// supported.
type Swapchain struct {
	device  Device
	surface Surface
	raster  RasterContext

	handle       vk.Swapchain
	capabilities vk.SurfaceCapabilities
	format       vk.SurfaceFormat
	presentMode  vk.PresentMode

	images  []*PresentableImage
	targets []RenderTarget
	pool    *BackbufferPool

	currentImage int
	acquired     bool
	valid        bool
}

// createImages enumerates the chain's images and builds one presentable
// image and one render-target binding per image. Any failure aborts;
// no partial lists are retained.
func (s *Swapchain) createImages() error {
	images, err := s.device.SwapchainImages(s.handle)
	if err != nil {
		return errors.New("vk.GetSwapchainImages(): " + err.Error())
	}
	if len(images) == 0 {
		return errors.New("core: swapchain reported no images")
	}

	extent := s.Extent()
	for _, image := range images {
		presentable := NewPresentableImage(image)
		if !presentable.IsValid() {
			s.images, s.targets = nil, nil
			return errors.New("core: swapchain image handle is null")
		}

		target, err := s.raster.RenderTargetFor(image, s.format.Format, s.format.ColorSpace, extent)
		if err != nil {
			s.images, s.targets = nil, nil
			return errors.New("core: render target binding failed: " + err.Error())
		}
		if target == nil {
			s.images, s.targets = nil, nil
			return errors.New("core: raster context rejected the surface format")
		}

		s.images = append(s.images, presentable)
		s.targets = append(s.targets, target)
	}
	return nil
}

// IsValid reports whether the chain can serve frames.
func (s *Swapchain) IsValid() bool {
	return s != nil && s.valid
}

// ImageCount returns the number of presentable images in the chain.
func (s *Swapchain) ImageCount() int {
	if s == nil {
		return 0
	}
	return len(s.images)
}

// Extent returns the chain's current extent clamped into the surface's
// supported image extent bounds.
func (s *Swapchain) Extent() vk.Extent2D {
	extent := s.capabilities.CurrentExtent

	if extent.Width < s.capabilities.MinImageExtent.Width {
		extent.Width = s.capabilities.MinImageExtent.Width
	} else if extent.Width > s.capabilities.MaxImageExtent.Width {
		extent.Width = s.capabilities.MaxImageExtent.Width
	}

	if extent.Height < s.capabilities.MinImageExtent.Height {
		extent.Height = s.capabilities.MinImageExtent.Height
	} else if extent.Height > s.capabilities.MaxImageExtent.Height {
		extent.Height = s.capabilities.MaxImageExtent.Height
	}

	return extent
}

// Format returns the chosen surface format.
func (s *Swapchain) Format() vk.SurfaceFormat {
	return s.format
}

// BackbufferIndex returns the slot index the current frame is using.
func (s *Swapchain) BackbufferIndex() int {
	if s == nil || s.pool == nil {
		return 0
	}
	return s.pool.CurrentIndex()
}

// Acquire drives one frame's begin: it selects the next backbuffer
// slot, waits out the slot's prior GPU work, asks the driver for an
// image, transitions it to color-attachment-writable and returns its
// render-target binding.
//
// On anything but AcquireSuccess no render target is returned and the
// chain's round-robin indices stay where they were; OutOfDate means
// recreate the chain, SurfaceLost means rebuild the surface as well.
func (s *Swapchain) Acquire() (RenderTarget, AcquireStatus) {
	if !s.IsValid() {
		log.Debug("core: acquire on an invalid swapchain")
		return nil, AcquireInvalidState
	}
	if s.acquired {
		log.Warn("core: acquire before the previous frame was submitted")
		return nil, AcquireInvalidState
	}

	backbuffer, slot := s.pool.Next()
	if backbuffer == nil {
		log.Debug("core: no usable backbuffer slot")
		return nil, AcquireSurfaceLost
	}

	// Admission control: how far the caller may run ahead of the GPU
	// is bounded right here.
	if err := backbuffer.WaitFences(); err != nil {
		log.WithError(err).Debug("core: waiting on slot fences failed")
		return nil, AcquireSurfaceLost
	}

	if err := backbuffer.ResetFences(); err != nil {
		log.WithError(err).Debug("core: resetting slot fences failed")
		return nil, AcquireSurfaceLost
	}

	index, result := s.device.AcquireNextImage(s.handle, math.MaxUint64, backbuffer.UsageSemaphore())
	switch result {
	case vk.Success:
	case vk.ErrorOutOfDate:
		s.restoreFences(backbuffer)
		return nil, AcquireOutOfDate
	case vk.ErrorSurfaceLost:
		s.restoreFences(backbuffer)
		return nil, AcquireSurfaceLost
	default:
		// Fail safe: an unrecognized driver result is treated as a
		// lost surface rather than guessing at recovery.
		log.WithField("result", result).Info("core: unexpected result from vk.AcquireNextImage()")
		s.restoreFences(backbuffer)
		return nil, AcquireSurfaceLost
	}

	if int(index) >= len(s.images) {
		log.WithField("index", index).Debug("core: acquired image index out of bounds")
		s.restoreFences(backbuffer)
		return nil, AcquireInvalidState
	}

	image := s.images[index]
	if !image.IsValid() {
		log.WithField("index", index).Debug("core: acquired image is invalid")
		s.restoreFences(backbuffer)
		return nil, AcquireInvalidState
	}

	commands := backbuffer.UsageCommands()
	if err := commands.Begin(); err != nil {
		log.WithError(err).Debug("core: recording the acquire leg failed")
		s.restoreFences(backbuffer)
		return nil, AcquireSurfaceLost
	}

	if err := image.InsertMemoryBarrier(commands,
		vk.PipelineStageColorAttachmentOutputBit,
		vk.AccessColorAttachmentWriteBit,
		vk.ImageLayoutColorAttachmentOptimal); err != nil {
		log.WithError(err).Debug("core: acquire-leg barrier failed")
		s.restoreFences(backbuffer)
		return nil, AcquireSurfaceLost
	}

	if err := commands.End(); err != nil {
		log.WithError(err).Debug("core: recording the acquire leg failed")
		s.restoreFences(backbuffer)
		return nil, AcquireSurfaceLost
	}

	// The driver's acquire already waits internally; nothing to signal
	// here beyond the usage fence gating this slot's reuse.
	if err := s.device.QueueSubmit(
		[]vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		[]vk.Semaphore{backbuffer.UsageSemaphore()},
		nil,
		[]vk.CommandBuffer{commands.Handle()},
		backbuffer.UsageFence(),
	); err != nil {
		log.WithError(err).Debug("core: submitting the acquire leg failed")
		s.restoreFences(backbuffer)
		return nil, AcquireSurfaceLost
	}

	s.pool.Commit(slot)
	s.currentImage = int(index)
	s.acquired = true

	return s.targets[index], AcquireSuccess
}

// restoreFences puts a slot's fences back in the signaled state after a
// failed acquire. The slot was not committed, so the next Acquire picks
// it again and must not deadlock on fences that have no work pending.
func (s *Swapchain) restoreFences(b *Backbuffer) {
	if err := s.device.QueueSubmit(nil, nil, nil, nil, b.UsageFence()); err != nil {
		log.WithError(err).Debug("core: restoring the usage fence failed")
	}
	if err := s.device.QueueSubmit(nil, nil, nil, nil, b.RenderFence()); err != nil {
		log.WithError(err).Debug("core: restoring the render fence failed")
	}
}

// Submit drives one frame's end: it transitions the current image to
// present-source, submits the transition signaling the slot's render
// semaphore and fenced by the render fence, then queues the present.
// Must follow a successful Acquire; the acquire is consumed whether or
// not the present goes through, so a failed Submit surfaces as one
// dropped frame and the caller schedules recreation.
func (s *Swapchain) Submit() bool {
	if !s.IsValid() {
		log.Debug("core: submit on an invalid swapchain")
		return false
	}
	if !s.acquired {
		log.Warn("core: submit without a preceding successful acquire")
		return false
	}
	s.acquired = false

	image := s.images[s.currentImage]
	backbuffer := s.pool.Current()

	commands := backbuffer.RenderCommands()
	if err := commands.Begin(); err != nil {
		log.WithError(err).Debug("core: recording the submit leg failed")
		return false
	}

	if err := image.InsertMemoryBarrier(commands,
		vk.PipelineStageBottomOfPipeBit,
		vk.AccessMemoryReadBit,
		vk.ImageLayoutPresentSrc); err != nil {
		log.WithError(err).Debug("core: submit-leg barrier failed")
		return false
	}

	if err := commands.End(); err != nil {
		log.WithError(err).Debug("core: recording the submit leg failed")
		return false
	}

	if err := s.device.QueueSubmit(
		nil,
		nil,
		[]vk.Semaphore{backbuffer.RenderSemaphore()},
		[]vk.CommandBuffer{commands.Handle()},
		backbuffer.RenderFence(),
	); err != nil {
		log.WithError(err).Debug("core: submitting the render leg failed")
		return false
	}

	result := s.device.Present(s.handle, uint32(s.currentImage), []vk.Semaphore{backbuffer.RenderSemaphore()})
	if result != vk.Success {
		log.WithField("result", result).Debug("core: vk.QueuePresent() failed")
		return false
	}

	return true
}

// AcquireFrame wraps Acquire into a one-shot Frame whose callback
// drives Submit. A discarded frame still completes the present leg with
// whatever the image holds, keeping the slot round-robin and its fences
// consistent; the dropped frame shows up as a skipped paint, not as a
// desynchronized chain.
func (s *Swapchain) AcquireFrame() (*Frame, AcquireStatus) {
	target, status := s.Acquire()
	if status != AcquireSuccess {
		return nil, status
	}

	frame := NewFrame(target, func(painted RenderTarget) bool {
		if painted == nil {
			log.Debug("core: frame dropped without a submit")
		}
		return s.Submit()
	})
	return frame, AcquireSuccess
}

// Destroy idles the device and releases the pool, the images and the
// chain handle. Exactly once; further calls are no-ops. The device and
// surface are not owned and stay untouched.
func (s *Swapchain) Destroy() {
	if s == nil || s.handle == vk.NullSwapchain {
		return
	}

	if err := s.device.WaitIdle(); err != nil {
		log.WithError(err).Debug("core: device idle wait failed during teardown")
	}

	if s.pool != nil {
		s.pool.Release()
		s.pool = nil
	}

	// The images are driver-owned; dropping the wrappers is enough.
	// Targets holding their own resources get to release them.
	for _, target := range s.targets {
		if releasable, ok := target.(interface{ Release() }); ok {
			releasable.Release()
		}
	}
	s.images = nil
	s.targets = nil

	s.device.DestroySwapchain(s.handle)
	s.handle = vk.NullSwapchain
	s.valid = false
}
