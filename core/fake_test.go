// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"errors"
	"unsafe"

	vk "github.com/devblok/vulkan"

	"github.com/devblok/prism/core"
)

// fakeDevice scripts the driver side of the presentation protocol so
// chain behaviour can be exercised without a GPU. Handles it hands out
// are fabricated and only good for identity checks.
type fakeDevice struct {
	valid bool

	capabilities vk.SurfaceCapabilities
	format       vk.SurfaceFormat
	presentMode  vk.PresentMode
	images       []vk.Image

	// Per-call scripts for AcquireNextImage. When the script runs out
	// the device keeps acquiring round-robin with vk.Success.
	acquireScript []acquireResult
	acquireCalls  int

	presentResult vk.Result
	presents      []uint32

	submissions []submission
	barriers    []vk.ImageMemoryBarrier

	createInfos        []vk.SwapchainCreateInfo
	destroyedChains    []vk.Swapchain
	liveFences         int
	liveSemaphores     int
	liveCommandBuffers int

	failFenceAt     int
	failSemaphoreAt int
	fencesCreated   int
	semsCreated     int

	nextHandle uint64
	handles    []*byte
}

type acquireResult struct {
	index  uint32
	result vk.Result
}

// submission records one QueueSubmit call.
type submission struct {
	waits    int
	signals  int
	commands int
	fence    vk.Fence
}

func newFakeDevice(imageCount int) *fakeDevice {
	d := &fakeDevice{
		valid: true,
		capabilities: vk.SurfaceCapabilities{
			MinImageCount:  2,
			CurrentExtent:  vk.Extent2D{Width: 800, Height: 600},
			MinImageExtent: vk.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: vk.Extent2D{Width: 4096, Height: 4096},
		},
		format: vk.SurfaceFormat{
			Format:     vk.FormatB8g8r8a8Unorm,
			ColorSpace: vk.ColorSpaceSrgbNonlinear,
		},
		presentMode:     vk.PresentModeFifo,
		presentResult:   vk.Success,
		failFenceAt:     -1,
		failSemaphoreAt: -1,
	}
	for i := 0; i < imageCount; i++ {
		d.images = append(d.images, vk.Image(d.handle()))
	}
	return d
}

func (d *fakeDevice) handle() unsafe.Pointer {
	d.nextHandle++
	b := new(byte)
	d.handles = append(d.handles, b)
	return unsafe.Pointer(b)
}

// fencedSubmissions returns the empty submissions carrying a fence,
// which is how signaled fences get restored after a failed acquire.
func (d *fakeDevice) fencedSubmissions() []submission {
	var out []submission
	for _, s := range d.submissions {
		if s.commands == 0 && s.waits == 0 && s.signals == 0 && s.fence != vk.NullFence {
			out = append(out, s)
		}
	}
	return out
}

func (d *fakeDevice) IsValid() bool { return d.valid }

func (d *fakeDevice) SurfaceCapabilities(core.Surface) (vk.SurfaceCapabilities, error) {
	return d.capabilities, nil
}

func (d *fakeDevice) ChooseSurfaceFormat(core.Surface) (vk.SurfaceFormat, error) {
	return d.format, nil
}

func (d *fakeDevice) ChoosePresentMode(core.Surface) (vk.PresentMode, error) {
	return d.presentMode, nil
}

func (d *fakeDevice) SupportsPresent(_ core.Surface, family uint32) (bool, error) {
	return family == 0, nil
}

func (d *fakeDevice) CreateSwapchain(info vk.SwapchainCreateInfo) (vk.Swapchain, error) {
	d.createInfos = append(d.createInfos, info)
	return vk.Swapchain(d.handle()), nil
}

func (d *fakeDevice) DestroySwapchain(chain vk.Swapchain) {
	d.destroyedChains = append(d.destroyedChains, chain)
}

func (d *fakeDevice) SwapchainImages(vk.Swapchain) ([]vk.Image, error) {
	return d.images, nil
}

func (d *fakeDevice) AcquireNextImage(_ vk.Swapchain, _ uint64, _ vk.Semaphore) (uint32, vk.Result) {
	call := d.acquireCalls
	d.acquireCalls++
	if call < len(d.acquireScript) {
		step := d.acquireScript[call]
		return step.index, step.result
	}
	return uint32(call % len(d.images)), vk.Success
}

func (d *fakeDevice) Present(_ vk.Swapchain, imageIndex uint32, _ []vk.Semaphore) vk.Result {
	d.presents = append(d.presents, imageIndex)
	return d.presentResult
}

func (d *fakeDevice) CreateFence(bool) (vk.Fence, error) {
	if d.fencesCreated == d.failFenceAt {
		return vk.NullFence, errors.New("out of fences")
	}
	d.fencesCreated++
	d.liveFences++
	return vk.Fence(d.handle()), nil
}

func (d *fakeDevice) WaitForFences([]vk.Fence, uint64) error { return nil }

func (d *fakeDevice) ResetFences([]vk.Fence) error { return nil }

func (d *fakeDevice) DestroyFence(vk.Fence) { d.liveFences-- }

func (d *fakeDevice) CreateSemaphore() (vk.Semaphore, error) {
	if d.semsCreated == d.failSemaphoreAt {
		return vk.NullSemaphore, errors.New("out of semaphores")
	}
	d.semsCreated++
	d.liveSemaphores++
	return vk.Semaphore(d.handle()), nil
}

func (d *fakeDevice) DestroySemaphore(vk.Semaphore) { d.liveSemaphores-- }

func (d *fakeDevice) AllocateCommandBuffer() (vk.CommandBuffer, error) {
	d.liveCommandBuffers++
	return vk.CommandBuffer(unsafe.Pointer(new(byte))), nil
}

func (d *fakeDevice) FreeCommandBuffer(vk.CommandBuffer) { d.liveCommandBuffers-- }

func (d *fakeDevice) BeginCommandBuffer(vk.CommandBuffer) error { return nil }

func (d *fakeDevice) EndCommandBuffer(vk.CommandBuffer) error { return nil }

func (d *fakeDevice) CmdPipelineBarrier(_ vk.CommandBuffer, _, _ vk.PipelineStageFlags, barriers []vk.ImageMemoryBarrier) {
	d.barriers = append(d.barriers, barriers...)
}

func (d *fakeDevice) CmdClearColorImage(vk.CommandBuffer, vk.Image, vk.ImageLayout, vk.ClearColorValue, []vk.ImageSubresourceRange) {
}

func (d *fakeDevice) QueueSubmit(_ []vk.PipelineStageFlags, waitSemaphores, signalSemaphores []vk.Semaphore, commandBuffers []vk.CommandBuffer, fence vk.Fence) error {
	d.submissions = append(d.submissions, submission{
		waits:    len(waitSemaphores),
		signals:  len(signalSemaphores),
		commands: len(commandBuffers),
		fence:    fence,
	})
	return nil
}

func (d *fakeDevice) WaitIdle() error { return nil }

type fakeSurface struct {
	handle vk.Surface
	valid  bool
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{handle: vk.Surface(unsafe.Pointer(new(byte))), valid: true}
}

func (s *fakeSurface) Handle() vk.Surface { return s.handle }

func (s *fakeSurface) IsValid() bool { return s.valid }

type fakeTarget struct {
	image    vk.Image
	extent   vk.Extent2D
	format   vk.Format
	released bool
}

func (t *fakeTarget) Extent() vk.Extent2D { return t.extent }

func (t *fakeTarget) Format() vk.Format { return t.format }

func (t *fakeTarget) Release() { t.released = true }

type fakeRaster struct {
	rejectAll bool
	targets   []*fakeTarget
}

func (r *fakeRaster) RenderTargetFor(image vk.Image, format vk.Format, _ vk.ColorSpace, extent vk.Extent2D) (core.RenderTarget, error) {
	if r.rejectAll {
		return nil, errors.New("unsupported format")
	}
	target := &fakeTarget{image: image, extent: extent, format: format}
	r.targets = append(r.targets, target)
	return target, nil
}

// newTestChain builds a chain over the fakes with the default two
// backbuffer slots.
func newTestChain(imageCount int) (*core.Swapchain, *fakeDevice, *fakeRaster, error) {
	device := newFakeDevice(imageCount)
	raster := &fakeRaster{}
	chain, err := core.NewSwapchain(device, newFakeSurface(), raster, nil, 0, core.PresenterConfiguration{})
	return chain, device, raster, err
}
