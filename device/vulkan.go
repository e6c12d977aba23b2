// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	vk "github.com/devblok/vulkan"

	"github.com/devblok/prism/core"
)

// safeStrings null-terminates names headed for the C side.
func safeStrings(sgs []string) []string {
	safe := make([]string, 0, len(sgs))
	for _, s := range sgs {
		if !strings.HasSuffix(s, "\x00") {
			s += "\x00"
		}
		safe = append(safe, s)
	}
	return safe
}

// NewVulkan creates the Vulkan instance and enumerates the physical
// devices. The returned context still needs Init with a live surface
// before it can serve the presentation engine.
func NewVulkan(appInfo *vk.ApplicationInfo, procAddr unsafe.Pointer, cfg Configuration) (*Vulkan, error) {
	if cfg.DebugMode {
		cfg.Layers = append(cfg.Layers, "VK_LAYER_LUNARG_standard_validation")
		cfg.Extensions = append(cfg.Extensions, "VK_EXT_debug_report")
	}
	cfg.Extensions = safeStrings(cfg.Extensions)
	cfg.Layers = safeStrings(cfg.Layers)

	if procAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return nil, errors.New("vk.InstanceProcAddr(): " + err.Error())
		}
	} else {
		vk.SetGetInstanceProcAddr(procAddr)
	}

	if err := vk.Init(); err != nil {
		return nil, errors.New("vk.Init(): " + err.Error())
	}

	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(cfg.Extensions)),
		PpEnabledExtensionNames: cfg.Extensions,
		EnabledLayerCount:       uint32(len(cfg.Layers)),
		PpEnabledLayerNames:     cfg.Layers,
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return nil, errors.New("vk.CreateInstance(): " + err.Error())
	}
	vk.InitInstance(instance)

	v := &Vulkan{
		configuration: cfg,
		instance:      instance,
	}
	if err := v.enumerateDevices(); err != nil {
		return nil, err
	}
	v.physicalDevice = v.availableDevices[0]

	return v, nil
}

// Vulkan implements core.Device over one logical device with a single
// graphics queue that can also present.
type Vulkan struct {
	configuration Configuration

	instance         vk.Instance
	availableDevices []vk.PhysicalDevice
	physicalDevice   vk.PhysicalDevice

	device           vk.Device
	queue            vk.Queue
	commandPool      vk.CommandPool
	queueFamilyIndex uint32

	valid bool
}

func (v *Vulkan) enumerateDevices() error {
	var deviceCount uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(v.instance, &deviceCount, nil)); err != nil {
		return fmt.Errorf("vulkan physical device enumeration failed: %s", err)
	}
	if deviceCount == 0 {
		return errors.New("vulkan error: no physical devices present")
	}
	v.availableDevices = make([]vk.PhysicalDevice, deviceCount)
	if err := vk.Error(vk.EnumeratePhysicalDevices(v.instance, &deviceCount, v.availableDevices)); err != nil {
		return fmt.Errorf("vulkan physical device enumeration failed: %s", err)
	}
	return nil
}

// PhysicalDevicesInfo returns a struct for each physical device along
// with info about those devices.
func (v *Vulkan) PhysicalDevicesInfo() []PhysicalDeviceInfo {
	pdi := make([]PhysicalDeviceInfo, len(v.availableDevices))
	for i := 0; i < len(v.availableDevices); i++ {
		// Get extension info
		var numDeviceExtensions uint32
		if err := vk.Error(vk.EnumerateDeviceExtensionProperties(v.availableDevices[i], "", &numDeviceExtensions, nil)); err != nil {
			pdi[i].Invalid = true
		}
		deviceExt := make([]vk.ExtensionProperties, numDeviceExtensions)
		if err := vk.Error(vk.EnumerateDeviceExtensionProperties(v.availableDevices[i], "", &numDeviceExtensions, deviceExt)); err != nil {
			pdi[i].Invalid = true
		}
		for _, ext := range deviceExt {
			ext.Deref()
			pdi[i].Extensions = append(pdi[i].Extensions, vk.ToString(ext.ExtensionName[:]))
		}

		// Get layers info
		var numDeviceLayers uint32
		if err := vk.Error(vk.EnumerateDeviceLayerProperties(v.availableDevices[i], &numDeviceLayers, nil)); err != nil {
			pdi[i].Invalid = true
		}
		deviceLayers := make([]vk.LayerProperties, numDeviceLayers)
		if err := vk.Error(vk.EnumerateDeviceLayerProperties(v.availableDevices[i], &numDeviceLayers, deviceLayers)); err != nil {
			pdi[i].Invalid = true
		}
		for _, layer := range deviceLayers {
			layer.Deref()
			pdi[i].Layers = append(pdi[i].Layers, vk.ToString(layer.LayerName[:]))
		}

		// Get memory info
		var memoryProperties vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(v.availableDevices[i], &memoryProperties)
		memoryProperties.Deref()
		for iMem := (uint32)(0); iMem < memoryProperties.MemoryHeapCount; iMem++ {
			memoryProperties.MemoryHeaps[iMem].Deref()
			pdi[i].Memory = pdi[i].Memory + uint(memoryProperties.MemoryHeaps[iMem].Size)
		}

		// Get general device info
		var physicalDeviceProperties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(v.availableDevices[i], &physicalDeviceProperties)
		physicalDeviceProperties.Deref()
		pdi[i].ID = (int)(physicalDeviceProperties.DeviceID)
		pdi[i].VendorID = (int)(physicalDeviceProperties.VendorID)
		pdi[i].Name = vk.ToString(physicalDeviceProperties.DeviceName[:])
		pdi[i].DriverVersion = (int)(physicalDeviceProperties.DriverVersion)
	}
	return pdi
}

// Init creates the logical device, its queue and the command pool. The
// chosen queue family supports both graphics and presenting to the
// given surface.
func (v *Vulkan) Init(surface core.Surface) error {
	if surface == nil || !surface.IsValid() {
		return errors.New("device.Init(): surface is invalid")
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(v.physicalDevice, &queueFamilyCount, nil)
	if queueFamilyCount == 0 {
		return errors.New("vk.GetPhysicalDeviceQueueFamilyProperties(): no queuefamilies on GPU")
	}
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(v.physicalDevice, &queueFamilyCount, queueFamilies)

	var found bool
	for i := uint32(0); i < queueFamilyCount; i++ {
		queueFamilies[i].Deref()
		if queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}

		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(v.physicalDevice, i, surface.Handle(), &supportsPresent)
		if supportsPresent.B() {
			v.queueFamilyIndex = i
			found = true
			break
		}
	}
	if !found {
		return errors.New("vulkan error: could not find a queue family with graphics and present support")
	}

	requiredExtensions := []string{
		vk.KhrSwapchainExtensionName + "\x00",
	}

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: v.queueFamilyIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(requiredExtensions)),
		PpEnabledExtensionNames: requiredExtensions,
	}

	var device vk.Device
	if err := vk.Error(vk.CreateDevice(v.physicalDevice, &dci, nil, &device)); err != nil {
		return errors.New("vk.CreateDevice(): " + err.Error())
	}
	v.device = device

	var queue vk.Queue
	vk.GetDeviceQueue(v.device, v.queueFamilyIndex, 0, &queue)
	v.queue = queue

	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: v.queueFamilyIndex,
	}

	var commandPool vk.CommandPool
	if err := vk.Error(vk.CreateCommandPool(v.device, &cpci, nil, &commandPool)); err != nil {
		vk.DestroyDevice(v.device, nil)
		return errors.New("vk.CreateCommandPool(): " + err.Error())
	}
	v.commandPool = commandPool

	v.valid = true
	return nil
}

// Instance returns the inner handle of the underlying API, for window
// systems that create surfaces against it.
func (v *Vulkan) Instance() interface{} {
	return v.instance
}

// QueueFamilyIndex returns the family index of the present-capable queue.
func (v *Vulkan) QueueFamilyIndex() uint32 {
	return v.queueFamilyIndex
}

// IsValid implements core.Device.
func (v *Vulkan) IsValid() bool {
	return v != nil && v.valid
}

// SurfaceCapabilities implements core.Device.
func (v *Vulkan) SurfaceCapabilities(surface core.Surface) (vk.SurfaceCapabilities, error) {
	var capabilities vk.SurfaceCapabilities
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(v.physicalDevice, surface.Handle(), &capabilities)); err != nil {
		return capabilities, errors.New("vk.GetPhysicalDeviceSurfaceCapabilities(): " + err.Error())
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()
	return capabilities, nil
}

// ChooseSurfaceFormat implements core.Device. A 32-bit BGRA format with
// the standard sRGB color space wins when advertised; the driver's
// first choice is the fallback.
func (v *Vulkan) ChooseSurfaceFormat(surface core.Surface) (vk.SurfaceFormat, error) {
	var count uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(v.physicalDevice, surface.Handle(), &count, nil)); err != nil {
		return vk.SurfaceFormat{}, errors.New("vk.GetPhysicalDeviceSurfaceFormats(): " + err.Error())
	}
	if count == 0 {
		return vk.SurfaceFormat{}, errors.New("vulkan error: surface advertises no formats")
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(v.physicalDevice, surface.Handle(), &count, formats)); err != nil {
		return vk.SurfaceFormat{}, errors.New("vk.GetPhysicalDeviceSurfaceFormats(): " + err.Error())
	}

	for i := range formats {
		formats[i].Deref()
		if formats[i].Format == vk.FormatB8g8r8a8Unorm && formats[i].ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return formats[i], nil
		}
	}
	return formats[0], nil
}

// ChoosePresentMode implements core.Device. FIFO is the choice whenever
// the surface advertises it, which every conformant driver does.
func (v *Vulkan) ChoosePresentMode(surface core.Surface) (vk.PresentMode, error) {
	var count uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfacePresentModes(v.physicalDevice, surface.Handle(), &count, nil)); err != nil {
		return vk.PresentModeFifo, errors.New("vk.GetPhysicalDeviceSurfacePresentModes(): " + err.Error())
	}
	if count == 0 {
		return vk.PresentModeFifo, errors.New("vulkan error: surface advertises no present modes")
	}
	modes := make([]vk.PresentMode, count)
	if err := vk.Error(vk.GetPhysicalDeviceSurfacePresentModes(v.physicalDevice, surface.Handle(), &count, modes)); err != nil {
		return vk.PresentModeFifo, errors.New("vk.GetPhysicalDeviceSurfacePresentModes(): " + err.Error())
	}

	for _, mode := range modes {
		if mode == vk.PresentModeFifo {
			return mode, nil
		}
	}
	return modes[0], nil
}

// SupportsPresent implements core.Device.
func (v *Vulkan) SupportsPresent(surface core.Surface, queueFamilyIndex uint32) (bool, error) {
	var supported vk.Bool32
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceSupport(v.physicalDevice, queueFamilyIndex, surface.Handle(), &supported)); err != nil {
		return false, errors.New("vk.GetPhysicalDeviceSurfaceSupport(): " + err.Error())
	}
	return supported.B(), nil
}

// CreateSwapchain implements core.Device.
func (v *Vulkan) CreateSwapchain(info vk.SwapchainCreateInfo) (vk.Swapchain, error) {
	var swapchain vk.Swapchain
	if err := vk.Error(vk.CreateSwapchain(v.device, &info, nil, &swapchain)); err != nil {
		return vk.NullSwapchain, errors.New("vk.CreateSwapchain(): " + err.Error())
	}
	return swapchain, nil
}

// DestroySwapchain implements core.Device.
func (v *Vulkan) DestroySwapchain(swapchain vk.Swapchain) {
	vk.DestroySwapchain(v.device, swapchain, nil)
}

// SwapchainImages implements core.Device.
func (v *Vulkan) SwapchainImages(swapchain vk.Swapchain) ([]vk.Image, error) {
	var count uint32
	if err := vk.Error(vk.GetSwapchainImages(v.device, swapchain, &count, nil)); err != nil {
		return nil, errors.New("vk.GetSwapchainImages(): " + err.Error())
	}
	if count == 0 {
		return nil, nil
	}
	images := make([]vk.Image, count)
	if err := vk.Error(vk.GetSwapchainImages(v.device, swapchain, &count, images)); err != nil {
		return nil, errors.New("vk.GetSwapchainImages(): " + err.Error())
	}
	return images, nil
}

// AcquireNextImage implements core.Device.
func (v *Vulkan) AcquireNextImage(swapchain vk.Swapchain, timeout uint64, semaphore vk.Semaphore) (uint32, vk.Result) {
	var index uint32
	result := vk.AcquireNextImage(v.device, swapchain, uint(timeout), semaphore, vk.NullFence, &index)
	return index, result
}

// Present implements core.Device.
func (v *Vulkan) Present(swapchain vk.Swapchain, imageIndex uint32, waitSemaphores []vk.Semaphore) vk.Result {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waitSemaphores)),
		PWaitSemaphores:    waitSemaphores,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{swapchain},
		PImageIndices:      []uint32{imageIndex},
	}
	return vk.QueuePresent(v.queue, &presentInfo)
}

// CreateFence implements core.Device.
func (v *Vulkan) CreateFence(signaled bool) (vk.Fence, error) {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fci.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var fence vk.Fence
	if err := vk.Error(vk.CreateFence(v.device, &fci, nil, &fence)); err != nil {
		return vk.NullFence, errors.New("vk.CreateFence(): " + err.Error())
	}
	return fence, nil
}

// WaitForFences implements core.Device.
func (v *Vulkan) WaitForFences(fences []vk.Fence, timeout uint64) error {
	if err := vk.Error(vk.WaitForFences(v.device, uint32(len(fences)), fences, vk.True, uint(timeout))); err != nil {
		return errors.New("vk.WaitForFences(): " + err.Error())
	}
	return nil
}

// ResetFences implements core.Device.
func (v *Vulkan) ResetFences(fences []vk.Fence) error {
	if err := vk.Error(vk.ResetFences(v.device, uint32(len(fences)), fences)); err != nil {
		return errors.New("vk.ResetFences(): " + err.Error())
	}
	return nil
}

// DestroyFence implements core.Device.
func (v *Vulkan) DestroyFence(fence vk.Fence) {
	vk.DestroyFence(v.device, fence, nil)
}

// CreateSemaphore implements core.Device.
func (v *Vulkan) CreateSemaphore() (vk.Semaphore, error) {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	var semaphore vk.Semaphore
	if err := vk.Error(vk.CreateSemaphore(v.device, &sci, nil, &semaphore)); err != nil {
		return vk.NullSemaphore, errors.New("vk.CreateSemaphore(): " + err.Error())
	}
	return semaphore, nil
}

// DestroySemaphore implements core.Device.
func (v *Vulkan) DestroySemaphore(semaphore vk.Semaphore) {
	vk.DestroySemaphore(v.device, semaphore, nil)
}

// AllocateCommandBuffer implements core.Device.
func (v *Vulkan) AllocateCommandBuffer() (vk.CommandBuffer, error) {
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        v.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}

	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := vk.Error(vk.AllocateCommandBuffers(v.device, &cbai, commandBuffers)); err != nil {
		return nil, errors.New("vk.AllocateCommandBuffers(): " + err.Error())
	}
	return commandBuffers[0], nil
}

// FreeCommandBuffer implements core.Device.
func (v *Vulkan) FreeCommandBuffer(commandBuffer vk.CommandBuffer) {
	vk.FreeCommandBuffers(v.device, v.commandPool, 1, []vk.CommandBuffer{commandBuffer})
}

// BeginCommandBuffer implements core.Device.
func (v *Vulkan) BeginCommandBuffer(commandBuffer vk.CommandBuffer) error {
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := vk.Error(vk.BeginCommandBuffer(commandBuffer, &cbbi)); err != nil {
		return errors.New("vk.BeginCommandBuffer(): " + err.Error())
	}
	return nil
}

// EndCommandBuffer implements core.Device.
func (v *Vulkan) EndCommandBuffer(commandBuffer vk.CommandBuffer) error {
	if err := vk.Error(vk.EndCommandBuffer(commandBuffer)); err != nil {
		return errors.New("vk.EndCommandBuffer(): " + err.Error())
	}
	return nil
}

// CmdPipelineBarrier implements core.Device.
func (v *Vulkan) CmdPipelineBarrier(commandBuffer vk.CommandBuffer, srcStage, dstStage vk.PipelineStageFlags, barriers []vk.ImageMemoryBarrier) {
	vk.CmdPipelineBarrier(commandBuffer, srcStage, dstStage, 0, 0, nil, 0, nil, uint32(len(barriers)), barriers)
}

// CmdClearColorImage implements core.Device.
func (v *Vulkan) CmdClearColorImage(commandBuffer vk.CommandBuffer, image vk.Image, layout vk.ImageLayout, color vk.ClearColorValue, ranges []vk.ImageSubresourceRange) {
	vk.CmdClearColorImage(commandBuffer, image, layout, &color, uint32(len(ranges)), ranges)
}

// QueueSubmit implements core.Device.
func (v *Vulkan) QueueSubmit(waitStages []vk.PipelineStageFlags, waitSemaphores, signalSemaphores []vk.Semaphore, commandBuffers []vk.CommandBuffer, fence vk.Fence) error {
	if len(waitSemaphores) == 0 && len(signalSemaphores) == 0 && len(commandBuffers) == 0 {
		// Empty fenced submit, used to put a fence back in the
		// signaled state.
		if err := vk.Error(vk.QueueSubmit(v.queue, 0, nil, fence)); err != nil {
			return errors.New("vk.QueueSubmit(): " + err.Error())
		}
		return nil
	}

	submit := []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waitSemaphores)),
		PWaitSemaphores:      waitSemaphores,
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   uint32(len(commandBuffers)),
		PCommandBuffers:      commandBuffers,
		SignalSemaphoreCount: uint32(len(signalSemaphores)),
		PSignalSemaphores:    signalSemaphores,
	}}

	if err := vk.Error(vk.QueueSubmit(v.queue, 1, submit, fence)); err != nil {
		return errors.New("vk.QueueSubmit(): " + err.Error())
	}
	return nil
}

// WaitIdle implements core.Device.
func (v *Vulkan) WaitIdle() error {
	if err := vk.Error(vk.DeviceWaitIdle(v.device)); err != nil {
		return errors.New("vk.DeviceWaitIdle(): " + err.Error())
	}
	return nil
}

// Destroy releases the command pool, the logical device and the
// instance. The context is unusable afterwards.
func (v *Vulkan) Destroy() {
	if v == nil {
		return
	}
	v.valid = false
	if v.device != nil {
		vk.DestroyCommandPool(v.device, v.commandPool, nil)
		vk.DestroyDevice(v.device, nil)
		v.device = nil
	}
	v.availableDevices = nil
	vk.DestroyInstance(v.instance, nil)
}
