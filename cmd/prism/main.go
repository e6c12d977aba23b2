// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"flag"
	"math"
	"runtime"
	"strconv"

	vk "github.com/devblok/vulkan"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/gobuffalo/envy"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/devblok/prism/core"
	"github.com/devblok/prism/device"
	"github.com/devblok/prism/raster"
)

func init() {
	runtime.LockOSThread()
}

var debug = flag.Bool("vkdbg", false, "Load Vulkan validation layers")

// envInt reads an integer setting from the environment.
func envInt(key string, fallback int) int {
	value, err := strconv.Atoi(envy.Get(key, strconv.Itoa(fallback)))
	if err != nil {
		log.WithField("key", key).Warn("ignoring a non-numeric setting")
		return fallback
	}
	return value
}

func configure() core.Configuration {
	return core.Configuration{
		Time: core.TimeConfiguration{
			FramesPerSecond: envInt("PRISM_FPS", 60),
			EventPollDelay:  envInt("PRISM_POLL_DELAY", 10),
		},
		Presenter: core.PresenterConfiguration{
			BackbufferCount: uint32(envInt("PRISM_BACKBUFFERS", 2)),
			ScreenWidth:     uint32(envInt("PRISM_WIDTH", 800)),
			ScreenHeight:    uint32(envInt("PRISM_HEIGHT", 600)),

			// The demo rasterizer clears by transfer.
			ImageUsage: vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		},
	}
}

// clearColor drifts between two tones so chain recreation is visible.
func clearColor(frame int64) glm.Vec3 {
	night := glm.Vec3{0.05, 0.05, 0.10}
	day := glm.Vec3{0.20, 0.35, 0.55}
	t := float32(0.5 + 0.5*math.Sin(float64(frame)/120.0))
	return night.Mul(1 - t).Add(day.Mul(t))
}

func main() {
	flag.Parse()
	configuration := configure()

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		log.Fatal(err)
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		log.Fatal(err)
	}
	defer sdl.VulkanUnloadLibrary()

	window, err := sdl.CreateWindow("Prism",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(configuration.Presenter.ScreenWidth),
		int32(configuration.Presenter.ScreenHeight),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		log.Fatal(err)
	}
	defer window.Destroy()

	dev, err := device.NewVulkan(device.DefaultApplicationInfo,
		sdl.VulkanGetVkGetInstanceProcAddr(),
		device.Configuration{
			DebugMode:  *debug,
			Extensions: window.VulkanGetInstanceExtensions(),
		})
	if err != nil {
		log.Fatal(err)
	}
	defer dev.Destroy()

	surfacePtr, err := window.VulkanCreateSurface(dev.Instance())
	if err != nil {
		log.Fatal(err)
	}
	surface := device.NewSurface(surfacePtr)

	if err := dev.Init(surface); err != nil {
		log.Fatal(err)
	}

	if info := dev.PhysicalDevicesInfo(); len(info) > 0 {
		log.WithFields(log.Fields{
			"name":   info[0].Name,
			"vendor": info[0].VendorID,
		}).Info("rendering device selected")
	}

	rasterCtx := raster.NewContext(dev)

	chain, err := core.NewSwapchain(dev, surface, rasterCtx, nil, dev.QueueFamilyIndex(), configuration.Presenter)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		chain.Destroy()
	}()

	log.WithFields(log.Fields{
		"images":      chain.ImageCount(),
		"backbuffers": configuration.Presenter.Backbuffers(),
		"extent":      chain.Extent(),
	}).Info("presentation chain ready")

	time := core.NewTime(configuration.Time)
	exitC := make(chan struct{}, 2)

	var frameCounter int64

EventLoop:
	for {
		select {
		case <-exitC:
			log.Info("event loop exited")
			break EventLoop
		case <-time.EventTicker().C:
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.KeyboardEvent:
					if et.Keysym.Sym == sdl.K_ESCAPE {
						exitC <- struct{}{}
						continue EventLoop
					}
				case *sdl.QuitEvent:
					exitC <- struct{}{}
					continue EventLoop
				}
			}
		case <-time.FpsTicker().C:
			frame, status := chain.AcquireFrame()
			switch status {
			case core.AcquireSuccess:
				color := clearColor(frameCounter)
				if target, ok := frame.Target().(*raster.Target); ok {
					if err := target.Clear(color.X(), color.Y(), color.Z(), 1); err != nil {
						log.WithError(err).Warn("clear failed, dropping the frame")
					}
				}
				if !frame.Submit() {
					log.Warn("present failed, recreating the chain")
					chain = recreate(chain, dev, surface, rasterCtx, configuration.Presenter)
				}
				frameCounter++
			case core.AcquireOutOfDate:
				chain = recreate(chain, dev, surface, rasterCtx, configuration.Presenter)
			case core.AcquireSurfaceLost:
				log.Error("surface lost, shutting down")
				exitC <- struct{}{}
			case core.AcquireInvalidState:
				log.Error("presentation chain in an invalid state")
				exitC <- struct{}{}
			}
		}
	}
}

// recreate builds the next chain generation, handing the old one off
// for an atomic replacement.
func recreate(old *core.Swapchain, dev *device.Vulkan, surface *device.Surface, rasterCtx *raster.Context, cfg core.PresenterConfiguration) *core.Swapchain {
	chain, err := core.NewSwapchain(dev, surface, rasterCtx, old, dev.QueueFamilyIndex(), cfg)
	if err != nil {
		log.Fatal(err)
	}
	return chain
}
