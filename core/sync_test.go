// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"testing"

	"github.com/devblok/prism/core"
)

func TestNewBackbufferAllOrNothing(t *testing.T) {
	device := newFakeDevice(2)
	device.failFenceAt = 1

	if _, err := core.NewBackbuffer(device); err == nil {
		t.Fatal("a failed fence creation did not fail the slot")
	}
	if device.liveFences != 0 || device.liveSemaphores != 0 || device.liveCommandBuffers != 0 {
		t.Errorf("leaked primitives after a failed creation: %d fences, %d semaphores, %d command buffers",
			device.liveFences, device.liveSemaphores, device.liveCommandBuffers)
	}

	device = newFakeDevice(2)
	device.failSemaphoreAt = 1

	if _, err := core.NewBackbuffer(device); err == nil {
		t.Fatal("a failed semaphore creation did not fail the slot")
	}
	if device.liveFences != 0 || device.liveSemaphores != 0 || device.liveCommandBuffers != 0 {
		t.Errorf("leaked primitives after a failed creation: %d fences, %d semaphores, %d command buffers",
			device.liveFences, device.liveSemaphores, device.liveCommandBuffers)
	}
}

func TestBackbufferRelease(t *testing.T) {
	device := newFakeDevice(2)

	backbuffer, err := core.NewBackbuffer(device)
	if err != nil {
		t.Fatal(err)
	}
	if !backbuffer.IsValid() {
		t.Fatal("a fresh slot reports invalid")
	}

	backbuffer.Release()
	if backbuffer.IsValid() {
		t.Error("a released slot reports valid")
	}
	if device.liveFences != 0 || device.liveSemaphores != 0 || device.liveCommandBuffers != 0 {
		t.Errorf("leaked primitives after release: %d fences, %d semaphores, %d command buffers",
			device.liveFences, device.liveSemaphores, device.liveCommandBuffers)
	}
}

func TestBackbufferPoolRoundRobin(t *testing.T) {
	device := newFakeDevice(2)

	pool, err := core.NewBackbufferPool(device, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Release()

	if pool.Size() != 3 {
		t.Fatalf("expected 3 slots, got %d", pool.Size())
	}

	// Next proposes without advancing.
	proposed, index := pool.Next()
	if proposed == nil || index != 1 {
		t.Fatalf("expected slot 1 proposed, got %d", index)
	}
	if pool.CurrentIndex() != 0 {
		t.Error("a proposal advanced the round-robin")
	}

	again, index := pool.Next()
	if again != proposed || index != 1 {
		t.Error("a repeated proposal moved to another slot")
	}

	pool.Commit(index)
	if pool.CurrentIndex() != 1 || pool.Current() != proposed {
		t.Error("commit did not advance to the proposed slot")
	}

	// A full cycle wraps back around.
	for _, want := range []int{2, 0, 1} {
		_, index := pool.Next()
		if index != want {
			t.Fatalf("expected slot %d proposed, got %d", want, index)
		}
		pool.Commit(index)
	}
}

func TestBackbufferPoolRejectsEmpty(t *testing.T) {
	if _, err := core.NewBackbufferPool(newFakeDevice(2), 0); err == nil {
		t.Error("an empty pool was accepted")
	}
}

func TestBackbufferPoolCreationRollsBack(t *testing.T) {
	device := newFakeDevice(2)
	device.failFenceAt = 3

	if _, err := core.NewBackbufferPool(device, 2); err == nil {
		t.Fatal("a failed slot creation did not fail the pool")
	}
	if device.liveFences != 0 || device.liveSemaphores != 0 || device.liveCommandBuffers != 0 {
		t.Errorf("leaked primitives after a failed pool creation: %d fences, %d semaphores, %d command buffers",
			device.liveFences, device.liveSemaphores, device.liveCommandBuffers)
	}
}
