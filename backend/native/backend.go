// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/framesync"
	"github.com/gogpu/framesync/backend"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// init registers the HAL backend on package import.
func init() {
	backend.Register(backend.BackendNative, func() backend.Backend {
		return &Backend{}
	})
}

// Backend is a backend.Backend that opens a standalone HAL device: the
// registered Vulkan backend when present, the headless noop API otherwise.
// Applications with a window pass their own device through New or
// NewFromProvider instead.
type Backend struct {
	instance hal.Instance
	device   hal.Device
	dev      *Device
	owned    []*Texture
	surfaces []*OffscreenSurface
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return backend.BackendNative }

// createInstance prefers a registered Vulkan backend.
func createInstance() (hal.Instance, error) {
	if vk, ok := hal.GetBackend(gputypes.BackendVulkan); ok {
		instance, err := vk.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
		if err == nil {
			return instance, nil
		}
		framesync.Logger().Warn("native: vulkan unavailable, using noop", "err", err)
	}
	api := noop.API{}
	return api.CreateInstance(nil)
}

// Init opens the device, preferring a discrete or integrated GPU.
func (b *Backend) Init() error {
	if b.dev != nil {
		return nil
	}
	instance, err := createInstance()
	if err != nil {
		return errors.Wrap(err, "native: create instance")
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return errors.Wrap(backend.ErrBackendNotAvailable, "native: no adapters")
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return errors.Wrap(err, "native: open device")
	}
	dev, err := New(openDev.Device, openDev.Queue)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return err
	}
	b.instance = instance
	b.device = openDev.Device
	b.dev = dev
	framesync.Logger().Info("native: device opened", "adapter", selected.Info.Name)
	return nil
}

// Close destroys the textures the backend created and the device.
func (b *Backend) Close() {
	if b.dev == nil {
		return
	}
	for _, s := range b.surfaces {
		s.Destroy()
	}
	for _, t := range b.owned {
		b.dev.DestroyTexture(t)
	}
	b.surfaces, b.owned = nil, nil
	b.device.Destroy()
	b.instance.Destroy()
	b.dev, b.device, b.instance = nil, nil, nil
}

// Device returns the HAL-backed device, or nil before Init.
func (b *Backend) Device() framesync.Device {
	if b.dev == nil {
		return nil
	}
	return b.dev
}

// NewSurface creates an offscreen surface.
func (b *Backend) NewSurface(images int, width, height uint32) (framesync.Surface, error) {
	if b.dev == nil {
		return nil, backend.ErrNotInitialized
	}
	s, err := b.dev.NewOffscreenSurface(images, width, height)
	if err != nil {
		return nil, err
	}
	b.surfaces = append(b.surfaces, s)
	return s, nil
}

// NewDepthBuffer creates a Depth24PlusStencil8 texture.
func (b *Backend) NewDepthBuffer(width, height uint32) (framesync.NativeHandle, error) {
	if b.dev == nil {
		return nil, backend.ErrNotInitialized
	}
	t, err := b.dev.CreateTexture("depth", width, height, gputypes.TextureFormatDepth24PlusStencil8)
	if err != nil {
		return nil, err
	}
	b.owned = append(b.owned, t)
	return t, nil
}
