// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package mmiotransport implements the probing side of the virtio-mmio transport.
package mmiotransport

import (
	"errors"
	"fmt"

	"github.com/ironcore-dev/virtio-utils/halutils/hal"
	"github.com/ironcore-dev/virtio-utils/mmioutils/mmio"
	"github.com/ironcore-dev/virtio-utils/virtioutils/transport"
)

var (
	ErrWindowTooSmall     = errors.New("window too small for a virtio-mmio header")
	ErrBadMagic           = errors.New("bad virtio-mmio magic value")
	ErrUnsupportedVersion = errors.New("unsupported virtio-mmio version")
	ErrZeroDeviceID       = errors.New("virtio-mmio device id is zero")
)

const MagicValue = 0x74726976 // "virt"

// register offsets
const (
	regMagicValue        = 0x000
	regVersion           = 0x004
	regDeviceID          = 0x008
	regVendorID          = 0x00c
	regDeviceConfigStart = 0x100
)

type Transport struct {
	window     *mmio.Window
	version    transport.Version
	deviceType transport.DeviceType
	vendorID   uint32
}

// New validates the virtio-mmio header at the start of window.
func New(window *mmio.Window) (*Transport, error) {
	if window.Size() < regDeviceConfigStart {
		return nil, fmt.Errorf("%w: %#x bytes", ErrWindowTooSmall, window.Size())
	}

	if magic := window.ReadUint32(regMagicValue); magic != MagicValue {
		return nil, fmt.Errorf("%w: %#x", ErrBadMagic, magic)
	}

	version := transport.Version(window.ReadUint32(regVersion))
	if version != transport.VersionLegacy && version != transport.VersionModern {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, uint32(version))
	}

	deviceType := transport.DeviceType(window.ReadUint32(regDeviceID))
	if deviceType == transport.DeviceTypeInvalid {
		return nil, ErrZeroDeviceID
	}

	return &Transport{
		window:     window,
		version:    version,
		deviceType: deviceType,
		vendorID:   window.ReadUint32(regVendorID),
	}, nil
}

func (t *Transport) DeviceType() transport.DeviceType { return t.deviceType }
func (t *Transport) VendorID() uint32                 { return t.vendorID }
func (t *Transport) Version() transport.Version       { return t.version }

// ConfigSpace returns the registers past the common header. No mapping is
// needed, they share the transport's window.
func (t *Transport) ConfigSpace(_ hal.Mapper) (*mmio.Window, error) {
	return t.window.Sub(regDeviceConfigStart, t.window.Size()-regDeviceConfigStart)
}

func (t *Transport) String() string {
	return fmt.Sprintf("virtio-mmio %s %s", t.deviceType, t.window)
}
