// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package transport holds the contract between virtio transports, the
// discovery paths producing them and the dispatcher consuming them.
package transport

import (
	"fmt"

	"github.com/ironcore-dev/virtio-utils/halutils/hal"
	"github.com/ironcore-dev/virtio-utils/mmioutils/mmio"
)

// DeviceType is the virtio device ID a transport reports.
type DeviceType uint32

const (
	DeviceTypeInvalid       DeviceType = 0
	DeviceTypeNetwork       DeviceType = 1
	DeviceTypeBlock         DeviceType = 2
	DeviceTypeConsole       DeviceType = 3
	DeviceTypeEntropySource DeviceType = 4
	DeviceTypeMemoryBalloon DeviceType = 5
	DeviceTypeScsiHost      DeviceType = 8
	DeviceType9P            DeviceType = 9
	DeviceTypeGPU           DeviceType = 16
	DeviceTypeInput         DeviceType = 18
	DeviceTypeSocket        DeviceType = 19
	DeviceTypeCrypto        DeviceType = 20
	DeviceTypeIOMMU         DeviceType = 23
	DeviceTypeMemory        DeviceType = 24
	DeviceTypeSound         DeviceType = 25
)

var deviceTypeNames = map[DeviceType]string{
	DeviceTypeInvalid:       "Invalid",
	DeviceTypeNetwork:       "Network",
	DeviceTypeBlock:         "Block",
	DeviceTypeConsole:       "Console",
	DeviceTypeEntropySource: "EntropySource",
	DeviceTypeMemoryBalloon: "MemoryBalloon",
	DeviceTypeScsiHost:      "ScsiHost",
	DeviceType9P:            "9P",
	DeviceTypeGPU:           "GPU",
	DeviceTypeInput:         "Input",
	DeviceTypeSocket:        "Socket",
	DeviceTypeCrypto:        "Crypto",
	DeviceTypeIOMMU:         "IOMMU",
	DeviceTypeMemory:        "Memory",
	DeviceTypeSound:         "Sound",
}

func (t DeviceType) String() string {
	if name, ok := deviceTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Other(%d)", uint32(t))
}

// Version is the virtio transport revision.
type Version uint32

const (
	VersionLegacy Version = 1
	VersionModern Version = 2
)

func (v Version) String() string {
	switch v {
	case VersionLegacy:
		return "Legacy"
	case VersionModern:
		return "Modern"
	default:
		return fmt.Sprintf("Version(%d)", uint32(v))
	}
}

// Transport is a negotiated path to one virtio device.
type Transport interface {
	DeviceType() DeviceType
	VendorID() uint32
	Version() Version
	// ConfigSpace returns the device-specific configuration registers.
	ConfigSpace(m hal.Mapper) (*mmio.Window, error)
	String() string
}

// Consumer takes ownership of transports found by a discovery path.
type Consumer interface {
	Consume(t Transport) error
}

// ConsumerFunc adapts a function to a Consumer.
type ConsumerFunc func(t Transport) error

func (f ConsumerFunc) Consume(t Transport) error {
	return f(t)
}
