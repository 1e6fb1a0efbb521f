// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package pcitest provides simulated PCI configuration spaces.
package pcitest

import (
	"github.com/ironcore-dev/virtio-utils/mmioutils/mmio"
	"github.com/ironcore-dev/virtio-utils/pciutils/pci"
)

// ConfigSpace is a configuration window backed by Go memory. Every slot
// starts out absent.
type ConfigSpace struct {
	Cam   pci.Cam
	Words []uint32
}

func NewConfigSpace(cam pci.Cam, buses int) *ConfigSpace {
	words := make([]uint32, buses*32*8*int(cam.FunctionSize())/4)
	for i := range words {
		words[i] = 0xffffffff
	}
	return &ConfigSpace{Cam: cam, Words: words}
}

func (c *ConfigSpace) Root() pci.Root {
	return pci.NewRoot(mmio.NewWindowFromWords(c.Words), c.Cam)
}

func (c *ConfigSpace) index(df pci.DeviceFunction, register uint32) int {
	shift := 8
	if c.Cam == pci.Ecam {
		shift = 12
	}
	bdf := int(df.Bus)<<8 | int(df.Device)<<3 | int(df.Function)
	return (bdf<<shift | int(register)) / 4
}

// Set stores a configuration register.
func (c *ConfigSpace) Set(df pci.DeviceFunction, register uint32, value uint32) {
	c.Words[c.index(df, register)] = value
}

func (c *ConfigSpace) Get(df pci.DeviceFunction, register uint32) uint32 {
	return c.Words[c.index(df, register)]
}

// AddFunction makes a slot present with a zeroed header apart from the
// identification registers.
func (c *ConfigSpace) AddFunction(df pci.DeviceFunction, info pci.DeviceFunctionInfo) {
	base := c.index(df, 0)
	for i := 0; i < 16; i++ {
		c.Words[base+i] = 0
	}
	c.Set(df, 0x00, uint32(info.DeviceID)<<16|uint32(info.VendorID))
	c.Set(df, 0x08, uint32(info.Class)<<24|uint32(info.Subclass)<<16|uint32(info.ProgIf)<<8|uint32(info.Revision))
	c.Set(df, 0x0c, uint32(info.HeaderType)<<16)
}

// AddCapability links a capability of the given words into the capability
// list of a present slot. The first word carries the ID; the next pointer is
// filled in.
func (c *ConfigSpace) AddCapability(df pci.DeviceFunction, offset uint8, words ...uint32) {
	c.Set(df, 0x04, c.Get(df, 0x04)|1<<20)

	words[0] &^= 0xff00
	if head := uint8(c.Get(df, 0x34)); head == 0 {
		c.Set(df, 0x34, uint32(offset))
	} else {
		last := head
		for {
			next := uint8(c.Get(df, uint32(last)) >> 8)
			if next == 0 {
				break
			}
			last = next
		}
		c.Set(df, uint32(last), c.Get(df, uint32(last))|uint32(offset)<<8)
	}
	for i, w := range words {
		c.Set(df, uint32(offset)+uint32(i)*4, w)
	}
}
