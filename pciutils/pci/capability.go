// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package pci

import (
	"iter"
)

const (
	statusCommandOffset     = 0x04
	capabilityPointerOffset = 0x34
	statusCapabilitiesList  = 1 << 4
	maxCapabilityIterations = 48
	firstCapabilityOffset   = 0x40
)

// CapabilityIDVendorSpecific is the capability ID used by virtio.
const CapabilityIDVendorSpecific = 0x09

// Capability is an entry of the standard capability list.
type Capability struct {
	Offset uint8
	ID     uint8
	Next   uint8
	// Word is the first 32 bits of the capability, header included.
	Word uint32
}

// Capabilities walks the capability list of a device function.
func (r Root) Capabilities(df DeviceFunction) iter.Seq[Capability] {
	return func(yield func(Capability) bool) {
		status := r.ReadWord(df, statusCommandOffset) >> 16
		if status&statusCapabilitiesList == 0 {
			return
		}

		offset := uint8(r.ReadWord(df, capabilityPointerOffset)) &^ 0x3
		for i := 0; i < maxCapabilityIterations && offset >= firstCapabilityOffset; i++ {
			word := r.ReadWord(df, uint32(offset))
			c := Capability{
				Offset: offset,
				ID:     uint8(word),
				Next:   uint8(word>>8) &^ 0x3,
				Word:   word,
			}
			if !yield(c) {
				return
			}
			offset = c.Next
		}
	}
}
