// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package pci

import (
	"iter"
)

const (
	invalidRead = 0xffffffff

	maxDevices   = 32
	maxFunctions = 8
)

// BusDeviceIterator walks the device functions of one bus in slot order. It
// is forward only; a new iterator from EnumerateBus re-reads the hardware.
type BusDeviceIterator struct {
	root Root
	next DeviceFunction
}

// EnumerateBus returns an iterator over the present device functions on bus.
func (r Root) EnumerateBus(bus uint8) *BusDeviceIterator {
	return &BusDeviceIterator{
		root: r,
		next: DeviceFunction{Bus: bus},
	}
}

// Next returns the next present device function. ok is false once all 32
// devices have been scanned.
func (it *BusDeviceIterator) Next() (df DeviceFunction, info DeviceFunctionInfo, ok bool) {
	for it.next.Device < maxDevices {
		current := it.next

		deviceVendor := it.root.ReadWord(current, 0)

		it.next.Function++
		if it.next.Function >= maxFunctions {
			it.next.Function = 0
			it.next.Device++
		}

		if deviceVendor == invalidRead {
			continue
		}

		classRevision := it.root.ReadWord(current, 8)
		bistTypeLatencyCache := it.root.ReadWord(current, 12)
		return current, DeviceFunctionInfo{
			VendorID:   uint16(deviceVendor),
			DeviceID:   uint16(deviceVendor >> 16),
			Class:      uint8(classRevision >> 24),
			Subclass:   uint8(classRevision >> 16),
			ProgIf:     uint8(classRevision >> 8),
			Revision:   uint8(classRevision),
			HeaderType: HeaderTypeFromByte(uint8(bistTypeLatencyCache >> 16)),
		}, true
	}
	return DeviceFunction{}, DeviceFunctionInfo{}, false
}

// All drains the iterator.
func (it *BusDeviceIterator) All() iter.Seq2[DeviceFunction, DeviceFunctionInfo] {
	return func(yield func(DeviceFunction, DeviceFunctionInfo) bool) {
		for {
			df, info, ok := it.Next()
			if !ok || !yield(df, info) {
				return
			}
		}
	}
}
