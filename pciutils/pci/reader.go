// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package pci

import (
	"cmp"
	"fmt"
	"slices"
)

type Vendor uint32

var (
	// VendorAny disables vendor filtering.
	VendorAny Vendor = 0

	VendorVirtio Vendor = 0x1af4
)

// Function is a device function as seen by the host kernel.
type Function struct {
	Segment int
	DeviceFunction
	DeviceFunctionInfo
}

func (f Function) String() string {
	return fmt.Sprintf("%04x:%s %s", f.Segment, f.DeviceFunction, f.DeviceFunctionInfo)
}

// Reader lists the device functions known to the host.
type Reader interface {
	Read() ([]Function, error)
}

// headerTypeForClass guesses the header layout from the class code, for
// sources that do not expose the raw header.
func headerTypeForClass(class, subclass uint8) HeaderType {
	if class != 0x06 {
		return HeaderTypeStandard
	}
	switch subclass {
	case 0x04:
		return HeaderTypePciPciBridge
	case 0x07:
		return HeaderTypePciCardbusBridge
	default:
		return HeaderTypeStandard
	}
}

func sortFunctions(functions []Function) {
	slices.SortFunc(functions, func(a, b Function) int {
		return cmp.Or(
			cmp.Compare(a.Segment, b.Segment),
			cmp.Compare(a.Bus, b.Bus),
			cmp.Compare(a.Device, b.Device),
			cmp.Compare(a.Function, b.Function),
		)
	})
}
