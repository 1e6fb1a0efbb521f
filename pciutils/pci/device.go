// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package pci

import (
	"fmt"
)

// DeviceFunction identifies a bus/device/function slot.
type DeviceFunction struct {
	// Bus is between 0 and 255.
	Bus uint8
	// Device is between 0 and 31.
	Device uint8
	// Function is between 0 and 7.
	Function uint8
}

func (df DeviceFunction) String() string {
	return fmt.Sprintf("%02x:%02x.%d", df.Bus, df.Device, df.Function)
}

// DeviceFunctionInfo is a snapshot of the header of a present device function.
type DeviceFunctionInfo struct {
	VendorID   uint16
	DeviceID   uint16
	Class      uint8
	Subclass   uint8
	ProgIf     uint8
	Revision   uint8
	HeaderType HeaderType
}

func (i DeviceFunctionInfo) String() string {
	return fmt.Sprintf("%04x:%04x (class %02x.%02x, rev %02x) %s",
		i.VendorID, i.DeviceID, i.Class, i.Subclass, i.Revision, i.HeaderType)
}

// HeaderType is the layout of a device function header. Values other than
// the three known layouts are kept as is.
type HeaderType uint8

const (
	HeaderTypeStandard HeaderType = iota
	HeaderTypePciPciBridge
	HeaderTypePciCardbusBridge
)

// HeaderTypeFromByte decodes the header type register. Bit 7 flags a
// multi-function device and does not take part in the layout.
func HeaderTypeFromByte(b uint8) HeaderType {
	return HeaderType(b & 0x7f)
}

func (h HeaderType) Unrecognised() bool {
	return h > HeaderTypePciCardbusBridge
}

func (h HeaderType) String() string {
	switch h {
	case HeaderTypeStandard:
		return "Standard"
	case HeaderTypePciPciBridge:
		return "PciPciBridge"
	case HeaderTypePciCardbusBridge:
		return "PciCardbusBridge"
	default:
		return fmt.Sprintf("Unrecognised(%#02x)", uint8(h))
	}
}
