// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package pci

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/prometheus/procfs/sysfs"
)

type reader struct {
	log logr.Logger
	fs  sysfs.FS

	vendorFilter Vendor
}

func NewReader(log logr.Logger, vendorFilter Vendor) (*reader, error) {
	fs, err := sysfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("failed to open sysfs: %w", err)
	}

	return &reader{
		log:          log,
		fs:           fs,
		vendorFilter: vendorFilter,
	}, nil
}

func NewReaderWithMount(log logr.Logger, mountPoint string, vendorFilter Vendor) (*reader, error) {
	fs, err := sysfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("failed to open sysfs: %w", err)
	}

	return &reader{
		log:          log,
		fs:           fs,
		vendorFilter: vendorFilter,
	}, nil
}

func (r *reader) Read() ([]Function, error) {
	devices, err := r.fs.PciDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to read pci devices: %w", err)
	}

	var functions []Function
	for _, device := range devices {
		if r.vendorFilter != VendorAny && device.Vendor != uint32(r.vendorFilter) {
			r.log.V(3).Info(
				"Skipping device, vendor not matching",
				"device", device.Name(), "expected vendor",
				r.vendorFilter, "found vendor", device.Vendor,
			)
			continue
		}

		class, subclass := uint8(device.Class>>16), uint8(device.Class>>8)
		f := Function{
			Segment: int(device.Location.Segment),
			DeviceFunction: DeviceFunction{
				Bus:      uint8(device.Location.Bus),
				Device:   uint8(device.Location.Device),
				Function: uint8(device.Location.Function),
			},
			DeviceFunctionInfo: DeviceFunctionInfo{
				VendorID:   uint16(device.Vendor),
				DeviceID:   uint16(device.Device),
				Class:      class,
				Subclass:   subclass,
				ProgIf:     uint8(device.Class),
				Revision:   uint8(device.Revision),
				HeaderType: headerTypeForClass(class, subclass),
			},
		}
		r.log.V(1).Info("Found pci device", "device", device.Name(), "info", f.DeviceFunctionInfo)
		functions = append(functions, f)
	}

	sortFunctions(functions)
	return functions, nil
}
