// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package pcitransport implements the probing side of the virtio PCI
// transport: device identification and the location of its configuration
// structures.
package pcitransport

import (
	"errors"
	"fmt"

	"github.com/ironcore-dev/virtio-utils/halutils/hal"
	"github.com/ironcore-dev/virtio-utils/mmioutils/mmio"
	"github.com/ironcore-dev/virtio-utils/pciutils/pci"
	"github.com/ironcore-dev/virtio-utils/virtioutils/transport"
)

var (
	ErrWrongVendor         = errors.New("not a virtio vendor id")
	ErrInvalidDeviceType   = errors.New("no virtio device type for device id")
	ErrMissingCommonConfig = errors.New("missing common configuration capability")
	ErrMissingNotifyConfig = errors.New("missing notify configuration capability")
	ErrMissingISRConfig    = errors.New("missing ISR configuration capability")
	ErrMissingDeviceConfig = errors.New("missing device configuration capability")
	ErrBadBar              = errors.New("unusable base address register")
	ErrBadCapability       = errors.New("capability exceeds configuration space")
)

const VendorID = 0x1af4

const (
	transitionalDeviceIDStart = 0x1000
	transitionalDeviceIDEnd   = 0x103f
	modernDeviceIDStart       = 0x1040
	modernDeviceIDEnd         = 0x107f

	subsystemOffset = 0x2c
	barOffset       = 0x10
	barCount        = 6
)

// virtio_pci_cap cfg_type values
const (
	capCommonCfg = 1
	capNotifyCfg = 2
	capISRCfg    = 3
	capDeviceCfg = 4

	// virtio_pci_cap, plus notify_off_multiplier for notify
	capLength       = 16
	notifyCapLength = 20
)

var transitionalDeviceTypes = map[uint16]transport.DeviceType{
	0x1000: transport.DeviceTypeNetwork,
	0x1001: transport.DeviceTypeBlock,
	0x1002: transport.DeviceTypeMemoryBalloon,
	0x1003: transport.DeviceTypeConsole,
	0x1004: transport.DeviceTypeScsiHost,
	0x1005: transport.DeviceTypeEntropySource,
	0x1009: transport.DeviceType9P,
}

// DeviceType derives the virtio device type from a PCI header. ok is false
// for functions that are not virtio devices.
func DeviceType(info pci.DeviceFunctionInfo) (transport.DeviceType, bool) {
	if info.VendorID != VendorID {
		return transport.DeviceTypeInvalid, false
	}
	switch id := info.DeviceID; {
	case id >= transitionalDeviceIDStart && id <= transitionalDeviceIDEnd:
		t, ok := transitionalDeviceTypes[id]
		return t, ok
	case id >= modernDeviceIDStart && id <= modernDeviceIDEnd:
		t := transport.DeviceType(id - modernDeviceIDStart)
		return t, t != transport.DeviceTypeInvalid
	default:
		return transport.DeviceTypeInvalid, false
	}
}

// Region locates a configuration structure inside a BAR.
type Region struct {
	Bar    uint8
	Offset uint32
	Length uint32
}

type Transport struct {
	root       pci.Root
	df         pci.DeviceFunction
	deviceType transport.DeviceType
	vendorID   uint32

	Common              Region
	Notify              Region
	NotifyOffMultiplier uint32
	ISR                 Region
	Device              *Region
}

// New identifies the virtio device at df and locates its configuration
// structures. Nothing is written to the function.
func New(root pci.Root, df pci.DeviceFunction, info pci.DeviceFunctionInfo) (*Transport, error) {
	if info.VendorID != VendorID {
		return nil, fmt.Errorf("%w: %#04x", ErrWrongVendor, info.VendorID)
	}
	deviceType, ok := DeviceType(info)
	if !ok {
		return nil, fmt.Errorf("%w %#04x", ErrInvalidDeviceType, info.DeviceID)
	}
	if info.HeaderType != pci.HeaderTypeStandard {
		return nil, fmt.Errorf("%w: header type %s", ErrBadBar, info.HeaderType)
	}

	t := &Transport{
		root:       root,
		df:         df,
		deviceType: deviceType,
		vendorID:   root.ReadWord(df, subsystemOffset) & 0xffff,
	}

	var common, notify, isr bool
	for c := range root.Capabilities(df) {
		if c.ID != pci.CapabilityIDVendorSpecific {
			continue
		}
		cfgType := uint8(c.Word >> 24)
		capLen := uint32(capLength)
		if cfgType == capNotifyCfg {
			capLen = notifyCapLength
		}
		if end := uint32(c.Offset) + capLen; end > root.Cam().FunctionSize() {
			return nil, fmt.Errorf("%w: cfg_type %d at %#02x ends at %#x", ErrBadCapability, cfgType, c.Offset, end)
		}
		region, ok := t.readRegion(c)
		if !ok {
			continue
		}
		switch {
		case cfgType == capCommonCfg && !common:
			t.Common, common = region, true
		case cfgType == capNotifyCfg && !notify:
			t.Notify, notify = region, true
			t.NotifyOffMultiplier = root.ReadWord(df, uint32(c.Offset)+16)
		case cfgType == capISRCfg && !isr:
			t.ISR, isr = region, true
		case cfgType == capDeviceCfg && t.Device == nil:
			t.Device = &region
		}
	}

	switch {
	case !common:
		return nil, ErrMissingCommonConfig
	case !notify:
		return nil, ErrMissingNotifyConfig
	case !isr:
		return nil, ErrMissingISRConfig
	}
	return t, nil
}

func (t *Transport) readRegion(c pci.Capability) (Region, bool) {
	bar := uint8(t.root.ReadWord(t.df, uint32(c.Offset)+4))
	if bar >= barCount {
		return Region{}, false
	}
	return Region{
		Bar:    bar,
		Offset: t.root.ReadWord(t.df, uint32(c.Offset)+8),
		Length: t.root.ReadWord(t.df, uint32(c.Offset)+12),
	}, true
}

func (t *Transport) DeviceType() transport.DeviceType { return t.deviceType }
func (t *Transport) VendorID() uint32                 { return t.vendorID }
func (t *Transport) Version() transport.Version       { return transport.VersionModern }

func (t *Transport) DeviceFunction() pci.DeviceFunction { return t.df }

// BarAddress reads the address a BAR is assigned to.
func (t *Transport) BarAddress(bar uint8) (hal.PhysAddr, error) {
	if bar >= barCount {
		return 0, fmt.Errorf("%w: index %d", ErrBadBar, bar)
	}
	lo := t.root.ReadWord(t.df, barOffset+uint32(bar)*4)
	if lo&0x1 != 0 {
		return 0, fmt.Errorf("%w: BAR%d is an I/O BAR", ErrBadBar, bar)
	}

	addr := uint64(lo &^ 0xf)
	if (lo>>1)&0x3 == 0x2 {
		if bar+1 >= barCount {
			return 0, fmt.Errorf("%w: 64-bit BAR%d has no upper half", ErrBadBar, bar)
		}
		addr |= uint64(t.root.ReadWord(t.df, barOffset+uint32(bar+1)*4)) << 32
	}
	if addr == 0 {
		return 0, fmt.Errorf("%w: BAR%d is not assigned", ErrBadBar, bar)
	}
	return hal.PhysAddr(addr), nil
}

// ConfigSpace maps the device-specific configuration structure.
func (t *Transport) ConfigSpace(m hal.Mapper) (*mmio.Window, error) {
	if t.Device == nil {
		return nil, ErrMissingDeviceConfig
	}
	base, err := t.BarAddress(t.Device.Bar)
	if err != nil {
		return nil, err
	}
	return m.MapMMIO(base+hal.PhysAddr(t.Device.Offset), uint64(t.Device.Length))
}

func (t *Transport) String() string {
	return fmt.Sprintf("virtio-pci %s %s", t.deviceType, t.df)
}
