// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package pci

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ironcore-dev/virtio-utils/mmioutils/mmio"
)

var ErrInvalidAddress = errors.New("invalid configuration space address")

// Cam is a PCI configuration access mechanism.
type Cam int

const (
	// MmioCam is the PCI memory-mapped CAM, 256 bytes of configuration space
	// per device function.
	MmioCam Cam = iota
	// Ecam is the PCIe enhanced CAM, 4 KiB of configuration space per device
	// function.
	Ecam
)

const (
	mmioCamWindowSize = 0x1000000
	ecamWindowSize    = 0x10000000
)

func (c Cam) String() string {
	switch c {
	case MmioCam:
		return "mmio-cam"
	case Ecam:
		return "ecam"
	default:
		return fmt.Sprintf("Cam(%d)", int(c))
	}
}

func ParseCam(s string) (Cam, error) {
	switch strings.ToLower(s) {
	case "mmio-cam", "mmiocam", "cam":
		return MmioCam, nil
	case "ecam":
		return Ecam, nil
	default:
		return 0, fmt.Errorf("unknown configuration access mechanism %q", s)
	}
}

// WindowSize is the size of the configuration window covering all 256 buses.
func (c Cam) WindowSize() uint32 {
	if c == Ecam {
		return ecamWindowSize
	}
	return mmioCamWindowSize
}

// FunctionSize is the configuration space available to one device function.
func (c Cam) FunctionSize() uint32 {
	if c == Ecam {
		return 0x1000
	}
	return 0x100
}

func (c Cam) functionShift() uint {
	if c == Ecam {
		return 12
	}
	return 8
}

// Root is the root complex of a PCI bus, reached through a mapped
// configuration window. It only ever reads from the window.
type Root struct {
	window *mmio.Window
	cam    Cam
}

// NewRoot wraps the configuration window of a root complex. The window may
// be smaller than the full CAM range, in which case only the buses it covers
// are reachable.
func NewRoot(window *mmio.Window, cam Cam) Root {
	if window == nil {
		panic("pci: nil configuration window")
	}
	return Root{window: window, cam: cam}
}

func (r Root) Cam() Cam {
	return r.cam
}

// Buses returns how many buses the configuration window covers.
func (r Root) Buses() int {
	perBus := uintptr(r.cam.FunctionSize()) * maxDevices * maxFunctions
	n := r.window.Size() / perBus
	if n > 256 {
		n = 256
	}
	return int(n)
}

// ConfigOffset translates a register of a device function into a byte offset
// into the configuration window.
func (r Root) ConfigOffset(df DeviceFunction, registerOffset uint32) (uint32, error) {
	bdf := uint32(df.Bus)<<8 | uint32(df.Device)<<3 | uint32(df.Function)
	address := bdf<<r.cam.functionShift() | registerOffset
	if address >= r.cam.WindowSize() {
		return 0, fmt.Errorf("%w: %#x outside of %s window", ErrInvalidAddress, address, r.cam)
	}
	if registerOffset >= r.cam.FunctionSize() {
		return 0, fmt.Errorf("%w: register %#x exceeds %s function space of %s", ErrInvalidAddress, registerOffset, r.cam, df)
	}
	if address&0x3 != 0 {
		return 0, fmt.Errorf("%w: %#x is not word aligned", ErrInvalidAddress, address)
	}
	return address, nil
}

// ReadWord reads 4 bytes from the configuration space of a device function.
// An invalid address is a programming error and panics.
func (r Root) ReadWord(df DeviceFunction, registerOffset uint32) uint32 {
	address, err := r.ConfigOffset(df, registerOffset)
	if err != nil {
		panic(err)
	}
	return r.window.ReadUint32(uintptr(address))
}
