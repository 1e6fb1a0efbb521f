// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package mmio

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

var (
	ErrOutOfWindow    = errors.New("range outside of register window")
	ErrMapUnsupported = errors.New("mapping physical memory is not supported on this platform")
	ErrMisaligned     = errors.New("physical address is not 4-byte aligned")
)

// Window is a mapped register range. All accesses are 32-bit loads that the
// compiler can neither elide nor merge.
type Window struct {
	base unsafe.Pointer
	size uintptr

	// keeps Go-owned backing memory reachable
	words []uint32
}

// NewWindow wraps an already mapped register range.
//
// The caller guarantees that base is readable for size bytes for the rest of
// the process lifetime, and that no other window aliases the range for
// writes. base must be 4-byte aligned.
func NewWindow(base unsafe.Pointer, size uintptr) *Window {
	if base == nil {
		panic("mmio: nil window base")
	}
	if uintptr(base)&0x3 != 0 {
		panic(fmt.Sprintf("mmio: window base %#x is not 4-byte aligned", uintptr(base)))
	}
	return &Window{base: base, size: size}
}

// NewWindowFromWords backs a window by Go memory, for simulated devices. The
// slice must not be resized while the window is in use.
func NewWindowFromWords(words []uint32) *Window {
	if len(words) == 0 {
		return &Window{}
	}
	return &Window{
		base:  unsafe.Pointer(&words[0]),
		size:  uintptr(len(words)) * 4,
		words: words,
	}
}

func (w *Window) Size() uintptr {
	return w.size
}

func (w *Window) String() string {
	return fmt.Sprintf("window{%#x+%#x}", uintptr(w.base), w.size)
}

// ReadUint32 loads the word at the given byte offset. Misaligned or out of
// range offsets panic.
func (w *Window) ReadUint32(offset uintptr) uint32 {
	if offset&0x3 != 0 {
		panic(fmt.Sprintf("mmio: misaligned read at %#x", offset))
	}
	if offset >= w.size || w.size-offset < 4 {
		panic(fmt.Sprintf("mmio: read at %#x outside of %s", offset, w))
	}
	return atomic.LoadUint32((*uint32)(unsafe.Add(w.base, offset)))
}

// Sub narrows the window to [offset, offset+size).
func (w *Window) Sub(offset, size uintptr) (*Window, error) {
	if offset&0x3 != 0 {
		return nil, fmt.Errorf("%w: misaligned offset %#x", ErrOutOfWindow, offset)
	}
	if offset > w.size || size > w.size-offset {
		return nil, fmt.Errorf("%w: %#x+%#x exceeds %#x", ErrOutOfWindow, offset, size, w.size)
	}
	return &Window{
		base:  unsafe.Add(w.base, offset),
		size:  size,
		words: w.words,
	}, nil
}
