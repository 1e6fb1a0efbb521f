// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package mmio

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Map maps [paddr, paddr+size) of the memory device at path, e.g. /dev/mem or
// a file backing guest RAM. The returned function unmaps the range; the
// window must not be used afterwards.
func Map(path string, paddr, size uint64) (*Window, func() error, error) {
	if paddr&3 != 0 {
		return nil, nil, fmt.Errorf("%w: %#x", ErrMisaligned, paddr)
	}

	pageSize := uint64(os.Getpagesize())
	start := paddr &^ (pageSize - 1)
	length := (paddr - start + size + pageSize - 1) &^ (pageSize - 1)

	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_SYNC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	data, err := unix.Mmap(int(f.Fd()), int64(start), int(length), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to map %#x+%#x from %s: %w", paddr, size, path, err)
	}

	w := NewWindow(unsafe.Pointer(&data[paddr-start]), uintptr(size))
	return w, func() error { return unix.Munmap(data) }, nil
}
