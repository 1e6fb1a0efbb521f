// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package hal

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/ironcore-dev/virtio-utils/mmioutils/mmio"
)

const DefaultMemoryDevice = "/dev/mem"

type mapping struct {
	paddr  PhysAddr
	size   uint64
	window *mmio.Window
	unmap  func() error
}

// DevMem maps physical ranges out of a memory device file. Mappings live
// until Close.
type DevMem struct {
	log      logr.Logger
	path     string
	mappings []mapping
}

func NewDevMem(log logr.Logger, path string) *DevMem {
	if path == "" {
		path = DefaultMemoryDevice
	}
	return &DevMem{log: log, path: path}
}

func (d *DevMem) PageSize() int {
	return os.Getpagesize()
}

func (d *DevMem) MapMMIO(paddr PhysAddr, size uint64) (*mmio.Window, error) {
	for _, m := range d.mappings {
		if paddr >= m.paddr && uint64(paddr-m.paddr)+size <= m.size {
			return m.window.Sub(uintptr(paddr-m.paddr), uintptr(size))
		}
	}

	w, unmap, err := mmio.Map(d.path, uint64(paddr), size)
	if err != nil {
		return nil, fmt.Errorf("failed to map %s+%#x: %w", paddr, size, err)
	}
	d.log.V(2).Info("Mapped physical range", "paddr", paddr, "size", size, "device", d.path)
	d.mappings = append(d.mappings, mapping{paddr: paddr, size: size, window: w, unmap: unmap})
	return w, nil
}

func (d *DevMem) Close() error {
	var errs []error
	for _, m := range d.mappings {
		if err := m.unmap(); err != nil {
			errs = append(errs, fmt.Errorf("failed to unmap %s: %w", m.paddr, err))
		}
	}
	d.mappings = nil
	return errors.Join(errs...)
}
