// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package hal describes the platform services device drivers rely on.
package hal

import (
	"fmt"

	"github.com/ironcore-dev/virtio-utils/mmioutils/mmio"
)

type PhysAddr uint64

func (p PhysAddr) String() string {
	return fmt.Sprintf("%#x", uint64(p))
}

// Mapper makes physical register ranges accessible.
type Mapper interface {
	MapMMIO(paddr PhysAddr, size uint64) (*mmio.Window, error)
}

// HAL is handed to every device driver together with its transport.
type HAL interface {
	Mapper
	PageSize() int
}
