// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package fdttest builds flattened device tree blobs for tests.
package fdttest

import (
	"encoding/binary"
	"slices"
	"strconv"
)

const (
	tokenBeginNode = 0x1
	tokenEndNode   = 0x2
	tokenProp      = 0x3
	tokenEnd       = 0x9

	magic         = 0xd00dfeed
	headerSize    = 40
	reserveMapLen = 16
)

type Builder struct {
	structure []byte
	strings   []byte
	offsets   map[string]uint32
}

func NewBuilder() *Builder {
	return &Builder{offsets: map[string]uint32{}}
}

func (b *Builder) cell(v uint32) {
	b.structure = binary.BigEndian.AppendUint32(b.structure, v)
}

func (b *Builder) pad() {
	for len(b.structure)%4 != 0 {
		b.structure = append(b.structure, 0)
	}
}

// BeginNode opens a node. The root node has an empty name.
func (b *Builder) BeginNode(name string) *Builder {
	b.cell(tokenBeginNode)
	b.structure = append(b.structure, name...)
	b.structure = append(b.structure, 0)
	b.pad()
	return b
}

func (b *Builder) EndNode() *Builder {
	b.cell(tokenEndNode)
	return b
}

func (b *Builder) Property(name string, value []byte) *Builder {
	off, ok := b.offsets[name]
	if !ok {
		off = uint32(len(b.strings))
		b.offsets[name] = off
		b.strings = append(b.strings, name...)
		b.strings = append(b.strings, 0)
	}
	b.cell(tokenProp)
	b.cell(uint32(len(value)))
	b.cell(off)
	b.structure = append(b.structure, value...)
	b.pad()
	return b
}

// Strings adds a string list property such as compatible.
func (b *Builder) Strings(name string, values ...string) *Builder {
	var value []byte
	for _, v := range values {
		value = append(value, v...)
		value = append(value, 0)
	}
	return b.Property(name, value)
}

// Cells adds a property of big-endian 32-bit cells.
func (b *Builder) Cells(name string, cells ...uint32) *Builder {
	var value []byte
	for _, c := range cells {
		value = binary.BigEndian.AppendUint32(value, c)
	}
	return b.Property(name, value)
}

// Bytes returns the finished blob: header, empty reservation map, structure
// block and strings block.
func (b *Builder) Bytes() []byte {
	structure := binary.BigEndian.AppendUint32(slices.Clone(b.structure), tokenEnd)
	offStruct := uint32(headerSize + reserveMapLen)
	offStrings := offStruct + uint32(len(structure))
	total := offStrings + uint32(len(b.strings))

	blob := make([]byte, 0, total)
	for _, v := range []uint32{
		magic,
		total,
		offStruct,
		offStrings,
		headerSize,
		17,
		16,
		0,
		uint32(len(b.strings)),
		uint32(len(structure)),
	} {
		blob = binary.BigEndian.AppendUint32(blob, v)
	}
	blob = append(blob, make([]byte, reserveMapLen)...)
	blob = append(blob, structure...)
	blob = append(blob, b.strings...)
	return blob
}

// VirtioMMIO describes one virtio,mmio node under a simple-bus.
type VirtioMMIO struct {
	Address uint64
	Size    uint64
}

// QEMUVirt builds a tree shaped like the QEMU virt machine: two address and
// size cells at the root, an ECAM host bridge and the given virtio nodes.
func QEMUVirt(ecamBase, ecamSize uint64, nodes ...VirtioMMIO) []byte {
	b := NewBuilder().
		BeginNode("").
		Cells("#address-cells", 2).
		Cells("#size-cells", 2).
		Strings("compatible", "linux,dummy-virt").
		BeginNode("chosen").
		Strings("bootargs", "console=ttyS0").
		EndNode()

	b.BeginNode("pcie@"+hex(ecamBase)).
		Strings("compatible", "pci-host-ecam-generic").
		Strings("device_type", "pci").
		Cells("bus-range", 0, uint32(ecamSize>>20)-1).
		Cells("reg", uint32(ecamBase>>32), uint32(ecamBase), uint32(ecamSize>>32), uint32(ecamSize)).
		EndNode()

	for _, n := range nodes {
		b.BeginNode("virtio_mmio@"+hex(n.Address)).
			Strings("compatible", "virtio,mmio").
			Cells("reg", uint32(n.Address>>32), uint32(n.Address), uint32(n.Size>>32), uint32(n.Size)).
			EndNode()
	}
	return b.EndNode().Bytes()
}

func hex(v uint64) string {
	return strconv.FormatUint(v, 16)
}
