// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package fdt reads flattened device tree blobs into an ordered node list.
package fdt

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	fdtparser "github.com/platinasystems/fdt"
)

const (
	Magic = 0xd00dfeed

	headerSize = 40

	defaultAddressCells = 2
	defaultSizeCells    = 1
)

var ErrInvalidBlob = errors.New("invalid flattened device tree")

// Range is one decoded entry of a reg property.
type Range struct {
	Address uint64
	Size    uint64
}

type Node struct {
	Name       string
	Path       string
	Compatible []string
	Reg        []Range
	Properties map[string][]byte
}

// IsCompatible reports whether marker is one of the node's compatible strings.
func (n Node) IsCompatible(marker string) bool {
	return slices.Contains(n.Compatible, marker)
}

// UnitName is the node name without its unit address.
func (n Node) UnitName() string {
	name, _, _ := strings.Cut(n.Name, "@")
	return name
}

type Tree struct {
	parsed *fdtparser.Tree
	nodes  []Node
}

// Parse validates the blob header and decodes the structure block.
func Parse(blob []byte) (tree *Tree, err error) {
	if len(blob) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrInvalidBlob, len(blob))
	}
	if magic := binary.BigEndian.Uint32(blob); magic != Magic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrInvalidBlob, magic)
	}
	totalSize := binary.BigEndian.Uint32(blob[4:])
	if totalSize < headerSize || int(totalSize) > len(blob) {
		return nil, fmt.Errorf("%w: total size %#x does not fit %#x byte blob", ErrInvalidBlob, totalSize, len(blob))
	}
	for _, off := range []uint32{binary.BigEndian.Uint32(blob[8:]), binary.BigEndian.Uint32(blob[12:])} {
		if off < headerSize || off > totalSize {
			return nil, fmt.Errorf("%w: block offset %#x out of range", ErrInvalidBlob, off)
		}
	}

	// The parser indexes the blob without bounds checks.
	defer func() {
		if r := recover(); r != nil {
			tree = nil
			err = fmt.Errorf("%w: %v", ErrInvalidBlob, r)
		}
	}()

	parsed := &fdtparser.Tree{}
	if err := parsed.Parse(blob[:totalSize]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBlob, err)
	}
	if parsed.RootNode == nil {
		return nil, fmt.Errorf("%w: no root node", ErrInvalidBlob)
	}

	tree = &Tree{parsed: parsed}
	tree.flatten(parsed.RootNode, "/", defaultAddressCells, defaultSizeCells)
	return tree, nil
}

// Load reads and parses a blob from disk, e.g. /sys/firmware/fdt.
func Load(path string) (*Tree, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read device tree: %w", err)
	}
	return Parse(blob)
}

func (t *Tree) flatten(n *fdtparser.Node, path string, addressCells, sizeCells int) {
	node := Node{
		Name:       n.Name,
		Path:       path,
		Properties: n.Properties,
	}
	if value, ok := n.Properties["compatible"]; ok {
		for _, s := range t.parsed.PropStringSlice(value) {
			if s != "" {
				node.Compatible = append(node.Compatible, s)
			}
		}
	}
	if value, ok := n.Properties["reg"]; ok {
		node.Reg = t.decodeReg(value, addressCells, sizeCells)
	}
	t.nodes = append(t.nodes, node)

	childAddressCells := t.cells(n, "#address-cells", defaultAddressCells)
	childSizeCells := t.cells(n, "#size-cells", defaultSizeCells)

	children := slices.Collect(maps.Values(n.Children))
	slices.SortFunc(children, compareSiblings)
	for _, c := range children {
		t.flatten(c, childPath(path, c.Name), childAddressCells, childSizeCells)
	}
}

func (t *Tree) cells(n *fdtparser.Node, name string, def int) int {
	value, ok := n.Properties[name]
	if !ok || len(value) != 4 {
		return def
	}
	return int(t.parsed.PropUint32(value))
}

// decodeReg splits a reg property into ranges. Addresses wider than two
// cells keep their low 64 bits.
func (t *Tree) decodeReg(value []byte, addressCells, sizeCells int) []Range {
	stride := addressCells + sizeCells
	if addressCells == 0 || stride == 0 {
		return nil
	}
	cells := t.parsed.PropUint32Slice(value)

	var ranges []Range
	for i := 0; i+stride <= len(cells); i += stride {
		ranges = append(ranges, Range{
			Address: combine(cells[i : i+addressCells]),
			Size:    combine(cells[i+addressCells : i+stride]),
		})
	}
	return ranges
}

func combine(cells []uint32) uint64 {
	var v uint64
	for _, c := range cells {
		v = v<<32 | uint64(c)
	}
	return v
}

func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func unitAddress(name string) (uint64, bool) {
	_, unit, ok := strings.Cut(name, "@")
	if !ok {
		return 0, false
	}
	unit, _, _ = strings.Cut(unit, ",")
	addr, err := strconv.ParseUint(unit, 16, 64)
	return addr, err == nil
}

// compareSiblings orders nodes without a unit address first, then by unit
// address, then by name.
func compareSiblings(a, b *fdtparser.Node) int {
	ua, okA := unitAddress(a.Name)
	ub, okB := unitAddress(b.Name)
	switch {
	case okA && okB:
		if c := cmp.Compare(ua, ub); c != 0 {
			return c
		}
	case okA:
		return 1
	case okB:
		return -1
	}
	return strings.Compare(a.Name, b.Name)
}

// All yields every node depth-first, parents before children. The parser
// keeps children in a map, so blob order is lost: siblings come in unit
// address order, then by name, with nodes lacking a unit address first.
func (t *Tree) All() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for _, n := range t.nodes {
			if !yield(n) {
				return
			}
		}
	}
}

// FindCompatible returns the first node in tree order listing marker.
func (t *Tree) FindCompatible(marker string) (Node, bool) {
	for n := range t.All() {
		if n.IsCompatible(marker) {
			return n, true
		}
	}
	return Node{}, false
}

// Cells decodes a property as a list of 32-bit cells, e.g. bus-range.
func (t *Tree) Cells(n Node, name string) ([]uint32, bool) {
	value, ok := n.Properties[name]
	if !ok {
		return nil, false
	}
	return t.parsed.PropUint32Slice(value), true
}
