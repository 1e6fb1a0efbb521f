// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package probe turns virtio,mmio device tree nodes into transports.
package probe

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/ironcore-dev/virtio-utils/dtutils/fdt"
	"github.com/ironcore-dev/virtio-utils/eventutils/recorder"
	"github.com/ironcore-dev/virtio-utils/halutils/hal"
	"github.com/ironcore-dev/virtio-utils/virtioutils/mmiotransport"
	"github.com/ironcore-dev/virtio-utils/virtioutils/transport"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

const DefaultCompatible = "virtio,mmio"

type Options struct {
	// Compatible is the marker a node must list to be probed.
	Compatible string
}

func (o *Options) Defaults() {
	if o.Compatible == "" {
		o.Compatible = DefaultCompatible
	}
}

type Prober struct {
	log        logr.Logger
	mapper     hal.Mapper
	consumer   transport.Consumer
	recorder   recorder.EventRecorder
	compatible string
}

func NewProber(log logr.Logger, mapper hal.Mapper, consumer transport.Consumer, eventRecorder recorder.EventRecorder, opts Options) *Prober {
	opts.Defaults()
	if eventRecorder == nil {
		eventRecorder = recorder.Discard
	}
	return &Prober{
		log:        log,
		mapper:     mapper,
		consumer:   consumer,
		recorder:   eventRecorder,
		compatible: opts.Compatible,
	}
}

// Probe walks the tree once in tree order. Each matching node is handed to the
// consumer before the walk continues. Nodes that fail to map or to form a
// transport are logged and skipped; consumer errors are collected and returned
// after the walk.
func (p *Prober) Probe(tree *fdt.Tree) error {
	var errs []error
	for node := range tree.All() {
		if !node.IsCompatible(p.compatible) {
			continue
		}
		if err := p.probeNode(node); err != nil {
			errs = append(errs, err)
		}
	}
	return utilerrors.NewAggregate(errs)
}

func (p *Prober) probeNode(node fdt.Node) error {
	log := p.log.WithValues("node", node.Path)

	if len(node.Reg) == 0 {
		log.V(1).Info("Skipping node without reg")
		return nil
	}
	// Only the first range is the register window.
	reg := node.Reg[0]
	if reg.Size == 0 {
		log.Info("Skipping node without a register window size")
		p.recorder.Eventf(node.Path, recorder.EventTypeWarning, recorder.ReasonMapFailed, "reg has no size")
		return nil
	}

	paddr := hal.PhysAddr(reg.Address)
	log.Info("Walking device tree", "addr", paddr, "size", fmt.Sprintf("%#x", reg.Size))
	log.Info("Device tree node", "name", node.Name, "compatible", node.Compatible[0])

	window, err := p.mapper.MapMMIO(paddr, reg.Size)
	if err != nil {
		log.Error(err, "Error mapping VirtIO MMIO window")
		p.recorder.Eventf(node.Path, recorder.EventTypeWarning, recorder.ReasonMapFailed, "%v", err)
		return nil
	}

	t, err := mmiotransport.New(window)
	if err != nil {
		log.Error(err, "Error creating VirtIO MMIO transport")
		p.recorder.Eventf(node.Path, recorder.EventTypeWarning, recorder.ReasonTransportFailed, "%v", err)
		return nil
	}

	log.Info("Detected virtio MMIO device",
		"vendorID", fmt.Sprintf("%#X", t.VendorID()),
		"deviceType", t.DeviceType().String(),
		"version", t.Version().String(),
	)
	p.recorder.Eventf(node.Path, recorder.EventTypeNormal, recorder.ReasonDiscovered, "%s", t)

	if err := p.consumer.Consume(t); err != nil {
		return fmt.Errorf("device tree node %s: %w", node.Path, err)
	}
	return nil
}
