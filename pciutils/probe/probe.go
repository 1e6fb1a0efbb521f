// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package probe turns virtio functions on a PCI root into transports.
package probe

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/ironcore-dev/virtio-utils/eventutils/recorder"
	"github.com/ironcore-dev/virtio-utils/pciutils/pci"
	"github.com/ironcore-dev/virtio-utils/virtioutils/pcitransport"
	"github.com/ironcore-dev/virtio-utils/virtioutils/transport"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

type Prober struct {
	log      logr.Logger
	consumer transport.Consumer
	recorder recorder.EventRecorder
}

func NewProber(log logr.Logger, consumer transport.Consumer, eventRecorder recorder.EventRecorder) *Prober {
	if eventRecorder == nil {
		eventRecorder = recorder.Discard
	}
	return &Prober{
		log:      log,
		consumer: consumer,
		recorder: eventRecorder,
	}
}

// Probe enumerates the first buses of root. A non-positive count, or one
// beyond what the window covers, scans every bus the window covers.
func (p *Prober) Probe(root pci.Root, buses int) error {
	if covered := root.Buses(); buses <= 0 || buses > covered {
		buses = covered
	}

	var errs []error
	for bus := range buses {
		for df, info := range root.EnumerateBus(uint8(bus)).All() {
			if err := p.probeFunction(root, df, info); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return utilerrors.NewAggregate(errs)
}

func (p *Prober) probeFunction(root pci.Root, df pci.DeviceFunction, info pci.DeviceFunctionInfo) error {
	log := p.log.WithValues("function", df.String())
	log.Info("Found PCI function", "info", info.String())

	if info.VendorID != pcitransport.VendorID {
		return nil
	}

	t, err := pcitransport.New(root, df, info)
	if err != nil {
		log.Error(err, "Error creating VirtIO PCI transport")
		p.recorder.Eventf(df.String(), recorder.EventTypeWarning, recorder.ReasonTransportFailed, "%v", err)
		return nil
	}

	log.Info("Detected virtio PCI device",
		"vendorID", fmt.Sprintf("%#X", t.VendorID()),
		"deviceType", t.DeviceType().String(),
	)
	p.recorder.Eventf(df.String(), recorder.EventTypeNormal, recorder.ReasonDiscovered, "%s", t)

	if err := p.consumer.Consume(t); err != nil {
		return fmt.Errorf("pci function %s: %w", df, err)
	}
	return nil
}
