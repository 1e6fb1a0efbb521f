// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package probe_test

import (
	"errors"

	"github.com/ironcore-dev/virtio-utils/eventutils/recorder"
	"github.com/ironcore-dev/virtio-utils/pciutils/pci"
	"github.com/ironcore-dev/virtio-utils/pciutils/pci/pcitest"
	"github.com/ironcore-dev/virtio-utils/pciutils/probe"
	"github.com/ironcore-dev/virtio-utils/virtioutils/transport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

// addVirtio places a modern virtio function with all configuration
// structures in BAR 0.
func addVirtio(space *pcitest.ConfigSpace, df pci.DeviceFunction, deviceType transport.DeviceType) {
	space.AddFunction(df, pci.DeviceFunctionInfo{
		VendorID: 0x1af4,
		DeviceID: 0x1040 + uint16(deviceType),
	})
	space.Set(df, 0x10, 0x10000000)
	space.Set(df, 0x2c, 0x11001af4)
	for i, cfgType := range []uint32{1, 2, 3, 4} {
		offset := uint8(0x40 + i*0x14)
		space.AddCapability(df, offset, cfgType<<24|0x10<<16|pci.CapabilityIDVendorSpecific, 0, uint32(i)*0x1000, 0x1000, 4)
	}
}

type consumed struct {
	transports []transport.Transport
	err        error
}

func (c *consumed) Consume(t transport.Transport) error {
	c.transports = append(c.transports, t)
	return c.err
}

func deviceTypes(transports []transport.Transport) []transport.DeviceType {
	var types []transport.DeviceType
	for _, t := range transports {
		types = append(types, t.DeviceType())
	}
	return types
}

var _ = Describe("Prober", func() {
	var (
		space    *pcitest.ConfigSpace
		consumer *consumed
		events   *recorder.Store
		prober   *probe.Prober
	)

	BeforeEach(func() {
		space = pcitest.NewConfigSpace(pci.Ecam, 2)
		consumer = &consumed{}
		events = recorder.NewEventStore(logf.Log, recorder.EventStoreOptions{})
		prober = probe.NewProber(logf.Log, consumer, events)

		space.AddFunction(pci.DeviceFunction{}, pci.DeviceFunctionInfo{VendorID: 0x1b36, DeviceID: 0x0008, Class: 0x06})
	})

	It("should hand virtio functions to the consumer in slot order", func() {
		addVirtio(space, pci.DeviceFunction{Device: 3}, transport.DeviceTypeGPU)
		addVirtio(space, pci.DeviceFunction{Device: 1}, transport.DeviceTypeNetwork)
		addVirtio(space, pci.DeviceFunction{Bus: 1, Device: 0}, transport.DeviceTypeBlock)

		Expect(prober.Probe(space.Root(), 0)).To(Succeed())
		Expect(deviceTypes(consumer.transports)).To(Equal([]transport.DeviceType{
			transport.DeviceTypeNetwork,
			transport.DeviceTypeGPU,
			transport.DeviceTypeBlock,
		}))
		Expect(events.ListEvents()).To(HaveLen(3))
	})

	It("should limit the scan to the requested buses", func() {
		addVirtio(space, pci.DeviceFunction{Bus: 1, Device: 0}, transport.DeviceTypeBlock)

		Expect(prober.Probe(space.Root(), 1)).To(Succeed())
		Expect(consumer.transports).To(BeEmpty())
	})

	It("should record functions without usable capabilities", func() {
		space.AddFunction(pci.DeviceFunction{Device: 2}, pci.DeviceFunctionInfo{VendorID: 0x1af4, DeviceID: 0x1001})

		Expect(prober.Probe(space.Root(), 0)).To(Succeed())
		Expect(consumer.transports).To(BeEmpty())
		Expect(events.ListEvents()).To(ConsistOf(And(
			HaveField("Source", "00:02.0"),
			HaveField("Reason", recorder.ReasonTransportFailed),
		)))
	})

	It("should skip functions whose capabilities run past the function space", func() {
		space = pcitest.NewConfigSpace(pci.MmioCam, 1)
		df := pci.DeviceFunction{Device: 1}
		space.AddFunction(df, pci.DeviceFunctionInfo{VendorID: 0x1af4, DeviceID: 0x1041})
		space.AddCapability(df, 0xfc, 2<<24|pci.CapabilityIDVendorSpecific)
		addVirtio(space, pci.DeviceFunction{Device: 2}, transport.DeviceTypeBlock)

		Expect(func() {
			Expect(prober.Probe(space.Root(), 1)).To(Succeed())
		}).NotTo(Panic())
		Expect(deviceTypes(consumer.transports)).To(Equal([]transport.DeviceType{transport.DeviceTypeBlock}))
		Expect(events.ListEvents()).To(HaveExactElements(
			And(HaveField("Source", "00:01.0"), HaveField("Reason", recorder.ReasonTransportFailed)),
			And(HaveField("Source", "00:02.0"), HaveField("Reason", recorder.ReasonDiscovered)),
		))
	})

	It("should aggregate consumer errors", func() {
		addVirtio(space, pci.DeviceFunction{Device: 1}, transport.DeviceTypeNetwork)
		addVirtio(space, pci.DeviceFunction{Device: 2}, transport.DeviceTypeSound)
		consumer.err = errors.New("no driver")

		err := prober.Probe(space.Root(), 0)
		Expect(err).To(MatchError(ContainSubstring("pci function 00:01.0: no driver")))
		Expect(err).To(MatchError(ContainSubstring("pci function 00:02.0: no driver")))
	})
})
