// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package pci_test

import (
	"github.com/ironcore-dev/virtio-utils/pciutils/pci"
	"github.com/ironcore-dev/virtio-utils/pciutils/pci/pcitest"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type found struct {
	df   pci.DeviceFunction
	info pci.DeviceFunctionInfo
}

func collect(it *pci.BusDeviceIterator) []found {
	var out []found
	for df, info := range it.All() {
		out = append(out, found{df, info})
	}
	return out
}

var _ = Describe("Bus enumeration", func() {

	for _, cam := range []pci.Cam{pci.MmioCam, pci.Ecam} {
		It("should yield present functions in slot order using "+cam.String(), func() {
			space := pcitest.NewConfigSpace(cam, 2)
			net := pci.DeviceFunctionInfo{
				VendorID: 0x1af4, DeviceID: 0x1041,
				Class: 0x02, Subclass: 0x00, ProgIf: 0x00, Revision: 0x01,
			}
			bridge := pci.DeviceFunctionInfo{
				VendorID: 0x1b36, DeviceID: 0x0008,
				Class: 0x06, Subclass: 0x04, ProgIf: 0x01, Revision: 0x02,
				HeaderType: pci.HeaderTypePciPciBridge,
			}
			space.AddFunction(pci.DeviceFunction{Bus: 0, Device: 1, Function: 3}, bridge)
			space.AddFunction(pci.DeviceFunction{Bus: 0, Device: 0, Function: 0}, net)
			space.AddFunction(pci.DeviceFunction{Bus: 1, Device: 0, Function: 0}, net)

			Expect(collect(space.Root().EnumerateBus(0))).To(Equal([]found{
				{pci.DeviceFunction{Bus: 0, Device: 0, Function: 0}, net},
				{pci.DeviceFunction{Bus: 0, Device: 1, Function: 3}, bridge},
			}))
		})
	}

	It("should split the identification word into vendor and device", func() {
		space := pcitest.NewConfigSpace(pci.Ecam, 1)
		df := pci.DeviceFunction{Device: 7, Function: 1}
		space.AddFunction(df, pci.DeviceFunctionInfo{})
		space.Set(df, 0x00, 0x12345678)
		space.Set(df, 0x08, 0x0c033001)

		gotDF, info, ok := space.Root().EnumerateBus(0).Next()
		Expect(ok).To(BeTrue())
		Expect(gotDF).To(Equal(df))
		Expect(info.VendorID).To(Equal(uint16(0x5678)))
		Expect(info.DeviceID).To(Equal(uint16(0x1234)))
		Expect(info.Class).To(Equal(uint8(0x0c)))
		Expect(info.Subclass).To(Equal(uint8(0x03)))
		Expect(info.ProgIf).To(Equal(uint8(0x30)))
		Expect(info.Revision).To(Equal(uint8(0x01)))
	})

	It("should ignore the multi-function bit of the header type", func() {
		space := pcitest.NewConfigSpace(pci.MmioCam, 1)
		df := pci.DeviceFunction{Device: 3}
		space.AddFunction(df, pci.DeviceFunctionInfo{VendorID: 0x8086})
		space.Set(df, 0x0c, 0x00810000)

		_, info, ok := space.Root().EnumerateBus(0).Next()
		Expect(ok).To(BeTrue())
		Expect(info.HeaderType).To(Equal(pci.HeaderTypePciPciBridge))
	})

	It("should terminate on an empty bus", func() {
		space := pcitest.NewConfigSpace(pci.Ecam, 1)
		it := space.Root().EnumerateBus(0)
		_, _, ok := it.Next()
		Expect(ok).To(BeFalse())
		_, _, ok = it.Next()
		Expect(ok).To(BeFalse())
	})

	It("should not skip the neighbour of an absent slot", func() {
		space := pcitest.NewConfigSpace(pci.MmioCam, 1)
		for fn := uint8(0); fn < 8; fn++ {
			if fn == 4 {
				continue
			}
			space.AddFunction(pci.DeviceFunction{Device: 31, Function: fn}, pci.DeviceFunctionInfo{VendorID: uint16(fn)})
		}

		got := collect(space.Root().EnumerateBus(0))
		Expect(got).To(HaveLen(7))
		Expect(got[3].df.Function).To(Equal(uint8(3)))
		Expect(got[4].df.Function).To(Equal(uint8(5)))
	})

	It("should re-read the hardware on a new enumeration", func() {
		space := pcitest.NewConfigSpace(pci.Ecam, 1)
		root := space.Root()
		Expect(collect(root.EnumerateBus(0))).To(BeEmpty())

		space.AddFunction(pci.DeviceFunction{Device: 2}, pci.DeviceFunctionInfo{VendorID: 0x1af4})
		Expect(collect(root.EnumerateBus(0))).To(HaveLen(1))
	})

	It("should stop when the consumer stops", func() {
		space := pcitest.NewConfigSpace(pci.Ecam, 1)
		space.AddFunction(pci.DeviceFunction{Device: 1}, pci.DeviceFunctionInfo{VendorID: 1})
		space.AddFunction(pci.DeviceFunction{Device: 2}, pci.DeviceFunctionInfo{VendorID: 2})

		it := space.Root().EnumerateBus(0)
		for range it.All() {
			break
		}
		df, _, ok := it.Next()
		Expect(ok).To(BeTrue())
		Expect(df.Device).To(Equal(uint8(2)))
	})
})

var _ = Describe("HeaderType", func() {
	DescribeTable("should decode the header layout",
		func(raw uint8, expected pci.HeaderType, unrecognised bool) {
			h := pci.HeaderTypeFromByte(raw)
			Expect(h).To(Equal(expected))
			Expect(h.Unrecognised()).To(Equal(unrecognised))
			Expect(pci.HeaderTypeFromByte(raw | 0x80)).To(Equal(expected))
		},
		Entry("standard", uint8(0x00), pci.HeaderTypeStandard, false),
		Entry("pci bridge", uint8(0x01), pci.HeaderTypePciPciBridge, false),
		Entry("cardbus bridge", uint8(0x02), pci.HeaderTypePciCardbusBridge, false),
		Entry("unrecognised", uint8(0x7f), pci.HeaderType(0x7f), true),
	)

	It("should keep the raw value of unknown layouts", func() {
		Expect(pci.HeaderTypeFromByte(0x7f).String()).To(Equal("Unrecognised(0x7f)"))
		Expect(pci.HeaderTypeStandard.String()).To(Equal("Standard"))
	})
})
