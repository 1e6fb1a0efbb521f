// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package dispatch_test

import (
	"errors"

	"github.com/go-logr/logr"
	"github.com/ironcore-dev/virtio-utils/eventutils/recorder"
	"github.com/ironcore-dev/virtio-utils/halutils/hal"
	"github.com/ironcore-dev/virtio-utils/mmioutils/mmio"
	"github.com/ironcore-dev/virtio-utils/virtioutils/dispatch"
	"github.com/ironcore-dev/virtio-utils/virtioutils/transport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeTransport struct {
	deviceType transport.DeviceType
}

func (f fakeTransport) DeviceType() transport.DeviceType { return f.deviceType }
func (f fakeTransport) VendorID() uint32                 { return 0x554d4551 }
func (f fakeTransport) Version() transport.Version       { return transport.VersionModern }
func (f fakeTransport) String() string                   { return "fake " + f.deviceType.String() }
func (f fakeTransport) ConfigSpace(hal.Mapper) (*mmio.Window, error) {
	return mmio.NewWindowFromWords(make([]uint32, 4)), nil
}

type driver struct {
	deviceType transport.DeviceType
}

func (d driver) DeviceType() transport.DeviceType { return d.deviceType }

var _ = Describe("Dispatcher", func() {
	var (
		calls      []transport.DeviceType
		events     *recorder.Store
		drivers    dispatch.Drivers
		dispatcher *dispatch.Dispatcher
	)

	constructor := func(t transport.Transport, _ hal.HAL) (dispatch.Driver, error) {
		calls = append(calls, t.DeviceType())
		return driver{deviceType: t.DeviceType()}, nil
	}

	BeforeEach(func() {
		calls = nil
		events = recorder.NewEventStore(logr.Discard(), recorder.EventStoreOptions{})
		drivers = dispatch.Drivers{
			Block:   constructor,
			GPU:     constructor,
			Input:   constructor,
			Network: constructor,
			Sound:   constructor,
		}
		dispatcher = dispatch.NewDispatcher(logr.Discard(), nil, drivers, events)
	})

	DescribeTable("should invoke exactly one constructor",
		func(deviceType transport.DeviceType) {
			d, err := dispatcher.Dispatch(fakeTransport{deviceType: deviceType})
			Expect(err).NotTo(HaveOccurred())
			Expect(d.DeviceType()).To(Equal(deviceType))
			Expect(calls).To(Equal([]transport.DeviceType{deviceType}))
			Expect(events.ListEvents()).To(ConsistOf(HaveField("Reason", recorder.ReasonDriverBound)))
		},
		Entry("block", transport.DeviceTypeBlock),
		Entry("gpu", transport.DeviceTypeGPU),
		Entry("input", transport.DeviceTypeInput),
		Entry("network", transport.DeviceTypeNetwork),
		Entry("sound", transport.DeviceTypeSound),
	)

	It("should route network devices to the network constructor only", func() {
		var network int
		drivers.Network = func(t transport.Transport, h hal.HAL) (dispatch.Driver, error) {
			network++
			return driver{deviceType: t.DeviceType()}, nil
		}
		dispatcher = dispatch.NewDispatcher(logr.Discard(), nil, drivers, events)

		Expect(dispatcher.Consume(fakeTransport{deviceType: transport.DeviceTypeNetwork})).To(Succeed())
		Expect(network).To(Equal(1))
		Expect(calls).To(BeEmpty())
	})

	It("should report unrecognized devices without invoking a constructor", func() {
		d, err := dispatcher.Dispatch(fakeTransport{deviceType: transport.DeviceTypeConsole})
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(BeNil())
		Expect(calls).To(BeEmpty())
		Expect(events.ListEvents()).To(ConsistOf(HaveField("Reason", recorder.ReasonUnrecognizedDevice)))
	})

	It("should treat a class without a constructor as unrecognized", func() {
		drivers.Sound = nil
		dispatcher = dispatch.NewDispatcher(logr.Discard(), nil, drivers, nil)

		d, err := dispatcher.Dispatch(fakeTransport{deviceType: transport.DeviceTypeSound})
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(BeNil())
		Expect(calls).To(BeEmpty())
	})

	It("should wrap constructor failures", func() {
		cause := errors.New("feature negotiation failed")
		drivers.Block = func(transport.Transport, hal.HAL) (dispatch.Driver, error) {
			return nil, cause
		}
		dispatcher = dispatch.NewDispatcher(logr.Discard(), nil, drivers, events)

		_, err := dispatcher.Dispatch(fakeTransport{deviceType: transport.DeviceTypeBlock})
		Expect(err).To(MatchError(dispatch.ErrDriverFailed))
		Expect(err).To(MatchError(cause))
		Expect(events.ListEvents()).To(ConsistOf(HaveField("Reason", recorder.ReasonDriverFailed)))
	})
})
