// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch routes transports to the driver for their device class.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/ironcore-dev/virtio-utils/eventutils/recorder"
	"github.com/ironcore-dev/virtio-utils/halutils/hal"
	"github.com/ironcore-dev/virtio-utils/virtioutils/transport"
)

var ErrDriverFailed = errors.New("driver failed")

// Driver is a device-class driver bound to a transport.
type Driver interface {
	DeviceType() transport.DeviceType
}

type Constructor func(t transport.Transport, h hal.HAL) (Driver, error)

// Drivers holds one constructor per supported device class. A nil
// constructor leaves that class unhandled.
type Drivers struct {
	Block   Constructor
	GPU     Constructor
	Input   Constructor
	Network Constructor
	Sound   Constructor
}

func (d Drivers) constructor(t transport.DeviceType) Constructor {
	switch t {
	case transport.DeviceTypeBlock:
		return d.Block
	case transport.DeviceTypeGPU:
		return d.GPU
	case transport.DeviceTypeInput:
		return d.Input
	case transport.DeviceTypeNetwork:
		return d.Network
	case transport.DeviceTypeSound:
		return d.Sound
	default:
		return nil
	}
}

type Dispatcher struct {
	log      logr.Logger
	hal      hal.HAL
	drivers  Drivers
	recorder recorder.EventRecorder
}

func NewDispatcher(log logr.Logger, h hal.HAL, drivers Drivers, eventRecorder recorder.EventRecorder) *Dispatcher {
	if eventRecorder == nil {
		eventRecorder = recorder.Discard
	}
	return &Dispatcher{
		log:      log,
		hal:      h,
		drivers:  drivers,
		recorder: eventRecorder,
	}
}

// Dispatch invokes exactly one constructor, chosen by the transport's device
// type. Unrecognized devices are reported and yield a nil driver and nil
// error.
func (d *Dispatcher) Dispatch(t transport.Transport) (Driver, error) {
	deviceType := t.DeviceType()
	newDriver := d.drivers.constructor(deviceType)
	if newDriver == nil {
		d.log.Info("Unrecognized virtio device", "deviceType", deviceType.String(), "transport", t.String())
		d.recorder.Eventf(t.String(), recorder.EventTypeWarning, recorder.ReasonUnrecognizedDevice, "no driver for %s", deviceType)
		return nil, nil
	}

	driver, err := newDriver(t, d.hal)
	if err != nil {
		d.recorder.Eventf(t.String(), recorder.EventTypeWarning, recorder.ReasonDriverFailed, "%v", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrDriverFailed, deviceType, err)
	}

	d.log.V(1).Info("Bound driver", "deviceType", deviceType.String(), "transport", t.String())
	d.recorder.Eventf(t.String(), recorder.EventTypeNormal, recorder.ReasonDriverBound, "%s driver", deviceType)
	return driver, nil
}

// Consume dispatches t and drops the driver handle.
func (d *Dispatcher) Consume(t transport.Transport) error {
	_, err := d.Dispatch(t)
	return err
}
