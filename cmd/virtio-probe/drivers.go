// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"net"

	"github.com/go-logr/logr"
	"github.com/ironcore-dev/virtio-utils/halutils/hal"
	"github.com/ironcore-dev/virtio-utils/mmioutils/mmio"
	"github.com/ironcore-dev/virtio-utils/virtioutils/dispatch"
	"github.com/ironcore-dev/virtio-utils/virtioutils/transport"
)

// configDriver reports a device's configuration space. Queue setup is out of
// scope, so binding ends here.
type configDriver struct {
	deviceType transport.DeviceType
	config     *mmio.Window
}

func (d *configDriver) DeviceType() transport.DeviceType { return d.deviceType }

func bind(t transport.Transport, h hal.HAL, minSize uintptr) (*configDriver, error) {
	config, err := t.ConfigSpace(h)
	if err != nil {
		return nil, fmt.Errorf("failed to map device configuration: %w", err)
	}
	if config.Size() < minSize {
		return nil, fmt.Errorf("device configuration of %d bytes is shorter than %d", config.Size(), minSize)
	}
	return &configDriver{deviceType: t.DeviceType(), config: config}, nil
}

func newDrivers(log logr.Logger) dispatch.Drivers {
	return dispatch.Drivers{
		Block: func(t transport.Transport, h hal.HAL) (dispatch.Driver, error) {
			d, err := bind(t, h, 8)
			if err != nil {
				return nil, err
			}
			capacity := uint64(d.config.ReadUint32(4))<<32 | uint64(d.config.ReadUint32(0))
			log.Info("virtio-blk", "transport", t.String(), "sectors", capacity, "bytes", capacity*512)
			return d, nil
		},
		GPU: func(t transport.Transport, h hal.HAL) (dispatch.Driver, error) {
			d, err := bind(t, h, 16)
			if err != nil {
				return nil, err
			}
			log.Info("virtio-gpu", "transport", t.String(), "scanouts", d.config.ReadUint32(8), "capsets", d.config.ReadUint32(12))
			return d, nil
		},
		Input: func(t transport.Transport, h hal.HAL) (dispatch.Driver, error) {
			d, err := bind(t, h, 8)
			if err != nil {
				return nil, err
			}
			log.Info("virtio-input", "transport", t.String())
			return d, nil
		},
		Network: func(t transport.Transport, h hal.HAL) (dispatch.Driver, error) {
			d, err := bind(t, h, 8)
			if err != nil {
				return nil, err
			}
			lo, hi := d.config.ReadUint32(0), d.config.ReadUint32(4)
			mac := net.HardwareAddr{byte(lo), byte(lo >> 8), byte(lo >> 16), byte(lo >> 24), byte(hi), byte(hi >> 8)}
			logNetwork(log, t, mac)
			return d, nil
		},
		Sound: func(t transport.Transport, h hal.HAL) (dispatch.Driver, error) {
			d, err := bind(t, h, 12)
			if err != nil {
				return nil, err
			}
			log.Info("virtio-sound", "transport", t.String(),
				"jacks", d.config.ReadUint32(0), "streams", d.config.ReadUint32(4), "chmaps", d.config.ReadUint32(8))
			return d, nil
		},
	}
}
