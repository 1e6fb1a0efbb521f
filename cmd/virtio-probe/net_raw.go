// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

//go:build !tcp

package main

import (
	"net"

	"github.com/go-logr/logr"
	"github.com/ironcore-dev/virtio-utils/virtioutils/transport"
)

const netQueueSize = 16

func logNetwork(log logr.Logger, t transport.Transport, mac net.HardwareAddr) {
	log.Info("virtio-net", "transport", t.String(), "mode", "raw", "mac", mac.String(), "queueSize", netQueueSize)
}
