// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"fmt"
	"runtime"

	ocispecv1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// Platform describes the host the probe runs on.
func Platform() (*ocispecv1.Platform, error) {
	return PlatformFor(runtime.GOOS, runtime.GOARCH)
}

func PlatformFor(os, architecture string) (*ocispecv1.Platform, error) {
	if os != "linux" {
		return nil, fmt.Errorf("unsupported operating system: %s", os)
	}

	platform := ocispecv1.Platform{
		OS: os,
	}
	switch architecture {
	case "amd64", "arm64", "riscv64":
		platform.Architecture = architecture
	default:
		return nil, fmt.Errorf("unsupported architecture: %s", architecture)
	}

	return &platform, nil
}

// Discovery selects the discovery paths a probe runs.
type Discovery struct {
	DeviceTree bool
	PCI        bool
}

// DefaultDiscovery enables the device tree path on platforms that boot with one.
// PCI is probed everywhere.
func DefaultDiscovery(platform *ocispecv1.Platform) Discovery {
	switch platform.Architecture {
	case "arm64", "riscv64":
		return Discovery{DeviceTree: true, PCI: true}
	default:
		return Discovery{PCI: true}
	}
}
