// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package config holds the probe configuration file format.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ironcore-dev/virtio-utils/dtutils/probe"
	"github.com/ironcore-dev/virtio-utils/eventutils/recorder"
	"github.com/ironcore-dev/virtio-utils/halutils/hal"
	"github.com/ironcore-dev/virtio-utils/pciutils/pci"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"sigs.k8s.io/yaml"
)

const (
	DefaultDeviceTreePath = "/sys/firmware/fdt"
	DefaultEcamCompatible = "pci-host-ecam-generic"
)

type Config struct {
	// HartID is the hart (CPU) the probe reports as running on.
	HartID       int              `json:"hartID,omitempty"`
	MemoryDevice string           `json:"memoryDevice,omitempty"`
	DeviceTree   DeviceTreeConfig `json:"deviceTree,omitempty"`
	PCI          PCIConfig        `json:"pci,omitempty"`
	Events       EventsConfig     `json:"events,omitempty"`
}

type DeviceTreeConfig struct {
	// Enabled overrides the platform default when set.
	Enabled    *bool  `json:"enabled,omitempty"`
	Path       string `json:"path,omitempty"`
	Compatible string `json:"compatible,omitempty"`
}

// PCIConfig describes the configuration window. Without a base the window is
// taken from the device tree node listing EcamCompatible.
type PCIConfig struct {
	Enabled        *bool              `json:"enabled,omitempty"`
	Cam            string             `json:"cam,omitempty"`
	Base           uint64             `json:"base,omitempty"`
	Size           *resource.Quantity `json:"size,omitempty"`
	Buses          int                `json:"buses,omitempty"`
	EcamCompatible string             `json:"ecamCompatible,omitempty"`
}

type EventsConfig struct {
	MaxEvents      int             `json:"maxEvents,omitempty"`
	TTL            metav1.Duration `json:"ttl,omitempty"`
	ResyncInterval metav1.Duration `json:"resyncInterval,omitempty"`
}

func (c *Config) Defaults() {
	if c.MemoryDevice == "" {
		c.MemoryDevice = hal.DefaultMemoryDevice
	}
	if c.DeviceTree.Path == "" {
		c.DeviceTree.Path = DefaultDeviceTreePath
	}
	if c.DeviceTree.Compatible == "" {
		c.DeviceTree.Compatible = probe.DefaultCompatible
	}
	if c.PCI.Cam == "" {
		c.PCI.Cam = pci.Ecam.String()
	}
	if c.PCI.EcamCompatible == "" {
		c.PCI.EcamCompatible = DefaultEcamCompatible
	}

	opts := c.Events.EventStoreOptions()
	opts.Defaults()
	c.Events = EventsConfig{
		MaxEvents:      opts.MaxEvents,
		TTL:            metav1.Duration{Duration: opts.TTL},
		ResyncInterval: metav1.Duration{Duration: opts.ResyncInterval},
	}
}

func (e EventsConfig) EventStoreOptions() recorder.EventStoreOptions {
	return recorder.EventStoreOptions{
		MaxEvents:      e.MaxEvents,
		TTL:            e.TTL.Duration,
		ResyncInterval: e.ResyncInterval.Duration,
	}
}

// Load reads a YAML config file and applies defaults. An empty path yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.Defaults()
	return cfg, nil
}

func (c *Config) Validate() error {
	var allErrs field.ErrorList

	if c.HartID < 0 {
		allErrs = append(allErrs, field.Invalid(field.NewPath("hartID"), c.HartID, "must not be negative"))
	}

	pciPath := field.NewPath("pci")
	cam, err := pci.ParseCam(c.PCI.Cam)
	if err != nil {
		allErrs = append(allErrs, field.NotSupported(pciPath.Child("cam"), c.PCI.Cam, []string{pci.MmioCam.String(), pci.Ecam.String()}))
	}
	if c.PCI.Base != 0 {
		if c.PCI.Base%uint64(os.Getpagesize()) != 0 {
			allErrs = append(allErrs, field.Invalid(pciPath.Child("base"), fmt.Sprintf("%#x", c.PCI.Base), "must be page aligned"))
		}
		if c.PCI.Size == nil {
			allErrs = append(allErrs, field.Required(pciPath.Child("size"), "size is required with an explicit base"))
		} else if err == nil {
			if size := c.PCI.Size.Value(); size <= 0 || size > int64(cam.WindowSize()) {
				allErrs = append(allErrs, field.Invalid(pciPath.Child("size"), c.PCI.Size.String(), fmt.Sprintf("must be within the %s window", cam)))
			}
		}
	}
	if c.PCI.Buses < 0 || c.PCI.Buses > 256 {
		allErrs = append(allErrs, field.Invalid(pciPath.Child("buses"), c.PCI.Buses, "must be between 0 and 256"))
	}

	eventsPath := field.NewPath("events")
	if c.Events.ResyncInterval.Duration > 0 && c.Events.ResyncInterval.Duration < 10*time.Millisecond {
		allErrs = append(allErrs, field.Invalid(eventsPath.Child("resyncInterval"), c.Events.ResyncInterval.Duration.String(), "must be at least 10ms"))
	}

	return allErrs.ToAggregate()
}

// Cam returns the parsed access mechanism. Call Validate first.
func (c *Config) Cam() pci.Cam {
	cam, _ := pci.ParseCam(c.PCI.Cam)
	return cam
}
