// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/ironcore-dev/virtio-utils/configutils/config"
	"github.com/ironcore-dev/virtio-utils/dtutils/fdt"
	dtprobe "github.com/ironcore-dev/virtio-utils/dtutils/probe"
	"github.com/ironcore-dev/virtio-utils/eventutils/recorder"
	"github.com/ironcore-dev/virtio-utils/halutils/hal"
	"github.com/ironcore-dev/virtio-utils/pciutils/pci"
	pciprobe "github.com/ironcore-dev/virtio-utils/pciutils/probe"
	"github.com/ironcore-dev/virtio-utils/platformutils/host"
	"github.com/ironcore-dev/virtio-utils/virtioutils/dispatch"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/manager/signals"
)

type flags struct {
	configPath   string
	dtbPath      string
	memoryDevice string
	hartID       int
	compareSysfs bool
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to the probe configuration file.")
	flag.StringVar(&f.dtbPath, "dtb", "", "Path to the flattened device tree blob. Overrides the config.")
	flag.StringVar(&f.memoryDevice, "memory-device", "", "File exposing physical memory. Overrides the config.")
	flag.IntVar(&f.hartID, "hart-id", -1, "Hart the probe reports as running on. Overrides the config.")
	flag.BoolVar(&f.compareSysfs, "compare-sysfs", false, "Cross-check PCI discovery against the kernel's view in sysfs.")

	opts := zap.Options{
		Development: true,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	logf.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
	log := logf.Log.WithName("virtio-probe")

	if _, err := run(signals.SetupSignalHandler(), log, f); err != nil {
		log.Error(err, "Probe failed")
		os.Exit(1)
	}
}

// run probes once and returns the recorded discovery events.
func run(ctx context.Context, log logr.Logger, f flags) (*recorder.Store, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.dtbPath != "" {
		cfg.DeviceTree.Path = f.dtbPath
	}
	if f.memoryDevice != "" {
		cfg.MemoryDevice = f.memoryDevice
	}
	if f.hartID >= 0 {
		cfg.HartID = f.hartID
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	platform, err := host.Platform()
	if err != nil {
		return nil, err
	}
	discovery := host.DefaultDiscovery(platform)
	if cfg.DeviceTree.Enabled != nil {
		discovery.DeviceTree = *cfg.DeviceTree.Enabled
	}
	if cfg.PCI.Enabled != nil {
		discovery.PCI = *cfg.PCI.Enabled
	}
	log.Info("Starting virtio probe", "hartID", cfg.HartID, "architecture", platform.Architecture,
		"deviceTree", discovery.DeviceTree, "pci", discovery.PCI)

	events := recorder.NewEventStore(log.WithName("events"), cfg.Events.EventStoreOptions())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go events.Start(ctx)

	mem := hal.NewDevMem(log.WithName("hal"), cfg.MemoryDevice)
	defer func() {
		if err := mem.Close(); err != nil {
			log.Error(err, "Failed to unmap physical memory")
		}
	}()

	dispatcher := dispatch.NewDispatcher(log.WithName("dispatch"), mem, newDrivers(log.WithName("driver")), events)

	var tree *fdt.Tree
	if discovery.DeviceTree || (discovery.PCI && cfg.PCI.Base == 0) {
		log.Info("Reading device tree", "path", cfg.DeviceTree.Path)
		if tree, err = fdt.Load(cfg.DeviceTree.Path); err != nil {
			return nil, err
		}
	}

	var errs []error
	if discovery.DeviceTree {
		prober := dtprobe.NewProber(log.WithName("devicetree"), mem, dispatcher, events, dtprobe.Options{
			Compatible: cfg.DeviceTree.Compatible,
		})
		if err := prober.Probe(tree); err != nil {
			errs = append(errs, err)
		}
	}

	if discovery.PCI {
		if err := probePCI(log.WithName("pci"), cfg, tree, mem, dispatcher, events); err != nil {
			errs = append(errs, err)
		}
		if f.compareSysfs {
			compareSysfs(log.WithName("sysfs"), events)
		}
	}

	for _, event := range events.ListEvents() {
		log.Info("Event", "source", event.Source, "type", event.Type, "reason", event.Reason, "message", event.Message)
	}
	log.Info("Probe finished")
	return events, utilerrors.NewAggregate(errs)
}

var errNoEcam = errors.New("no PCI configuration window")

// pciWindow resolves the configuration window from the config or, failing
// that, from the ECAM host bridge node.
func pciWindow(cfg *config.Config, tree *fdt.Tree) (base hal.PhysAddr, size uint64, buses int, err error) {
	if cfg.PCI.Base != 0 {
		return hal.PhysAddr(cfg.PCI.Base), uint64(cfg.PCI.Size.Value()), cfg.PCI.Buses, nil
	}

	node, ok := tree.FindCompatible(cfg.PCI.EcamCompatible)
	if !ok || len(node.Reg) == 0 {
		return 0, 0, 0, fmt.Errorf("%w: no %s node", errNoEcam, cfg.PCI.EcamCompatible)
	}
	buses = cfg.PCI.Buses
	if busRange, ok := tree.Cells(node, "bus-range"); ok && len(busRange) == 2 && buses == 0 {
		buses = int(busRange[1]-busRange[0]) + 1
	}
	return hal.PhysAddr(node.Reg[0].Address), node.Reg[0].Size, buses, nil
}

func probePCI(log logr.Logger, cfg *config.Config, tree *fdt.Tree, mapper hal.Mapper, dispatcher *dispatch.Dispatcher, events *recorder.Store) error {
	base, size, buses, err := pciWindow(cfg, tree)
	if err != nil {
		return err
	}
	cam := cfg.Cam()
	size = min(size, uint64(cam.WindowSize()))

	log.Info("Mapping configuration window", "cam", cam.String(), "base", base, "size", fmt.Sprintf("%#x", size))
	window, err := mapper.MapMMIO(base, size)
	if err != nil {
		return err
	}

	return pciprobe.NewProber(log, dispatcher, events).Probe(pci.NewRoot(window, cam), buses)
}

// compareSysfs reports virtio functions the kernel knows about that the
// configuration window scan did not discover.
func compareSysfs(log logr.Logger, events recorder.EventStore) {
	reader, err := pci.NewReader(log, pci.VendorVirtio)
	if err != nil {
		log.Error(err, "Failed to open sysfs")
		return
	}
	functions, err := reader.Read()
	if err != nil {
		log.Error(err, "Failed to read sysfs")
		return
	}

	discovered := map[string]bool{}
	for _, event := range events.ListEvents() {
		if event.Reason == recorder.ReasonDiscovered {
			discovered[event.Source] = true
		}
	}
	for _, function := range functions {
		if function.Segment != 0 || !discovered[function.DeviceFunction.String()] {
			log.Info("Function missing from configuration window scan", "function", function.String())
			continue
		}
		log.V(1).Info("Function confirmed by sysfs", "function", function.String())
	}
}
