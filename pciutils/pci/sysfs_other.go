// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package pci

import (
	"github.com/go-logr/logr"
)

type reader struct {
	log logr.Logger
}

func NewReader(log logr.Logger, _ Vendor) (*reader, error) {
	log.V(1).Info("NOT SUPPORTED OS")

	return &reader{
		log: log,
	}, nil
}

func NewReaderWithMount(log logr.Logger, _ string, vendorFilter Vendor) (*reader, error) {
	return NewReader(log, vendorFilter)
}

func (r *reader) Read() ([]Function, error) {
	r.log.V(1).Info("NOT SUPPORTED OS")
	return nil, nil
}
