// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package mmio

func Map(_ string, _, _ uint64) (*Window, func() error, error) {
	return nil, nil, ErrMapUnsupported
}
