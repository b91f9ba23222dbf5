// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package touch

import (
	"context"
	"errors"
	"log/slog"
)

// ErrDeviceUnsupported is returned by OpenDevice on platforms without
// evdev.
var ErrDeviceUnsupported = errors.New("touch: evdev devices are only supported on linux")

// Device is unavailable on this platform.
type Device struct{}

// OpenDevice always fails on this platform.
func OpenDevice(path string, grab bool, logger *slog.Logger) (*Device, error) {
	return nil, ErrDeviceUnsupported
}

func (d *Device) Size() (width, height float64) { return 0, 0 }

func (d *Device) Run(ctx context.Context, sink Sink) error { return ErrDeviceUnsupported }

func (d *Device) Close() error { return nil }
