// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package touch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// absInfo mirrors struct input_absinfo.
type absInfo struct {
	Value      int32
	Minimum    int32
	Maximum    int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

const (
	iocWrite = 1
	iocRead  = 2

	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func ioc(dir, typ, nr, size uint32) uint {
	return uint(dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift)
}

// eviocgabs is EVIOCGABS(code).
func eviocgabs(code uint32) uint {
	return ioc(iocRead, 'E', 0x40+code, uint32(unsafe.Sizeof(absInfo{})))
}

// eviocgrab is EVIOCGRAB.
var eviocgrab = ioc(iocWrite, 'E', 0x90, uint32(unsafe.Sizeof(int32(0))))

// inputEventSize is sizeof(struct input_event) on this platform.
var inputEventSize = int(unsafe.Sizeof(unix.Timeval{})) + 8

// Device reads multitouch contacts from a Linux evdev node such as
// /dev/input/event3.
type Device struct {
	file   *os.File
	path   string
	logger *slog.Logger

	xMin, yMin    int32
	width, height float64
}

// OpenDevice opens path and reads its multitouch axis ranges. With
// grab set, the device is grabbed so that the desktop stops receiving
// its events.
func OpenDevice(path string, grab bool, logger *slog.Logger) (*Device, error) {
	if logger == nil {
		logger = slog.Default()
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("touch: opening %s: %w", path, err)
	}

	var x, y absInfo
	err = control(file, func(fd int) error {
		var err error
		if x, err = readAbsInfo(fd, absMTPositionX); err != nil {
			return fmt.Errorf("no multitouch X axis: %w", err)
		}
		if y, err = readAbsInfo(fd, absMTPositionY); err != nil {
			return fmt.Errorf("no multitouch Y axis: %w", err)
		}
		if x.Maximum <= x.Minimum || y.Maximum <= y.Minimum {
			return errors.New("empty axis range")
		}
		if grab {
			if err := unix.IoctlSetInt(fd, eviocgrab, 1); err != nil {
				return fmt.Errorf("grabbing device: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("touch: %s: %w", path, err)
	}

	return &Device{
		file:   file,
		path:   path,
		logger: logger,
		xMin:   x.Minimum,
		yMin:   y.Minimum,
		width:  float64(x.Maximum - x.Minimum),
		height: float64(y.Maximum - y.Minimum),
	}, nil
}

// control runs f on the file descriptor without taking it out of
// non-blocking mode, so that Close still interrupts a pending Read.
func control(file *os.File, f func(fd int) error) error {
	raw, err := file.SyscallConn()
	if err != nil {
		return err
	}
	var result error
	if err := raw.Control(func(fd uintptr) { result = f(int(fd)) }); err != nil {
		return err
	}
	return result
}

func readAbsInfo(fd int, code uint32) (absInfo, error) {
	var info absInfo
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(eviocgabs(code)), uintptr(unsafe.Pointer(&info)))
	if errno != 0 {
		return absInfo{}, errno
	}
	return info, nil
}

// Size returns the device surface size in device units.
func (d *Device) Size() (width, height float64) {
	return d.width, d.height
}

// Run feeds contacts into sink until ctx is cancelled or the device
// fails. The sink is resized to the device surface first and reset on
// return. Run closes the device.
func (d *Device) Run(ctx context.Context, sink Sink) error {
	sink.Resize(d.width, d.height)
	defer sink.Reset()

	stop := context.AfterFunc(ctx, func() { d.file.Close() })
	defer stop()
	defer d.file.Close()

	d.logger.Info("reading touch device",
		"path", d.path,
		"width", d.width,
		"height", d.height,
	)

	parser := newMTParser(sink, d.xMin, d.yMin)
	buffer := make([]byte, inputEventSize*64)
	pending := 0
	for {
		n, err := d.file.Read(buffer[pending:])
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("touch: reading %s: %w", d.path, err)
		}
		pending += n
		consumed := decodeInputEvents(buffer[:pending], inputEventSize, parser.handle)
		pending = copy(buffer, buffer[consumed:pending])
	}
}

// Close releases the device. It is safe to call after Run.
func (d *Device) Close() error {
	if err := d.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
