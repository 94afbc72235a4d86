/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package phc wraps the Linux PTP hardware clock character device
// (/dev/ptpN) ioctls and ties them to the dual-clock quickest-read
// technique used throughout the synchronization engine.
package phc

import (
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ptpMaxSamples bounds PTPSysOffsetExtended.NSamples, from linux/ptp_clock.h.
const ptpMaxSamples = 25

// ptpClkMagic is the ioctl magic number ('=') used by every PTP_* request,
// from linux/ptp_clock.h. golang.org/x/sys/unix does not expose these
// ioctl numbers directly, so this package computes them the same way the
// kernel's _IOC macros do.
const ptpClkMagic = '='

const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

func ioc(dir uint, t byte, nr uint, size uintptr) uintptr {
	return uintptr(dir)<<iocDirShift | uintptr(t)<<iocTypeShift | uintptr(nr)<<iocNRShift | size<<iocSizeShift
}

func iowr(t byte, nr uint, size uintptr) uintptr { return ioc(iocRead|iocWrite, t, nr, size) }
func ior(t byte, nr uint, size uintptr) uintptr  { return ioc(iocRead, t, nr, size) }
func iow(t byte, nr uint, size uintptr) uintptr  { return ioc(iocWrite, t, nr, size) }

// PTPClockTime mirrors struct ptp_clock_time from linux/ptp_clock.h.
type PTPClockTime struct {
	Sec      int64
	NSec     uint32
	Reserved uint32
}

// Time converts a PTPClockTime into a time.Time.
func (t PTPClockTime) Time() time.Time {
	return time.Unix(t.Sec, int64(t.NSec))
}

// PTPSysOffsetExtended mirrors struct ptp_sys_offset_extended.
type PTPSysOffsetExtended struct {
	NSamples uint32
	Reserved [3]uint32
	TS       [ptpMaxSamples][3]PTPClockTime
}

// PTPExttsEvent mirrors struct ptp_extts_event.
type PTPExttsEvent struct {
	T     PTPClockTime
	Index uint32
	Flags uint32
	Rsv   [2]uint32
}

// PTP_EXTTS_REQUEST flags, from linux/ptp_clock.h.
const (
	PTPEnableFeature uint32 = 1 << 0
	PTPRisingEdge    uint32 = 1 << 1
)

// PTPExttsRequest mirrors struct ptp_extts_request.
type PTPExttsRequest struct {
	Index uint32
	Flags uint32
	Rsv   [2]uint32
}

var (
	ioctlPTPSysOffsetExtended = iowr(ptpClkMagic, 9, unsafe.Sizeof(PTPSysOffsetExtended{}))
	ioctlPTPExttsRequest       = iow(ptpClkMagic, 11, unsafe.Sizeof(PTPExttsRequest{}))
)

// FDToClockID derives a dynamic clock id from an open PHC file descriptor,
// per clock_gettime(3)'s FD_TO_CLOCKID macro.
func FDToClockID(fd uintptr) int32 {
	return int32((int(^fd) << 3) | 3)
}

// Device is an open /dev/ptpN character device.
type Device struct {
	f *os.File
}

// Open opens the PHC device at path read/write, for use as a slave or
// master clock.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening PHC device %s: %w", path, err)
	}
	return &Device{f: f}, nil
}

// OpenReadOnly opens the PHC device at path read-only, for use as a PPS
// source: the engine only ever arms extts events and reads from it.
func OpenReadOnly(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening PPS device %s: %w", path, err)
	}
	return &Device{f: f}, nil
}

// Close releases the underlying file descriptor.
func (d *Device) Close() error {
	return d.f.Close()
}

// Fd returns the underlying file descriptor.
func (d *Device) Fd() uintptr { return d.f.Fd() }

// ClockID returns this device's dynamic clock id.
func (d *Device) ClockID() int32 { return FDToClockID(d.Fd()) }

func (d *Device) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.Fd(), req, uintptr(arg))
	if errno != 0 {
		return fmt.Errorf("ioctl %d on %s: %w", req, d.f.Name(), errno)
	}
	return nil
}

// ReadSysoffExtended issues PTP_SYS_OFFSET_EXTENDED asking for nsamples
// bracketed (sys, phc, sys) readings.
func (d *Device) ReadSysoffExtended(nsamples uint32) (*PTPSysOffsetExtended, error) {
	if nsamples == 0 || nsamples > ptpMaxSamples {
		return nil, fmt.Errorf("nsamples %d out of range [1, %d]", nsamples, ptpMaxSamples)
	}
	res := &PTPSysOffsetExtended{NSamples: nsamples}
	if err := d.ioctl(ioctlPTPSysOffsetExtended, unsafe.Pointer(res)); err != nil {
		return nil, fmt.Errorf("PTP_SYS_OFFSET_EXTENDED: %w", err)
	}
	return res, nil
}

// EnableExtTimestamps arms external-timestamp events on the given pin
// index for rising-edge PPS capture.
func (d *Device) EnableExtTimestamps(index uint32) error {
	req := PTPExttsRequest{Index: index, Flags: PTPEnableFeature | PTPRisingEdge}
	if err := d.ioctl(ioctlPTPExttsRequest, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("PTP_EXTTS_REQUEST: %w", err)
	}
	return nil
}

// DisableExtTimestamps disarms external-timestamp events on index.
func (d *Device) DisableExtTimestamps(index uint32) error {
	req := PTPExttsRequest{Index: index}
	if err := d.ioctl(ioctlPTPExttsRequest, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("PTP_EXTTS_REQUEST (disable): %w", err)
	}
	return nil
}

// ReadEvent blocks (via poll, up to timeout) for the next extts event and
// returns its timestamp. A timeout with no event returns an error wrapping
// os.ErrDeadlineExceeded so callers can distinguish it from read failures.
func (d *Device) ReadEvent(timeout time.Duration) (PTPExttsEvent, error) {
	pollfd := []unix.PollFd{{Fd: int32(d.Fd()), Events: unix.POLLIN | unix.POLLPRI}}
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return PTPExttsEvent{}, fmt.Errorf("waiting for extts event: %w", os.ErrDeadlineExceeded)
		}
		n, err := unix.Poll(pollfd, int(remaining.Milliseconds()))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return PTPExttsEvent{}, fmt.Errorf("poll on %s: %w", d.f.Name(), err)
		}
		if n == 0 {
			return PTPExttsEvent{}, fmt.Errorf("waiting for extts event: %w", os.ErrDeadlineExceeded)
		}
		break
	}

	var ev PTPExttsEvent
	buf := (*[unsafe.Sizeof(ev)]byte)(unsafe.Pointer(&ev))[:]
	n, err := d.f.Read(buf)
	if err != nil {
		return PTPExttsEvent{}, fmt.Errorf("reading extts event from %s: %w", d.f.Name(), err)
	}
	if n != len(buf) {
		return PTPExttsEvent{}, fmt.Errorf("short read of extts event from %s: got %d want %d", d.f.Name(), n, len(buf))
	}
	return ev, nil
}

// IfaceToPHCDevice resolves the PHC device path backing a network
// interface via SIOCETHTOOL/ETHTOOL_GET_TS_INFO.
func IfaceToPHCDevice(iface string) (string, error) {
	idx, err := ethtoolPHCIndex(iface)
	if err != nil {
		return "", fmt.Errorf("getting interface %s PHC index: %w", iface, err)
	}
	if idx < 0 {
		return "", fmt.Errorf("interface %s has no associated PHC", iface)
	}
	return fmt.Sprintf("/dev/ptp%d", idx), nil
}
