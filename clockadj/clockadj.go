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

package clockadj

import (
	"fmt"
	"time"
	"unsafe"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// PPBToTimexPPM converts between PPB, this package's unit, and the ppm
// with a 16-bit fractional part that struct timex uses. man(2) clock_adjtime.
const PPBToTimexPPM = 65.536

// clock_adjtime modes, from uapi/linux/timex.h.
const (
	AdjOffset    uint32 = 0x0001
	AdjFrequency uint32 = 0x0002
	AdjMaxError  uint32 = 0x0004
	AdjEstError  uint32 = 0x0008
	AdjStatus    uint32 = 0x0010
	AdjTimeConst uint32 = 0x0020
	AdjTAI       uint32 = 0x0080
	AdjSetOffset uint32 = 0x0100
	AdjMicro     uint32 = 0x1000
	AdjNano      uint32 = 0x2000
	AdjTick      uint32 = 0x4000
)

// Adjtime issues the CLOCK_ADJTIME syscall, either to adjust clockid's
// parameters or, with an empty buf, to read them.
func Adjtime(clockid int32, buf *unix.Timex) (state int, err error) {
	r0, _, errno := unix.Syscall(unix.SYS_CLOCK_ADJTIME, uintptr(clockid), uintptr(unsafe.Pointer(buf)), 0)
	state = int(r0)
	if errno != 0 {
		err = errno
	}
	return state, err
}

// FrequencyPPB reads clockid's current frequency offset in PPB.
func FrequencyPPB(clockid int32) (freqPPB float64, state int, err error) {
	tx := &unix.Timex{}
	state, err = Adjtime(clockid, tx)
	freqPPB = float64(tx.Freq) / PPBToTimexPPM
	return freqPPB, state, err
}

// AdjFreqPPB sets clockid's frequency offset in PPB.
func AdjFreqPPB(clockid int32, freqPPB float64) (state int, err error) {
	tx := &unix.Timex{}
	setFreq(tx, freqPPB)
	tx.Modes = AdjFrequency
	return Adjtime(clockid, tx)
}

// Step shifts clockid discontinuously by the given signed duration.
func Step(clockid int32, step time.Duration) (state int, err error) {
	sign := 1
	if step < 0 {
		sign = -1
		step = -step
	}
	tx := &unix.Timex{}
	tx.Modes = AdjSetOffset | AdjNano
	sec := time.Duration(float64(sign) * (float64(step) / float64(time.Second)))
	usec := time.Duration(sign) * (step % time.Second)
	setTime(tx, sec, usec)
	// the value of a timeval is the sum of its fields; tv_usec must be non-negative.
	if tx.Time.Usec < 0 {
		tx.Time.Sec--
		tx.Time.Usec += 1000000000
	}
	return Adjtime(clockid, tx)
}

// MaxFreqPPB returns the maximum frequency adjustment clockid supports.
func MaxFreqPPB(clockid int32) (freqPPB float64, state int, err error) {
	tx := &unix.Timex{}
	state, err = Adjtime(clockid, tx)
	if err != nil {
		return 0, state, err
	}
	freqPPB = float64(tx.Tolerance) / PPBToTimexPPM
	if freqPPB == 0 {
		freqPPB = 500000
	}
	return freqPPB, state, nil
}

// SetLeap arms (direction != 0) or clears (direction == 0) a kernel-scheduled
// leap second on clockid via STA_INS/STA_DEL.
func SetLeap(clockid int32, direction int) error {
	tx := &unix.Timex{}
	switch {
	case direction > 0:
		tx.Status = unix.STA_INS
	case direction < 0:
		tx.Status = unix.STA_DEL
	}
	tx.Modes = AdjStatus
	_, err := Adjtime(clockid, tx)
	return err
}

// Clock implements the engine's clock capability on top of CLOCK_ADJTIME.
// A silent frequency-read failure is treated as 0, per the contract.
type Clock struct {
	clockid int32
	label   string
}

// New wraps clockid (either CLOCK_REALTIME or an FD-derived PHC clock id)
// into a Clock capability. label is used only for log lines.
func New(clockid int32, label string) *Clock {
	return &Clock{clockid: clockid, label: label}
}

// ClockID returns the raw clock id this capability steers.
func (c *Clock) ClockID() int32 {
	return c.clockid
}

// GetFreq returns the current frequency deviation in PPB, or 0 on error.
func (c *Clock) GetFreq() float64 {
	freq, _, err := FrequencyPPB(c.clockid)
	if err != nil {
		log.Warningf("%s: failed to read frequency: %v", c.label, err)
		return 0
	}
	return freq
}

// SetFreq sets the frequency deviation in PPB. Callers are expected to
// have already clamped ppb to +-512000; SetFreq itself is idempotent.
func (c *Clock) SetFreq(ppb float64) error {
	_, err := AdjFreqPPB(c.clockid, ppb)
	if err != nil {
		return fmt.Errorf("%s: set freq %f ppb: %w", c.label, ppb, err)
	}
	return nil
}

// Step discontinuously shifts the clock by delta.
func (c *Clock) Step(delta time.Duration) error {
	_, err := Step(c.clockid, delta)
	if err != nil {
		return fmt.Errorf("%s: step %s: %w", c.label, delta, err)
	}
	return nil
}

// SetLeap arms or clears a kernel-scheduled leap second.
func (c *Clock) SetLeap(direction int) error {
	if err := SetLeap(c.clockid, direction); err != nil {
		return fmt.Errorf("%s: set leap %d: %w", c.label, direction, err)
	}
	return nil
}
