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

// Package servo implements the PI controller that converts a measured
// clock offset into a frequency correction plus a tri-state action.
package servo

import (
	"math"

	log "github.com/sirupsen/logrus"
)

// State is the action the engine should take for the current sample.
type State uint8

// Servo states, in bootstrap order.
const (
	StateUnlocked State = iota
	StateJump
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateUnlocked:
		return "UNLOCKED"
	case StateJump:
		return "JUMP"
	case StateLocked:
		return "LOCKED"
	default:
		return "UNKNOWN"
	}
}

// freqEstMargin compensates for the fact that the two bootstrap samples
// themselves take non-zero time to read.
const freqEstMargin = 0.001

// Config holds the tunables of the PI servo. Defaults match the source
// tool's defaults: kp=0.7, ki=0.3, no step threshold, +-512000 ppb clamp.
type Config struct {
	KP                 float64
	KI                 float64
	MaxFreqPPB         float64
	StepThreshold      int64 // 0 disables stepping after bootstrap
	FirstStepThreshold int64 // 0 disables stepping on the very first correction
}

// DefaultConfig returns the servo's out-of-the-box tuning.
func DefaultConfig() *Config {
	return &Config{
		KP:                 0.7,
		KI:                 0.3,
		MaxFreqPPB:         512000,
		StepThreshold:      0,
		FirstStepThreshold: 0,
	}
}

// PIServo is a two-phase (bootstrap, then steady-state) proportional-integral
// controller. The first Sample() call only records a reference point; the
// second derives an initial drift estimate from the two samples; every call
// after that runs the standard PI update.
type PIServo struct {
	cfg *Config

	count    int
	offset   [2]int64
	local    [2]uint64
	drift    float64
	lastFreq float64
}

// NewPIServo constructs a servo. freq is the observed free-running
// frequency of the slave clock (negated by the caller before being fed to
// set_freq), used to seed the drift estimate so that the very first
// correction does not overshoot.
func NewPIServo(cfg *Config, freq float64) *PIServo {
	return &PIServo{
		cfg:      cfg,
		lastFreq: freq,
		drift:    freq,
	}
}

// Unlock resets the servo back to its bootstrap phase, e.g. after a
// suspended (leap-ambiguous) interval during which the offset measurement
// cannot be trusted.
func (s *PIServo) Unlock() {
	s.count = 0
}

// State reports the servo's current phase without consuming a sample.
func (s *PIServo) State() State {
	switch s.count {
	case 0:
		return StateUnlocked
	case 1:
		return StateJump
	default:
		return StateLocked
	}
}

// Sample feeds one (offset, timestamp) pair to the controller and returns
// the frequency correction in ppb plus the action the caller should take.
func (s *PIServo) Sample(offsetNS int64, localTS uint64) (ppb float64, state State) {
	state = StateUnlocked
	ppb = s.lastFreq

	absOffset := offsetNS
	if absOffset < 0 {
		absOffset = -absOffset
	}

	switch s.count {
	case 0:
		s.offset[0] = offsetNS
		s.local[0] = localTS
		s.count = 1

	case 1:
		s.offset[1] = offsetNS
		s.local[1] = localTS

		if s.local[0] >= s.local[1] {
			s.count = 0
			break
		}

		localDiff := float64(s.local[1]-s.local[0]) / math.Pow10(9)
		localDiff += localDiff * freqEstMargin
		freqEstInterval := 0.016 / s.cfg.KI
		if freqEstInterval > 1000.0 {
			freqEstInterval = 1000.0
		}
		if localDiff < freqEstInterval {
			log.Warning("servo sample called too often, not enough time passed since the first sample")
			break
		}

		s.drift += (math.Pow10(9) - s.drift) * float64(s.offset[1]-s.offset[0]) / float64(s.local[1]-s.local[0])
		s.drift = clamp(s.drift, s.cfg.MaxFreqPPB)

		if s.cfg.FirstStepThreshold > 0 && s.cfg.FirstStepThreshold < absOffset {
			state = StateJump
		} else {
			state = StateLocked
		}
		ppb = s.drift
		s.count = 2

	default:
		if s.cfg.StepThreshold != 0 && s.cfg.StepThreshold < absOffset {
			s.count = 0
			state = StateUnlocked
			break
		}
		state = StateLocked
		kiTerm := s.cfg.KI * float64(offsetNS)
		ppb = s.cfg.KP*float64(offsetNS) + s.drift + kiTerm
		if ppb < -s.cfg.MaxFreqPPB || ppb > s.cfg.MaxFreqPPB {
			ppb = clamp(ppb, s.cfg.MaxFreqPPB)
		} else {
			s.drift += kiTerm
		}
	}

	s.lastFreq = ppb
	return ppb, state
}

func clamp(v, limit float64) float64 {
	if v < -limit {
		return -limit
	}
	if v > limit {
		return limit
	}
	return v
}
