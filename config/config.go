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

// Package config loads an optional YAML file of defaults for clocksyncd's
// command-line flags, so a flag an operator doesn't pass on the command
// line can still be set by a config file instead of falling back to the
// built-in default.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// File is the optional on-disk configuration, mirroring clocksyncd's
// command-line flags one for one. Every field is a pointer so the loader
// can tell "absent" from "zero value" and leave unset flags alone.
type File struct {
	SlaveClock  *string  `yaml:"slave_clock"`
	PPSDevice   *string  `yaml:"pps_device"`
	MasterClock *string  `yaml:"master_clock"`
	Interface   *string  `yaml:"interface"`

	KP                *float64 `yaml:"kp"`
	KI                *float64 `yaml:"ki"`
	StepThreshold     *float64 `yaml:"step_threshold"`
	UpdateRateHz      *int     `yaml:"update_rate_hz"`
	ReadingsPerSample *int     `yaml:"readings_per_sample"`
	ForcedOffset      *int64   `yaml:"forced_offset"`
	StatsWindow       *int     `yaml:"stats_window"`

	WaitSync   *bool `yaml:"wait_sync"`
	SoftLeap   *bool `yaml:"soft_leap"`
	Verbose    *bool `yaml:"verbose"`
	NoSyslog   *bool `yaml:"no_syslog"`
	LogLevel   *string `yaml:"log_level"`

	MetricsAddr *string `yaml:"metrics_addr"`
	PprofAddr   *string `yaml:"pprof_addr"`
}

// Load parses a YAML config file at path.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &f, nil
}
