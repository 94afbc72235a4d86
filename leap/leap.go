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

// Package leap is the deterministic leap-second utility the synchronization
// engine delegates ambiguous-second classification to. It is built on the
// system timezone database's leap-second table rather than a hardcoded
// list, so it tracks whatever table the host considers authoritative.
package leap

import (
	"sort"
	"time"

	"github.com/clocksyncd/clocksyncd/leapsectz"
)

// Table is a sorted view of the system's scheduled leap second
// boundaries. Duplicate entries are kept as they appear in the source.
type Table struct {
	boundaries []time.Time
}

// Load reads the leap second table from the system timezone database.
func Load() (*Table, error) {
	entries, err := leapsectz.Parse()
	if err != nil {
		return nil, err
	}
	boundaries := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		boundaries = append(boundaries, e.Time())
	}
	sort.Slice(boundaries, func(i, j int) bool { return boundaries[i].Before(boundaries[j]) })
	return &Table{boundaries: boundaries}, nil
}

// NewTableForTest builds a Table from raw UnixNano boundaries, for tests
// in other packages that need a leap table without reading tzdata.
func NewTableForTest(boundariesNS []uint64) *Table {
	boundaries := make([]time.Time, len(boundariesNS))
	for i, ns := range boundariesNS {
		boundaries[i] = time.Unix(0, int64(ns)).UTC()
	}
	sort.Slice(boundaries, func(i, j int) bool { return boundaries[i].Before(boundaries[j]) })
	return &Table{boundaries: boundaries}
}

// IsAmbiguous reports whether ts falls within the second immediately
// preceding a scheduled leap boundary - the one interval during which UTC
// does not uniquely determine TAI.
func (t *Table) IsAmbiguous(ts time.Time) bool {
	for _, b := range t.boundaries {
		if !ts.Before(b.Add(-time.Second)) && ts.Before(b) {
			return true
		}
	}
	return false
}

// Next returns the next scheduled boundary at or after ts, if any.
func (t *Table) Next(ts time.Time) (time.Time, bool) {
	for _, b := range t.boundaries {
		if !b.Before(ts) {
			return b, true
		}
	}
	return time.Time{}, false
}
