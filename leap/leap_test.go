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

package leap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsAmbiguous(t *testing.T) {
	boundary := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	tab := &Table{boundaries: []time.Time{boundary}}

	require.False(t, tab.IsAmbiguous(boundary.Add(-2*time.Second)))
	require.True(t, tab.IsAmbiguous(boundary.Add(-500*time.Millisecond)))
	require.True(t, tab.IsAmbiguous(boundary.Add(-1*time.Nanosecond)))
	require.False(t, tab.IsAmbiguous(boundary))
}

func TestNext(t *testing.T) {
	b1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b2 := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	tab := &Table{boundaries: []time.Time{b1, b2}}

	next, ok := tab.Next(b1.Add(time.Second))
	require.True(t, ok)
	require.Equal(t, b2, next)

	_, ok = tab.Next(b2.Add(time.Second))
	require.False(t, ok)
}
