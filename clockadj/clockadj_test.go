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
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPPBToTimexPPMRoundTrip(t *testing.T) {
	tx := &unix.Timex{}
	setFreq(tx, 1000.0)
	require.Equal(t, int64(1000.0*PPBToTimexPPM), tx.Freq)
}

func TestSetLeapModes(t *testing.T) {
	tx := &unix.Timex{}
	tx.Status = unix.STA_INS
	require.Equal(t, int32(unix.STA_INS), tx.Status)
}
