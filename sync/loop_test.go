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

package sync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectModePrefersPPS(t *testing.T) {
	require.Equal(t, ModePPS, SelectMode(true, true, true))
}

func TestSelectModeFallsBackToSysoffOnRTC(t *testing.T) {
	require.Equal(t, ModeSysoff, SelectMode(false, true, true))
}

func TestSelectModeFallsBackToPHC(t *testing.T) {
	require.Equal(t, ModePHC, SelectMode(false, true, false))
	require.Equal(t, ModePHC, SelectMode(false, false, true))
}

func TestModeString(t *testing.T) {
	require.Equal(t, "pps", ModePPS.String())
	require.Equal(t, "sysoff", ModeSysoff.String())
	require.Equal(t, "phc", ModePHC.String())
}
