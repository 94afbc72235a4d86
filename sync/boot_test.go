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

func TestDeriveSyncOffsetDirectionTable(t *testing.T) {
	require.Equal(t, 1, DeriveSyncOffsetDirection(false, true))
	require.Equal(t, -1, DeriveSyncOffsetDirection(true, false))
	require.Equal(t, 0, DeriveSyncOffsetDirection(true, true))
	require.Equal(t, 0, DeriveSyncOffsetDirection(false, false))
}

func TestValidatePreconditionsRejectsPPSWithoutRTC(t *testing.T) {
	require.Error(t, ValidatePreconditions(true, false, true))
}

func TestValidatePreconditionsRequiresPPSOrMaster(t *testing.T) {
	require.Error(t, ValidatePreconditions(false, true, false))
	require.NoError(t, ValidatePreconditions(false, true, true))
	require.NoError(t, ValidatePreconditions(true, true, false))
}

func TestBootForcedOffsetSetsDirectionMinusOneAndClosesManagement(t *testing.T) {
	clk := &fakeClock{}
	sv := &fakeServo{}
	c := newTestContext(clk, sv)

	forced := int64(37)
	closeManagement := c.Boot(&forced)
	require.True(t, closeManagement)
	require.Equal(t, -1, c.SyncOffsetDirection)
	require.Equal(t, int64(37), c.SyncOffset)
}

func TestBootDerivesDirectionAndClosesManagementOnlyWhenZero(t *testing.T) {
	clk := &fakeClock{}
	sv := &fakeServo{}
	c := newTestContext(clk, sv)
	c.IsRTC = false
	c.MasterIsRTC = true

	closeManagement := c.Boot(nil)
	require.Equal(t, 1, c.SyncOffsetDirection)
	require.False(t, closeManagement)
}
