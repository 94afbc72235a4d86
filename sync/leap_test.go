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
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/clocksyncd/clocksyncd/leap"
	"github.com/clocksyncd/clocksyncd/pmc"
	"github.com/clocksyncd/clocksyncd/servo"
)

// newPMCTestSocketpair returns a connected pair of real unix datagram
// sockets: client is handed to a pmc.Client, daemon stands in for the
// external PTP daemon. A real fd (unlike net.Pipe) is required so the
// client's non-blocking unix.Poll loop behaves as it would in production.
func newPMCTestSocketpair(t *testing.T) (client, daemon *os.File) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	require.NoError(t, err)
	client = os.NewFile(uintptr(fds[0]), "leap-test-client")
	daemon = os.NewFile(uintptr(fds[1]), "leap-test-daemon")
	t.Cleanup(func() { client.Close(); daemon.Close() })
	return client, daemon
}

func TestRunLeapGateProceedsWhenNoLeapPending(t *testing.T) {
	clk := &fakeClock{}
	sv := &fakeServo{nextState: servo.StateLocked}
	c := newTestContext(clk, sv)

	require.Equal(t, leapProceed, c.runLeapGate(0, 1))
}

func TestRunLeapGateArmsKernelLeapWhenPending(t *testing.T) {
	clk := &fakeClock{}
	sv := &fakeServo{nextState: servo.StateLocked}
	c := newTestContext(clk, sv)
	c.IsRTC = true
	c.KernelLeap = true
	c.Leap = 1

	outcome := c.runLeapGate(0, uint64(1700000000)*1e9)
	require.Equal(t, leapProceed, outcome)
	require.Equal(t, []int{1}, clk.leapCalls)
	require.Equal(t, 1, c.LeapSet)
}

func TestRunLeapGateFoldsIntoSyncOffsetWhenKernelLeapDisabled(t *testing.T) {
	clk := &fakeClock{}
	sv := &fakeServo{nextState: servo.StateLocked}
	c := newTestContext(clk, sv)
	c.IsRTC = true
	c.KernelLeap = false
	c.Leap = 1

	c.runLeapGate(0, uint64(1700000000)*1e9)
	require.Empty(t, clk.leapCalls)
	require.Equal(t, int64(1), c.SyncOffset)
	require.Equal(t, 1, c.LeapSet)
}

func TestRunLeapGateSuspendsDuringAmbiguousSecond(t *testing.T) {
	clk := &fakeClock{}
	sv := &fakeServo{nextState: servo.StateLocked}
	c := newTestContext(clk, sv)
	c.IsRTC = true
	c.Leap = 1

	boundaryNS := uint64(1700000000) * 1e9
	tab := leap.NewTableForTest([]uint64{boundaryNS})
	c.LeapTable = tab

	outcome := c.runLeapGate(0, boundaryNS-1)
	require.Equal(t, leapSuspend, outcome)
}

func TestRunLeapGateAppliesTimePropertiesFromPMC(t *testing.T) {
	clk := &fakeClock{}
	sv := &fakeServo{nextState: servo.StateLocked}
	c := newTestContext(clk, sv)
	c.IsRTC = true
	c.KernelLeap = true

	client, daemon := newPMCTestSocketpair(t)
	_, err := daemon.Write(pmc.BuildTimePropertiesResponseForTest(1, 37, 1))
	require.NoError(t, err)

	c.PMC = pmc.New(client, pmc.PortIdentity{})
	c.PMCGetUTCOffset = true

	outcome := c.runLeapGate(0, uint64(1700000000)*1e9)
	require.Equal(t, leapProceed, outcome)
	require.Equal(t, int64(37), c.SyncOffset)
	require.Equal(t, 1, c.Leap)
	require.Equal(t, 1, c.LeapSet)
	require.Equal(t, []int{1}, clk.leapCalls)
}
