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

package pmc

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Transport is what Client polls and exchanges management messages over.
// Satisfied by *net.UnixConn via UnixTransport, and fakeable in tests.
type Transport interface {
	io.ReadWriter
	Fd() uintptr
}

// CycleResult reports what, if anything, a single non-blocking cycle
// observed. Complete is set once the cursor has walked off the end of the
// fixed data-set list within one invocation.
type CycleResult struct {
	Complete bool

	PortDataSetSeen bool
	PortState       PortState

	TimePropertiesSeen bool
	CurrentUTCOffset   int16
	Leap               int // -1, 0, +1
}

// Client is the non-blocking management-channel state machine: it cycles
// through [PORT_DATA_SET, TIME_PROPERTIES_DATA_SET], one poll-driven step
// per Cycle call.
type Client struct {
	conn      Transport
	source    PortIdentity
	sequence  uint16
	idx       int
	requested bool
}

// New wraps an already-connected transport. source identifies this process
// as the PTP port making the request (conventionally seeded from the PID).
func New(conn Transport, source PortIdentity) *Client {
	return &Client{conn: conn, source: source}
}

// currentDataset advances past any data set the caller's capability flags
// say to skip, returning false once the cursor has exhausted the list.
func (c *Client) currentDataset(waitSync, getUTCOffset bool) (ManagementID, bool) {
	for {
		switch c.idx {
		case 0:
			if !waitSync {
				c.idx++
				continue
			}
			return IDPortDataSet, true
		case 1:
			if !getUTCOffset {
				c.idx++
				continue
			}
			return IDTimePropertiesDataSet, true
		default:
			return 0, false
		}
	}
}

// Cycle runs one non-blocking step of the state machine: poll with
// timeoutMs, then send a pending GET, or consume a pending response, or
// report "incomplete" on timeout. It never blocks longer than timeoutMs.
func (c *Client) Cycle(timeoutMs int, waitSync, getUTCOffset bool) (CycleResult, error) {
	id, ok := c.currentDataset(waitSync, getUTCOffset)
	if !ok {
		c.idx = 0
		c.requested = false
		return CycleResult{Complete: true}, nil
	}

	events := int16(unix.POLLIN | unix.POLLPRI)
	if !c.requested {
		events |= unix.POLLOUT
	}
	pfd := []unix.PollFd{{Fd: int32(c.conn.Fd()), Events: events}}

	n, err := pollRetryEINTR(pfd, timeoutMs)
	if err != nil {
		return CycleResult{}, fmt.Errorf("polling management transport: %w", err)
	}
	if n == 0 {
		c.requested = false
		return CycleResult{}, nil
	}

	if pfd[0].Revents&(unix.POLLIN|unix.POLLPRI) != 0 {
		return c.handleReadable(id)
	}

	if !c.requested && pfd[0].Revents&unix.POLLOUT != 0 {
		if err := c.sendGet(id); err != nil {
			return CycleResult{}, err
		}
	}
	return CycleResult{}, nil
}

func (c *Client) sendGet(id ManagementID) error {
	c.sequence++
	req := buildRequest(id, c.sequence, c.source)
	b, err := req.marshal()
	if err != nil {
		return fmt.Errorf("building management request: %w", err)
	}
	if _, err := c.conn.Write(b); err != nil {
		return fmt.Errorf("sending management request: %w", err)
	}
	c.requested = true
	return nil
}

func (c *Client) handleReadable(wantID ManagementID) (CycleResult, error) {
	buf := make([]byte, 1500)
	n, err := c.conn.Read(buf)
	if err != nil {
		return CycleResult{}, fmt.Errorf("reading management response: %w", err)
	}

	msg, err := unmarshal(buf[:n])
	if err != nil {
		log.Debugf("pmc: discarding malformed management message: %v", err)
		return CycleResult{}, nil
	}
	if msg.action() != ActionResponse || msg.managementTLVHead.ID != wantID {
		// protocol violation or stale reply: silently discarded per contract
		return CycleResult{}, nil
	}

	switch wantID {
	case IDPortDataSet:
		ps := PortState(msg.PortDataSet.PortState)
		if ps == PortStateMaster || ps == PortStateSlave {
			c.idx++
			c.requested = false
		}
		return CycleResult{PortDataSetSeen: true, PortState: ps}, nil

	case IDTimePropertiesDataSet:
		leap := 0
		switch {
		case msg.TimePropertiesDataSet.Flags&flagLeap61 != 0:
			leap = 1
		case msg.TimePropertiesDataSet.Flags&flagLeap59 != 0:
			leap = -1
		}
		c.idx++
		c.requested = false
		return CycleResult{
			TimePropertiesSeen: true,
			CurrentUTCOffset:   msg.TimePropertiesDataSet.CurrentUTCOffset,
			Leap:               leap,
		}, nil
	}
	return CycleResult{}, nil
}

func pollRetryEINTR(fds []unix.PollFd, timeoutMs int) (int, error) {
	for {
		n, err := unix.Poll(fds, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

