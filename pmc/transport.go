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
	"net"
	"os"
	"path/filepath"
)

// UnixTransport is a Transport backed by a Unix-domain datagram socket
// dialed to an external PTP daemon's management endpoint. It binds its own
// per-process local path so the daemon's replies route back to us.
type UnixTransport struct {
	conn      *net.UnixConn
	localPath string
}

// DialUnix opens a management transport to address, a Unix-domain
// datagram socket path (e.g. "/var/run/phc2sys").
func DialUnix(address string) (*UnixTransport, error) {
	remote, err := net.ResolveUnixAddr("unixgram", address)
	if err != nil {
		return nil, fmt.Errorf("resolving management address %s: %w", address, err)
	}

	localPath := filepath.Join(os.TempDir(), fmt.Sprintf("clocksyncd.%d.sock", os.Getpid()))
	local, err := net.ResolveUnixAddr("unixgram", localPath)
	if err != nil {
		return nil, fmt.Errorf("resolving local management socket: %w", err)
	}

	conn, err := net.DialUnix("unixgram", local, remote)
	if err != nil {
		return nil, fmt.Errorf("dialing management socket %s: %w", address, err)
	}
	if err := os.Chmod(localPath, 0666); err != nil {
		conn.Close()
		return nil, fmt.Errorf("chmod local management socket: %w", err)
	}

	return &UnixTransport{conn: conn, localPath: localPath}, nil
}

// Read implements Transport.
func (t *UnixTransport) Read(b []byte) (int, error) { return t.conn.Read(b) }

// Write implements Transport.
func (t *UnixTransport) Write(b []byte) (int, error) { return t.conn.Write(b) }

// Fd returns the underlying socket's file descriptor for use with poll(2).
func (t *UnixTransport) Fd() uintptr {
	raw, err := t.conn.SyscallConn()
	if err != nil {
		return 0
	}
	var fd uintptr
	_ = raw.Control(func(f uintptr) { fd = f })
	return fd
}

// Close releases the socket and removes the local bind path.
func (t *UnixTransport) Close() error {
	err := t.conn.Close()
	_ = os.Remove(t.localPath)
	return err
}
