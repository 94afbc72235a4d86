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

package phc

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ethtool command/ifreq plumbing, from linux/sockios.h and linux/ethtool.h.
const (
	siocEthtool       = 0x8946
	ethtoolGetTSInfo  = 0x00000041
	maxTxTypes        = 16
	maxRxFilters      = 16
)

// ethtoolTSInfo mirrors struct ethtool_ts_info.
type ethtoolTSInfo struct {
	Cmd            uint32
	SoTimestamping uint32
	PHCIndex       int32
	TxTypes        uint32
	TxReserved     [3]uint32
	RxFilters      uint32
	RxReserved     [3]uint32
}

type ifreqData struct {
	name [unix.IFNAMSIZ]byte
	data unsafe.Pointer
}

// ethtoolPHCIndex returns the PHC index backing iface, or -1 if the
// interface has no associated hardware clock.
func ethtoolPHCIndex(iface string) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return 0, fmt.Errorf("opening control socket: %w", err)
	}
	defer unix.Close(fd)

	info := ethtoolTSInfo{Cmd: ethtoolGetTSInfo}
	var req ifreqData
	copy(req.name[:], iface)
	req.data = unsafe.Pointer(&info)

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), siocEthtool, uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		return 0, fmt.Errorf("SIOCETHTOOL on %s: %w", iface, errno)
	}
	return int(info.PHCIndex), nil
}
