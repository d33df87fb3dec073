// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy

// Protocol constants from spec.md §6.
const (
	// RingN is the default request ring capacity.
	RingN = 4096
	// MaxLocalPEs bounds the number of PEs colocated on one node.
	MaxLocalPEs = 64
	// NumMessages is the size of the diagnostic message-buffer pool.
	NumMessages = 32
	// MaxProxyMsgSize is the byte capacity of one diagnostic message buffer.
	MaxProxyMsgSize = 128
	// UpdateReceiveIntervalMask gates how often the proxy republishes its
	// consumer position: every time (nextReceive & mask) == 0.
	UpdateReceiveIntervalMask = 0x7f
)

// Cutover thresholds (spec.md §4.E). These are tuning values, not
// invariants; they are fixed package constants, and Config has no field
// that overrides them.
const (
	rmaDirectSingleBytes   = 16 * 1024
	rmaDirectWorkGroupBytes = 32 * 1024
	allToAllDirectBytes     = 128
	allToAllDirectWGBytes   = 16 * 1024
	broadcastDirectProduct  = 8 * 1024
	broadcastDirectWGBytes  = 64 * 1024
)
