// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ishmemproxy

import (
	"sync"

	"github.com/cloudwego/gopkg/container/ring"
)

// proxyMessage is one fixed-size diagnostic message buffer, sized so a
// formatted validation failure or print request always fits without an
// allocation (spec.md §4.G, §7: validation failures are reported through
// a bounded side channel rather than growing the request itself).
type proxyMessage struct {
	text [MaxProxyMsgSize]byte
	n    int
}

// MessagePool is the fixed-capacity, round-robin pool of diagnostic
// message buffers shared by every work-item. It is deliberately not a
// sync.Pool: buffers here are not garbage-collected and reclaimed by
// demand, they are recycled in a fixed cycle of NumMessages slots, the
// same GC-friendly ring.Ring the rest of the pack reaches for when a
// fixed-size pool of reusable structs needs no allocation on the hot
// path (cloudwego-gopkg/container/ring).
type MessagePool struct {
	mu   sync.Mutex
	r    *ring.Ring[proxyMessage]
	next int
}

// NewMessagePool creates a pool of NumMessages diagnostic buffers.
func NewMessagePool() *MessagePool {
	return &MessagePool{r: ring.NewFromSlice(make([]proxyMessage, NumMessages))}
}

// Put copies msg (truncated to MaxProxyMsgSize) into the next buffer in
// the cycle and returns its index, for later retrieval with Get.
func (p *MessagePool) Put(msg string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	item, _ := p.r.Get(p.next)
	idx := p.next
	p.next = (p.next + 1) % p.r.Len()

	buf := item.Pointer()
	n := copy(buf.text[:], msg)
	buf.n = n
	return idx
}

// Get returns the text last stored at idx by Put.
func (p *MessagePool) Get(idx int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	item, ok := p.r.Get(idx)
	if !ok {
		return "", false
	}
	v := item.Value()
	return string(v.text[:v.n]), true
}
