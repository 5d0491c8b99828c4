// File: pool/message.go
// Author: momentics <momentics@gmail.com>
//
// Owned message handle.

package pool

// Message is an owned reference to a block carved from a BlockAllocator.
// Exactly one goroutine owns a message at a time: the producer until Post,
// the channel while queued, the consumer after Wait/TryWait returns it.
type Message struct {
	data  []byte
	class int32
	index int32
	owner *BlockAllocator
}

// Bytes returns the message payload region. Nil after Free.
func (m *Message) Bytes() []byte { return m.data }

// Len returns the size requested at Alloc time.
func (m *Message) Len() int { return len(m.data) }

// Cap returns the block size of the message's class.
func (m *Message) Cap() int { return cap(m.data) }

// Resize changes the visible length within the block.
func (m *Message) Resize(n int) bool {
	if n < 0 || n > cap(m.data) {
		return false
	}
	m.data = m.data[:n]
	return true
}
