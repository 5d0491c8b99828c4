// File: internal/echo/codec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Wire layout of echo messages inside pool blocks:
//
//	+----------------+-----------------+
//	| length (4, BE) | payload[length] |
//	+----------------+-----------------+

package echo

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/momentics/hioload-msgpool/msgpool"
	"github.com/momentics/hioload-msgpool/pool"
)

// HeaderSize is the length prefix size.
const HeaderSize = 4

// ErrMalformed is returned for blocks whose header disagrees with their size.
var ErrMalformed = errors.New("echo: malformed message")

// MaxPayload returns the largest payload a pool with the given maximum
// message size can carry.
func MaxPayload(maxMessageSize int) int {
	if maxMessageSize <= HeaderSize {
		return 0
	}
	return maxMessageSize - HeaderSize
}

// Encode allocates a message from p holding payload.
func Encode(p *msgpool.Pool, payload []byte) (*pool.Message, error) {
	m, err := p.Alloc(HeaderSize + len(payload))
	if err != nil {
		return nil, err
	}
	buf := m.Bytes()
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return m, nil
}

// Decode returns the payload of m. The slice aliases the block and is only
// valid until m is freed.
func Decode(m *pool.Message) ([]byte, error) {
	buf := m.Bytes()
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: %d byte block", ErrMalformed, len(buf))
	}
	n := int(binary.BigEndian.Uint32(buf))
	if n != len(buf)-HeaderSize {
		return nil, fmt.Errorf("%w: length %d in %d byte block", ErrMalformed, n, len(buf))
	}
	return buf[HeaderSize:], nil
}

// Release frees m with its encoded size, catching class mismatches.
func Release(p *msgpool.Pool, m *pool.Message) error {
	return p.FreeSized(m, m.Len())
}
