// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations: channel identifiers and scale signals.

package api

import "fmt"

// ChannelID addresses one channel of a message pool.
type ChannelID int

const (
	// Upstream carries requests from the I/O front end to workers.
	Upstream ChannelID = iota
	// Downstream carries replies from workers back to the I/O front end.
	Downstream

	// DefaultChannels is the channel count of a pool built without explicit channel config.
	DefaultChannels = 2
)

func (c ChannelID) String() string {
	switch c {
	case Upstream:
		return "upstream"
	case Downstream:
		return "downstream"
	default:
		return fmt.Sprintf("channel-%d", int(c))
	}
}

// ParseChannelName maps a configured channel name to its identifier.
// Names other than upstream/downstream use the "channel-N" form.
func ParseChannelName(name string) (ChannelID, error) {
	switch name {
	case "upstream":
		return Upstream, nil
	case "downstream":
		return Downstream, nil
	}
	var n int
	if _, err := fmt.Sscanf(name, "channel-%d", &n); err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
	return ChannelID(n), nil
}

// SignalKind enumerates depth watcher notifications.
type SignalKind int

const (
	// SignalScaleUp fires when depth crosses the adaptive upper watermark.
	SignalScaleUp SignalKind = iota + 1
	// SignalEmpty fires when a channel that was above its watermark drains.
	SignalEmpty
)

func (k SignalKind) String() string {
	switch k {
	case SignalScaleUp:
		return "scale-up"
	case SignalEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Signal is the payload emitted by a depth watcher.
type Signal struct {
	Channel ChannelID
	Kind    SignalKind
	Depth   int
}

func (s Signal) String() string {
	return fmt.Sprintf("%s %s(%d)", s.Channel, s.Kind, s.Depth)
}
