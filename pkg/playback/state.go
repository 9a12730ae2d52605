// Package playback implements the host-authoritative playback
// synchronization protocol: the host broadcasts control deltas and periodic
// full-snapshot heartbeats, viewers reconcile their shadow state against
// them and run a liveness watchdog for the host.
package playback

import "time"

// MediaKind identifies what the host is currently streaming.
type MediaKind string

const (
	MediaNone     MediaKind = "NONE"
	MediaFile     MediaKind = "FILE"
	MediaExternal MediaKind = "EXTERNAL"
	MediaScreen   MediaKind = "SCREEN"
)

// State is the room-scoped playback state. The host owns the authoritative
// copy; every viewer keeps a shadow copy that only ever mirrors broadcasts.
type State struct {
	Kind       MediaKind
	Descriptor string  // filename or external-video reference
	Playing    bool
	HostTime   float64 // seconds
}

// Idle is the reset state: no media, paused, position zero.
func Idle() State {
	return State{Kind: MediaNone}
}

const (
	// HeartbeatInterval is how often the host broadcasts a full snapshot
	// while media is active.
	HeartbeatInterval = 2 * time.Second

	// WatchdogInterval is how often a viewer checks heartbeat freshness.
	WatchdogInterval = 2 * time.Second

	// StaleAfter is the silence threshold past which a viewer concludes
	// the host is gone and resets to Idle.
	StaleAfter = 5 * HeartbeatInterval

	// DepartureGrace is how long a leaving host keeps its process alive
	// after broadcasting HOST_LEFT, so the message can propagate. Viewers
	// use the same delay for their terminal countdown.
	DepartureGrace = 5 * time.Second
)
