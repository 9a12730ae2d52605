// Package media owns the host's outbound media sources and swaps their
// tracks into open peer connections in place, without renegotiation.
package media

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
)

// SourceKind identifies the active local source.
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceCamera
	SourceScreen
	SourceFile
	SourceExternal
)

func (k SourceKind) String() string {
	switch k {
	case SourceCamera:
		return "camera"
	case SourceScreen:
		return "screen"
	case SourceFile:
		return "file"
	case SourceExternal:
		return "external"
	default:
		return "none"
	}
}

// Source is one acquirable media source. Tracks returns the local tracks to
// feed into peer connections; an external reference has none, since viewers
// fetch that media themselves.
type Source interface {
	Kind() SourceKind
	Descriptor() string
	Tracks() []webrtc.TrackLocal
	Close() error
}

// ExternalSource references media hosted elsewhere (e.g. a video platform
// URL). Nothing is streamed peer-to-peer; only the reference travels. It
// carries a wall-clock playhead so the host can still report a position for
// media no local pipeline is decoding.
type ExternalSource struct {
	Reference string

	mu      sync.Mutex
	playing bool
	base    float64   // position in seconds when the clock last rebased
	since   time.Time // when playback last resumed

	now func() time.Time
}

func (e *ExternalSource) Kind() SourceKind { return SourceExternal }
func (e *ExternalSource) Descriptor() string { return e.Reference }
func (e *ExternalSource) Tracks() []webrtc.TrackLocal { return nil }
func (e *ExternalSource) Close() error { return nil }

func (e *ExternalSource) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

// Play starts the playhead clock.
func (e *ExternalSource) Play() {
	e.mu.Lock()
	if !e.playing {
		e.playing = true
		e.since = e.clock()
	}
	e.mu.Unlock()
}

// Pause freezes the playhead.
func (e *ExternalSource) Pause() {
	e.mu.Lock()
	if e.playing {
		e.base += e.clock().Sub(e.since).Seconds()
		e.playing = false
	}
	e.mu.Unlock()
}

// Seek rebases the playhead.
func (e *ExternalSource) Seek(seconds float64) {
	e.mu.Lock()
	e.base = seconds
	e.since = e.clock()
	e.mu.Unlock()
}

// CurrentTime reports the playhead position in seconds.
func (e *ExternalSource) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playing {
		return e.base + e.clock().Sub(e.since).Seconds()
	}
	return e.base
}

// JumpToLive is meaningless for externally-hosted media.
func (e *ExternalSource) JumpToLive() {}
