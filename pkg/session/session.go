// Package session owns the lifecycle of the direct media connections
// between this participant and every remote peer in the room: one
// peer-connection state machine per remote identity, driven by signaling
// envelopes and repaired by idempotent resets.
package session

import (
	"github.com/pion/webrtc/v3"
)

// ConnState is the lifecycle state of a peer session.
type ConnState int

const (
	StateIdle ConnState = iota
	StateOfferSent
	StateAnswerPending
	StateConnected
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferSent:
		return "offer-sent"
	case StateAnswerPending:
		return "answer-pending"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// candidateBatchSize is how many ICE candidates accumulate before a batch
// is flushed to the peer. The remainder flushes when gathering completes.
const candidateBatchSize = 5

// Session tracks one remote peer: the underlying connection, the RTP
// senders for our outbound tracks keyed by track kind, and any inbound
// remote tracks once media starts flowing. At most one Session exists per
// peer identity; a replacement always tears the old one down first.
type Session struct {
	PeerID string

	state   ConnState
	pc      *webrtc.PeerConnection
	senders map[string]*webrtc.RTPSender // "audio"/"video" -> sender

	remoteTracks map[string]*webrtc.TrackRemote

	// Outbound candidate batch, guarded by the owning manager's lock.
	pendingCandidates []string
}

// State returns the session's lifecycle state.
func (s *Session) State() ConnState {
	return s.state
}

// close tears down the underlying connection. Closing the connection
// cancels in-flight ICE gathering, so a superseded session cannot come back
// to mutate anything.
func (s *Session) close() {
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	s.pendingCandidates = nil
	if s.pc != nil {
		s.pc.Close()
	}
}
