package session

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"

	"github.com/tomaslejdung/watchroom/pkg/signal"
)

// Default STUN servers for NAT traversal.
var defaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
	{URLs: []string{"stun:stun1.l.google.com:19302"}},
}

// TrackProvider supplies the local tracks to attach when a new connection
// is negotiated. A late-joining peer gets whatever source is active right
// now, so no separate catch-up path exists.
type TrackProvider interface {
	ActiveTracks() []webrtc.TrackLocal
}

// ICEConfig holds optional TURN relay configuration.
type ICEConfig struct {
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Manager owns every peer session for one room. All signaling entry points
// are best-effort and idempotent: a failed send or a malformed remote
// description kills only the affected session, never the manager.
type Manager struct {
	selfID string
	roomID string
	tr     signal.Transport
	tracks TrackProvider
	config webrtc.Configuration
	log    zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	onRemoteTrack func(peerID string, track *webrtc.TrackRemote)
	onPeerClosed  func(peerID string)
}

// NewManager creates the session manager for one room.
func NewManager(roomID, selfID string, tr signal.Transport, tracks TrackProvider, ice ICEConfig, log zerolog.Logger) *Manager {
	servers := make([]webrtc.ICEServer, 0, len(defaultICEServers)+1)
	if !ice.ForceRelay {
		servers = append(servers, defaultICEServers...)
	}
	if ice.TURNServer != "" {
		turn := webrtc.ICEServer{URLs: []string{ice.TURNServer}}
		if ice.TURNUser != "" {
			turn.Username = ice.TURNUser
			turn.Credential = ice.TURNPass
			turn.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, turn)
	}
	policy := webrtc.ICETransportPolicyAll
	if ice.ForceRelay {
		policy = webrtc.ICETransportPolicyRelay
	}

	return &Manager{
		selfID: selfID,
		roomID: roomID,
		tr:     tr,
		tracks: tracks,
		config: webrtc.Configuration{
			ICEServers:         servers,
			ICETransportPolicy: policy,
		},
		log:      log.With().Str("component", "sessions").Str("room", roomID).Logger(),
		sessions: make(map[string]*Session),
	}
}

// SetRemoteTrackHandler installs the callback for inbound media tracks.
func (m *Manager) SetRemoteTrackHandler(fn func(peerID string, track *webrtc.TrackRemote)) {
	m.mu.Lock()
	m.onRemoteTrack = fn
	m.mu.Unlock()
}

// SetPeerClosedHandler installs the callback for session teardown.
func (m *Manager) SetPeerClosedHandler(fn func(peerID string)) {
	m.mu.Lock()
	m.onPeerClosed = fn
	m.mu.Unlock()
}

// OnJoin handles a peer announcing room presence. Any existing session for
// that identity is reset first, so a refresh or rejoin never leaks a
// half-open connection. An offer goes out only when local media is active.
func (m *Manager) OnJoin(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offerLocked(peerID)
}

// ConnectTo initiates a connection to a peer whose identity arrived through
// a side channel rather than a join signal. Same offer logic as OnJoin.
func (m *Manager) ConnectTo(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offerLocked(peerID)
}

func (m *Manager) offerLocked(peerID string) {
	m.closeSessionLocked(peerID)

	local := m.tracks.ActiveTracks()
	if len(local) == 0 {
		return
	}

	s, err := m.newSessionLocked(peerID, local)
	if err != nil {
		m.log.Error().Err(err).Str("peer", peerID).Msg("creating session failed")
		return
	}

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		m.failSessionLocked(s, fmt.Errorf("create offer: %w", err))
		return
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		m.failSessionLocked(s, fmt.Errorf("set local description: %w", err))
		return
	}
	s.state = StateOfferSent

	m.sendDescriptionLocked(s, signal.KindOffer, offer.SDP)
}

// OnOffer handles an inbound offer. Permissive renegotiation: a second
// offer from the same peer always wins over whatever session already
// existed, which absorbs duplicate signals and rejoin races.
func (m *Manager) OnOffer(peerID, sdp string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeSessionLocked(peerID)

	s, err := m.newSessionLocked(peerID, m.tracks.ActiveTracks())
	if err != nil {
		m.log.Error().Err(err).Str("peer", peerID).Msg("creating session failed")
		return
	}
	s.state = StateAnswerPending

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := s.pc.SetRemoteDescription(remote); err != nil {
		m.failSessionLocked(s, fmt.Errorf("set remote offer: %w", err))
		return
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		m.failSessionLocked(s, fmt.Errorf("create answer: %w", err))
		return
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		m.failSessionLocked(s, fmt.Errorf("set local answer: %w", err))
		return
	}

	// Answer goes back to the offerer only, never broadcast.
	m.sendDescriptionLocked(s, signal.KindAnswer, answer.SDP)
}

// OnAnswer applies an answer only when one is actually expected: a session
// must exist for the sender and be in offer-sent state. Anything else is a
// leftover from a superseded session and is silently ignored.
func (m *Manager) OnAnswer(peerID, sdp string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[peerID]
	if !ok || s.state != StateOfferSent {
		m.log.Debug().Str("peer", peerID).Msg("ignoring unexpected answer")
		return
	}

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := s.pc.SetRemoteDescription(remote); err != nil {
		m.failSessionLocked(s, fmt.Errorf("set remote answer: %w", err))
		return
	}
	s.state = StateConnected
}

// OnCandidates appends a batch of remote candidates to the peer's session.
// No session means the connection is not established yet or was already
// superseded; either way the batch is ignored.
func (m *Manager) OnCandidates(peerID string, candidates []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[peerID]
	if !ok || s.state == StateClosed {
		return
	}

	for _, raw := range candidates {
		var init webrtc.ICECandidateInit
		if err := json.Unmarshal([]byte(raw), &init); err != nil {
			m.log.Warn().Err(err).Str("peer", peerID).Msg("dropping malformed candidate")
			continue
		}
		if err := s.pc.AddICECandidate(init); err != nil {
			m.log.Warn().Err(err).Str("peer", peerID).Msg("adding candidate failed")
		}
	}
}

// OnConnectionTerminated removes the session after the transport layer
// reported failure or close.
func (m *Manager) OnConnectionTerminated(peerID string) {
	m.mu.Lock()
	m.closeSessionLocked(peerID)
	fn := m.onPeerClosed
	m.mu.Unlock()

	if fn != nil {
		fn(peerID)
	}
}

// SubstituteTracks swaps the outbound tracks on every connected session in
// place. No renegotiation happens: the RTP senders keep their transceivers,
// only the payload source changes. Returns how many sessions were updated.
func (m *Manager) SubstituteTracks(tracks []webrtc.TrackLocal) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	byKind := make(map[string]webrtc.TrackLocal, len(tracks))
	for _, t := range tracks {
		byKind[t.Kind().String()] = t
	}

	n := 0
	for _, s := range m.sessions {
		if s.state != StateConnected {
			continue
		}
		for kind, sender := range s.senders {
			if err := sender.ReplaceTrack(byKind[kind]); err != nil {
				m.log.Warn().Err(err).Str("peer", s.PeerID).Str("kind", kind).Msg("track substitution failed")
			}
		}
		n++
	}
	return n
}

// Peers returns the identities of all current sessions.
func (m *Manager) Peers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	peers := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		peers = append(peers, id)
	}
	return peers
}

// SessionState reports the state of the session for peerID, or StateIdle
// when none exists.
func (m *Manager) SessionState(peerID string) ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[peerID]; ok {
		return s.state
	}
	return StateIdle
}

// Close tears down every session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		s.close()
		delete(m.sessions, id)
	}
}

// newSessionLocked builds a session with the given local tracks attached
// and all connection callbacks wired. Caller holds the lock.
func (m *Manager) newSessionLocked(peerID string, local []webrtc.TrackLocal) (*Session, error) {
	pc, err := webrtc.NewPeerConnection(m.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	s := &Session{
		PeerID:       peerID,
		state:        StateIdle,
		pc:           pc,
		senders:      make(map[string]*webrtc.RTPSender),
		remoteTracks: make(map[string]*webrtc.TrackRemote),
	}

	for _, t := range local {
		sender, err := pc.AddTrack(t)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
		s.senders[t.Kind().String()] = sender
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		m.queueCandidate(s, candidate)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.mu.Lock()
		if m.sessions[peerID] != s {
			m.mu.Unlock()
			return
		}
		s.remoteTracks[track.Kind().String()] = track
		fn := m.onRemoteTrack
		m.mu.Unlock()

		m.log.Info().Str("peer", peerID).Str("kind", track.Kind().String()).Msg("remote track received")
		if fn != nil {
			fn(peerID, track)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.log.Debug().Str("peer", peerID).Str("state", state.String()).Msg("connection state changed")

		switch state {
		case webrtc.PeerConnectionStateConnected:
			m.mu.Lock()
			if m.sessions[peerID] == s && s.state != StateClosed {
				s.state = StateConnected
			}
			m.mu.Unlock()
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			m.mu.Lock()
			stale := m.sessions[peerID] != s
			m.mu.Unlock()
			if !stale {
				m.OnConnectionTerminated(peerID)
			}
		}
	})

	m.sessions[peerID] = s
	return s, nil
}

// queueCandidate batches outbound candidates: flush at candidateBatchSize,
// and flush the tail when gathering completes (nil candidate).
func (m *Manager) queueCandidate(s *Session, candidate *webrtc.ICECandidate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessions[s.PeerID] != s || s.state == StateClosed {
		return
	}

	if candidate == nil {
		m.flushCandidatesLocked(s)
		return
	}

	data, err := json.Marshal(candidate.ToJSON())
	if err != nil {
		m.log.Warn().Err(err).Str("peer", s.PeerID).Msg("encoding candidate failed")
		return
	}
	s.pendingCandidates = append(s.pendingCandidates, string(data))

	if len(s.pendingCandidates) >= candidateBatchSize {
		m.flushCandidatesLocked(s)
	}
}

func (m *Manager) flushCandidatesLocked(s *Session) {
	if len(s.pendingCandidates) == 0 {
		return
	}
	batch := s.pendingCandidates
	s.pendingCandidates = nil

	payload, err := signal.MarshalPayload(signal.CandidatePayload{Candidates: batch})
	if err != nil {
		m.log.Error().Err(err).Str("peer", s.PeerID).Msg("encoding candidate batch failed")
		return
	}
	m.publishLocked(signal.Envelope{
		Type:    signal.KindCandidate,
		RoomID:  m.roomID,
		Sender:  m.selfID,
		Target:  s.PeerID,
		Payload: payload,
	})
}

func (m *Manager) sendDescriptionLocked(s *Session, kind, sdp string) {
	payload, err := signal.MarshalPayload(signal.SDPPayload{SDP: sdp})
	if err != nil {
		m.failSessionLocked(s, fmt.Errorf("encode %s: %w", kind, err))
		return
	}
	m.publishLocked(signal.Envelope{
		Type:    kind,
		RoomID:  m.roomID,
		Sender:  m.selfID,
		Target:  s.PeerID,
		Payload: payload,
	})
}

func (m *Manager) publishLocked(env signal.Envelope) {
	if err := m.tr.Publish(env); err != nil {
		m.log.Warn().Err(err).Str("type", env.Type).Str("target", env.Target).Msg("publish failed")
	}
}

// failSessionLocked terminates one session after a local error. Only the
// affected session dies.
func (m *Manager) failSessionLocked(s *Session, err error) {
	m.log.Error().Err(err).Str("peer", s.PeerID).Msg("session failed")
	if m.sessions[s.PeerID] == s {
		delete(m.sessions, s.PeerID)
	}
	s.close()
}

func (m *Manager) closeSessionLocked(peerID string) {
	if s, ok := m.sessions[peerID]; ok {
		m.log.Info().Str("peer", peerID).Msg("resetting existing session")
		delete(m.sessions, peerID)
		s.close()
	}
}
