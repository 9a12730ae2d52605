package signal

import "github.com/rs/zerolog"

// SessionHandler receives peer-negotiation envelopes.
type SessionHandler interface {
	OnJoin(peerID string)
	OnOffer(peerID, sdp string)
	OnAnswer(peerID, sdp string)
	OnCandidates(peerID string, candidates []string)
}

// SyncHandler receives playback-sync commands and the host-departure event.
type SyncHandler interface {
	OnSync(cmd SyncCommand)
	OnHostLeft()
}

// RosterHandler receives full participant-ID lists.
type RosterHandler interface {
	OnRoster(participants []string)
}

// Router demultiplexes inbound envelopes by type and target.
// Self-echo and envelopes targeted at someone else are dropped before any
// handler sees them; malformed payloads are logged and dropped.
type Router struct {
	selfID  string
	session SessionHandler
	sync    SyncHandler
	roster  RosterHandler
	chat    func(Envelope) // optional passthrough for CHAT events
	log     zerolog.Logger
}

// NewRouter creates a router for the participant identified by selfID.
func NewRouter(selfID string, session SessionHandler, sync SyncHandler, roster RosterHandler, log zerolog.Logger) *Router {
	return &Router{
		selfID:  selfID,
		session: session,
		sync:    sync,
		roster:  roster,
		log:     log.With().Str("component", "router").Logger(),
	}
}

// SetChatHandler installs an optional passthrough for CHAT envelopes.
func (r *Router) SetChatHandler(fn func(Envelope)) {
	r.chat = fn
}

// Route dispatches one envelope. Never returns an error: all failure modes
// here are drop-and-log by design.
func (r *Router) Route(env Envelope) {
	if env.Sender == r.selfID {
		return
	}
	if env.Target != "" && env.Target != r.selfID {
		return
	}

	switch env.Type {
	case KindJoin:
		if r.session != nil {
			r.session.OnJoin(env.Sender)
		}
	case KindOffer:
		sdp, ok := r.decodeSDP(env)
		if ok && r.session != nil {
			r.session.OnOffer(env.Sender, sdp)
		}
	case KindAnswer:
		sdp, ok := r.decodeSDP(env)
		if ok && r.session != nil {
			r.session.OnAnswer(env.Sender, sdp)
		}
	case KindCandidate:
		batch, ok := r.decodeCandidates(env)
		if ok && r.session != nil {
			r.session.OnCandidates(env.Sender, batch)
		}
	case KindSync:
		cmd, err := DecodeSync(env)
		if err != nil {
			r.log.Warn().Err(err).Str("sender", env.Sender).Msg("dropping malformed sync command")
			return
		}
		if r.sync != nil {
			r.sync.OnSync(cmd)
		}
	case KindHostLeft:
		if r.sync != nil {
			r.sync.OnHostLeft()
		}
	case KindParticipants:
		if r.roster != nil {
			r.roster.OnRoster(env.Participants)
		}
	case KindChat, KindUserJoined, KindUserLeft:
		if r.chat != nil {
			r.chat(env)
		}
	default:
		r.log.Debug().Str("type", env.Type).Msg("ignoring unknown envelope type")
	}
}

func (r *Router) decodeSDP(env Envelope) (string, bool) {
	var p SDPPayload
	if err := unmarshalPayload(env.Payload, &p); err != nil || p.SDP == "" {
		r.log.Warn().Str("type", env.Type).Str("sender", env.Sender).Msg("dropping malformed SDP payload")
		return "", false
	}
	return p.SDP, true
}

func (r *Router) decodeCandidates(env Envelope) ([]string, bool) {
	var p CandidatePayload
	if err := unmarshalPayload(env.Payload, &p); err != nil || len(p.Candidates) == 0 {
		r.log.Warn().Str("sender", env.Sender).Msg("dropping malformed candidate payload")
		return nil, false
	}
	return p.Candidates, true
}
