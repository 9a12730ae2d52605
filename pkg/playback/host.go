package playback

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomaslejdung/watchroom/pkg/signal"
)

// Host broadcasts the authoritative playback state for a room. Control
// changes go out immediately as deltas; a repeating heartbeat carries the
// full snapshot so late joiners and viewers that missed a delta converge
// anyway.
type Host struct {
	roomID string
	selfID string
	tr     signal.Transport
	player Player
	log    zerolog.Logger

	mu    sync.Mutex
	state State

	now func() time.Time
}

// NewHost creates the host-side coordinator. player provides the playhead
// position stamped into heartbeats; pass NopPlayer for sources without a
// meaningful position (screen share).
func NewHost(roomID, selfID string, tr signal.Transport, player Player, log zerolog.Logger) *Host {
	if player == nil {
		player = NopPlayer{}
	}
	return &Host{
		roomID: roomID,
		selfID: selfID,
		tr:     tr,
		player: player,
		log:    log.With().Str("component", "playback-host").Str("room", roomID).Logger(),
		state:  Idle(),
		now:    time.Now,
	}
}

// State returns the host's authoritative state.
func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Load announces a file source. Playback starts paused.
func (h *Host) Load(descriptor string) {
	h.mu.Lock()
	h.state = State{Kind: MediaFile, Descriptor: descriptor}
	h.mu.Unlock()
	h.broadcast(signal.SyncCommand{Type: signal.SyncLoad, Descriptor: descriptor})
}

// LoadExternal announces an externally-hosted video by reference.
func (h *Host) LoadExternal(reference string) {
	h.mu.Lock()
	h.state = State{Kind: MediaExternal, Descriptor: reference}
	h.mu.Unlock()
	h.broadcast(signal.SyncCommand{Type: signal.SyncLoadExternal, Reference: reference})
}

// ScreenShare announces a live screen-share source.
func (h *Host) ScreenShare() {
	h.mu.Lock()
	h.state = State{Kind: MediaScreen, Playing: true}
	h.mu.Unlock()
	h.broadcast(signal.SyncCommand{Type: signal.SyncScreenShare})
}

// Play resumes playback for the room.
func (h *Host) Play() {
	h.mu.Lock()
	h.state.Playing = true
	h.mu.Unlock()
	h.broadcast(signal.SyncCommand{Type: signal.SyncPlay})
}

// Pause pauses playback for the room.
func (h *Host) Pause() {
	h.mu.Lock()
	h.state.Playing = false
	h.mu.Unlock()
	h.broadcast(signal.SyncCommand{Type: signal.SyncPause})
}

// Stop clears the active media and returns the room to idle.
func (h *Host) Stop() {
	h.mu.Lock()
	h.state = Idle()
	h.mu.Unlock()
	h.broadcast(signal.SyncCommand{Type: signal.SyncStop})
}

// Run emits heartbeats until ctx is cancelled. Heartbeats only flow while
// media is active; they are the sole full-state recovery channel for
// late-joining or desynchronized viewers.
func (h *Host) Run(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.heartbeat()
		}
	}
}

// Leave broadcasts the graceful-departure event, then holds the process for
// the propagation grace window before returning. Distinct from a crash: the
// watchdog path never fires for a host that left this way.
func (h *Host) Leave(ctx context.Context) {
	h.publish(signal.Envelope{
		Type:    signal.KindHostLeft,
		RoomID:  h.roomID,
		Sender:  h.selfID,
		Content: "Host has left the room.",
	})

	select {
	case <-ctx.Done():
	case <-time.After(DepartureGrace):
	}
}

func (h *Host) heartbeat() {
	h.mu.Lock()
	st := h.state
	if st.Kind != MediaNone && st.Kind != MediaScreen {
		st.HostTime = h.player.CurrentTime()
		h.state.HostTime = st.HostTime
	}
	h.mu.Unlock()

	if st.Kind == MediaNone {
		return
	}

	h.broadcast(signal.SyncCommand{
		Type:       signal.SyncHeartbeat,
		MediaKind:  string(st.Kind),
		Descriptor: st.Descriptor,
		Time:       st.HostTime,
		Playing:    st.Playing,
		SentAt:     h.now().UnixMilli(),
	})
}

func (h *Host) broadcast(cmd signal.SyncCommand) {
	env, err := signal.EncodeSync(h.roomID, h.selfID, cmd)
	if err != nil {
		h.log.Error().Err(err).Str("cmd", cmd.Type).Msg("encoding sync command failed")
		return
	}
	h.publish(env)
}

func (h *Host) publish(env signal.Envelope) {
	if err := h.tr.Publish(env); err != nil {
		// Fire-and-forget: a lost broadcast is recovered by the next
		// heartbeat, so log and move on.
		h.log.Warn().Err(err).Str("type", env.Type).Msg("publish failed")
	}
}
