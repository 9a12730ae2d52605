package playback

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomaslejdung/watchroom/pkg/signal"
)

// Viewer reconciles a local shadow of the host's playback state against the
// broadcasts it receives, drives the local Player accordingly, and watches
// for heartbeat silence to detect a host that vanished without saying
// goodbye.
type Viewer struct {
	player Player
	log    zerolog.Logger

	mu       sync.Mutex
	state    State
	lastBeat time.Time
	departed bool // terminal: host announced it was leaving

	// onChange, when set, is called with the new shadow state after every
	// transition. UI layers hang their rendering off this.
	onChange func(State)

	now func() time.Time
}

// NewViewer creates the viewer-side coordinator around a local player.
func NewViewer(player Player, log zerolog.Logger) *Viewer {
	if player == nil {
		player = NopPlayer{}
	}
	return &Viewer{
		player: player,
		log:    log.With().Str("component", "playback-viewer").Logger(),
		state:  Idle(),
		now:    time.Now,
	}
}

// SetChangeHandler installs the state-transition callback.
func (v *Viewer) SetChangeHandler(fn func(State)) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

// State returns the current shadow state.
func (v *Viewer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Departed reports whether the host announced a graceful exit.
func (v *Viewer) Departed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.departed
}

// OnSync applies one sync command to the shadow state. Implements
// signal.SyncHandler. Safe to call with duplicated or stale commands: every
// branch adopts-on-difference rather than assuming ordering.
func (v *Viewer) OnSync(cmd signal.SyncCommand) {
	v.mu.Lock()
	defer v.mu.Unlock()

	// Any command proves the host is alive. A control delta can establish
	// media state up to a full interval before the first heartbeat arrives,
	// and the watchdog must not wipe it in between.
	v.lastBeat = v.now()

	switch cmd.Type {
	case signal.SyncLoad:
		v.state = State{Kind: MediaFile, Descriptor: cmd.Descriptor}
		v.changedLocked()
	case signal.SyncLoadExternal:
		v.state = State{Kind: MediaExternal, Descriptor: cmd.Reference}
		v.changedLocked()
	case signal.SyncScreenShare:
		v.state = State{Kind: MediaScreen, Playing: true}
		v.changedLocked()
	case signal.SyncPlay:
		v.state.Playing = true
		v.resumeLocked()
		v.changedLocked()
	case signal.SyncPause:
		v.state.Playing = false
		v.player.Pause()
		v.changedLocked()
	case signal.SyncStop:
		v.state = Idle()
		v.player.Pause()
		v.changedLocked()
	case signal.SyncHeartbeat:
		v.applyHeartbeatLocked(cmd)
	default:
		v.log.Debug().Str("cmd", cmd.Type).Msg("ignoring unknown sync command")
	}
}

// applyHeartbeatLocked reconciles against a full snapshot. Position is
// recorded but never seeked to: seeking happens only on an explicit resume,
// otherwise every heartbeat would visibly stutter playback.
func (v *Viewer) applyHeartbeatLocked(cmd signal.SyncCommand) {
	kind := MediaKind(cmd.MediaKind)
	if kind != v.state.Kind || cmd.Descriptor != v.state.Descriptor {
		v.log.Info().
			Str("kind", cmd.MediaKind).
			Str("descriptor", cmd.Descriptor).
			Msg("adopting media state from heartbeat")
		v.state.Kind = kind
		v.state.Descriptor = cmd.Descriptor
	}

	v.state.HostTime = cmd.Time

	if cmd.Playing != v.state.Playing {
		v.state.Playing = cmd.Playing
		if cmd.Playing {
			v.resumeLocked()
		} else {
			v.player.Pause()
		}
	}

	v.changedLocked()
}

// OnHostLeft handles the explicit graceful-departure broadcast: the viewer
// enters a terminal countdown and resets once the grace window passes.
// Implements signal.SyncHandler.
func (v *Viewer) OnHostLeft() {
	v.mu.Lock()
	if v.departed {
		v.mu.Unlock()
		return
	}
	v.departed = true
	v.changedLocked()
	v.mu.Unlock()

	v.log.Info().Msg("host left, closing room shortly")

	time.AfterFunc(DepartureGrace, func() {
		v.mu.Lock()
		v.state = Idle()
		v.player.Pause()
		v.changedLocked()
		v.mu.Unlock()
	})
}

// Run drives the watchdog until ctx is cancelled.
func (v *Viewer) Run(ctx context.Context) {
	ticker := time.NewTicker(WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.watchdogTick()
		}
	}
}

// watchdogTick resets to idle when the host has been silent for too long.
// This is the only mechanism that notices an ungraceful host disconnect.
func (v *Viewer) watchdogTick() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state.Kind == MediaNone || v.departed {
		return
	}
	if v.now().Sub(v.lastBeat) <= StaleAfter {
		return
	}

	v.log.Warn().
		Time("lastHeartbeat", v.lastBeat).
		Msg("no heartbeat from host, resetting playback state")
	v.state = Idle()
	v.lastBeat = v.now() // re-arm so the reset fires once per silence
	v.player.Pause()
	v.changedLocked()
}

// resumeLocked performs the local resume action: a streamed source resumes
// at the live edge of its buffer, an external player seeks to the last
// position the host reported.
func (v *Viewer) resumeLocked() {
	switch v.state.Kind {
	case MediaExternal:
		v.player.Seek(v.state.HostTime)
	case MediaFile, MediaScreen:
		v.player.JumpToLive()
	}
	v.player.Play()
}

func (v *Viewer) changedLocked() {
	if v.onChange != nil {
		v.onChange(v.state)
	}
}
