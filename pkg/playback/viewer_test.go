package playback

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomaslejdung/watchroom/pkg/signal"
)

func TestViewerAdoptsLoadPaused(t *testing.T) {
	player := &fakePlayer{}
	v := NewViewer(player, zerolog.Nop())

	v.OnSync(signal.SyncCommand{Type: signal.SyncLoad, Descriptor: "movie.ivf"})

	assert.Equal(t, State{Kind: MediaFile, Descriptor: "movie.ivf"}, v.State())
	assert.Zero(t, player.plays)
}

func TestViewerResumeSeeksExternalToHostPosition(t *testing.T) {
	player := &fakePlayer{}
	v := NewViewer(player, zerolog.Nop())

	v.OnSync(signal.SyncCommand{Type: signal.SyncLoadExternal, Reference: "https://example.com/v/1"})
	v.OnSync(signal.SyncCommand{
		Type: signal.SyncHeartbeat, MediaKind: string(MediaExternal),
		Descriptor: "https://example.com/v/1", Time: 120.0,
	})
	v.OnSync(signal.SyncCommand{Type: signal.SyncPlay})

	require.Len(t, player.seeks, 1)
	assert.Equal(t, 120.0, player.seeks[0])
	assert.Equal(t, 1, player.plays)
	assert.Zero(t, player.jumps)
}

func TestViewerResumeJumpsStreamedSourceToLive(t *testing.T) {
	player := &fakePlayer{}
	v := NewViewer(player, zerolog.Nop())

	v.OnSync(signal.SyncCommand{Type: signal.SyncLoad, Descriptor: "movie.ivf"})
	v.OnSync(signal.SyncCommand{Type: signal.SyncPlay})

	assert.Equal(t, 1, player.jumps)
	assert.Empty(t, player.seeks)
	assert.Equal(t, 1, player.plays)
}

func TestViewerLateJoinerConvergesFromHeartbeat(t *testing.T) {
	player := &fakePlayer{}
	v := NewViewer(player, zerolog.Nop())

	// First contact with the room is a heartbeat mid-playback.
	v.OnSync(signal.SyncCommand{
		Type: signal.SyncHeartbeat, MediaKind: string(MediaFile),
		Descriptor: "movie.ivf", Time: 300.0, Playing: true,
	})

	st := v.State()
	assert.Equal(t, MediaFile, st.Kind)
	assert.Equal(t, "movie.ivf", st.Descriptor)
	assert.Equal(t, 300.0, st.HostTime)
	assert.True(t, st.Playing)
	assert.Equal(t, 1, player.plays)
}

func TestViewerHeartbeatNeverSeeksWhileConverged(t *testing.T) {
	player := &fakePlayer{}
	v := NewViewer(player, zerolog.Nop())

	v.OnSync(signal.SyncCommand{Type: signal.SyncLoad, Descriptor: "movie.ivf"})
	v.OnSync(signal.SyncCommand{Type: signal.SyncPlay})
	seeksAfterResume := len(player.seeks)

	for i := 0; i < 5; i++ {
		v.OnSync(signal.SyncCommand{
			Type: signal.SyncHeartbeat, MediaKind: string(MediaFile),
			Descriptor: "movie.ivf", Time: float64(10 + i*2), Playing: true,
		})
	}

	// Position is recorded but playback is never disturbed.
	assert.Equal(t, seeksAfterResume, len(player.seeks))
	assert.Equal(t, 18.0, v.State().HostTime)
	assert.Equal(t, 1, player.plays)
}

func TestViewerDuplicateCommandsAreIdempotent(t *testing.T) {
	player := &fakePlayer{}
	v := NewViewer(player, zerolog.Nop())

	v.OnSync(signal.SyncCommand{Type: signal.SyncLoad, Descriptor: "movie.ivf"})
	v.OnSync(signal.SyncCommand{Type: signal.SyncLoad, Descriptor: "movie.ivf"})
	v.OnSync(signal.SyncCommand{Type: signal.SyncPause})
	v.OnSync(signal.SyncCommand{Type: signal.SyncPause})

	assert.Equal(t, State{Kind: MediaFile, Descriptor: "movie.ivf"}, v.State())
}

func TestViewerStopResetsToIdle(t *testing.T) {
	player := &fakePlayer{}
	v := NewViewer(player, zerolog.Nop())

	v.OnSync(signal.SyncCommand{Type: signal.SyncLoad, Descriptor: "movie.ivf"})
	v.OnSync(signal.SyncCommand{Type: signal.SyncPlay})
	v.OnSync(signal.SyncCommand{Type: signal.SyncStop})

	assert.Equal(t, Idle(), v.State())
	assert.False(t, player.playing)
}

func TestViewerWatchdogResetsAfterSilence(t *testing.T) {
	player := &fakePlayer{}
	v := NewViewer(player, zerolog.Nop())

	base := time.Now()
	now := base
	v.now = func() time.Time { return now }

	v.OnSync(signal.SyncCommand{
		Type: signal.SyncHeartbeat, MediaKind: string(MediaFile),
		Descriptor: "movie.ivf", Playing: true,
	})
	require.Equal(t, MediaFile, v.State().Kind)

	// Fresh enough: nothing happens.
	now = base.Add(StaleAfter)
	v.watchdogTick()
	assert.Equal(t, MediaFile, v.State().Kind)

	// Past the threshold: reset to idle.
	now = base.Add(StaleAfter + time.Second)
	v.watchdogTick()
	assert.Equal(t, Idle(), v.State())
	assert.False(t, player.playing)
}

func TestViewerWatchdogWaitsForFirstHeartbeat(t *testing.T) {
	player := &fakePlayer{}
	v := NewViewer(player, zerolog.Nop())

	base := time.Now()
	now := base
	v.now = func() time.Time { return now }

	// A control delta establishes media state before any heartbeat exists;
	// the first heartbeat is up to a full interval away. Ticks in that
	// window must leave the state alone.
	v.OnSync(signal.SyncCommand{Type: signal.SyncLoad, Descriptor: "movie.ivf"})

	now = base.Add(WatchdogInterval)
	v.watchdogTick()
	assert.Equal(t, MediaFile, v.State().Kind)

	// Genuine silence still trips it.
	now = base.Add(StaleAfter + time.Second)
	v.watchdogTick()
	assert.Equal(t, Idle(), v.State())
}

func TestViewerWatchdogFiresOncePerSilence(t *testing.T) {
	player := &fakePlayer{}
	v := NewViewer(player, zerolog.Nop())

	base := time.Now()
	now := base
	v.now = func() time.Time { return now }

	v.OnSync(signal.SyncCommand{
		Type: signal.SyncHeartbeat, MediaKind: string(MediaFile), Playing: true,
	})

	now = base.Add(StaleAfter + time.Second)
	v.watchdogTick()
	pausesAfterReset := player.pauses

	now = now.Add(WatchdogInterval)
	v.watchdogTick()
	assert.Equal(t, pausesAfterReset, player.pauses)
}

func TestViewerWatchdogIdleWithoutMedia(t *testing.T) {
	player := &fakePlayer{}
	v := NewViewer(player, zerolog.Nop())

	v.now = func() time.Time { return time.Now().Add(time.Hour) }
	v.watchdogTick()

	assert.Equal(t, Idle(), v.State())
	assert.Zero(t, player.pauses)
}

func TestViewerHostLeftIsTerminal(t *testing.T) {
	player := &fakePlayer{}
	v := NewViewer(player, zerolog.Nop())

	v.OnSync(signal.SyncCommand{Type: signal.SyncLoad, Descriptor: "movie.ivf"})
	v.OnHostLeft()

	assert.True(t, v.Departed())

	// The watchdog must not race the departure countdown.
	v.now = func() time.Time { return time.Now().Add(time.Hour) }
	v.watchdogTick()
	assert.Equal(t, MediaFile, v.State().Kind)
}

func TestViewerChangeHandlerFires(t *testing.T) {
	v := NewViewer(nil, zerolog.Nop())

	var states []State
	v.SetChangeHandler(func(st State) { states = append(states, st) })

	v.OnSync(signal.SyncCommand{Type: signal.SyncLoad, Descriptor: "movie.ivf"})
	v.OnSync(signal.SyncCommand{Type: signal.SyncPlay})

	require.Len(t, states, 2)
	assert.Equal(t, "movie.ivf", states[0].Descriptor)
	assert.True(t, states[1].Playing)
}
