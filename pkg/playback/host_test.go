package playback

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomaslejdung/watchroom/pkg/signal"
)

type fakeTransport struct {
	mu        sync.Mutex
	published []signal.Envelope
}

func (f *fakeTransport) Publish(env signal.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, env)
	return nil
}

func (f *fakeTransport) Inbound() <-chan signal.Envelope { return nil }
func (f *fakeTransport) Close() {}

func (f *fakeTransport) envelopes() []signal.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]signal.Envelope, len(f.published))
	copy(out, f.published)
	return out
}

func (f *fakeTransport) syncCommands(t *testing.T) []signal.SyncCommand {
	t.Helper()
	var cmds []signal.SyncCommand
	for _, env := range f.envelopes() {
		if env.Type != signal.KindSync {
			continue
		}
		cmd, err := signal.DecodeSync(env)
		require.NoError(t, err)
		cmds = append(cmds, cmd)
	}
	return cmds
}

type fakePlayer struct {
	mu      sync.Mutex
	playing bool
	time    float64
	plays   int
	pauses  int
	seeks   []float64
	jumps   int
}

func (p *fakePlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
	p.plays++
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.pauses++
}

func (p *fakePlayer) Seek(s float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seeks = append(p.seeks, s)
	p.time = s
}

func (p *fakePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.time
}

func (p *fakePlayer) JumpToLive() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jumps++
}

func TestHostBroadcastsControlDeltas(t *testing.T) {
	tr := &fakeTransport{}
	h := NewHost("room-1", "host", tr, nil, zerolog.Nop())

	h.Load("movie.ivf")
	h.Play()
	h.Pause()
	h.Stop()

	cmds := tr.syncCommands(t)
	require.Len(t, cmds, 4)
	assert.Equal(t, signal.SyncLoad, cmds[0].Type)
	assert.Equal(t, "movie.ivf", cmds[0].Descriptor)
	assert.Equal(t, signal.SyncPlay, cmds[1].Type)
	assert.Equal(t, signal.SyncPause, cmds[2].Type)
	assert.Equal(t, signal.SyncStop, cmds[3].Type)
}

func TestHostStateTracksCommands(t *testing.T) {
	tr := &fakeTransport{}
	h := NewHost("room-1", "host", tr, nil, zerolog.Nop())

	h.LoadExternal("https://example.com/v/123")
	assert.Equal(t, State{Kind: MediaExternal, Descriptor: "https://example.com/v/123"}, h.State())

	h.Play()
	assert.True(t, h.State().Playing)

	h.ScreenShare()
	assert.Equal(t, State{Kind: MediaScreen, Playing: true}, h.State())

	h.Stop()
	assert.Equal(t, Idle(), h.State())
}

func TestHostHeartbeatSkippedWhenIdle(t *testing.T) {
	tr := &fakeTransport{}
	h := NewHost("room-1", "host", tr, nil, zerolog.Nop())

	h.heartbeat()

	assert.Empty(t, tr.envelopes())
}

func TestHostHeartbeatCarriesFullSnapshot(t *testing.T) {
	tr := &fakeTransport{}
	player := &fakePlayer{time: 42.5}
	h := NewHost("room-1", "host", tr, player, zerolog.Nop())

	h.Load("movie.ivf")
	h.Play()
	h.heartbeat()

	cmds := tr.syncCommands(t)
	require.Len(t, cmds, 3) // LOAD, PLAY, HEARTBEAT
	hb := cmds[2]
	assert.Equal(t, signal.SyncHeartbeat, hb.Type)
	assert.Equal(t, string(MediaFile), hb.MediaKind)
	assert.Equal(t, "movie.ivf", hb.Descriptor)
	assert.Equal(t, 42.5, hb.Time)
	assert.True(t, hb.Playing)
	assert.NotZero(t, hb.SentAt)
}

func TestHostHeartbeatOmitsPositionForScreenShare(t *testing.T) {
	tr := &fakeTransport{}
	player := &fakePlayer{time: 42.5}
	h := NewHost("room-1", "host", tr, player, zerolog.Nop())

	h.ScreenShare()
	h.heartbeat()

	cmds := tr.syncCommands(t)
	require.Len(t, cmds, 2)
	hb := cmds[1]
	assert.Equal(t, signal.SyncHeartbeat, hb.Type)
	assert.Equal(t, string(MediaScreen), hb.MediaKind)
	assert.Zero(t, hb.Time)
}

func TestHostLeaveBroadcastsDeparture(t *testing.T) {
	tr := &fakeTransport{}
	h := NewHost("room-1", "host", tr, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // skip the grace wait
	h.Leave(ctx)

	envs := tr.envelopes()
	require.Len(t, envs, 1)
	assert.Equal(t, signal.KindHostLeft, envs[0].Type)
	assert.Equal(t, "host", envs[0].Sender)
}
