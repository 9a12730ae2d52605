package session

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/pion/webrtc/v3"
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

func (f *fakeTransport) byType(kind string) []signal.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []signal.Envelope
	for _, env := range f.published {
		if env.Type == kind {
			out = append(out, env)
		}
	}
	return out
}

type fakeTracks struct {
	tracks []webrtc.TrackLocal
}

func (f *fakeTracks) ActiveTracks() []webrtc.TrackLocal { return f.tracks }

func videoTrack(t *testing.T) webrtc.TrackLocal {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "test",
	)
	require.NoError(t, err)
	return track
}

func newTestManager(t *testing.T, tracks ...webrtc.TrackLocal) (*Manager, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	m := NewManager("room-1", "me", tr, &fakeTracks{tracks: tracks}, ICEConfig{}, zerolog.Nop())
	t.Cleanup(m.Close)
	return m, tr
}

// remoteOffer builds a real SDP offer the way a remote peer would.
func remoteOffer(t *testing.T) string {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	_, err = pc.AddTrack(videoTrack(t).(*webrtc.TrackLocalStaticSample))
	require.NoError(t, err)

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, pc.SetLocalDescription(offer))
	return offer.SDP
}

func TestOnJoinWithoutMediaSendsNothing(t *testing.T) {
	m, tr := newTestManager(t)

	m.OnJoin("bob")

	assert.Empty(t, tr.byType(signal.KindOffer))
	assert.Equal(t, StateIdle, m.SessionState("bob"))
}

func TestOnJoinOffersWhenMediaActive(t *testing.T) {
	m, tr := newTestManager(t, videoTrack(t))

	m.OnJoin("bob")

	offers := tr.byType(signal.KindOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, "bob", offers[0].Target)
	assert.Equal(t, "me", offers[0].Sender)

	var p signal.SDPPayload
	require.NoError(t, json.Unmarshal([]byte(offers[0].Payload), &p))
	assert.NotEmpty(t, p.SDP)

	assert.Equal(t, StateOfferSent, m.SessionState("bob"))
}

func TestRejoinResetsSession(t *testing.T) {
	m, tr := newTestManager(t, videoTrack(t))

	m.OnJoin("bob")
	m.OnJoin("bob")

	// One live session, two offers: the second join supersedes the first.
	assert.Equal(t, []string{"bob"}, m.Peers())
	assert.Len(t, tr.byType(signal.KindOffer), 2)
	assert.Equal(t, StateOfferSent, m.SessionState("bob"))
}

func TestOnOfferAnswersDirectly(t *testing.T) {
	m, tr := newTestManager(t, videoTrack(t))

	m.OnOffer("bob", remoteOffer(t))

	answers := tr.byType(signal.KindAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, "bob", answers[0].Target)

	var p signal.SDPPayload
	require.NoError(t, json.Unmarshal([]byte(answers[0].Payload), &p))
	assert.NotEmpty(t, p.SDP)

	assert.Equal(t, StateAnswerPending, m.SessionState("bob"))
}

func TestSecondOfferWins(t *testing.T) {
	m, tr := newTestManager(t, videoTrack(t))

	m.OnOffer("bob", remoteOffer(t))
	m.OnOffer("bob", remoteOffer(t))

	assert.Len(t, tr.byType(signal.KindAnswer), 2)
	assert.Equal(t, []string{"bob"}, m.Peers())
}

func TestMalformedOfferKillsOnlyThatSession(t *testing.T) {
	m, tr := newTestManager(t, videoTrack(t))

	m.OnJoin("alice")
	m.OnOffer("bob", "not valid sdp")

	assert.Empty(t, tr.byType(signal.KindAnswer))
	assert.Equal(t, StateIdle, m.SessionState("bob"))
	// The unrelated session is untouched.
	assert.Equal(t, StateOfferSent, m.SessionState("alice"))
}

func TestUnexpectedAnswerIgnored(t *testing.T) {
	m, _ := newTestManager(t, videoTrack(t))

	// No session at all.
	m.OnAnswer("ghost", "v=0")
	assert.Equal(t, StateIdle, m.SessionState("ghost"))

	// Session exists but is answering, not offering: a stale answer from a
	// superseded exchange must not disturb it.
	m.OnOffer("bob", remoteOffer(t))
	m.OnAnswer("bob", "v=0")
	assert.Equal(t, StateAnswerPending, m.SessionState("bob"))
}

func TestCandidatesForUnknownPeerIgnored(t *testing.T) {
	m, _ := newTestManager(t, videoTrack(t))

	m.OnCandidates("ghost", []string{`{"candidate":"candidate:1 1 udp 1 127.0.0.1 5000 typ host"}`})

	assert.Empty(t, m.Peers())
}

func TestMalformedCandidateDropped(t *testing.T) {
	m, _ := newTestManager(t, videoTrack(t))

	m.OnJoin("bob")
	m.OnCandidates("bob", []string{"{garbage"})

	assert.Equal(t, StateOfferSent, m.SessionState("bob"))
}

func TestSubstituteTracksSkipsUnconnectedSessions(t *testing.T) {
	m, _ := newTestManager(t, videoTrack(t))

	m.OnJoin("bob") // offer-sent, not connected

	n := m.SubstituteTracks([]webrtc.TrackLocal{videoTrack(t)})
	assert.Zero(t, n)
}

func TestConnectionTerminatedRemovesSession(t *testing.T) {
	m, _ := newTestManager(t, videoTrack(t))

	var closed []string
	m.SetPeerClosedHandler(func(peerID string) { closed = append(closed, peerID) })

	m.OnJoin("bob")
	m.OnConnectionTerminated("bob")

	assert.Empty(t, m.Peers())
	assert.Equal(t, []string{"bob"}, closed)
}
