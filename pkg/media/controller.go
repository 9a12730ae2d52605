package media

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"
)

// Substituter swaps outbound tracks on live connections in place. Returns
// how many connections were updated.
type Substituter interface {
	SubstituteTracks(tracks []webrtc.TrackLocal) int
}

// Announcer broadcasts media changes to the room once a source switch has
// actually taken effect locally.
type Announcer interface {
	Load(descriptor string)
	LoadExternal(reference string)
	ScreenShare()
	Stop()
}

// Controller owns the host's active media source. Switching sources never
// renegotiates: the new source's tracks are substituted into every open
// connection and the change is announced afterwards. A failed acquisition
// changes nothing; the previous source keeps streaming.
//
// The baseline source (normally the camera) is what peers receive whenever
// no richer source is active, and what Stop reverts to.
type Controller struct {
	log zerolog.Logger

	mu       sync.Mutex
	subst    Substituter
	ann      Announcer
	baseline Source
	current  Source
	bitrate  int // encoder hint for sources acquired from now on, kbit/s
}

// NewController creates a controller with the given baseline source, which
// may be nil when no camera is available. The substituter and announcer are
// installed separately since they need the controller to exist first.
func NewController(baseline Source, log zerolog.Logger) *Controller {
	return &Controller{
		log:      log.With().Str("component", "media").Logger(),
		baseline: baseline,
	}
}

// SetBitrateHint sets the target encoder bitrate passed to sources acquired
// from now on. 0 leaves encoders at their defaults.
func (c *Controller) SetBitrateHint(kbps int) {
	c.mu.Lock()
	c.bitrate = kbps
	c.mu.Unlock()
}

// SetSubstituter installs the connection layer that swaps tracks in place.
func (c *Controller) SetSubstituter(s Substituter) {
	c.mu.Lock()
	c.subst = s
	c.mu.Unlock()
}

// SetAnnouncer installs the broadcast hook. Switches made before this is
// set take effect locally but are not announced.
func (c *Controller) SetAnnouncer(a Announcer) {
	c.mu.Lock()
	c.ann = a
	c.mu.Unlock()
}

// ActiveTracks returns the tracks of the active source, falling back to the
// baseline when the active source carries none (external media, no media).
func (c *Controller) ActiveTracks() []webrtc.TrackLocal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeTracksLocked()
}

func (c *Controller) activeTracksLocked() []webrtc.TrackLocal {
	if c.current != nil {
		if tracks := c.current.Tracks(); len(tracks) > 0 {
			return tracks
		}
	}
	if c.baseline != nil {
		return c.baseline.Tracks()
	}
	return nil
}

// Active returns the currently active source, or nil when only the baseline
// is streaming.
func (c *Controller) Active() Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// StartFile begins streaming a local media file to the room. The file is
// opened and its pumps started before anything else changes, so an
// unreadable file leaves the previous source running untouched.
func (c *Controller) StartFile(ctx context.Context, path string) (*FileSource, error) {
	src, err := NewFileSource(path, c.log)
	if err != nil {
		return nil, err
	}
	src.Start(ctx)

	ann := c.swap(src)
	if ann != nil {
		ann.Load(src.Descriptor())
	}
	return src, nil
}

// StartScreenShare switches to a screen-share source. The returned source
// is fed frames by the platform capture layer.
func (c *Controller) StartScreenShare() (*LiveSource, error) {
	c.mu.Lock()
	kbps := c.bitrate
	c.mu.Unlock()

	src, err := NewScreenSource(kbps)
	if err != nil {
		return nil, err
	}

	ann := c.swap(src)
	if ann != nil {
		ann.ScreenShare()
	}
	return src, nil
}

// StartExternal switches to externally-hosted media. Nothing streams
// peer-to-peer; peers fall back to the baseline tracks and fetch the
// referenced media themselves.
func (c *Controller) StartExternal(reference string) {
	ann := c.swap(&ExternalSource{Reference: reference})
	if ann != nil {
		ann.LoadExternal(reference)
	}
}

// Stop releases the active source and reverts every connection to the
// baseline.
func (c *Controller) Stop() {
	ann := c.swap(nil)
	if ann != nil {
		ann.Stop()
	}
}

// Close releases all sources without announcing anything.
func (c *Controller) Close() {
	c.mu.Lock()
	old := c.current
	c.current = nil
	baseline := c.baseline
	c.baseline = nil
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	if baseline != nil {
		baseline.Close()
	}
}

// swap installs src as the active source, substitutes tracks on every live
// connection, and closes the previous source. Substitution happens outside
// the controller lock; the substituter has its own and calls back into
// ActiveTracks on negotiation.
func (c *Controller) swap(src Source) Announcer {
	c.mu.Lock()
	old := c.current
	c.current = src
	tracks := c.activeTracksLocked()
	subst := c.subst
	ann := c.ann
	c.mu.Unlock()

	n := 0
	if subst != nil {
		n = subst.SubstituteTracks(tracks)
	}

	if old != nil {
		old.Close()
	}

	kind := SourceNone
	if src != nil {
		kind = src.Kind()
	}
	c.log.Info().Str("source", kind.String()).Int("connections", n).Msg("media source switched")
	return ann
}

// Play, Pause, Seek, CurrentTime and JumpToLive delegate to the active
// source when it can act as a player (file sources can). This lets the
// controller serve as the playhead for heartbeat stamping.

type player interface {
	Play()
	Pause()
	Seek(seconds float64)
	CurrentTime() float64
	JumpToLive()
}

func (c *Controller) activePlayer() player {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.current.(player); ok {
		return p
	}
	return nil
}

func (c *Controller) Play() {
	if p := c.activePlayer(); p != nil {
		p.Play()
	}
}

func (c *Controller) Pause() {
	if p := c.activePlayer(); p != nil {
		p.Pause()
	}
}

func (c *Controller) Seek(seconds float64) {
	if p := c.activePlayer(); p != nil {
		p.Seek(seconds)
	}
}

func (c *Controller) CurrentTime() float64 {
	if p := c.activePlayer(); p != nil {
		return p.CurrentTime()
	}
	return 0
}

func (c *Controller) JumpToLive() {
	if p := c.activePlayer(); p != nil {
		p.JumpToLive()
	}
}
