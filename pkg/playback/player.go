package playback

// Player is the uniform control surface over whatever renders the media
// locally: a native video surface for streamed tracks or an embedded
// third-party player for externally-hosted video. The engine only issues
// commands through it and never waits for completion; rendering lives
// entirely outside the core.
type Player interface {
	Play()
	Pause()

	// Seek moves the playhead to an absolute position in seconds.
	Seek(seconds float64)

	// CurrentTime reports the playhead position in seconds.
	CurrentTime() float64

	// JumpToLive seeks to the end of the currently buffered data. Used when
	// resuming a live-streamed source, where time zero is meaningless.
	JumpToLive()
}

// NopPlayer discards all commands. Useful for headless participants and as
// a default before the UI layer attaches a real player.
type NopPlayer struct{}

func (NopPlayer) Play() {}
func (NopPlayer) Pause() {}
func (NopPlayer) Seek(float64) {}
func (NopPlayer) CurrentTime() float64 { return 0 }
func (NopPlayer) JumpToLive() {}
