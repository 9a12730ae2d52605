package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
	"github.com/rs/zerolog"
)

const (
	oggPageDuration = 20 * time.Millisecond
	opusSampleRate  = 48000
)

// FileSource streams a local VP8/IVF video file, plus an Opus/OGG audio
// file next to it if one exists, into sample tracks at frame cadence.
//
// It doubles as the host-side player for playback sync: pausing stops the
// pumps in place and CurrentTime reports how much media has been delivered,
// which is what heartbeats stamp as the authoritative position.
type FileSource struct {
	name  string
	video *webrtc.TrackLocalStaticSample
	audio *webrtc.TrackLocalStaticSample
	log   zerolog.Logger

	videoFile *os.File
	audioFile *os.File

	mu      sync.Mutex
	playing bool
	elapsed time.Duration
	started bool
	cancel  context.CancelFunc
}

// NewFileSource opens path (an IVF file) and a sibling .ogg audio file when
// present. Acquisition failure is fatal to this source only; the caller's
// peer connections are untouched.
func NewFileSource(path string, log zerolog.Logger) (*FileSource, error) {
	videoFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open media file: %w", err)
	}

	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "watchroom-media",
	)
	if err != nil {
		videoFile.Close()
		return nil, fmt.Errorf("create video track: %w", err)
	}

	f := &FileSource{
		name:      filepath.Base(path),
		video:     video,
		log:       log.With().Str("component", "file-source").Str("file", filepath.Base(path)).Logger(),
		videoFile: videoFile,
	}

	audioPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".ogg"
	if audioFile, err := os.Open(audioPath); err == nil {
		audio, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", "watchroom-media",
		)
		if err != nil {
			audioFile.Close()
			videoFile.Close()
			return nil, fmt.Errorf("create audio track: %w", err)
		}
		f.audio = audio
		f.audioFile = audioFile
	}

	return f, nil
}

func (f *FileSource) Kind() SourceKind { return SourceFile }

func (f *FileSource) Descriptor() string { return f.name }

func (f *FileSource) Tracks() []webrtc.TrackLocal {
	tracks := []webrtc.TrackLocal{f.video}
	if f.audio != nil {
		tracks = append(tracks, f.audio)
	}
	return tracks
}

// Start launches the streaming pumps. Idempotent; the source begins paused
// until Play is called.
func (f *FileSource) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return
	}
	f.started = true

	ctx, f.cancel = context.WithCancel(ctx)
	go f.pumpVideo(ctx)
	if f.audio != nil {
		go f.pumpAudio(ctx)
	}
}

// Play resumes streaming.
func (f *FileSource) Play() {
	f.mu.Lock()
	f.playing = true
	f.mu.Unlock()
}

// Pause halts streaming in place.
func (f *FileSource) Pause() {
	f.mu.Lock()
	f.playing = false
	f.mu.Unlock()
}

// Seek is coarse for a pumped file: the elapsed counter moves but frames
// are not skipped. Viewers track the live edge of what they received, so
// stamped time is what matters for convergence.
func (f *FileSource) Seek(seconds float64) {
	f.mu.Lock()
	f.elapsed = time.Duration(seconds * float64(time.Second))
	f.mu.Unlock()
}

// CurrentTime reports how many seconds of media have been streamed.
func (f *FileSource) CurrentTime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elapsed.Seconds()
}

// JumpToLive is a no-op: the pump is always at its own live edge.
func (f *FileSource) JumpToLive() {}

// Close stops the pumps and releases the files.
func (f *FileSource) Close() error {
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.playing = false
	f.mu.Unlock()

	f.videoFile.Close()
	if f.audioFile != nil {
		f.audioFile.Close()
	}
	return nil
}

func (f *FileSource) pumpVideo(ctx context.Context) {
	ivf, header, err := ivfreader.NewWith(f.videoFile)
	if err != nil {
		f.log.Error().Err(err).Msg("parsing IVF header failed")
		return
	}

	frameDuration := time.Duration(
		(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator)) * float64(time.Second),
	)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !f.isPlaying() {
			continue
		}

		frame, _, err := ivf.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			f.log.Info().Msg("reached end of video file")
			f.Pause()
			return
		}
		if err != nil {
			f.log.Error().Err(err).Msg("reading video frame failed")
			return
		}

		if err := f.video.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			f.log.Warn().Err(err).Msg("writing video sample failed")
		}
		f.advance(frameDuration)
	}
}

func (f *FileSource) pumpAudio(ctx context.Context) {
	ogg, _, err := oggreader.NewWith(f.audioFile)
	if err != nil {
		f.log.Error().Err(err).Msg("parsing OGG header failed")
		return
	}

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !f.isPlaying() {
			continue
		}

		pageData, pageHeader, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			f.log.Error().Err(err).Msg("reading audio page failed")
			return
		}

		sampleCount := float64(pageHeader.GranulePosition - lastGranule)
		lastGranule = pageHeader.GranulePosition
		sampleDuration := time.Duration((sampleCount / opusSampleRate) * float64(time.Second))

		if err := f.audio.WriteSample(media.Sample{Data: pageData, Duration: sampleDuration}); err != nil {
			f.log.Warn().Err(err).Msg("writing audio sample failed")
		}
	}
}

func (f *FileSource) isPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *FileSource) advance(d time.Duration) {
	f.mu.Lock()
	f.elapsed += d
	f.mu.Unlock()
}
