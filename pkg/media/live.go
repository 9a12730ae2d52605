package media

import (
	"fmt"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// LiveSource is a sample-fed source backed by an external capturer: the
// camera pipeline or a screen grabber pushes encoded frames in through
// WriteVideo/WriteAudio and the tracks carry them to every peer. The engine
// does not capture pixels itself; acquisition is the platform layer's job.
type LiveSource struct {
	kind        SourceKind
	descriptor  string
	bitrateKbps int
	video       *webrtc.TrackLocalStaticSample
	audio       *webrtc.TrackLocalStaticSample
}

// NewCameraSource creates the baseline camera source with VP8 video and
// Opus audio tracks. bitrateKbps is the target encoder bitrate for the
// capture layer; 0 leaves the encoder at its default.
func NewCameraSource(bitrateKbps int) (*LiveSource, error) {
	return newLiveSource(SourceCamera, "camera", bitrateKbps, true)
}

// NewScreenSource creates a video-only screen-share source.
func NewScreenSource(bitrateKbps int) (*LiveSource, error) {
	return newLiveSource(SourceScreen, "screen", bitrateKbps, false)
}

func newLiveSource(kind SourceKind, descriptor string, bitrateKbps int, withAudio bool) (*LiveSource, error) {
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "watchroom-"+descriptor,
	)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}

	s := &LiveSource{kind: kind, descriptor: descriptor, bitrateKbps: bitrateKbps, video: video}

	if withAudio {
		audio, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", "watchroom-"+descriptor,
		)
		if err != nil {
			return nil, fmt.Errorf("create audio track: %w", err)
		}
		s.audio = audio
	}
	return s, nil
}

func (s *LiveSource) Kind() SourceKind { return s.kind }

func (s *LiveSource) Descriptor() string { return s.descriptor }

// BitrateHint returns the target encoder bitrate in kbit/s the capture
// layer should aim for. 0 means encoder default.
func (s *LiveSource) BitrateHint() int { return s.bitrateKbps }

func (s *LiveSource) Tracks() []webrtc.TrackLocal {
	tracks := []webrtc.TrackLocal{s.video}
	if s.audio != nil {
		tracks = append(tracks, s.audio)
	}
	return tracks
}

// WriteVideo delivers one encoded video frame to all peers.
func (s *LiveSource) WriteVideo(frame []byte, duration time.Duration) error {
	return s.video.WriteSample(media.Sample{Data: frame, Duration: duration})
}

// WriteAudio delivers one encoded audio frame to all peers. No-op for
// video-only sources.
func (s *LiveSource) WriteAudio(frame []byte, duration time.Duration) error {
	if s.audio == nil {
		return nil
	}
	return s.audio.WriteSample(media.Sample{Data: frame, Duration: duration})
}

func (s *LiveSource) Close() error { return nil }
