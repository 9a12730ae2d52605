package signal

import "encoding/json"

// Envelope kinds carried on the per-room channel.
//
// Lowercase kinds negotiate peer connections and may carry a target so only
// one participant acts on them. Uppercase kinds are room events in the
// chat-style shape the room relay fans out to everyone; SYNC events carry a
// JSON-encoded playback command in Content.
const (
	KindJoin      = "join"
	KindOffer     = "offer"
	KindAnswer    = "answer"
	KindCandidate = "candidate"

	KindChat         = "CHAT"
	KindUserJoined   = "JOIN"
	KindUserLeft     = "LEAVE"
	KindSync         = "SYNC"
	KindHostLeft     = "HOST_LEFT"
	KindParticipants = "participants"
)

// Envelope is the single wire shape for everything on a room channel.
type Envelope struct {
	Type      string `json:"type"`
	RoomID    string `json:"roomId,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Target    string `json:"target,omitempty"`  // when set, only that participant may act
	Payload   string `json:"payload,omitempty"` // JSON-encoded SDP / ICE batch for signaling kinds
	Content   string `json:"content,omitempty"` // chat text or JSON-encoded SyncCommand
	Timestamp int64  `json:"timestamp,omitempty"`

	// Full roster push for type "participants".
	Participants []string `json:"participants,omitempty"`
}

// SDPPayload is the JSON body of offer/answer envelopes.
type SDPPayload struct {
	SDP string `json:"sdp"`
}

// CandidatePayload is the JSON body of candidate envelopes.
// Candidates are batched sender-side; a batch is flushed once it reaches
// five entries or ICE gathering completes.
type CandidatePayload struct {
	Candidates []string `json:"candidates"`
}

// Sync command types carried inside SYNC envelopes. Control commands are
// deltas; HEARTBEAT is the authoritative full snapshot.
const (
	SyncLoad         = "LOAD"
	SyncLoadExternal = "LOAD_EXTERNAL"
	SyncScreenShare  = "SCREEN_SHARE"
	SyncPlay         = "PLAY"
	SyncPause        = "PAUSE"
	SyncStop         = "STOP"
	SyncHeartbeat    = "HEARTBEAT"
)

// SyncCommand is the JSON-encoded content of a SYNC envelope.
type SyncCommand struct {
	Type       string  `json:"type"`
	MediaKind  string  `json:"mediaKind,omitempty"`  // heartbeat only: full-snapshot media kind
	Descriptor string  `json:"descriptor,omitempty"` // filename for LOAD, full descriptor in heartbeats
	Reference  string  `json:"reference,omitempty"`  // external-video reference for LOAD_EXTERNAL
	Time       float64 `json:"time,omitempty"`       // host playback position in seconds
	Playing    bool    `json:"playing,omitempty"`
	SentAt     int64   `json:"sentAt,omitempty"` // host wall clock, unix millis
}

// EncodeSync wraps a command in a SYNC envelope, stringifying the command
// body the way the room relay expects.
func EncodeSync(roomID, sender string, cmd SyncCommand) (Envelope, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:    KindSync,
		RoomID:  roomID,
		Sender:  sender,
		Content: string(body),
	}, nil
}

// DecodeSync parses the command out of a SYNC envelope.
func DecodeSync(env Envelope) (SyncCommand, error) {
	var cmd SyncCommand
	err := json.Unmarshal([]byte(env.Content), &cmd)
	return cmd, err
}

// MarshalPayload stringifies a signaling payload body.
func MarshalPayload(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalPayload(payload string, v any) error {
	return json.Unmarshal([]byte(payload), v)
}

