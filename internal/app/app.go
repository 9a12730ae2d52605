// Package app assembles the watch-party engine: room lookup, the relay
// transport, peer sessions, media control, and playback sync, wired
// together for one participant in one room.
package app

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tomaslejdung/watchroom/pkg/media"
	"github.com/tomaslejdung/watchroom/pkg/playback"
	"github.com/tomaslejdung/watchroom/pkg/roomapi"
	"github.com/tomaslejdung/watchroom/pkg/session"
	"github.com/tomaslejdung/watchroom/pkg/signal"
)

// Options configures one engine instance.
type Options struct {
	ServerURL   string // room relay base URL, e.g. http://localhost:8080
	User        string // display name, doubles as the peer identity
	RoomCode    string // join an existing room when set, create one otherwise
	NoCamera    bool   // skip the baseline camera source
	BitrateKbps int    // outbound video encoder hint, 0 for encoder default
	ICE         session.ICEConfig
	Log         zerolog.Logger
}

// Engine holds the assembled components for one participant.
type Engine struct {
	Room     roomapi.RoomInfo
	SelfID   string
	API      *roomapi.Client
	Media    *media.Controller
	Sessions *session.Manager

	tr     *signal.Client
	router *signal.Router
	log    zerolog.Logger

	onEvent func(signal.Envelope)
}

// Connect logs in, creates or resolves the room, and brings up the
// transport and session layers. The playback role is attached afterwards
// with RunHost or RunViewer.
func Connect(ctx context.Context, opts Options) (*Engine, error) {
	api := roomapi.NewClient(opts.ServerURL, opts.Log)
	if err := api.Login(ctx, opts.User); err != nil {
		return nil, err
	}

	var room roomapi.RoomInfo
	var err error
	if opts.RoomCode != "" {
		room, err = api.Resolve(ctx, opts.RoomCode)
	} else {
		room, err = api.Create(ctx)
	}
	if err != nil {
		return nil, err
	}

	var baseline media.Source
	if !opts.NoCamera {
		cam, err := media.NewCameraSource(opts.BitrateKbps)
		if err != nil {
			return nil, fmt.Errorf("camera source: %w", err)
		}
		baseline = cam
	}
	controller := media.NewController(baseline, opts.Log)
	controller.SetBitrateHint(opts.BitrateKbps)

	wsURL, err := socketURL(opts.ServerURL, room.Code, opts.User)
	if err != nil {
		return nil, err
	}
	tr, err := signal.Dial(wsURL, opts.Log)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(room.ID, opts.User, tr, controller, opts.ICE, opts.Log)
	controller.SetSubstituter(sessions)

	return &Engine{
		Room:     room,
		SelfID:   opts.User,
		API:      api,
		Media:    controller,
		Sessions: sessions,
		tr:       tr,
		log:      opts.Log.With().Str("component", "app").Str("room", room.Code).Logger(),
	}, nil
}

// SetEventHandler installs a passthrough for chat and presence envelopes.
func (e *Engine) SetEventHandler(fn func(signal.Envelope)) {
	e.onEvent = fn
}

// RunHost attaches the host role: the media controller announces its
// switches through the playback host, and heartbeats flow while media is
// active. Runs until ctx is cancelled.
func (e *Engine) RunHost(ctx context.Context) *playback.Host {
	host := playback.NewHost(e.Room.ID, e.SelfID, e.tr, e.Media, e.log)
	e.Media.SetAnnouncer(host)

	e.start(ctx, nil)
	go host.Run(ctx)
	return host
}

// RunViewer attaches the viewer role around the given local player. Runs
// until ctx is cancelled.
func (e *Engine) RunViewer(ctx context.Context, player playback.Player) *playback.Viewer {
	viewer := playback.NewViewer(player, e.log)

	e.start(ctx, viewer)
	go viewer.Run(ctx)
	return viewer
}

// start wires the router, begins pumping inbound envelopes, and announces
// presence. Presence is re-announced after every transport reconnect so
// peers re-offer to us.
func (e *Engine) start(ctx context.Context, sync signal.SyncHandler) {
	e.router = signal.NewRouter(e.SelfID, e.Sessions, sync, e, e.log)
	e.router.SetChatHandler(func(env signal.Envelope) {
		if e.onEvent != nil {
			e.onEvent(env)
		}
	})

	e.tr.SetReconnectHandler(e.announce)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-e.tr.Inbound():
				if !ok {
					return
				}
				e.router.Route(env)
			}
		}
	}()

	e.announce()
}

// announce publishes the join signal that prompts peers with active media
// to offer to us.
func (e *Engine) announce() {
	err := e.tr.Publish(signal.Envelope{
		Type:   signal.KindJoin,
		RoomID: e.Room.ID,
		Sender: e.SelfID,
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("announcing presence failed")
	}
}

// OnRoster implements signal.RosterHandler: any roster member without a
// session yet gets an offer. Members with live sessions are left alone, so
// repeated roster pushes never churn connections.
func (e *Engine) OnRoster(participants []string) {
	for _, id := range participants {
		if id == e.SelfID {
			continue
		}
		if e.Sessions.SessionState(id) == session.StateIdle {
			e.Sessions.ConnectTo(id)
		}
	}
	if e.onEvent != nil {
		e.onEvent(signal.Envelope{Type: signal.KindParticipants, Participants: participants})
	}
}

// SendChat publishes a chat line to the room.
func (e *Engine) SendChat(text string) {
	err := e.tr.Publish(signal.Envelope{
		Type:    signal.KindChat,
		RoomID:  e.Room.ID,
		Sender:  e.SelfID,
		Content: text,
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("sending chat failed")
	}
}

// Close tears the engine down: REST leave, then sessions, media, and the
// transport.
func (e *Engine) Close(ctx context.Context) {
	if err := e.API.Leave(ctx, e.Room.Code); err != nil {
		e.log.Warn().Err(err).Msg("leaving room failed")
	}
	e.Sessions.Close()
	e.Media.Close()
	e.tr.Close()
}

// socketURL derives the websocket endpoint from the HTTP base URL.
func socketURL(base, code, user string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/rooms/" + code
	u.RawQuery = url.Values{"user": {user}}.Encode()
	return u.String(), nil
}
