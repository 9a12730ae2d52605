package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomaslejdung/watchroom/pkg/signal"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Hub fans room envelopes out to every connected member. Local delivery
// goes through Redis pub/sub so multiple server instances serving the same
// room stay consistent: publish once, every instance's subscriber delivers
// to its own sockets.
type Hub struct {
	store      *Store
	maxMembers int
	log        zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*hubRoom
}

type hubRoom struct {
	id      string
	clients map[*hubClient]bool
	cancel  context.CancelFunc
}

type hubClient struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// NewHub creates the websocket hub. maxMembers caps room size; 0 disables
// the cap.
func NewHub(store *Store, maxMembers int, log zerolog.Logger) *Hub {
	return &Hub{
		store:      store,
		maxMembers: maxMembers,
		log:        log.With().Str("component", "hub").Logger(),
		rooms:      make(map[string]*hubRoom),
	}
}

var (
	errRoomFull      = errors.New("room is full")
	errAlreadyJoined = errors.New("already in room")
)

// admissionError applies the room entry rules to a prospective member.
func admissionError(memberCount, maxMembers int, alreadyMember bool) error {
	if alreadyMember {
		return errAlreadyJoined
	}
	if maxMembers > 0 && memberCount >= maxMembers {
		return errRoomFull
	}
	return nil
}

// HandleSocket upgrades the connection and joins the caller to the room
// channel. The room code must resolve, a user identity is required, and
// admission is refused for full rooms and identities already present.
func (h *Hub) HandleSocket(c *gin.Context) {
	code := NormalizeRoomCode(c.Param("code"))
	userID := c.Query("user")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user is required"})
		return
	}

	room, err := h.store.RoomByCode(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	already, err := h.store.IsMember(c.Request.Context(), room.ID, userID)
	if err != nil {
		h.log.Warn().Err(err).Str("room", room.ID).Msg("membership lookup failed")
	}
	count, err := h.store.MemberCount(c.Request.Context(), room.ID)
	if err != nil {
		h.log.Warn().Err(err).Str("room", room.ID).Msg("counting members failed")
	}
	if err := admissionError(count, h.maxMembers, already); err != nil {
		status := http.StatusForbidden
		if errors.Is(err, errAlreadyJoined) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &hubClient{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}

	ctx := context.Background()
	h.join(ctx, room.ID, client)

	go client.writePump()
	go h.readPump(ctx, room.ID, client)
}

// join registers the client, records membership, and announces the arrival
// plus the updated roster to the whole room.
func (h *Hub) join(ctx context.Context, roomID string, client *hubClient) {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		subCtx, cancel := context.WithCancel(context.Background())
		room = &hubRoom{
			id:      roomID,
			clients: make(map[*hubClient]bool),
			cancel:  cancel,
		}
		h.rooms[roomID] = room
		go h.relayEvents(subCtx, room)
	}
	room.clients[client] = true
	h.mu.Unlock()

	if err := h.store.AddMember(ctx, roomID, client.userID); err != nil {
		h.log.Warn().Err(err).Str("room", roomID).Msg("recording membership failed")
	}

	h.log.Info().Str("room", roomID).Str("user", client.userID).Msg("participant joined")

	h.publish(ctx, roomID, signal.Envelope{
		Type:      signal.KindUserJoined,
		RoomID:    roomID,
		Sender:    client.userID,
		Timestamp: time.Now().UnixMilli(),
	})
	h.pushRoster(ctx, roomID)
}

// leave is the inverse of join. The departure event and roster push go out
// after membership is updated so late readers see a consistent roster.
func (h *Hub) leave(ctx context.Context, roomID string, client *hubClient) {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if ok {
		delete(room.clients, client)
		if len(room.clients) == 0 {
			room.cancel()
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()

	if err := h.store.RemoveMember(ctx, roomID, client.userID); err != nil {
		h.log.Warn().Err(err).Str("room", roomID).Msg("removing membership failed")
	}

	h.log.Info().Str("room", roomID).Str("user", client.userID).Msg("participant left")

	h.publish(ctx, roomID, signal.Envelope{
		Type:      signal.KindUserLeft,
		RoomID:    roomID,
		Sender:    client.userID,
		Timestamp: time.Now().UnixMilli(),
	})
	h.pushRoster(ctx, roomID)
}

// relayEvents delivers every published room event to this instance's local
// sockets. Runs until the last local client leaves.
func (h *Hub) relayEvents(ctx context.Context, room *hubRoom) {
	sub := h.store.SubscribeEvents(ctx, room.id)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.deliver(room.id, []byte(msg.Payload))
		}
	}
}

// deliver fans raw envelope bytes out to every local client in the room.
// Senders receive their own envelopes back; clients filter self-echo.
func (h *Hub) deliver(roomID string, data []byte) {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return
	}
	clients := make([]*hubClient, 0, len(room.clients))
	for c := range room.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn().Str("room", roomID).Str("user", c.userID).Msg("send buffer full, dropping envelope")
		}
	}
}

func (h *Hub) publish(ctx context.Context, roomID string, env signal.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error().Err(err).Str("type", env.Type).Msg("encoding envelope failed")
		return
	}
	if err := h.store.PublishEvent(ctx, roomID, data); err != nil {
		h.log.Warn().Err(err).Str("room", roomID).Msg("publishing event failed")
	}
}

func (h *Hub) pushRoster(ctx context.Context, roomID string) {
	members, err := h.store.Members(ctx, roomID)
	if err != nil {
		h.log.Warn().Err(err).Str("room", roomID).Msg("listing members failed")
		return
	}
	h.publish(ctx, roomID, signal.Envelope{
		Type:         signal.KindParticipants,
		RoomID:       roomID,
		Participants: members,
	})
}

func (h *Hub) readPump(ctx context.Context, roomID string, client *hubClient) {
	defer func() {
		h.leave(ctx, roomID, client)
		client.conn.Close()
	}()

	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Str("user", client.userID).Msg("websocket read error")
			}
			return
		}

		var env signal.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			h.log.Warn().Err(err).Str("user", client.userID).Msg("dropping malformed envelope")
			continue
		}

		// The socket identity is authoritative; clients cannot spoof
		// another sender.
		env.Sender = client.userID
		env.RoomID = roomID
		if env.Timestamp == 0 {
			env.Timestamp = time.Now().UnixMilli()
		}

		h.publish(ctx, roomID, env)
	}
}

func (c *hubClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
