package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRoomNotFound means no room exists for the given code or ID.
var ErrRoomNotFound = errors.New("room not found")

// ErrCodeTaken means the room's generated code already maps to a live room.
// The caller regenerates and tries again.
var ErrCodeTaken = errors.New("room code taken")

// Room is the persisted room record.
type Room struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	HostID    string    `json:"hostId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists rooms and membership in Redis and relays room envelopes
// across server instances through pub/sub. Keys carry a TTL so abandoned
// rooms expire on their own.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, cfg RedisConfig, ttl time.Duration) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Store{rdb: rdb, ttl: ttl}, nil
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func roomKey(id string) string { return "room:" + id }
func codeKey(code string) string { return "code:" + code }
func membersKey(id string) string { return "room:" + id + ":members" }
func eventsChan(id string) string { return "room:" + id + ":events" }

// CreateRoom claims the room's code and stores its record. The code claim
// is atomic: a colliding code must not silently repoint an existing room,
// so it fails with ErrCodeTaken instead of overwriting.
func (s *Store) CreateRoom(ctx context.Context, room Room) error {
	claimed, err := s.rdb.SetNX(ctx, codeKey(room.Code), room.ID, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("claim room code: %w", err)
	}
	if !claimed {
		return ErrCodeTaken
	}

	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	if err := s.rdb.Set(ctx, roomKey(room.ID), data, s.ttl).Err(); err != nil {
		s.rdb.Del(ctx, codeKey(room.Code))
		return fmt.Errorf("store room: %w", err)
	}
	return nil
}

// RoomByCode resolves a room code to its record.
func (s *Store) RoomByCode(ctx context.Context, code string) (Room, error) {
	id, err := s.rdb.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return Room{}, ErrRoomNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("resolve code: %w", err)
	}
	return s.RoomByID(ctx, id)
}

// RoomByID fetches a room record.
func (s *Store) RoomByID(ctx context.Context, id string) (Room, error) {
	data, err := s.rdb.Get(ctx, roomKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Room{}, ErrRoomNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("fetch room: %w", err)
	}

	var room Room
	if err := json.Unmarshal([]byte(data), &room); err != nil {
		return Room{}, fmt.Errorf("decode room: %w", err)
	}
	return room, nil
}

// DeleteRoom removes the room record, code mapping, and member set.
func (s *Store) DeleteRoom(ctx context.Context, room Room) {
	s.rdb.Del(ctx, roomKey(room.ID), codeKey(room.Code), membersKey(room.ID))
}

// AddMember records a participant and refreshes the member-set TTL.
func (s *Store) AddMember(ctx context.Context, roomID, userID string) error {
	if err := s.rdb.SAdd(ctx, membersKey(roomID), userID).Err(); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	s.rdb.Expire(ctx, membersKey(roomID), s.ttl)
	return nil
}

// RemoveMember drops a participant from the member set.
func (s *Store) RemoveMember(ctx context.Context, roomID, userID string) error {
	if err := s.rdb.SRem(ctx, membersKey(roomID), userID).Err(); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

// IsMember reports whether the user is already in the room's member set.
func (s *Store) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, membersKey(roomID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return ok, nil
}

// Members returns the current participant identities.
func (s *Store) Members(ctx context.Context, roomID string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, membersKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// MemberCount returns how many participants the room has.
func (s *Store) MemberCount(ctx context.Context, roomID string) (int, error) {
	n, err := s.rdb.SCard(ctx, membersKey(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return int(n), nil
}

// PublishEvent fans an envelope out to every server instance subscribed to
// the room's channel.
func (s *Store) PublishEvent(ctx context.Context, roomID string, data []byte) error {
	return s.rdb.Publish(ctx, eventsChan(roomID), data).Err()
}

// SubscribeEvents subscribes to the room's event channel. The caller owns
// the subscription and must close it.
func (s *Store) SubscribeEvents(ctx context.Context, roomID string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, eventsChan(roomID))
}
