package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RoomResponse is the public room representation.
type RoomResponse struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	HostID       string `json:"hostId"`
	Participants int    `json:"participants"`
}

// roomCreator is the slice of Store that room allocation needs.
type roomCreator interface {
	CreateRoom(ctx context.Context, room Room) error
}

// createAttempts bounds code regeneration when a fresh code collides with a
// live room's.
const createAttempts = 5

// allocateRoom generates a room with a fresh code, regenerating on code
// collision until the claim sticks.
func allocateRoom(ctx context.Context, store roomCreator, hostID string) (Room, error) {
	var lastErr error
	for i := 0; i < createAttempts; i++ {
		room := Room{
			ID:        uuid.New().String(),
			Code:      GenerateRoomCode(),
			HostID:    hostID,
			CreatedAt: time.Now(),
		}
		lastErr = store.CreateRoom(ctx, room)
		if errors.Is(lastErr, ErrCodeTaken) {
			continue
		}
		if lastErr != nil {
			return Room{}, lastErr
		}
		return room, nil
	}
	return Room{}, fmt.Errorf("allocate room code: %w", lastErr)
}

// createRoom registers a new room owned by the authenticated user.
func (s *Server) createRoom(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	room, err := allocateRoom(c.Request.Context(), s.store, userID.(string))
	if err != nil {
		s.log.Error().Err(err).Msg("creating room failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}

	s.log.Info().Str("room", room.ID).Str("code", room.Code).Str("host", room.HostID).Msg("room created")

	c.JSON(http.StatusCreated, RoomResponse{
		ID:     room.ID,
		Code:   room.Code,
		HostID: room.HostID,
	})
}

// getRoom resolves a room code to its handle, host identity, and current
// participant count.
func (s *Server) getRoom(c *gin.Context) {
	code := NormalizeRoomCode(c.Param("code"))
	if !ValidateRoomCode(code) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room code"})
		return
	}

	room, err := s.store.RoomByCode(c.Request.Context(), code)
	if errors.Is(err, ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("code", code).Msg("resolving room failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve room"})
		return
	}

	count, err := s.store.MemberCount(c.Request.Context(), room.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("room", room.ID).Msg("counting members failed")
	}

	c.JSON(http.StatusOK, RoomResponse{
		ID:           room.ID,
		Code:         room.Code,
		HostID:       room.HostID,
		Participants: count,
	})
}

// leaveRoom removes the authenticated user from the room's member set.
// Best effort companion to the websocket teardown; the host's room is
// deleted when it empties out.
func (s *Server) leaveRoom(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	code := NormalizeRoomCode(c.Param("code"))
	room, err := s.store.RoomByCode(c.Request.Context(), code)
	if errors.Is(err, ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("code", code).Msg("resolving room failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve room"})
		return
	}

	if err := s.store.RemoveMember(c.Request.Context(), room.ID, userID.(string)); err != nil {
		s.log.Warn().Err(err).Str("room", room.ID).Msg("removing member failed")
	}

	count, _ := s.store.MemberCount(c.Request.Context(), room.ID)
	if count == 0 {
		s.store.DeleteRoom(c.Request.Context(), room)
		s.log.Info().Str("room", room.ID).Msg("empty room deleted")
	}

	c.JSON(http.StatusOK, gin.H{"message": "Left room"})
}
