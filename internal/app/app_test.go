package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketURL(t *testing.T) {
	got, err := socketURL("http://localhost:8080", "BLUE-OTTER-42", "alice")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws/rooms/BLUE-OTTER-42?user=alice", got)
}

func TestSocketURLSecure(t *testing.T) {
	got, err := socketURL("https://rooms.example.com/", "GOLD-HAWK-07", "bob smith")
	require.NoError(t, err)
	assert.Equal(t, "wss://rooms.example.com/ws/rooms/GOLD-HAWK-07?user=bob+smith", got)
}
