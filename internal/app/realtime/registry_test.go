package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryCountsConnectionsPerUser(t *testing.T) {
	r := NewConnectionRegistry()

	assert.Equal(t, 1, r.Register("user-a", "conn-1"))
	assert.Equal(t, 2, r.Register("user-a", "conn-2"))
	assert.Equal(t, 1, r.Register("user-b", "conn-3"))

	assert.True(t, r.IsOnline("user-a"))
	assert.Equal(t, 2, r.CountFor("user-a"))
	assert.Equal(t, 1, r.CountFor("user-b"))
}

func TestRegistryRegisterSameConnectionTwice(t *testing.T) {
	r := NewConnectionRegistry()

	assert.Equal(t, 1, r.Register("user-a", "conn-1"))
	assert.Equal(t, 1, r.Register("user-a", "conn-1"))
}

func TestRegistryDeregisterFloorsAtZero(t *testing.T) {
	r := NewConnectionRegistry()

	r.Register("user-a", "conn-1")
	r.Register("user-a", "conn-2")

	assert.Equal(t, 1, r.Deregister("user-a", "conn-1"))
	assert.Equal(t, 0, r.Deregister("user-a", "conn-2"))
	assert.Equal(t, 0, r.Deregister("user-a", "conn-2"))
	assert.Equal(t, 0, r.Deregister("user-never-seen", "conn-9"))

	assert.False(t, r.IsOnline("user-a"))
}

func TestRegistryOnlineUsers(t *testing.T) {
	r := NewConnectionRegistry()

	assert.Empty(t, r.OnlineUsers())

	r.Register("user-a", "conn-1")
	r.Register("user-b", "conn-2")
	r.Deregister("user-b", "conn-2")

	online := r.OnlineUsers()
	assert.Equal(t, []string{"user-a"}, online)
}
