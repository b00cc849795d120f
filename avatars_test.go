package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateAvatar(t *testing.T) {
	rng := newLockedRand(1)

	t.Run("Draws From The Pool Without Repeats", func(t *testing.T) {
		room := &Room{RoomState: RoomState{Avatars: newAvatarPool()}}

		seen := make(map[string]bool)
		for i := 0; i < len(avatarPool); i++ {
			avatar := allocateAvatar(room, rng)
			assert.False(t, seen[avatar], "avatar %q handed out twice", avatar)
			seen[avatar] = true
		}

		assert.Empty(t, room.Avatars)
	})

	t.Run("Exhausted Pool Yields The Sentinel", func(t *testing.T) {
		room := &Room{}

		assert.Equal(t, defaultAvatar, allocateAvatar(room, rng))
		assert.Equal(t, defaultAvatar, allocateAvatar(room, rng))
		assert.Empty(t, room.Avatars)
	})
}

func TestReleaseAvatar(t *testing.T) {
	room := &Room{RoomState: RoomState{Avatars: []string{"🐶"}}}

	releaseAvatar(room, "🐱")
	assert.Equal(t, []string{"🐶", "🐱"}, room.Avatars)

	releaseAvatar(room, defaultAvatar)
	releaseAvatar(room, "")
	assert.Len(t, room.Avatars, 2)
}

func TestAvatarFor(t *testing.T) {
	rng := newLockedRand(1)
	room := &Room{RoomState: RoomState{
		Avatars: newAvatarPool(),
		Members: []Player{{ID: "p1", Avatar: "🐶"}},
	}}

	t.Run("Existing Member Keeps Their Avatar", func(t *testing.T) {
		before := len(room.Avatars)

		assert.Equal(t, "🐶", avatarFor(room, "p1", rng))
		assert.Len(t, room.Avatars, before)
	})

	t.Run("New Member Draws Fresh", func(t *testing.T) {
		before := len(room.Avatars)

		avatar := avatarFor(room, "p2", rng)

		assert.NotEmpty(t, avatar)
		assert.Len(t, room.Avatars, before-1)
	})
}

// The avatar pool invariant: at any point, the avatars still available
// plus the avatars worn by members are a permutation of the fixed pool.
func TestAvatarPoolPermutation(t *testing.T) {
	rng := newLockedRand(7)
	reg := newRegistry(rng, GameConfig{Capacity: len(avatarPool) + 2})

	room := reg.createRoom(Player{ID: "host"}, nil)

	for i := 0; i < 10; i++ {
		_, err := reg.joinRoom(Player{ID: string(rune('a' + i))}, room.Code)
		require.NoError(t, err)
	}

	combined := append(append([]string(nil), room.Avatars...), usedAvatars(room)...)
	assert.ElementsMatch(t, avatarPool, combined)
}
