package main

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayRoundTrip(t *testing.T) {
	cfg := &Config{}
	memFS := afero.NewMemMapFs()
	store := newGateway(cfg, memFS, "state.json")

	reg := newRegistry(newLockedRand(1), GameConfig{Capacity: 8, Rounds: 8})
	room := reg.createRoom(Player{ID: "host", Name: "Ada"}, nil)
	_, err := reg.joinRoom(Player{ID: "p1"}, room.Code)
	require.NoError(t, err)

	startGame(room)
	submitArticle(room, "p1", Article{ID: "a1", URL: "https://example.org", Title: "Example"}, reg.rng)

	store.snapshot(reg)

	fresh := newRegistry(newLockedRand(2), GameConfig{Capacity: 8, Rounds: 8})
	require.NoError(t, store.restore(fresh))

	restored := fresh.getRoom(room.Code)
	require.NotNil(t, restored)
	assert.Equal(t, room.HostID, restored.HostID)
	assert.Equal(t, room.Members, restored.Members)
	assert.Equal(t, room.Avatars, restored.Avatars)
	assert.Equal(t, room.Config, restored.Config)
	assert.Equal(t, room.Game.Round, restored.Game.Round)
	assert.Equal(t, room.Game.ArticlePool, restored.Game.ArticlePool)
	assert.Equal(t, room.Game.Score, restored.Game.Score)
}

func TestGatewayRestoreMissingSnapshot(t *testing.T) {
	cfg := &Config{}
	memFS := afero.NewMemMapFs()
	store := newGateway(cfg, memFS, "state.json")

	reg := newRegistry(newLockedRand(1), GameConfig{Capacity: 8, Rounds: 8})
	require.NoError(t, store.restore(reg))

	// A missing store object gets created immediately so later loads
	// always find one.
	data, err := afero.ReadFile(memFS, "state.json")
	require.NoError(t, err)

	var rooms map[string]RoomState
	require.NoError(t, json.Unmarshal(data, &rooms))
	assert.Empty(t, rooms)
}

func TestGatewayRestoreCorruptSnapshot(t *testing.T) {
	cfg := &Config{}
	memFS := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(memFS, "state.json", []byte("{nope"), 0o644))

	store := newGateway(cfg, memFS, "state.json")
	reg := newRegistry(newLockedRand(1), GameConfig{Capacity: 8, Rounds: 8})

	assert.Error(t, store.restore(reg))
}

func TestGatewaySnapshotFailureIsSwallowed(t *testing.T) {
	cfg := &Config{}
	store := newGateway(cfg, afero.NewReadOnlyFs(afero.NewMemMapFs()), "state.json")
	reg := newRegistry(newLockedRand(1), GameConfig{Capacity: 8, Rounds: 8})
	reg.createRoom(Player{ID: "host"}, nil)

	// Write fails against the read-only store; snapshot logs and moves on.
	assert.NotPanics(t, func() {
		store.snapshot(reg)
	})
}
