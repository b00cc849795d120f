package main

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const (
	defaultCapacity = 8
	defaultRounds   = 8
)

// lockedRand makes a seedable rand.Rand safe for use from concurrent
// intent handlers. Tests inject a fixed seed to make room codes, avatar
// draws, and truth-teller selection deterministic.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	return &lockedRand{rng: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.rng.Intn(n)
}

// Registry owns the mapping from room code to Room. The registry lock
// only guards the map itself; the state inside each room is guarded by
// that room's own lock, and no operation ever holds two room locks.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	rng      *lockedRand
	defaults GameConfig
}

func newRegistry(rng *lockedRand, defaults GameConfig) *Registry {
	if defaults.Capacity <= 0 {
		defaults.Capacity = defaultCapacity
	}
	if defaults.Rounds < 0 {
		defaults.Rounds = defaultRounds
	}

	return &Registry{
		rooms:    make(map[string]*Room),
		rng:      rng,
		defaults: defaults,
	}
}

// newRoomCode draws random five-digit codes until one is free. The
// caller must hold the registry lock.
func (reg *Registry) newRoomCode() string {
	for {
		code := fmt.Sprintf("%d", 10000+reg.rng.Intn(90000))
		if _, taken := reg.rooms[code]; !taken {
			return code
		}
	}
}

// createRoom registers a new room with the given player as host,
// merging config over the defaults and allocating the host's avatar.
func (reg *Registry) createRoom(host Player, config *GameConfig) *Room {
	room := &Room{
		RoomState: RoomState{
			HostID:  host.ID,
			Avatars: newAvatarPool(),
			Config:  reg.defaults,
			Game:    newGameState(),
		},
	}

	if config != nil {
		if config.Capacity > 0 {
			room.Config.Capacity = config.Capacity
		}
		if config.Rounds >= 0 {
			room.Config.Rounds = config.Rounds
		}
	}

	host.Avatar = allocateAvatar(room, reg.rng)
	room.Members = []Player{host}
	room.touch()

	reg.mu.Lock()
	defer reg.mu.Unlock()

	room.Code = reg.newRoomCode()
	reg.rooms[room.Code] = room

	return room
}

// getRoom returns the room with the given code, or nil.
func (reg *Registry) getRoom(code string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return reg.rooms[code]
}

// joinLocked seats the player in the room, or explains why not. A
// player already seated gets their existing avatar back and nothing
// else changes, so rejoining after a dropped connection is free. The
// caller must hold the room lock.
func (reg *Registry) joinLocked(room *Room, player Player) (string, error) {
	if existing := room.member(player.ID); existing != nil {
		room.touch()
		return existing.Avatar, nil
	}

	if len(room.Members) >= room.Config.Capacity {
		return "", ErrRoomFull
	}
	if room.Game.Round > 0 {
		return "", ErrGameInProgress
	}

	player.Avatar = allocateAvatar(room, reg.rng)
	room.Members = append(room.Members, player)
	room.touch()

	return player.Avatar, nil
}

// joinRoom is the lock-acquiring form of joinLocked for callers outside
// the event router.
func (reg *Registry) joinRoom(player Player, code string) (string, error) {
	room := reg.getRoom(code)
	if room == nil {
		return "", ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	return reg.joinLocked(room, player)
}

// leaveLocked removes the member, returns their avatar to the pool, and
// hands the host role to the first remaining member when the host is
// the one leaving. Leaving a room one is not in is a no-op. The caller
// must hold the room lock.
func (reg *Registry) leaveLocked(room *Room, playerID string) {
	index := -1
	for i := range room.Members {
		if room.Members[i].ID == playerID {
			index = i
			break
		}
	}
	if index == -1 {
		return
	}

	releaseAvatar(room, room.Members[index].Avatar)
	room.Members = append(room.Members[:index], room.Members[index+1:]...)

	// A departing member takes their round state with them.
	delete(room.Game.ArticlePool, playerID)
	delete(room.Game.Score, playerID)

	if room.HostID == playerID {
		if len(room.Members) > 0 {
			room.HostID = room.Members[0].ID
		} else {
			room.HostID = ""
		}
	}

	room.touch()
}

// leaveRoom is the lock-acquiring form of leaveLocked.
func (reg *Registry) leaveRoom(playerID, code string) {
	room := reg.getRoom(code)
	if room == nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	reg.leaveLocked(room, playerID)
}

// reassignHostLocked moves the host role to the first other member, if
// any. Used on host disconnects, which keep membership intact. The
// caller must hold the room lock.
func (reg *Registry) reassignHostLocked(room *Room, departingID string) {
	if room.HostID != departingID {
		return
	}

	for _, member := range room.Members {
		if member.ID != departingID {
			room.HostID = member.ID
			return
		}
	}
}

// export clones every room for snapshotting, taking each room lock just
// long enough to copy it.
func (reg *Registry) export() map[string]RoomState {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.RUnlock()

	out := make(map[string]RoomState, len(rooms))
	for _, room := range rooms {
		room.mu.Lock()
		out[room.Code] = room.clone()
		room.mu.Unlock()
	}

	return out
}

// restoreRooms replaces the registry contents with a loaded snapshot.
func (reg *Registry) restoreRooms(rooms map[string]RoomState) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.rooms = make(map[string]*Room, len(rooms))
	for code, loaded := range rooms {
		room := &Room{RoomState: loaded}
		if room.Game.ArticlePool == nil {
			room.Game.ArticlePool = make(map[string]Article)
		}
		if room.Game.Score == nil {
			room.Game.Score = make(map[string]int)
		}
		room.Code = code
		room.touch()
		reg.rooms[code] = room
	}
}

// reapIdle removes rooms whose last activity is older than ttl and
// which have no live connections, per the occupied callback. Returns
// the reclaimed codes.
func (reg *Registry) reapIdle(ttl time.Duration, occupied func(code string) bool) []string {
	cutoff := time.Now().Add(-ttl)

	reg.mu.Lock()
	defer reg.mu.Unlock()

	var reaped []string
	for code, room := range reg.rooms {
		room.mu.Lock()
		idle := room.lastActive.Before(cutoff)
		room.mu.Unlock()

		if idle && !occupied(code) {
			delete(reg.rooms, code)
			reaped = append(reaped, code)
		}
	}

	return reaped
}

// reaperLoop periodically reclaims idle rooms so abandoned codes do not
// accumulate forever.
func (reg *Registry) reaperLoop(cfg *Config, ttl time.Duration, occupied func(code string) bool) {
	ticker := time.NewTicker(ttl / 2)
	for range ticker.C {
		for _, code := range reg.reapIdle(ttl, occupied) {
			logf(cfg, "ROOMS: Reclaimed idle room %s", code)
		}
	}
}
