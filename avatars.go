package main

// The shared avatar pool. Each room starts with a copy of this list and
// hands entries out as members join; an avatar is unique within a room.
var avatarPool = []string{
	"🐶", "🐱", "🐭",
	"🐹", "🐰", "🦊",
	"🐻", "🐼", "🐺",
	"🐨", "🐯", "🦁",
	"🐮", "🐷", "🐸",
	"🐵", "🐔", "🐧",
	"🐦", "🐤", "🐙",
}

// defaultAvatar is handed out when a room has exhausted its pool.
// It is never returned to the pool on release.
const defaultAvatar = "❓"

func newAvatarPool() []string {
	pool := make([]string, len(avatarPool))
	copy(pool, avatarPool)

	return pool
}

// allocateAvatar removes and returns a uniformly random avatar from the
// room's available list, or defaultAvatar (without mutating the list)
// when none remain. The caller must hold the room lock.
func allocateAvatar(room *Room, rng *lockedRand) string {
	if len(room.Avatars) == 0 {
		return defaultAvatar
	}

	index := rng.Intn(len(room.Avatars))
	avatar := room.Avatars[index]
	room.Avatars = append(room.Avatars[:index], room.Avatars[index+1:]...)

	return avatar
}

// releaseAvatar returns an avatar to the room's available list. The
// sentinel avatar is dropped rather than pooled. The caller must hold
// the room lock.
func releaseAvatar(room *Room, avatar string) {
	if avatar == "" || avatar == defaultAvatar {
		return
	}

	room.Avatars = append(room.Avatars, avatar)
}

// avatarFor returns the avatar already held by playerID if they are a
// member of the room, making rejoins idempotent, and otherwise draws a
// fresh one. The caller must hold the room lock.
func avatarFor(room *Room, playerID string, rng *lockedRand) string {
	if member := room.member(playerID); member != nil {
		return member.Avatar
	}

	return allocateAvatar(room, rng)
}

// usedAvatars lists the avatars currently assigned to members, in
// member order. The caller must hold the room lock.
func usedAvatars(room *Room) []string {
	avatars := make([]string, 0, len(room.Members))
	for _, member := range room.Members {
		avatars = append(avatars, member.Avatar)
	}

	return avatars
}
