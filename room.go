package main

import (
	"sync"
	"time"
)

// Stage is one phase of the per-round state machine.
type Stage int

const (
	StageCollecting Stage = iota
	StageQuestioning
	StageGuessing
	StageRoundEnd
)

func (s Stage) String() string {
	switch s {
	case StageCollecting:
		return "collecting"
	case StageQuestioning:
		return "questioning"
	case StageGuessing:
		return "guessing"
	case StageRoundEnd:
		return "round_end"
	default:
		return "unknown"
	}
}

// Player holds the data we store server-side for one room member.
// The ID is minted at the transport layer (cookie) and stays stable
// across reconnects.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar"`
}

// Article is a content item a player offers as their candidate for the
// round. Immutable once accepted into the pool.
type Article struct {
	ID    string `json:"id,omitempty"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// GameConfig holds the per-room knobs merged over defaults at creation.
// Rounds == 0 means the game runs until the room gives up.
type GameConfig struct {
	Capacity int `json:"capacity"`
	Rounds   int `json:"rounds"`
}

// GameState is the per-room round state. A zero Round means no game is
// in progress.
type GameState struct {
	Stage         Stage              `json:"stage"`
	Round         int                `json:"round"`
	GuesserID     string             `json:"guesserID,omitempty"`
	TruthTellerID string             `json:"truthTellerID,omitempty"`
	LiarIDs       []string           `json:"liarIDs,omitempty"`
	ArticlePool   map[string]Article `json:"articlePool"`
	ActiveArticle *Article           `json:"activeArticle,omitempty"`
	Score         map[string]int     `json:"score"`
}

func newGameState() GameState {
	return GameState{
		ArticlePool: make(map[string]Article),
		Score:       make(map[string]int),
	}
}

// RoomState is the serializable heart of a room: exactly these fields
// round-trip through the snapshot store.
type RoomState struct {
	Code    string     `json:"code"`
	HostID  string     `json:"hostID"`
	Members []Player   `json:"members"`
	Avatars []string   `json:"avatars"`
	Config  GameConfig `json:"config"`
	Game    GameState  `json:"game"`
}

// Room is a bounded multiplayer session identified by a short numeric
// code.
//
// Every read or write of Members, Avatars, or Game must happen with mu
// held; the event router keeps mu held until the resulting broadcast
// has been queued, so no two intents interleave on the same room.
type Room struct {
	mu sync.Mutex

	RoomState

	lastActive time.Time
}

// member returns a pointer to the member entry with the given id, or
// nil. The caller must hold the room lock.
func (room *Room) member(playerID string) *Player {
	for i := range room.Members {
		if room.Members[i].ID == playerID {
			return &room.Members[i]
		}
	}

	return nil
}

func (room *Room) touch() {
	room.lastActive = time.Now()
}

// clone deep-copies the persisted fields for snapshotting, so the
// marshal step never touches live state. The caller must hold the room
// lock.
func (room *Room) clone() RoomState {
	dup := RoomState{
		Code:    room.Code,
		HostID:  room.HostID,
		Members: append([]Player(nil), room.Members...),
		Avatars: append([]string(nil), room.Avatars...),
		Config:  room.Config,
		Game: GameState{
			Stage:         room.Game.Stage,
			Round:         room.Game.Round,
			GuesserID:     room.Game.GuesserID,
			TruthTellerID: room.Game.TruthTellerID,
			LiarIDs:       append([]string(nil), room.Game.LiarIDs...),
			ArticlePool:   make(map[string]Article, len(room.Game.ArticlePool)),
			Score:         make(map[string]int, len(room.Game.Score)),
		},
	}

	for id, article := range room.Game.ArticlePool {
		dup.Game.ArticlePool[id] = article
	}
	for id, score := range room.Game.Score {
		dup.Game.Score[id] = score
	}
	if room.Game.ActiveArticle != nil {
		active := *room.Game.ActiveArticle
		dup.Game.ActiveArticle = &active
	}

	return dup
}
