package main

// Messages coming from clients. One closed set of intents, validated at
// the boundary before dispatch.
type ClientMessage struct {
	Type     string   `json:"type"`                // "host", "join", "start", "advance", "select_article", "guess", "leave", "rename", "kick"
	RoomCode string   `json:"room_code,omitempty"` // join
	Name     string   `json:"name,omitempty"`      // host / join / rename
	Capacity int      `json:"capacity,omitempty"`  // host
	Rounds   *int     `json:"rounds,omitempty"`    // host (0 = unlimited)
	Article  *Article `json:"article,omitempty"`   // select_article
	GuessID  string   `json:"guess_id,omitempty"`  // guess
	TargetID string   `json:"target_id,omitempty"` // kick
	Reason   string   `json:"reason,omitempty"`    // leave
}

// JoinedMessage is sent to a client once they are seated in a room.
type JoinedMessage struct {
	Type   string `json:"type"` // "joined"
	Room   string `json:"room"`
	Host   string `json:"host"`
	Avatar string `json:"avatar"`
}

type MemberInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar"`
}

// MembersMessage broadcasts the current seating whenever it changes.
type MembersMessage struct {
	Type    string       `json:"type"` // "members"
	Host    string       `json:"host"`
	Members []MemberInfo `json:"members"`
}

// StartedMessage carries one player's personal batch of candidate
// articles; each member of the room receives their own.
type StartedMessage struct {
	Type     string    `json:"type"` // "started"
	Round    int       `json:"round"`
	Guesser  string    `json:"guesser"`
	Articles []Article `json:"articles"`
}

// AdvanceMessage broadcasts the stage the room just moved to (or stayed
// at, for rejected advances).
type AdvanceMessage struct {
	Type  string `json:"type"` // "advance"
	Stage string `json:"stage"`
	Round int    `json:"round"`
}

// GuessResultMessage announces a guess outcome to the whole room.
type GuessResultMessage struct {
	Type        string         `json:"type"` // "guess_result"
	Correct     bool           `json:"correct"`
	TruthTeller string         `json:"truth_teller"`
	Guessed     string         `json:"guessed"`
	Scores      map[string]int `json:"scores"`
}

// KickedMessage is sent to a client removed by the host.
type KickedMessage struct {
	Type    string `json:"type"` // "kicked"
	Message string `json:"message"`
}

// ErrorMessage is sent to the originating connection only, never
// broadcast.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

func errorMessage(err error) ErrorMessage {
	return ErrorMessage{
		Type:    "error",
		Message: err.Error(),
	}
}
