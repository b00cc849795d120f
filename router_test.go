package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSupplier struct {
	err error
}

func (s *stubSupplier) Fetch(ctx context.Context, quantity int) ([]Article, error) {
	if s.err != nil {
		return nil, s.err
	}

	articles := make([]Article, quantity)
	for i := range articles {
		articles[i] = Article{
			ID:    fmt.Sprintf("a%d", i),
			URL:   fmt.Sprintf("https://example.org/%d", i),
			Title: fmt.Sprintf("Article %d", i),
		}
	}

	return articles, nil
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()

	cfg := &Config{articlesPerPlayer: 2}
	reg := newRegistry(newLockedRand(1), GameConfig{Capacity: 8, Rounds: 8})
	store := newGateway(cfg, afero.NewMemMapFs(), "state.json")

	return newRouter(cfg, reg, &stubSupplier{}, store)
}

func newTestClient(playerID string) *Client {
	return &Client{
		send:     make(chan any, 64),
		playerID: playerID,
	}
}

// drain empties a client's send buffer and returns what was queued.
func drain(c *Client) []any {
	var msgs []any
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return msgs
			}
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func lastMembers(t *testing.T, msgs []any) MembersMessage {
	t.Helper()

	for i := len(msgs) - 1; i >= 0; i-- {
		if m, ok := msgs[i].(MembersMessage); ok {
			return m
		}
	}

	t.Fatal("no members message queued")

	return MembersMessage{}
}

// seatRoom hosts a room and joins two more players, returning the
// clients with their buffers drained.
func seatRoom(t *testing.T, rt *Router) (host, p1, p2 *Client, code string) {
	t.Helper()

	host = newTestClient("host")
	p1 = newTestClient("p1")
	p2 = newTestClient("p2")

	rt.dispatch(host, ClientMessage{Type: "host", Name: "Ada"})

	msgs := drain(host)
	require.NotEmpty(t, msgs)
	joined, ok := msgs[0].(JoinedMessage)
	require.True(t, ok, "expected a joined message first, got %T", msgs[0])
	code = joined.Room

	rt.dispatch(p1, ClientMessage{Type: "join", RoomCode: code, Name: "Bob"})
	rt.dispatch(p2, ClientMessage{Type: "join", RoomCode: code, Name: "Cam"})

	drain(host)
	drain(p1)
	drain(p2)

	return host, p1, p2, code
}

func TestHandleHost(t *testing.T) {
	rt := newTestRouter(t)
	c := newTestClient("host")

	rt.dispatch(c, ClientMessage{Type: "host", Name: "Ada", Capacity: 4})

	msgs := drain(c)
	require.Len(t, msgs, 2)

	joined := msgs[0].(JoinedMessage)
	assert.Equal(t, "host", joined.Host)
	assert.NotEmpty(t, joined.Avatar)

	members := msgs[1].(MembersMessage)
	require.Len(t, members.Members, 1)
	assert.Equal(t, "Ada", members.Members[0].Name)

	room := rt.reg.getRoom(joined.Room)
	require.NotNil(t, room)
	assert.Equal(t, 4, room.Config.Capacity)
	assert.Equal(t, joined.Room, rt.roomCodeOf(c))
}

func TestHandleJoin(t *testing.T) {
	t.Run("Broadcasts Seating To The Whole Room", func(t *testing.T) {
		rt := newTestRouter(t)
		host := newTestClient("host")
		rt.dispatch(host, ClientMessage{Type: "host"})
		joined := drain(host)[0].(JoinedMessage)

		p1 := newTestClient("p1")
		rt.dispatch(p1, ClientMessage{Type: "join", RoomCode: joined.Room, Name: "Bob"})

		hostMembers := lastMembers(t, drain(host))
		p1Members := lastMembers(t, drain(p1))
		assert.Equal(t, hostMembers, p1Members)
		assert.Len(t, p1Members.Members, 2)
	})

	t.Run("Unknown Room Errors The Originator Only", func(t *testing.T) {
		rt := newTestRouter(t)
		host, _, _, _ := seatRoom(t, rt)

		stray := newTestClient("stray")
		rt.dispatch(stray, ClientMessage{Type: "join", RoomCode: "00000"})

		msgs := drain(stray)
		require.Len(t, msgs, 1)
		assert.Equal(t, errorMessage(ErrRoomNotFound), msgs[0])
		assert.Empty(t, drain(host))
	})

	t.Run("Full Room Errors The Originator Only", func(t *testing.T) {
		rt := newTestRouter(t)
		host, _, _, code := seatRoom(t, rt)
		rt.reg.getRoom(code).Config.Capacity = 3

		late := newTestClient("late")
		rt.dispatch(late, ClientMessage{Type: "join", RoomCode: code})

		msgs := drain(late)
		require.Len(t, msgs, 1)
		assert.Equal(t, errorMessage(ErrRoomFull), msgs[0])
		assert.Empty(t, drain(host))
		assert.Empty(t, rt.roomCodeOf(late))
	})

	t.Run("Joining Another Room Leaves The First", func(t *testing.T) {
		rt := newTestRouter(t)
		_, p1, _, code := seatRoom(t, rt)

		other := newTestClient("other")
		rt.dispatch(other, ClientMessage{Type: "host"})
		otherCode := drain(other)[0].(JoinedMessage).Room

		rt.dispatch(p1, ClientMessage{Type: "join", RoomCode: otherCode})

		assert.Equal(t, otherCode, rt.roomCodeOf(p1))
		assert.Nil(t, rt.reg.getRoom(code).member("p1"))
	})
}

func TestHandleStart(t *testing.T) {
	t.Run("Deals Each Player Their Own Batch", func(t *testing.T) {
		rt := newTestRouter(t)
		host, p1, p2, code := seatRoom(t, rt)

		rt.dispatch(host, ClientMessage{Type: "start"})

		for _, c := range []*Client{host, p1, p2} {
			msgs := drain(c)
			require.Len(t, msgs, 1, "client %s", c.playerID)

			started := msgs[0].(StartedMessage)
			assert.Equal(t, 1, started.Round)
			assert.Equal(t, "host", started.Guesser)
			assert.Len(t, started.Articles, rt.cfg.articlesPerPlayer)
		}

		room := rt.reg.getRoom(code)
		assert.Equal(t, 1, room.Game.Round)
		assert.Equal(t, "host", room.Game.GuesserID)
	})

	t.Run("Batches Do Not Overlap", func(t *testing.T) {
		rt := newTestRouter(t)
		host, p1, p2, _ := seatRoom(t, rt)

		rt.dispatch(host, ClientMessage{Type: "start"})

		seen := make(map[string]bool)
		for _, c := range []*Client{host, p1, p2} {
			started := drain(c)[0].(StartedMessage)
			for _, article := range started.Articles {
				assert.False(t, seen[article.ID], "article %s dealt twice", article.ID)
				seen[article.ID] = true
			}
		}
	})

	t.Run("Requires Membership", func(t *testing.T) {
		rt := newTestRouter(t)
		stray := newTestClient("stray")

		rt.dispatch(stray, ClientMessage{Type: "start"})

		msgs := drain(stray)
		require.Len(t, msgs, 1)
		assert.Equal(t, errorMessage(ErrNotInRoom), msgs[0])
	})

	t.Run("Rejects A Second Start", func(t *testing.T) {
		rt := newTestRouter(t)
		host, _, _, _ := seatRoom(t, rt)

		rt.dispatch(host, ClientMessage{Type: "start"})
		drain(host)

		rt.dispatch(host, ClientMessage{Type: "start"})

		msgs := drain(host)
		require.Len(t, msgs, 1)
		assert.Equal(t, errorMessage(ErrGameInProgress), msgs[0])
	})

	t.Run("Supplier Failure Reaches The Originator And Leaves State Alone", func(t *testing.T) {
		rt := newTestRouter(t)
		host, _, _, code := seatRoom(t, rt)
		rt.supplier = &stubSupplier{err: fmt.Errorf("supply: connection refused")}

		rt.dispatch(host, ClientMessage{Type: "start"})

		msgs := drain(host)
		require.Len(t, msgs, 1)
		assert.IsType(t, ErrorMessage{}, msgs[0])
		assert.Equal(t, 0, rt.reg.getRoom(code).Game.Round)
	})
}

func TestRoundFlow(t *testing.T) {
	rt := newTestRouter(t)
	host, p1, p2, code := seatRoom(t, rt)
	room := rt.reg.getRoom(code)

	rt.dispatch(host, ClientMessage{Type: "start"})
	drain(host)
	drain(p1)
	drain(p2)

	// Both non-guessers submit; the second submission tips the room
	// into Questioning.
	rt.dispatch(p1, ClientMessage{Type: "select_article", Article: &Article{URL: "u1", Title: "t1"}})
	advance := drain(p1)[0].(AdvanceMessage)
	assert.Equal(t, "collecting", advance.Stage)
	drain(host)
	drain(p2)

	rt.dispatch(p2, ClientMessage{Type: "select_article", Article: &Article{URL: "u2", Title: "t2"}})
	advance = drain(p2)[0].(AdvanceMessage)
	assert.Equal(t, "questioning", advance.Stage)
	assert.Contains(t, []string{"p1", "p2"}, room.Game.TruthTellerID)
	drain(host)
	drain(p1)

	// The host walks the room through questioning into guessing.
	rt.dispatch(host, ClientMessage{Type: "advance"})
	advance = drain(host)[0].(AdvanceMessage)
	assert.Equal(t, "guessing", advance.Stage)
	drain(p1)
	drain(p2)

	truthTeller := room.Game.TruthTellerID
	rt.dispatch(host, ClientMessage{Type: "guess", GuessID: truthTeller})

	hostMsgs := drain(host)
	require.Len(t, hostMsgs, 2)

	result := hostMsgs[0].(GuessResultMessage)
	assert.True(t, result.Correct)
	assert.Equal(t, truthTeller, result.TruthTeller)
	assert.Equal(t, 1, result.Scores["host"])
	assert.Equal(t, 1, result.Scores[truthTeller])

	advance = hostMsgs[1].(AdvanceMessage)
	assert.Equal(t, "round_end", advance.Stage)

	// Everyone in the room saw the same outcome.
	assert.Len(t, drain(p1), 2)
	assert.Len(t, drain(p2), 2)
}

func TestHandleLeave(t *testing.T) {
	t.Run("Host Departure Hands Off To The Next Member", func(t *testing.T) {
		rt := newTestRouter(t)
		host, p1, _, code := seatRoom(t, rt)

		rt.dispatch(host, ClientMessage{Type: "leave", Reason: "done for tonight"})

		members := lastMembers(t, drain(p1))
		assert.Equal(t, "p1", members.Host)
		assert.Len(t, members.Members, 2)
		assert.Empty(t, rt.roomCodeOf(host))
		assert.Len(t, rt.reg.getRoom(code).Members, 2)
	})

	t.Run("Leaving Twice Is Harmless", func(t *testing.T) {
		rt := newTestRouter(t)
		_, p1, _, code := seatRoom(t, rt)

		rt.dispatch(p1, ClientMessage{Type: "leave"})
		rt.dispatch(p1, ClientMessage{Type: "leave"})

		assert.Len(t, rt.reg.getRoom(code).Members, 2)
	})
}

func TestDisconnect(t *testing.T) {
	t.Run("Keeps Membership", func(t *testing.T) {
		// Scenario: disconnect never removes the player from members,
		// so a transient drop costs nothing.
		rt := newTestRouter(t)
		_, p1, _, code := seatRoom(t, rt)

		rt.disconnect(p1)

		room := rt.reg.getRoom(code)
		assert.NotNil(t, room.member("p1"))
		assert.Len(t, room.Members, 3)
		assert.Empty(t, rt.roomCodeOf(p1))
	})

	t.Run("Host Disconnect Hands Off The Role Only", func(t *testing.T) {
		rt := newTestRouter(t)
		host, p1, _, code := seatRoom(t, rt)

		rt.disconnect(host)

		room := rt.reg.getRoom(code)
		assert.NotNil(t, room.member("host"))
		assert.Equal(t, "p1", room.HostID)

		members := lastMembers(t, drain(p1))
		assert.Equal(t, "p1", members.Host)
		assert.Len(t, members.Members, 3)
	})

	t.Run("Reconnect Reclaims The Same Seat", func(t *testing.T) {
		rt := newTestRouter(t)
		_, p1, _, code := seatRoom(t, rt)

		room := rt.reg.getRoom(code)
		avatar := room.member("p1").Avatar

		rt.disconnect(p1)

		again := newTestClient("p1")
		rt.dispatch(again, ClientMessage{Type: "join", RoomCode: code})

		joined := drain(again)[0].(JoinedMessage)
		assert.Equal(t, avatar, joined.Avatar)
		assert.Len(t, room.Members, 3)
	})
}

func TestHandleRename(t *testing.T) {
	rt := newTestRouter(t)
	host, p1, _, _ := seatRoom(t, rt)

	rt.dispatch(p1, ClientMessage{Type: "rename", Name: "Bobby"})

	members := lastMembers(t, drain(host))
	for _, member := range members.Members {
		if member.ID == "p1" {
			assert.Equal(t, "Bobby", member.Name)
		}
	}
}

func TestHandleKick(t *testing.T) {
	t.Run("Only The Host May Kick", func(t *testing.T) {
		rt := newTestRouter(t)
		_, p1, _, code := seatRoom(t, rt)

		rt.dispatch(p1, ClientMessage{Type: "kick", TargetID: "p2"})

		msgs := drain(p1)
		require.Len(t, msgs, 1)
		assert.Equal(t, errorMessage(ErrNotHost), msgs[0])
		assert.Len(t, rt.reg.getRoom(code).Members, 3)
	})

	t.Run("Kicked Player Is Told And Unbound", func(t *testing.T) {
		rt := newTestRouter(t)
		host, p1, _, code := seatRoom(t, rt)

		rt.dispatch(host, ClientMessage{Type: "kick", TargetID: "p1"})

		p1Msgs := drain(p1)
		require.NotEmpty(t, p1Msgs)
		assert.IsType(t, KickedMessage{}, p1Msgs[0])
		assert.Empty(t, rt.roomCodeOf(p1))

		room := rt.reg.getRoom(code)
		assert.Nil(t, room.member("p1"))

		members := lastMembers(t, drain(host))
		assert.Len(t, members.Members, 2)
	})

	t.Run("Unknown Target Errors", func(t *testing.T) {
		rt := newTestRouter(t)
		host, _, _, _ := seatRoom(t, rt)

		rt.dispatch(host, ClientMessage{Type: "kick", TargetID: "stranger"})

		msgs := drain(host)
		require.Len(t, msgs, 1)
		assert.Equal(t, errorMessage(ErrInvalidPlayer), msgs[0])
	})
}

func TestDispatchIgnoresUnknownTypes(t *testing.T) {
	rt := newTestRouter(t)
	c := newTestClient("p1")

	rt.dispatch(c, ClientMessage{Type: "mystery"})
	rt.dispatch(c, ClientMessage{})

	assert.Empty(t, drain(c))
}

func TestOccupied(t *testing.T) {
	rt := newTestRouter(t)
	host, p1, p2, code := seatRoom(t, rt)

	assert.True(t, rt.occupied(code))

	rt.disconnect(host)
	assert.True(t, rt.occupied(code))

	rt.disconnect(p1)
	rt.disconnect(p2)
	assert.False(t, rt.occupied(code))
}
