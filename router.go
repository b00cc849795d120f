package main

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Client binds one live websocket connection to a (player, room) pair.
// playerID is fixed for the connection's lifetime; roomCode is set on a
// successful host/join and cleared on leave or disconnect. roomCode and
// closed are guarded by the Router lock.
type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string

	roomCode string
	closed   bool
}

// Router receives inbound intents, validates them against registry and
// game state, applies at most one mutation, and fans the resulting
// state out to every connection bound to the affected room.
//
// Lock ordering: a room lock may be held while taking Router.mu (every
// broadcast happens before the room lock is released), never the
// reverse.
type Router struct {
	cfg      *Config
	reg      *Registry
	supplier ArticleSupplier
	store    *Gateway

	mu       sync.Mutex
	sessions map[string]map[*Client]bool
}

func newRouter(cfg *Config, reg *Registry, supplier ArticleSupplier, store *Gateway) *Router {
	return &Router{
		cfg:      cfg,
		reg:      reg,
		supplier: supplier,
		store:    store,
		sessions: make(map[string]map[*Client]bool),
	}
}

// dispatch routes one inbound intent. Unknown types are ignored.
func (rt *Router) dispatch(c *Client, msg ClientMessage) {
	switch msg.Type {
	case "host":
		rt.handleHost(c, msg)
	case "join":
		rt.handleJoin(c, msg)
	case "start":
		rt.handleStart(c)
	case "advance":
		rt.handleAdvance(c)
	case "select_article":
		rt.handleSelect(c, msg)
	case "guess":
		rt.handleGuess(c, msg)
	case "leave":
		rt.handleLeave(c, msg.Reason)
	case "rename":
		rt.handleRename(c, msg)
	case "kick":
		rt.handleKick(c, msg)
	default:
		// ignore unknown types
	}
}

// ---- session bookkeeping ----

func (rt *Router) bind(c *Client, code string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if c.closed {
		return
	}

	c.roomCode = code
	if rt.sessions[code] == nil {
		rt.sessions[code] = make(map[*Client]bool)
	}
	rt.sessions[code][c] = true
}

// unbind clears the client's room binding and returns the code it was
// bound to, if any.
func (rt *Router) unbind(c *Client) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	code := c.roomCode
	c.roomCode = ""

	if clients, ok := rt.sessions[code]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(rt.sessions, code)
		}
	}

	return code
}

func (rt *Router) roomCodeOf(c *Client) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	return c.roomCode
}

// occupied reports whether any live connection is bound to the room,
// which keeps the reaper away from rooms that are merely quiet.
func (rt *Router) occupied(code string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	return len(rt.sessions[code]) > 0
}

// dropLocked removes a client that can no longer be written to. The
// caller must hold rt.mu.
func (rt *Router) dropLocked(c *Client) {
	if c.closed {
		return
	}

	c.closed = true
	close(c.send)

	if clients, ok := rt.sessions[c.roomCode]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(rt.sessions, c.roomCode)
		}
	}
	c.roomCode = ""
}

// sendLocked queues a message for one client, dropping the client if
// its send buffer is full. The caller must hold rt.mu.
func (rt *Router) sendLocked(c *Client, msg any) {
	if c.closed {
		return
	}

	select {
	case c.send <- msg:
	default:
		rt.dropLocked(c)
	}
}

// send queues a message for the originating connection only.
func (rt *Router) send(c *Client, msg any) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.sendLocked(c, msg)
}

// broadcast queues a message for every connection bound to the room.
func (rt *Router) broadcast(code string, msg any) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for client := range rt.sessions[code] {
		rt.sendLocked(client, msg)
	}
}

// sendToPlayer queues a message for every connection a player has bound
// to the room.
func (rt *Router) sendToPlayer(code, playerID string, msg any) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for client := range rt.sessions[code] {
		if client.playerID == playerID {
			rt.sendLocked(client, msg)
		}
	}
}

// membersMessage builds the seating broadcast. The caller must hold the
// room lock.
func membersMessage(room *Room) MembersMessage {
	members := make([]MemberInfo, 0, len(room.Members))
	for _, member := range room.Members {
		members = append(members, MemberInfo{
			ID:     member.ID,
			Name:   member.Name,
			Avatar: member.Avatar,
		})
	}

	return MembersMessage{
		Type:    "members",
		Host:    room.HostID,
		Members: members,
	}
}

// resolveRoom maps the client's current binding to its room.
func (rt *Router) resolveRoom(c *Client) (*Room, error) {
	code := rt.roomCodeOf(c)
	if code == "" {
		return nil, ErrNotInRoom
	}

	room := rt.reg.getRoom(code)
	if room == nil {
		return nil, ErrRoomNotFound
	}

	return room, nil
}

func (rt *Router) snapshotAsync() {
	go rt.store.snapshot(rt.reg)
}

// ---- intent handlers ----

// handleHost creates a room and seats the sender as its host. Hosting
// while seated elsewhere leaves the old room first.
func (rt *Router) handleHost(c *Client, msg ClientMessage) {
	if c.playerID == "" {
		rt.send(c, errorMessage(ErrInvalidPlayer))

		return
	}

	if rt.roomCodeOf(c) != "" {
		rt.handleLeave(c, "hosting a new room")
	}

	override := &GameConfig{
		Capacity: msg.Capacity,
		Rounds:   -1,
	}
	if msg.Rounds != nil {
		override.Rounds = *msg.Rounds
	}

	room := rt.reg.createRoom(Player{ID: c.playerID, Name: msg.Name}, override)

	room.mu.Lock()
	defer room.mu.Unlock()

	rt.bind(c, room.Code)
	rt.send(c, JoinedMessage{
		Type:   "joined",
		Room:   room.Code,
		Host:   room.HostID,
		Avatar: room.Members[0].Avatar,
	})
	rt.broadcast(room.Code, membersMessage(room))

	logf(rt.cfg, "ROOMS: Player %s created room %s", c.playerID, room.Code)

	rt.snapshotAsync()
}

// handleJoin seats the sender in an existing room by code. Joining a
// different room while seated elsewhere leaves the old room first;
// rejoining the current room just reissues the held avatar.
func (rt *Router) handleJoin(c *Client, msg ClientMessage) {
	if c.playerID == "" {
		rt.send(c, errorMessage(ErrInvalidPlayer))

		return
	}

	room := rt.reg.getRoom(msg.RoomCode)
	if room == nil {
		rt.send(c, errorMessage(ErrRoomNotFound))

		return
	}

	if current := rt.roomCodeOf(c); current != "" && current != msg.RoomCode {
		rt.handleLeave(c, "joining another room")
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	avatar, err := rt.reg.joinLocked(room, Player{ID: c.playerID, Name: msg.Name})
	if err != nil {
		rt.send(c, errorMessage(err))

		return
	}

	rt.bind(c, room.Code)
	rt.send(c, JoinedMessage{
		Type:   "joined",
		Room:   room.Code,
		Host:   room.HostID,
		Avatar: avatar,
	})
	rt.broadcast(room.Code, membersMessage(room))

	logf(rt.cfg, "ROOMS: Player %s joined room %s", c.playerID, room.Code)

	rt.snapshotAsync()
}

// handleStart begins the round sequence, fetching each member's batch
// of candidate articles from the supplier first. The fetch is the only
// suspending step and happens before the room lock is taken.
func (rt *Router) handleStart(c *Client) {
	room, err := rt.resolveRoom(c)
	if err != nil {
		rt.send(c, errorMessage(err))

		return
	}

	room.mu.Lock()
	if room.member(c.playerID) == nil {
		room.mu.Unlock()
		rt.send(c, errorMessage(ErrNotInRoom))

		return
	}
	if room.Game.Round > 0 {
		room.mu.Unlock()
		rt.send(c, errorMessage(ErrGameInProgress))

		return
	}
	memberCount := len(room.Members)
	room.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	articles, err := rt.supplier.Fetch(ctx, memberCount*rt.cfg.articlesPerPlayer)
	if err != nil {
		logf(rt.cfg, "GAMES: Article fetch for room %s failed: %v", room.Code, err)
		rt.send(c, errorMessage(err))

		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	// The fetch ran unlocked, so someone else may have started already.
	if room.Game.Round > 0 {
		rt.send(c, errorMessage(ErrGameInProgress))

		return
	}

	startGame(room)
	room.touch()

	batches := splitBatches(articles, room.Members, rt.cfg.articlesPerPlayer)

	rt.mu.Lock()
	for client := range rt.sessions[room.Code] {
		rt.sendLocked(client, StartedMessage{
			Type:     "started",
			Round:    room.Game.Round,
			Guesser:  room.Game.GuesserID,
			Articles: batches[client.playerID],
		})
	}
	rt.mu.Unlock()

	logf(rt.cfg, "GAMES: Room %s started with %d player(s)", room.Code, memberCount)

	rt.snapshotAsync()
}

// handleAdvance force-advances the current stage and announces the
// result, which is the same stage again when the transition was
// rejected.
func (rt *Router) handleAdvance(c *Client) {
	room, err := rt.resolveRoom(c)
	if err != nil {
		rt.send(c, errorMessage(err))

		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.member(c.playerID) == nil {
		rt.send(c, errorMessage(ErrNotInRoom))

		return
	}

	stage := advanceStage(room, rt.reg.rng)
	room.touch()

	rt.broadcast(room.Code, AdvanceMessage{
		Type:  "advance",
		Stage: stage.String(),
		Round: room.Game.Round,
	})

	rt.snapshotAsync()
}

// handleSelect records the sender's article for the round.
func (rt *Router) handleSelect(c *Client, msg ClientMessage) {
	if msg.Article == nil {
		return
	}

	room, err := rt.resolveRoom(c)
	if err != nil {
		rt.send(c, errorMessage(err))

		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.member(c.playerID) == nil {
		rt.send(c, errorMessage(ErrNotInRoom))

		return
	}

	stage := submitArticle(room, c.playerID, *msg.Article, rt.reg.rng)
	room.touch()

	rt.broadcast(room.Code, AdvanceMessage{
		Type:  "advance",
		Stage: stage.String(),
		Round: room.Game.Round,
	})

	rt.snapshotAsync()
}

// handleGuess scores the sender's guess and announces the outcome.
func (rt *Router) handleGuess(c *Client, msg ClientMessage) {
	if msg.GuessID == "" {
		return
	}

	room, err := rt.resolveRoom(c)
	if err != nil {
		rt.send(c, errorMessage(err))

		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.member(c.playerID) == nil {
		rt.send(c, errorMessage(ErrNotInRoom))

		return
	}

	truthTeller := room.Game.TruthTellerID
	correct, stage := recordGuess(room, msg.GuessID, rt.reg.rng)
	room.touch()

	scores := make(map[string]int, len(room.Game.Score))
	for id, score := range room.Game.Score {
		scores[id] = score
	}

	rt.broadcast(room.Code, GuessResultMessage{
		Type:        "guess_result",
		Correct:     correct,
		TruthTeller: truthTeller,
		Guessed:     msg.GuessID,
		Scores:      scores,
	})
	rt.broadcast(room.Code, AdvanceMessage{
		Type:  "advance",
		Stage: stage.String(),
		Round: room.Game.Round,
	})

	rt.snapshotAsync()
}

// handleLeave removes the sender from their room. Leaving while not in
// a room is a no-op.
func (rt *Router) handleLeave(c *Client, reason string) {
	code := rt.unbind(c)
	if code == "" {
		return
	}

	room := rt.reg.getRoom(code)
	if room == nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	rt.reg.leaveLocked(room, c.playerID)
	rt.broadcast(code, membersMessage(room))

	if reason == "" {
		reason = "no reason given"
	}
	logf(rt.cfg, "ROOMS: Player %s left room %s (%s)", c.playerID, code, reason)

	rt.snapshotAsync()
}

// handleRename updates the sender's display name.
func (rt *Router) handleRename(c *Client, msg ClientMessage) {
	if msg.Name == "" {
		return
	}

	room, err := rt.resolveRoom(c)
	if err != nil {
		rt.send(c, errorMessage(err))

		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	member := room.member(c.playerID)
	if member == nil {
		rt.send(c, errorMessage(ErrNotInRoom))

		return
	}

	member.Name = msg.Name
	room.touch()

	rt.broadcast(room.Code, membersMessage(room))

	rt.snapshotAsync()
}

// handleKick lets the host remove another member. The kicked player's
// connections are told why, then unbound.
func (rt *Router) handleKick(c *Client, msg ClientMessage) {
	room, err := rt.resolveRoom(c)
	if err != nil {
		rt.send(c, errorMessage(err))

		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.HostID != c.playerID {
		rt.send(c, errorMessage(ErrNotHost))

		return
	}
	if msg.TargetID == c.playerID || room.member(msg.TargetID) == nil {
		rt.send(c, errorMessage(ErrInvalidPlayer))

		return
	}

	rt.reg.leaveLocked(room, msg.TargetID)

	rt.sendToPlayer(room.Code, msg.TargetID, KickedMessage{
		Type:    "kicked",
		Message: "You have been removed by the host.",
	})

	rt.mu.Lock()
	for client := range rt.sessions[room.Code] {
		if client.playerID == msg.TargetID {
			delete(rt.sessions[room.Code], client)
			client.roomCode = ""
		}
	}
	rt.mu.Unlock()

	rt.broadcast(room.Code, membersMessage(room))

	logf(rt.cfg, "ROOMS: Player %s kicked from room %s", msg.TargetID, room.Code)

	rt.snapshotAsync()
}

// disconnect handles transport-level teardown. Unlike an explicit
// leave, the member keeps their seat so transient drops are painless;
// only the host role is handed off so the room stays drivable.
func (rt *Router) disconnect(c *Client) {
	code := rt.unbind(c)

	rt.mu.Lock()
	rt.dropLocked(c)
	rt.mu.Unlock()

	if code == "" {
		return
	}

	room := rt.reg.getRoom(code)
	if room == nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.HostID == c.playerID {
		rt.reg.reassignHostLocked(room, c.playerID)
		rt.broadcast(code, membersMessage(room))
		rt.snapshotAsync()
	}
}

// ---- websocket plumbing ----

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "lietome_id"

// getOrSetPlayerID reads the sticky identity cookie, minting a fresh
// UUID when the connection arrives without one.
func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// serveWS upgrades the connection and runs the read/write pumps.
func serveWS(cfg *Config, rt *Router) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		playerID := getOrSetPlayerID(w, r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "WS: Upgrade failed for %s: %v", realIP(r), err)

			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
		}

		go client.writePump()
		client.readPump(rt)
	}
}

func (c *Client) readPump(rt *Router) {
	defer func() {
		rt.disconnect(c)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		rt.dispatch(c, msg)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
