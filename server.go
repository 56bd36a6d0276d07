package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// gracePeriod is how long a disconnected player's seat is held before
	// they are removed as if they had left.
	gracePeriod = 10 * time.Minute

	pingInterval = 25 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for WebSocket
	},
}

// Client is one live connection bound to a durable player identity. The
// identity outlives the connection: a reconnect within the grace period
// picks the same PlayerID back up.
type Client struct {
	PlayerID string
	Name     string
	RoomID   string
	Conn     *websocket.Conn

	writeMu sync.Mutex // gorilla allows one concurrent writer
}

func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Server terminates client connections, maps them to player identities,
// dispatches inbound messages to the registry and scheduler, and fans the
// resulting state back out.
type Server struct {
	reg       *Registry
	scheduler *Scheduler

	mu      sync.RWMutex
	clients map[*websocket.Conn]*Client

	graceMu  sync.Mutex
	grace    map[string]*time.Timer
	graceTTL time.Duration // guarded by graceMu

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewServer(reg *Registry) *Server {
	s := &Server{
		reg:      reg,
		clients:  make(map[*websocket.Conn]*Client),
		grace:    make(map[string]*time.Timer),
		graceTTL: gracePeriod,
		stopCh:   make(chan struct{}),
	}
	go s.heartbeatLoop()
	return s
}

// Stop ends the heartbeat loop. Connections drain on their own.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// heartbeatLoop pings every client on an interval; a peer that stops
// answering runs out its read deadline and is force-closed, so its grace
// period starts promptly instead of waiting for TCP to notice.
func (s *Server) heartbeatLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.RLock()
			clients := make([]*Client, 0, len(s.clients))
			for _, cl := range s.clients {
				clients = append(clients, cl)
			}
			s.mu.RUnlock()
			for _, cl := range clients {
				if err := cl.ping(); err != nil {
					cl.Conn.Close()
				}
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *Server) wsHandler(c *gin.Context) {
	savedID := c.Query("playerId")
	name := trimName(c.Query("name"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("upgrade error:", err)
		return
	}
	defer conn.Close()

	// A saved player id is honored only while its grace timer is pending.
	playerID := ""
	isReconnect := false
	if savedID != "" {
		s.graceMu.Lock()
		if t, ok := s.grace[savedID]; ok {
			t.Stop()
			delete(s.grace, savedID)
			playerID = savedID
			isReconnect = true
		}
		s.graceMu.Unlock()
	}
	if playerID == "" {
		playerID = uuid.New().String()
	}
	if name == "" {
		name = randomName()
	}

	client := &Client{PlayerID: playerID, Name: name, Conn: conn}
	s.mu.Lock()
	s.clients[conn] = client
	total := len(s.clients)
	s.mu.Unlock()

	if isReconnect {
		log.Printf("🔌 Player %s reconnected within grace period (Total clients: %d)\n", playerID, total)
	} else {
		log.Printf("🔌 Client connected: %s [%s] (Total clients: %d)\n", name, playerID, total)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.send(client, ServerMessage{
		Type: "STATE_SYNC",
		Payload: map[string]any{
			"playerId":    playerID,
			"playerName":  name,
			"isReconnect": isReconnect,
		},
	})

	defer s.dropClient(client)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("unmarshal error: %v\n", err)
			continue
		}
		s.dispatch(client, msg)
	}
}

// dropClient removes a closed connection and, if its player was in a room,
// starts the grace timer instead of removing the player outright.
func (s *Server) dropClient(client *Client) {
	s.mu.Lock()
	delete(s.clients, client.Conn)
	roomID := client.RoomID
	total := len(s.clients)
	s.mu.Unlock()

	log.Printf("❌ Client disconnected: %s [%s] (Total clients: %d)\n", client.Name, client.PlayerID, total)

	if roomID == "" {
		return
	}
	if _, ok := s.reg.Player(roomID, client.PlayerID); !ok {
		return
	}
	s.startGrace(client.PlayerID, roomID)
}

func (s *Server) startGrace(playerID, roomID string) {
	s.graceMu.Lock()
	defer s.graceMu.Unlock()
	if t, ok := s.grace[playerID]; ok {
		t.Stop()
	}
	s.grace[playerID] = time.AfterFunc(s.graceTTL, func() {
		s.expireGrace(playerID, roomID)
	})
	log.Printf("⏳ Player %s has %s to reconnect\n", playerID, s.graceTTL)
}

func (s *Server) expireGrace(playerID, roomID string) {
	s.graceMu.Lock()
	delete(s.grace, playerID)
	s.graceMu.Unlock()

	log.Printf("⌛ Player %s grace period expired, removing from room %s\n", playerID, roomID)
	if err := s.reg.RemovePlayer(roomID, playerID); err != nil {
		return
	}
	s.broadcastToRoom(roomID, ServerMessage{
		Type:    "PLAYER_LEFT",
		Payload: map[string]any{"playerId": playerID},
	}, nil)
	s.broadcastRoomState(roomID)
}

func (s *Server) dispatch(client *Client, msg ClientMessage) {
	switch msg.Type {
	case "JOIN_ROOM":
		var p JoinRoomPayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		s.handleJoinRoom(client, p.RoomID)
	case "LEAVE_ROOM":
		s.handleLeaveRoom(client)
	case "SELECT_TEAM":
		var p SelectTeamPayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		s.handleSelectTeam(client, p.TeamID)
	case "LEAVE_TEAM":
		s.handleLeaveTeam(client)
	case "READY":
		s.handleReady(client, true)
	case "UNREADY":
		s.handleReady(client, false)
	case "CONFIG_GAME":
		var cfg GameConfig
		if json.Unmarshal(msg.Payload, &cfg) != nil {
			return
		}
		s.handleConfigGame(client, cfg)
	case "START_GAME":
		s.handleStartGame(client)
	case "PLACE_STONE":
		var p PlaceStonePayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		s.handlePlaceStone(client, p.Position)
	case "SKIP_ROUND":
		s.handleSkipRound(client)
	case "SWITCH_MODE":
		var p SwitchModePayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		s.handleSwitchMode(client, p.Mode)
	case "SET_NAME":
		var p SetNamePayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		s.handleSetName(client, p.Name)
	case "WEBRTC_SIGNAL":
		var p SignalPayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			return
		}
		s.relaySignal(client, p)
	default:
		log.Printf("⚠️ Unknown message type: %s\n", msg.Type)
	}
}

func (s *Server) handleJoinRoom(client *Client, roomID string) {
	room, ok := s.reg.GetRoom(roomID)
	if !ok {
		s.sendError(client, "Room not found")
		return
	}
	roomID = room.ID

	// Rejoin: the player is still registered, restore the binding.
	if p, ok := s.reg.Player(roomID, client.PlayerID); ok {
		s.setClientState(client, roomID, p.Name)
		log.Printf("🔁 Player %s rejoined room %s\n", client.PlayerID, roomID)
		s.sendRoomState(client)
		return
	}

	player := &Player{
		ID:     client.PlayerID,
		Name:   client.Name,
		Avatar: avatarURL(client.Name),
	}
	if err := s.reg.AddPlayer(roomID, player); err != nil {
		s.sendError(client, "Room not found")
		return
	}
	s.setClientState(client, roomID, client.Name)
	log.Printf("👋 %s [%s] joined room %s\n", client.Name, client.PlayerID, roomID)

	if joined, ok := s.reg.Player(roomID, client.PlayerID); ok {
		s.broadcastToRoom(roomID, ServerMessage{
			Type:    "PLAYER_JOINED",
			Payload: map[string]any{"player": joined},
		}, client.Conn)
	}
	s.broadcastRoomState(roomID)
}

func (s *Server) handleLeaveRoom(client *Client) {
	roomID := client.RoomID
	if roomID == "" {
		return
	}
	err := s.reg.RemovePlayer(roomID, client.PlayerID)
	s.setClientState(client, "", client.Name)
	if err != nil {
		return
	}
	s.broadcastToRoom(roomID, ServerMessage{
		Type:    "PLAYER_LEFT",
		Payload: map[string]any{"playerId": client.PlayerID},
	}, nil)
	s.broadcastRoomState(roomID)
}

func (s *Server) handleSelectTeam(client *Client, teamID int) {
	if client.RoomID == "" {
		return
	}
	if err := s.reg.JoinTeam(client.RoomID, client.PlayerID, teamID); err != nil {
		s.sendError(client, "Cannot join team")
		return
	}
	s.broadcastRoomState(client.RoomID)
}

func (s *Server) handleLeaveTeam(client *Client) {
	if client.RoomID == "" {
		return
	}
	if err := s.reg.LeaveTeam(client.RoomID, client.PlayerID); err != nil {
		return
	}
	s.broadcastRoomState(client.RoomID)
}

func (s *Server) handleReady(client *Client, ready bool) {
	if client.RoomID == "" {
		return
	}
	if err := s.reg.SetReady(client.RoomID, client.PlayerID, ready); err != nil {
		return
	}
	s.broadcastRoomState(client.RoomID)
	if ready {
		s.scheduler.CheckAllReady(client.RoomID)
	}
}

func (s *Server) handleConfigGame(client *Client, cfg GameConfig) {
	if client.RoomID == "" {
		return
	}
	if !s.isHost(client) {
		s.sendError(client, "Only host can configure game")
		return
	}
	if err := s.reg.ConfigureGame(client.RoomID, cfg); err != nil {
		if errors.Is(err, ErrBadConfig) {
			s.sendError(client, "Invalid game config")
		}
		return
	}
	s.broadcastRoomState(client.RoomID)
}

func (s *Server) handleStartGame(client *Client) {
	if client.RoomID == "" {
		return
	}
	if !s.isHost(client) {
		s.sendError(client, "Only host can start game")
		return
	}
	if err := s.reg.StartGame(client.RoomID); err != nil {
		s.sendError(client, "Cannot start game")
		return
	}
	log.Printf("🎮 Room %s: host started the game\n", client.RoomID)
	s.broadcastToRoom(client.RoomID, ServerMessage{Type: "START_GAME", Payload: map[string]any{}}, nil)
	s.scheduler.startRound(client.RoomID)
	s.broadcastRoomState(client.RoomID)
}

func (s *Server) handlePlaceStone(client *Client, pos Position) {
	if client.RoomID == "" {
		return
	}
	// Invalid moves are expected under race conditions; reject silently.
	if err := s.reg.PlaceStone(client.RoomID, client.PlayerID, pos); err != nil {
		return
	}
	s.broadcastToTeammates(client.RoomID, client.PlayerID)
	s.scheduler.CheckAllMoved(client.RoomID)
}

func (s *Server) handleSkipRound(client *Client) {
	if client.RoomID == "" {
		return
	}
	if err := s.reg.Pass(client.RoomID, client.PlayerID); err != nil {
		return
	}
	s.scheduler.CheckAllMoved(client.RoomID)
}

func (s *Server) handleSwitchMode(client *Client, mode string) {
	if client.RoomID == "" {
		return
	}
	if !s.isHost(client) {
		s.sendError(client, "Only host can switch mode")
		return
	}
	if err := s.reg.SwitchMode(client.RoomID, mode); err != nil {
		return
	}
	s.broadcastToRoom(client.RoomID, ServerMessage{
		Type:    "SWITCH_MODE",
		Payload: map[string]any{"mode": mode},
	}, nil)
	s.broadcastRoomState(client.RoomID)
}

func (s *Server) handleSetName(client *Client, name string) {
	name = trimName(name)
	if name == "" {
		return
	}
	roomID := client.RoomID
	s.setClientState(client, roomID, name)
	if roomID == "" {
		return
	}
	if err := s.reg.SetName(roomID, client.PlayerID, name); err != nil {
		return
	}
	s.broadcastRoomState(roomID)
}

// relaySignal forwards an opaque signaling blob to the target player's
// live connection in the same room. Best-effort: no target, no delivery.
func (s *Server) relaySignal(client *Client, p SignalPayload) {
	if client.RoomID == "" || p.TargetID == client.PlayerID {
		return
	}
	var target *Client
	for _, cl := range s.roomClients(client.RoomID) {
		if cl.PlayerID == p.TargetID {
			target = cl
			break
		}
	}
	if target == nil {
		return
	}
	s.send(target, ServerMessage{
		Type: "WEBRTC_SIGNAL",
		Payload: map[string]any{
			"fromId": client.PlayerID,
			"signal": p.Signal,
		},
	})
}

func (s *Server) isHost(client *Client) bool {
	p, ok := s.reg.Player(client.RoomID, client.PlayerID)
	return ok && p.IsHost
}

// setClientState updates the connection's room binding and display name
// under the client-map lock, since broadcasts read them concurrently.
func (s *Server) setClientState(client *Client, roomID, name string) {
	s.mu.Lock()
	client.RoomID = roomID
	client.Name = name
	s.mu.Unlock()
}

func (s *Server) roomClients(roomID string) []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Client
	for _, cl := range s.clients {
		if cl.RoomID == roomID {
			out = append(out, cl)
		}
	}
	return out
}

func (s *Server) send(client *Client, msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error marshaling message: %v\n", err)
		return
	}
	if err := client.write(data); err != nil {
		log.Printf("Error sending to client %s: %v\n", client.PlayerID, err)
	}
}

func (s *Server) sendError(client *Client, text string) {
	s.send(client, ServerMessage{Type: "ERROR", Payload: map[string]any{"message": text}})
}

// sendRoomState sends the viewer-filtered STATE_SYNC that clients treat as
// the source of truth for all room and game state.
func (s *Server) sendRoomState(client *Client) {
	s.mu.RLock()
	roomID, name := client.RoomID, client.Name
	s.mu.RUnlock()
	if roomID == "" {
		return
	}
	snap, ok := s.reg.Snapshot(roomID, client.PlayerID)
	if !ok {
		return
	}
	s.send(client, ServerMessage{
		Type: "STATE_SYNC",
		Payload: map[string]any{
			"room":       snap,
			"playerId":   client.PlayerID,
			"playerName": name,
		},
	})
}

func (s *Server) broadcastRoomState(roomID string) {
	for _, cl := range s.roomClients(roomID) {
		s.sendRoomState(cl)
	}
}

func (s *Server) broadcastToRoom(roomID string, msg ServerMessage, exclude *websocket.Conn) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error marshaling message: %v\n", err)
		return
	}
	for _, cl := range s.roomClients(roomID) {
		if cl.Conn == exclude {
			continue
		}
		if err := cl.write(data); err != nil {
			log.Printf("Error broadcasting to client %s: %v\n", cl.PlayerID, err)
		}
	}
}

// broadcastToTeammates resyncs state to the mover's teammates only, so the
// other teams cannot see in-progress picks before judging.
func (s *Server) broadcastToTeammates(roomID, playerID string) {
	p, ok := s.reg.Player(roomID, playerID)
	if !ok || p.TeamID == nil {
		return
	}
	for _, cl := range s.roomClients(roomID) {
		teammate, ok := s.reg.Player(roomID, cl.PlayerID)
		if ok && teammate.TeamID != nil && *teammate.TeamID == *p.TeamID {
			s.sendRoomState(cl)
		}
	}
}
