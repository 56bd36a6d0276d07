package main

import (
	"errors"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrPlayerNotFound = errors.New("player not found")
	ErrTeamNotFound   = errors.New("team not found")
	ErrTeamFull       = errors.New("team is full")
	ErrAlreadyReady   = errors.New("player already readied")
	ErrWrongPhase     = errors.New("operation not allowed in current phase")
	ErrBadMove        = errors.New("invalid move")
	ErrBadConfig      = errors.New("invalid game config")
	ErrNotReady       = errors.New("not all players seated and ready")
)

// Registry owns every room. The registry lock guards the room map; each
// room's own lock serializes mutation of its players, teams and game
// state. Lock order is always registry before room.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

func defaultConfig() GameConfig {
	return GameConfig{PlayerCount: 4, PlayersPerTeam: 2, TotalRounds: 3}
}

func (cfg GameConfig) validate() error {
	if cfg.PlayerCount != 4 && cfg.PlayerCount != 8 {
		return ErrBadConfig
	}
	if cfg.PlayersPerTeam != 2 && cfg.PlayersPerTeam != 4 {
		return ErrBadConfig
	}
	if cfg.PlayerCount == 4 && cfg.PlayersPerTeam != 2 {
		return ErrBadConfig
	}
	if cfg.TotalRounds < 1 || cfg.TotalRounds > 10 {
		return ErrBadConfig
	}
	return nil
}

func newTeams(cfg GameConfig) []*Team {
	count := cfg.PlayerCount / cfg.PlayersPerTeam
	teams := make([]*Team, count)
	for i := 0; i < count; i++ {
		teams[i] = &Team{ID: i, Color: TeamColors[i], Players: []string{}}
	}
	return teams
}

func newGameState(cfg GameConfig) *GameState {
	return &GameState{
		Board:         newBoard(),
		CurrentRound:  0,
		RoundTimeLeft: roundTime(1),
		Phase:         PhaseWaiting,
		Config:        cfg,
		Passes:        make(map[string]bool),
	}
}

// CreateRoom makes an empty room with a fresh shareable code and a minted
// host identity; the host becomes a real player once they connect.
func (reg *Registry) CreateRoom() *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	code := newRoomCode()
	for reg.rooms[code] != nil {
		code = newRoomCode()
	}

	cfg := defaultConfig()
	room := &Room{
		ID:        code,
		HostID:    uuid.New().String(),
		Players:   make(map[string]*Player),
		Teams:     newTeams(cfg),
		GameState: newGameState(cfg),
		Mode:      "meeting",
		CreatedAt: time.Now(),
	}
	reg.rooms[code] = room
	log.Printf("🏠 Room created: %s\n", code)
	return room
}

func normalizeRoomID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

func (reg *Registry) GetRoom(id string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[normalizeRoomID(id)]
	return room, ok
}

func (reg *Registry) DeleteRoom(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.rooms, normalizeRoomID(id))
}

// Player returns a copy of a player's current state.
func (reg *Registry) Player(roomID, playerID string) (Player, bool) {
	room, ok := reg.GetRoom(roomID)
	if !ok {
		return Player{}, false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	p, ok := room.Players[playerID]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// AddPlayer registers a player in a room. The first player to arrive in an
// empty room becomes host, whatever id the room was created with.
func (reg *Registry) AddPlayer(roomID string, player *Player) error {
	room, ok := reg.GetRoom(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	if _, exists := room.Players[player.ID]; exists {
		return nil
	}
	if len(room.Players) == 0 {
		player.IsHost = true
		room.HostID = player.ID
	}
	room.Players[player.ID] = player
	room.joinOrder = append(room.joinOrder, player.ID)
	return nil
}

// RemovePlayer takes a player out of the room, frees their team slot,
// transfers host to the earliest remaining player by registration order,
// and tears the room down once it is empty.
func (reg *Registry) RemovePlayer(roomID, playerID string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.rooms[normalizeRoomID(roomID)]
	if !ok {
		return ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	player, ok := room.Players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}

	room.removeFromTeam(player)
	delete(room.Players, playerID)
	for i, id := range room.joinOrder {
		if id == playerID {
			room.joinOrder = append(room.joinOrder[:i], room.joinOrder[i+1:]...)
			break
		}
	}

	if len(room.Players) == 0 {
		delete(reg.rooms, room.ID)
		log.Printf("🧹 Room %s is empty, tearing down\n", room.ID)
		return nil
	}

	if player.IsHost {
		newHost := room.Players[room.joinOrder[0]]
		newHost.IsHost = true
		room.HostID = newHost.ID
		log.Printf("👑 %s [%s] is the new host of room %s\n", newHost.Name, newHost.ID, room.ID)
	}

	room.refreshLobbyPhase()
	return nil
}

// removeFromTeam detaches a player from their team, if any. Room lock held.
func (r *Room) removeFromTeam(player *Player) {
	if player.TeamID == nil {
		return
	}
	for _, team := range r.Teams {
		if team.ID != *player.TeamID {
			continue
		}
		for i, id := range team.Players {
			if id == player.ID {
				team.Players = append(team.Players[:i], team.Players[i+1:]...)
				break
			}
		}
	}
	player.TeamID = nil
}

func (r *Room) seatedCount() int {
	total := 0
	for _, team := range r.Teams {
		total += len(team.Players)
	}
	return total
}

// refreshLobbyPhase flips waiting<->ready as seats fill and empty. Only
// touches the lobby phases; a running game keeps its phase. Room lock held.
func (r *Room) refreshLobbyPhase() {
	gs := r.GameState
	if gs == nil || (gs.Phase != PhaseWaiting && gs.Phase != PhaseReady) {
		return
	}
	if r.seatedCount() == gs.Config.PlayerCount {
		gs.Phase = PhaseReady
	} else {
		gs.Phase = PhaseWaiting
	}
}

func (reg *Registry) SetReady(roomID, playerID string, ready bool) error {
	room, ok := reg.GetRoom(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	player, ok := room.Players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	player.IsReady = ready
	return nil
}

func (reg *Registry) SetName(roomID, playerID, name string) error {
	room, ok := reg.GetRoom(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	player, ok := room.Players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	player.Name = name
	player.Avatar = avatarURL(name)
	return nil
}

// JoinTeam seats a player. Rejected when the team is full, the game is in
// the playing phase, or the player has already readied up; switching teams
// clears the ready flag.
func (reg *Registry) JoinTeam(roomID, playerID string, teamID int) error {
	room, ok := reg.GetRoom(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	player, ok := room.Players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	if gs := room.GameState; gs != nil && gs.Phase == PhasePlaying {
		return ErrWrongPhase
	}
	if player.IsReady {
		return ErrAlreadyReady
	}

	var team *Team
	for _, t := range room.Teams {
		if t.ID == teamID {
			team = t
			break
		}
	}
	if team == nil {
		return ErrTeamNotFound
	}

	perTeam := defaultConfig().PlayersPerTeam
	if room.GameState != nil {
		perTeam = room.GameState.Config.PlayersPerTeam
	}
	if len(team.Players) >= perTeam {
		return ErrTeamFull
	}

	room.removeFromTeam(player)
	team.Players = append(team.Players, playerID)
	id := teamID
	player.TeamID = &id
	player.IsReady = false
	room.refreshLobbyPhase()
	return nil
}

func (reg *Registry) LeaveTeam(roomID, playerID string) error {
	room, ok := reg.GetRoom(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	player, ok := room.Players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	if player.TeamID == nil {
		return nil
	}
	room.removeFromTeam(player)
	player.IsReady = false
	room.refreshLobbyPhase()
	return nil
}

// ConfigureGame rebuilds teams for the new shape, clears every player's
// seat and ready flag, and swaps in a fresh game state. Cumulative wins do
// not survive a reconfigure; a config change starts a new session.
func (reg *Registry) ConfigureGame(roomID string, cfg GameConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	room, ok := reg.GetRoom(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	room.Teams = newTeams(cfg)
	for _, player := range room.Players {
		player.TeamID = nil
		player.IsReady = false
	}
	room.GameState = newGameState(cfg)
	return nil
}

// StartGame begins round 1 once every seat is filled and every seated
// player is ready. Spectators neither count toward capacity nor block the
// start.
func (reg *Registry) StartGame(roomID string) error {
	room, ok := reg.GetRoom(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	gs := room.GameState
	if gs == nil || (gs.Phase != PhaseWaiting && gs.Phase != PhaseReady) {
		return ErrWrongPhase
	}

	seated := 0
	for _, team := range room.Teams {
		for _, id := range team.Players {
			seated++
			if p, ok := room.Players[id]; !ok || !p.IsReady {
				return ErrNotReady
			}
		}
	}
	if seated != gs.Config.PlayerCount {
		return ErrNotReady
	}

	gs.Phase = PhasePlaying
	gs.CurrentRound = 1
	gs.RoundTimeLeft = roundTime(1)
	gs.RoundMoves = nil
	gs.Passes = make(map[string]bool)
	room.Mode = "game"
	return nil
}

// PlaceStone buffers a move for the current round. A later submission from
// the same player replaces the earlier one; a cell occupied from a prior
// round is rejected. Contention within the current round is settled at
// judging time, not here.
func (reg *Registry) PlaceStone(roomID, playerID string, pos Position) error {
	room, ok := reg.GetRoom(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	gs := room.GameState
	if gs == nil || gs.Phase != PhasePlaying {
		return ErrWrongPhase
	}
	player, ok := room.Players[playerID]
	if !ok || player.TeamID == nil {
		return ErrBadMove
	}
	row, col := pos[0], pos[1]
	if row < 0 || row >= BoardSize || col < 0 || col >= BoardSize {
		return ErrBadMove
	}
	if gs.Board[row][col] != "" {
		return ErrBadMove
	}

	delete(gs.Passes, playerID)
	now := time.Now().UnixMilli()
	for i := range gs.RoundMoves {
		if gs.RoundMoves[i].PlayerID == playerID {
			gs.RoundMoves[i].Position = pos
			gs.RoundMoves[i].Timestamp = now
			return nil
		}
	}
	gs.RoundMoves = append(gs.RoundMoves, RoundMove{
		PlayerID:  playerID,
		TeamID:    *player.TeamID,
		Position:  pos,
		Timestamp: now,
	})
	return nil
}

// Pass records that a seated player sits this round out; it withdraws any
// pending move they had.
func (reg *Registry) Pass(roomID, playerID string) error {
	room, ok := reg.GetRoom(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	gs := room.GameState
	if gs == nil || gs.Phase != PhasePlaying {
		return ErrWrongPhase
	}
	player, ok := room.Players[playerID]
	if !ok || player.TeamID == nil {
		return ErrBadMove
	}
	for i := range gs.RoundMoves {
		if gs.RoundMoves[i].PlayerID == playerID {
			gs.RoundMoves = append(gs.RoundMoves[:i], gs.RoundMoves[i+1:]...)
			break
		}
	}
	gs.Passes[playerID] = true
	return nil
}

func (reg *Registry) SwitchMode(roomID, mode string) error {
	if mode != "meeting" && mode != "game" {
		return ErrBadConfig
	}
	room, ok := reg.GetRoom(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	room.Mode = mode
	return nil
}

// Snapshot builds the serialized room as seen by one viewer, deep-copied
// so it can be marshaled after the lock is released.
func (reg *Registry) Snapshot(roomID, viewerID string) (map[string]any, bool) {
	room, ok := reg.GetRoom(roomID)
	if !ok {
		return nil, false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.snapshot(viewerID), true
}

// snapshot serializes the room for one viewer. Room lock held.
func (r *Room) snapshot(viewerID string) map[string]any {
	players := make([]Player, 0, len(r.Players))
	for _, id := range r.joinOrder {
		if p, ok := r.Players[id]; ok {
			players = append(players, *p)
		}
	}
	teams := make([]Team, len(r.Teams))
	for i, t := range r.Teams {
		cp := *t
		cp.Players = append([]string{}, t.Players...)
		teams[i] = cp
	}
	return map[string]any{
		"id":        r.ID,
		"hostId":    r.HostID,
		"players":   players,
		"teams":     teams,
		"gameType":  "gomoku",
		"gameState": r.visibleGameState(viewerID),
		"mode":      r.Mode,
		"createdAt": r.CreatedAt.UnixMilli(),
	}
}

// visibleGameState copies the game state as one viewer may see it: while a
// round is being played, a seated viewer sees only their own team's pending
// moves. Spectators and everyone outside the playing phase see the full
// picture. Room lock held.
func (r *Room) visibleGameState(viewerID string) *GameState {
	gs := r.GameState
	if gs == nil {
		return nil
	}

	cp := &GameState{
		Board:         make([][]TeamColor, BoardSize),
		CurrentRound:  gs.CurrentRound,
		RoundTimeLeft: gs.RoundTimeLeft,
		Phase:         gs.Phase,
		Config:        gs.Config,
		RoundResults:  append([]RoundResult{}, gs.RoundResults...),
		GameHistory:   append([]GameResult{}, gs.GameHistory...),
	}
	for i := range gs.Board {
		cp.Board[i] = append([]TeamColor{}, gs.Board[i]...)
	}

	viewer, ok := r.Players[viewerID]
	if gs.Phase == PhasePlaying && ok && viewer.TeamID != nil {
		for _, move := range gs.RoundMoves {
			if move.TeamID == *viewer.TeamID {
				cp.RoundMoves = append(cp.RoundMoves, move)
			}
		}
	} else {
		cp.RoundMoves = append([]RoundMove{}, gs.RoundMoves...)
	}
	return cp
}

// trimName enforces the display-name limit without splitting a rune.
func trimName(name string) string {
	name = strings.TrimSpace(name)
	for utf8.RuneCountInString(name) > 20 {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return name
}
