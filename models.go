package main

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	BoardSize = 15
	WinLength = 5
)

type TeamColor string

const (
	ColorRed    TeamColor = "red"
	ColorBlue   TeamColor = "blue"
	ColorGreen  TeamColor = "green"
	ColorYellow TeamColor = "yellow"
)

// TeamColors is the fixed palette; teams take colors in creation order.
var TeamColors = []TeamColor{ColorRed, ColorBlue, ColorGreen, ColorYellow}

type GamePhase string

const (
	PhaseWaiting GamePhase = "waiting"
	PhaseReady   GamePhase = "ready"
	PhasePlaying GamePhase = "playing"
	PhaseJudging GamePhase = "judging"
	PhaseEnded   GamePhase = "ended"
)

type Player struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar"`
	IsHost  bool   `json:"isHost"`
	IsReady bool   `json:"isReady"`
	TeamID  *int   `json:"teamId"` // nil = spectator
}

type Team struct {
	ID         int       `json:"id"`
	Color      TeamColor `json:"color"`
	Players    []string  `json:"players"` // player ids, join order
	StoneCount int       `json:"stoneCount"`
	Wins       int       `json:"wins"`
}

type GameConfig struct {
	PlayerCount    int `json:"playerCount"`    // 4 or 8
	PlayersPerTeam int `json:"playersPerTeam"` // 2 or 4; a 4-player game forces 2
	TotalRounds    int `json:"totalRounds"`    // games per session, 1-10
}

// Position is [row, col] on the board.
type Position [2]int

type RoundMove struct {
	PlayerID  string   `json:"playerId"`
	TeamID    int      `json:"teamId"`
	Position  Position `json:"position"`
	Timestamp int64    `json:"timestamp"`
}

type RoundResult struct {
	Position  Position   `json:"position"`
	Winner    *TeamColor `json:"winner"`
	Contested bool       `json:"contested"`
	Message   string     `json:"message"`
}

type GameResult struct {
	RoundNumber int        `json:"roundNumber"`
	Winner      *TeamColor `json:"winner"`
	LineLength  int        `json:"lineLength"`
}

type GameState struct {
	Board         [][]TeamColor   `json:"board"` // "" = empty cell
	CurrentRound  int             `json:"currentRound"`
	RoundTimeLeft int             `json:"roundTimeLeft"`
	RoundMoves    []RoundMove     `json:"roundMoves"`
	Phase         GamePhase       `json:"phase"`
	Config        GameConfig      `json:"config"`
	RoundResults  []RoundResult   `json:"roundResults"`
	GameHistory   []GameResult    `json:"gameHistory"`
	Passes        map[string]bool `json:"-"` // players sitting out this round
}

type Room struct {
	ID        string
	HostID    string
	Players   map[string]*Player
	joinOrder []string // registration order, drives host transfer
	Teams     []*Team
	GameState *GameState
	Mode      string // "meeting" or "game"
	CreatedAt time.Time

	mu sync.Mutex
}

// ClientMessage is an inbound {type, payload} envelope; payload stays raw
// until the dispatcher knows the type.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type SelectTeamPayload struct {
	TeamID int `json:"teamId"`
}

type PlaceStonePayload struct {
	Position Position `json:"position"`
}

type SwitchModePayload struct {
	Mode string `json:"mode"`
}

type SetNamePayload struct {
	Name string `json:"name"`
}

// SignalPayload carries opaque peer-signaling data; the server relays the
// blob verbatim and never looks inside it.
type SignalPayload struct {
	TargetID string          `json:"targetId"`
	Signal   json.RawMessage `json:"signal"`
}

// roundTime returns the countdown in seconds for a round: short early
// rounds, longer once the board fills up.
func roundTime(round int) int {
	if round <= 5 {
		return 5
	}
	if round <= 10 {
		return 10
	}
	return 15
}
