package main

import (
	"log"
	"sync"
	"time"
)

const (
	interRoundPause = 2 * time.Second
	interGamePause  = 3 * time.Second
)

// Scheduler drives round timing. One cancellable timer handle per room;
// whichever comes first of the countdown expiring or every seated player
// acting ends the round. Every timer callback re-checks the phase under
// the room lock before acting, so a stale firing is harmless even if the
// cancel lost the race.
type Scheduler struct {
	reg *Registry
	srv *Server

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewScheduler(reg *Registry, srv *Server) *Scheduler {
	s := &Scheduler{reg: reg, srv: srv, timers: make(map[string]*time.Timer)}
	srv.scheduler = s
	return s
}

// schedule replaces any pending timer for the room.
func (s *Scheduler) schedule(roomID string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[roomID]; ok {
		t.Stop()
	}
	s.timers[roomID] = time.AfterFunc(d, fn)
}

func (s *Scheduler) cancel(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[roomID]; ok {
		t.Stop()
		delete(s.timers, roomID)
	}
}

// startRound arms the countdown for the room's current round and announces
// it. The countdown is tiered by round number.
func (s *Scheduler) startRound(roomID string) {
	room, ok := s.reg.GetRoom(roomID)
	if !ok {
		return
	}
	room.mu.Lock()
	gs := room.GameState
	if gs == nil || gs.Phase != PhasePlaying {
		room.mu.Unlock()
		return
	}
	round := gs.CurrentRound
	seconds := roundTime(round)
	gs.RoundTimeLeft = seconds
	room.mu.Unlock()

	s.schedule(roomID, time.Duration(seconds)*time.Second, func() {
		s.endRound(roomID)
	})

	log.Printf("🎲 Room %s: round %d started (%ds)\n", roomID, round, seconds)
	s.srv.broadcastToRoom(roomID, ServerMessage{
		Type: "ROUND_START",
		Payload: map[string]any{
			"round":     round,
			"timeLimit": seconds,
		},
	}, nil)
}

// CheckAllReady starts the game once every seat is filled and readied.
func (s *Scheduler) CheckAllReady(roomID string) {
	if err := s.reg.StartGame(roomID); err != nil {
		return
	}
	log.Printf("🎮 Room %s: all players ready, game starting\n", roomID)
	s.srv.broadcastToRoom(roomID, ServerMessage{Type: "START_GAME", Payload: map[string]any{}}, nil)
	s.startRound(roomID)
	s.srv.broadcastRoomState(roomID)
}

// CheckAllMoved ends the round early once every seated player has either a
// pending move or an explicit pass.
func (s *Scheduler) CheckAllMoved(roomID string) {
	room, ok := s.reg.GetRoom(roomID)
	if !ok {
		return
	}
	room.mu.Lock()
	gs := room.GameState
	if gs == nil || gs.Phase != PhasePlaying {
		room.mu.Unlock()
		return
	}
	seated := room.seatedCount()
	acted := len(gs.RoundMoves) + len(gs.Passes)
	room.mu.Unlock()

	if seated > 0 && acted >= seated {
		log.Printf("⏩ Room %s: everyone has moved, ending round early\n", roomID)
		s.endRound(roomID)
	}
}

// endRound resolves the round, applies the results, runs the win check and
// sequences what comes next: the next round, the next game of the session,
// or the end of the session.
func (s *Scheduler) endRound(roomID string) {
	// Drop the timer entry first; the room may already be torn down.
	s.cancel(roomID)
	room, ok := s.reg.GetRoom(roomID)
	if !ok {
		return
	}

	room.mu.Lock()
	gs := room.GameState
	if gs == nil || gs.Phase != PhasePlaying {
		room.mu.Unlock()
		return
	}
	gs.Phase = PhaseJudging

	results := resolveRound(gs, room.Teams)
	gs.RoundResults = results
	applyResults(gs, results, room.Teams)
	resultsCopy := append([]RoundResult{}, results...)

	ended, winner, lineLength := checkWin(gs)
	var gameOver, sessionOver bool
	var endPayload map[string]any
	if ended {
		gameOver = true
		gs.GameHistory = append(gs.GameHistory, GameResult{
			RoundNumber: gs.CurrentRound,
			Winner:      winner,
			LineLength:  lineLength,
		})
		if winner != nil {
			for _, team := range room.Teams {
				if team.Color == *winner {
					team.Wins++
					break
				}
			}
		}
		if len(gs.GameHistory) >= gs.Config.TotalRounds {
			sessionOver = true
			gs.Phase = PhaseEnded
			teams := make([]Team, len(room.Teams))
			for i, t := range room.Teams {
				cp := *t
				cp.Players = append([]string{}, t.Players...)
				teams[i] = cp
			}
			endPayload = map[string]any{
				"history":     append([]GameResult{}, gs.GameHistory...),
				"teams":       teams,
				"finalWinner": finalWinner(teams),
			}
		}
	}
	room.mu.Unlock()

	s.srv.broadcastToRoom(roomID, ServerMessage{
		Type:    "ROUND_END",
		Payload: map[string]any{"results": resultsCopy},
	}, nil)

	switch {
	case sessionOver:
		log.Printf("🏁 Room %s: session over\n", roomID)
		s.srv.broadcastToRoom(roomID, ServerMessage{Type: "GAME_END", Payload: endPayload}, nil)
	case gameOver:
		s.schedule(roomID, interGamePause, func() {
			s.startNextGame(roomID)
		})
	default:
		s.schedule(roomID, interRoundPause, func() {
			s.startNextRound(roomID)
		})
	}

	s.srv.broadcastRoomState(roomID)
}

func (s *Scheduler) startNextRound(roomID string) {
	room, ok := s.reg.GetRoom(roomID)
	if !ok {
		return
	}
	room.mu.Lock()
	gs := room.GameState
	if gs == nil || gs.Phase != PhaseJudging {
		room.mu.Unlock()
		return
	}
	gs.CurrentRound++
	gs.RoundMoves = nil
	gs.RoundResults = nil
	gs.Passes = make(map[string]bool)
	gs.Phase = PhasePlaying
	room.mu.Unlock()

	s.startRound(roomID)
	s.srv.broadcastRoomState(roomID)
}

// startNextGame resets the board for the next game of the session: stones
// and ready flags are cleared, team membership and cumulative wins carry
// over, and the room waits for everyone to ready up again.
func (s *Scheduler) startNextGame(roomID string) {
	room, ok := s.reg.GetRoom(roomID)
	if !ok {
		return
	}
	room.mu.Lock()
	gs := room.GameState
	if gs == nil || gs.Phase != PhaseJudging {
		room.mu.Unlock()
		return
	}
	history := gs.GameHistory
	cfg := gs.Config

	room.GameState = newGameState(cfg)
	room.GameState.GameHistory = history
	for _, team := range room.Teams {
		team.StoneCount = 0
	}
	for _, player := range room.Players {
		player.IsReady = false
	}
	room.refreshLobbyPhase()
	gamesPlayed := len(history)
	room.mu.Unlock()

	log.Printf("🔄 Room %s: game %d of %d done, waiting for ready\n", roomID, gamesPlayed, cfg.TotalRounds)
	s.srv.broadcastToRoom(roomID, ServerMessage{
		Type: "GAME_RESET",
		Payload: map[string]any{
			"message":     "Game over, ready up for the next one",
			"gamesPlayed": gamesPlayed,
			"totalGames":  cfg.TotalRounds,
		},
	}, nil)
	s.srv.broadcastRoomState(roomID)
}

// finalWinner picks the color with strictly the most wins, or nil on a tie.
func finalWinner(teams []Team) *TeamColor {
	maxWins := -1
	count := 0
	var winner TeamColor
	for _, team := range teams {
		switch {
		case team.Wins > maxWins:
			maxWins = team.Wins
			winner = team.Color
			count = 1
		case team.Wins == maxWins:
			count++
		}
	}
	if count == 1 {
		return &winner
	}
	return nil
}
