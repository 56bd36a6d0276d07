package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStack(t *testing.T) (*Registry, *Scheduler) {
	t.Helper()
	reg := NewRegistry()
	srv := NewServer(reg)
	t.Cleanup(srv.Stop)
	return reg, NewScheduler(reg, srv)
}

// readyRoom creates a room with four seated, readied players.
func readyRoom(t *testing.T, reg *Registry, totalGames int) (*Room, []string) {
	t.Helper()
	room := reg.CreateRoom()
	if totalGames != defaultConfig().TotalRounds {
		cfg := defaultConfig()
		cfg.TotalRounds = totalGames
		require.NoError(t, reg.ConfigureGame(room.ID, cfg))
	}
	ids := addPlayers(t, reg, room.ID, "a", "b", "c", "d")
	seatAndReady(t, reg, room.ID, ids)
	return room, ids
}

func phaseOf(room *Room) GamePhase {
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.GameState.Phase
}

func TestCheckAllReadyStartsGame(t *testing.T) {
	reg, sched := newTestStack(t)
	room, _ := readyRoom(t, reg, 3)

	sched.CheckAllReady(room.ID)

	room.mu.Lock()
	defer room.mu.Unlock()
	assert.Equal(t, PhasePlaying, room.GameState.Phase)
	assert.Equal(t, 1, room.GameState.CurrentRound)
	assert.Equal(t, "game", room.Mode)
	sched.cancel(room.ID)
}

func TestCheckAllReadyNeedsFullCapacity(t *testing.T) {
	reg, sched := newTestStack(t)
	room := reg.CreateRoom()
	ids := addPlayers(t, reg, room.ID, "a", "b", "c")
	for i, id := range ids {
		require.NoError(t, reg.JoinTeam(room.ID, id, i%2))
		require.NoError(t, reg.SetReady(room.ID, id, true))
	}

	sched.CheckAllReady(room.ID)

	assert.Equal(t, PhaseWaiting, phaseOf(room))
	assert.Equal(t, "meeting", room.Mode)
}

func TestCheckAllMovedEndsRoundEarly(t *testing.T) {
	reg, sched := newTestStack(t)
	room, ids := readyRoom(t, reg, 3)
	sched.CheckAllReady(room.ID)

	positions := []Position{{1, 1}, {2, 2}, {3, 3}, {4, 4}}
	for i, id := range ids[:3] {
		require.NoError(t, reg.PlaceStone(room.ID, id, positions[i]))
		sched.CheckAllMoved(room.ID)
		assert.Equal(t, PhasePlaying, phaseOf(room), "round must not end before everyone moved")
	}

	require.NoError(t, reg.PlaceStone(room.ID, ids[3], positions[3]))
	sched.CheckAllMoved(room.ID)

	room.mu.Lock()
	defer room.mu.Unlock()
	assert.NotEqual(t, PhasePlaying, room.GameState.Phase)
	assert.Len(t, room.GameState.RoundResults, 4)
	assert.Equal(t, ColorRed, room.GameState.Board[1][1])
	assert.Equal(t, ColorBlue, room.GameState.Board[2][2])
	sched.cancel(room.ID)
}

func TestCheckAllMovedCountsPasses(t *testing.T) {
	reg, sched := newTestStack(t)
	room, ids := readyRoom(t, reg, 3)
	sched.CheckAllReady(room.ID)

	require.NoError(t, reg.PlaceStone(room.ID, ids[0], Position{1, 1}))
	require.NoError(t, reg.PlaceStone(room.ID, ids[1], Position{2, 2}))
	require.NoError(t, reg.Pass(room.ID, ids[2]))
	sched.CheckAllMoved(room.ID)
	assert.Equal(t, PhasePlaying, phaseOf(room))

	require.NoError(t, reg.Pass(room.ID, ids[3]))
	sched.CheckAllMoved(room.ID)
	assert.NotEqual(t, PhasePlaying, phaseOf(room))
	sched.cancel(room.ID)
}

func TestRoundAdvancesAfterJudgingPause(t *testing.T) {
	reg, sched := newTestStack(t)
	room, ids := readyRoom(t, reg, 3)
	sched.CheckAllReady(room.ID)

	for i, id := range ids {
		require.NoError(t, reg.PlaceStone(room.ID, id, Position{i, i}))
	}
	sched.CheckAllMoved(room.ID)
	assert.Equal(t, PhaseJudging, phaseOf(room))

	assert.Eventually(t, func() bool {
		room.mu.Lock()
		defer room.mu.Unlock()
		return room.GameState.Phase == PhasePlaying && room.GameState.CurrentRound == 2
	}, 4*time.Second, 50*time.Millisecond)

	room.mu.Lock()
	assert.Empty(t, room.GameState.RoundMoves)
	assert.Empty(t, room.GameState.RoundResults)
	room.mu.Unlock()
	sched.cancel(room.ID)
}

func TestEndRoundIsIdempotentOnStaleFiring(t *testing.T) {
	reg, sched := newTestStack(t)
	room, ids := readyRoom(t, reg, 3)
	sched.CheckAllReady(room.ID)

	require.NoError(t, reg.PlaceStone(room.ID, ids[0], Position{1, 1}))
	sched.endRound(room.ID)
	assert.Equal(t, PhaseJudging, phaseOf(room))

	room.mu.Lock()
	stones := room.Teams[0].StoneCount
	room.mu.Unlock()

	// A stale timer firing again re-checks the phase and does nothing.
	sched.endRound(room.ID)
	room.mu.Lock()
	assert.Equal(t, stones, room.Teams[0].StoneCount)
	room.mu.Unlock()
	sched.cancel(room.ID)
}

// completeGame puts red four in a row, then has red finish the line while
// blue plays elsewhere, and ends the round.
func completeGame(t *testing.T, reg *Registry, sched *Scheduler, room *Room, ids []string) {
	t.Helper()
	room.mu.Lock()
	for col := 0; col < 4; col++ {
		room.GameState.Board[0][col] = ColorRed
	}
	room.Teams[0].StoneCount = 4
	room.mu.Unlock()

	require.NoError(t, reg.PlaceStone(room.ID, ids[0], Position{0, 4}))
	require.NoError(t, reg.PlaceStone(room.ID, ids[2], Position{10, 10}))
	require.NoError(t, reg.PlaceStone(room.ID, ids[1], Position{12, 1}))
	require.NoError(t, reg.PlaceStone(room.ID, ids[3], Position{12, 3}))
	sched.endRound(room.ID)
}

func TestGameEndRecordsHistoryAndWins(t *testing.T) {
	reg, sched := newTestStack(t)
	room, ids := readyRoom(t, reg, 3)
	sched.CheckAllReady(room.ID)
	completeGame(t, reg, sched, room, ids)

	room.mu.Lock()
	defer room.mu.Unlock()
	require.Len(t, room.GameState.GameHistory, 1)
	result := room.GameState.GameHistory[0]
	require.NotNil(t, result.Winner)
	assert.Equal(t, ColorRed, *result.Winner)
	assert.Equal(t, 5, result.LineLength)
	assert.Equal(t, 1, room.Teams[0].Wins)
	// Two games remain in the session, so the room is between games, not ended.
	assert.Equal(t, PhaseJudging, room.GameState.Phase)
	sched.cancel(room.ID)
}

func TestSessionEndsAfterConfiguredGames(t *testing.T) {
	reg, sched := newTestStack(t)
	room, ids := readyRoom(t, reg, 1)
	sched.CheckAllReady(room.ID)
	completeGame(t, reg, sched, room, ids)

	room.mu.Lock()
	defer room.mu.Unlock()
	assert.Equal(t, PhaseEnded, room.GameState.Phase)
	assert.Equal(t, 1, room.Teams[0].Wins)
}

func TestNextGameKeepsTeamsAndWins(t *testing.T) {
	reg, sched := newTestStack(t)
	room, ids := readyRoom(t, reg, 3)
	sched.CheckAllReady(room.ID)
	completeGame(t, reg, sched, room, ids)

	sched.startNextGame(room.ID)

	room.mu.Lock()
	defer room.mu.Unlock()
	gs := room.GameState
	assert.Equal(t, 0, gs.CurrentRound)
	assert.Empty(t, gs.RoundMoves)
	assert.Equal(t, TeamColor(""), gs.Board[0][0])
	require.Len(t, gs.GameHistory, 1)
	assert.Equal(t, 1, room.Teams[0].Wins)
	assert.Equal(t, 0, room.Teams[0].StoneCount)
	// Seats survive between games of a session; ready flags do not.
	assert.Len(t, room.Teams[0].Players, 2)
	for _, p := range room.Players {
		assert.False(t, p.IsReady)
	}
	// All seats still filled, so the lobby is ready rather than waiting.
	assert.Equal(t, PhaseReady, gs.Phase)
}

func TestRoundTimerClearedWhenRoomGone(t *testing.T) {
	reg, sched := newTestStack(t)
	room, _ := readyRoom(t, reg, 3)
	sched.CheckAllReady(room.ID)

	sched.mu.Lock()
	_, armed := sched.timers[room.ID]
	sched.mu.Unlock()
	require.True(t, armed)

	// Room torn down with the round timer still armed; the callback must
	// still clear its timer entry.
	reg.DeleteRoom(room.ID)
	sched.endRound(room.ID)

	sched.mu.Lock()
	defer sched.mu.Unlock()
	_, armed = sched.timers[room.ID]
	assert.False(t, armed)
}

func TestFinalWinner(t *testing.T) {
	winner := finalWinner([]Team{{Color: ColorRed, Wins: 2}, {Color: ColorBlue, Wins: 1}})
	require.NotNil(t, winner)
	assert.Equal(t, ColorRed, *winner)

	assert.Nil(t, finalWinner([]Team{{Color: ColorRed, Wins: 1}, {Color: ColorBlue, Wins: 1}}))
	assert.Nil(t, finalWinner(nil))
}
