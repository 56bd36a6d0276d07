package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fourTeamState() (*GameState, []*Team) {
	cfg := GameConfig{PlayerCount: 8, PlayersPerTeam: 2, TotalRounds: 3}
	return newGameState(cfg), newTeams(cfg)
}

func twoTeamState() (*GameState, []*Team) {
	cfg := defaultConfig()
	return newGameState(cfg), newTeams(cfg)
}

func move(player string, team int, row, col int) RoundMove {
	return RoundMove{PlayerID: player, TeamID: team, Position: Position{row, col}}
}

func TestResolveRoundUncontested(t *testing.T) {
	state, teams := twoTeamState()
	state.RoundMoves = []RoundMove{
		move("p1", 0, 7, 7),
		move("p2", 1, 3, 3),
	}

	results := resolveRound(state, teams)
	require.Len(t, results, 2)

	require.NotNil(t, results[0].Winner)
	assert.Equal(t, ColorRed, *results[0].Winner)
	assert.False(t, results[0].Contested)

	require.NotNil(t, results[1].Winner)
	assert.Equal(t, ColorBlue, *results[1].Winner)
	assert.False(t, results[1].Contested)
}

func TestResolveRoundFewestStonesWinsTieBreak(t *testing.T) {
	state, teams := twoTeamState()
	teams[0].StoneCount = 10 // red
	teams[1].StoneCount = 7  // blue

	// Red commits more moves at the cell, but blue has fewer stones on the
	// board and the first tie-break settles it.
	state.RoundMoves = []RoundMove{
		move("r1", 0, 7, 7),
		move("r2", 0, 7, 7),
		move("b1", 1, 7, 7),
	}

	results := resolveRound(state, teams)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Winner)
	assert.Equal(t, ColorBlue, *results[0].Winner)
	assert.True(t, results[0].Contested)
}

func TestResolveRoundMostMovesWinsSecondTieBreak(t *testing.T) {
	state, teams := twoTeamState()
	teams[0].StoneCount = 8
	teams[1].StoneCount = 8

	state.RoundMoves = []RoundMove{
		move("r1", 0, 3, 3),
		move("r2", 0, 3, 3),
		move("b1", 1, 3, 3),
	}

	results := resolveRound(state, teams)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Winner)
	assert.Equal(t, ColorRed, *results[0].Winner)
	assert.True(t, results[0].Contested)
}

func TestResolveRoundFullTieLeavesCellEmpty(t *testing.T) {
	state, teams := twoTeamState()
	teams[0].StoneCount = 8
	teams[1].StoneCount = 8

	state.RoundMoves = []RoundMove{
		move("r1", 0, 3, 3),
		move("r2", 0, 3, 3),
		move("b1", 1, 3, 3),
		move("b2", 1, 3, 3),
	}

	results := resolveRound(state, teams)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Winner)
	assert.True(t, results[0].Contested)

	applyResults(state, results, teams)
	assert.Equal(t, TeamColor(""), state.Board[3][3])
}

func TestResolveRoundSkipsOccupiedCells(t *testing.T) {
	state, teams := twoTeamState()
	state.Board[5][5] = ColorBlue
	state.RoundMoves = []RoundMove{move("r1", 0, 5, 5)}

	results := resolveRound(state, teams)
	assert.Empty(t, results)
}

func TestResolveRoundDeterministic(t *testing.T) {
	state, teams := fourTeamState()
	teams[0].StoneCount = 2
	teams[2].StoneCount = 2
	state.RoundMoves = []RoundMove{
		move("a", 0, 1, 1),
		move("b", 1, 1, 1),
		move("c", 2, 1, 1),
		move("d", 3, 4, 4),
		move("e", 0, 9, 9),
	}

	first := resolveRound(state, teams)
	second := resolveRound(state, teams)
	assert.Equal(t, first, second)
}

func TestApplyResultsPlacesStonesAndCounts(t *testing.T) {
	state, teams := twoTeamState()
	state.RoundMoves = []RoundMove{move("r1", 0, 7, 7)}

	results := resolveRound(state, teams)
	applyResults(state, results, teams)

	assert.Equal(t, ColorRed, state.Board[7][7])
	assert.Equal(t, 1, teams[0].StoneCount)
	assert.Empty(t, state.RoundMoves)
}

func TestApplyResultsEmptySetStillClearsBuffer(t *testing.T) {
	state, teams := twoTeamState()
	state.Board[2][2] = ColorRed
	state.RoundMoves = []RoundMove{move("r1", 0, 5, 5)}

	applyResults(state, nil, teams)

	assert.Equal(t, ColorRed, state.Board[2][2])
	assert.Equal(t, TeamColor(""), state.Board[5][5])
	assert.Empty(t, state.RoundMoves)
	assert.Equal(t, 0, teams[0].StoneCount)
}

func TestCheckWinNoLine(t *testing.T) {
	state, _ := twoTeamState()
	for i := 0; i < 4; i++ {
		state.Board[0][i] = ColorRed
	}

	ended, winner, length := checkWin(state)
	assert.False(t, ended)
	assert.Nil(t, winner)
	assert.Equal(t, 0, length)
}

func TestCheckWinLongerLineBeatsThreshold(t *testing.T) {
	state, _ := twoTeamState()
	for i := 0; i < 6; i++ {
		state.Board[0][i] = ColorRed
	}
	for i := 0; i < 5; i++ {
		state.Board[2][i] = ColorBlue
	}

	ended, winner, length := checkWin(state)
	assert.True(t, ended)
	require.NotNil(t, winner)
	assert.Equal(t, ColorRed, *winner)
	assert.Equal(t, 6, length)
}

func TestCheckWinSimultaneousFivesContinue(t *testing.T) {
	state, _ := twoTeamState()
	for i := 0; i < 5; i++ {
		state.Board[0][i] = ColorRed
		state.Board[2][i] = ColorBlue
	}

	ended, winner, length := checkWin(state)
	assert.False(t, ended)
	assert.Nil(t, winner)
	assert.Equal(t, 5, length)
}

func TestMaxLineDirections(t *testing.T) {
	board := newBoard()
	// Diagonal down-right.
	for i := 0; i < 4; i++ {
		board[i][i] = ColorGreen
	}
	assert.Equal(t, 4, maxLine(board, ColorGreen))

	// Anti-diagonal.
	board2 := newBoard()
	for i := 0; i < 3; i++ {
		board2[i][10-i] = ColorYellow
	}
	assert.Equal(t, 3, maxLine(board2, ColorYellow))

	// Vertical.
	board3 := newBoard()
	for i := 3; i < 8; i++ {
		board3[i][0] = ColorRed
	}
	assert.Equal(t, 5, maxLine(board3, ColorRed))
}

func TestRoundTimeTiers(t *testing.T) {
	assert.Equal(t, 5, roundTime(1))
	assert.Equal(t, 5, roundTime(5))
	assert.Equal(t, 10, roundTime(6))
	assert.Equal(t, 10, roundTime(10))
	assert.Equal(t, 15, roundTime(11))
	assert.Equal(t, 15, roundTime(40))
}
