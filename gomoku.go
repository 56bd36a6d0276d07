package main

import "fmt"

// resolveRound judges every cell targeted by the round's pending moves and
// returns one RoundResult per cell. Cells already claimed in a prior round
// are skipped. Results come out in the order each cell was first targeted,
// so resolving the same input twice yields the same output.
func resolveRound(state *GameState, teams []*Team) []RoundResult {
	var order []Position
	byCell := make(map[Position][]RoundMove)
	for _, move := range state.RoundMoves {
		if _, seen := byCell[move.Position]; !seen {
			order = append(order, move.Position)
		}
		byCell[move.Position] = append(byCell[move.Position], move)
	}

	var results []RoundResult
	for _, pos := range order {
		if state.Board[pos[0]][pos[1]] != "" {
			continue
		}
		winner, contested, message := resolveCell(byCell[pos], teams)
		results = append(results, RoundResult{
			Position:  pos,
			Winner:    winner,
			Contested: contested,
			Message:   message,
		})
	}
	return results
}

// resolveCell decides who gets a single cell. One team alone takes it
// outright; otherwise ties break by fewest stones already on the board,
// then by most moves committed at this cell this round, then nobody.
func resolveCell(moves []RoundMove, teams []*Team) (*TeamColor, bool, string) {
	byTeam := make(map[int][]RoundMove)
	var teamOrder []int
	for _, move := range moves {
		if _, seen := byTeam[move.TeamID]; !seen {
			teamOrder = append(teamOrder, move.TeamID)
		}
		byTeam[move.TeamID] = append(byTeam[move.TeamID], move)
	}

	teamByID := make(map[int]*Team, len(teams))
	for _, t := range teams {
		teamByID[t.ID] = t
	}

	if len(teamOrder) == 1 {
		team := teamByID[teamOrder[0]]
		if team == nil {
			return nil, false, "unknown team"
		}
		color := team.Color
		return &color, false, fmt.Sprintf("%s takes the cell", color)
	}

	// Tie-break 1: fewest stones already on the board.
	minStones := -1
	for _, id := range teamOrder {
		if t := teamByID[id]; t != nil && (minStones < 0 || t.StoneCount < minStones) {
			minStones = t.StoneCount
		}
	}
	var contenders []int
	for _, id := range teamOrder {
		if t := teamByID[id]; t != nil && t.StoneCount == minStones {
			contenders = append(contenders, id)
		}
	}
	if len(contenders) == 1 {
		color := teamByID[contenders[0]].Color
		return &color, true, fmt.Sprintf("%s wins the cell (fewest stones)", color)
	}

	// Tie-break 2: most moves committed at this cell this round.
	maxMoves := 0
	for _, id := range contenders {
		if n := len(byTeam[id]); n > maxMoves {
			maxMoves = n
		}
	}
	var finalists []int
	for _, id := range contenders {
		if len(byTeam[id]) == maxMoves {
			finalists = append(finalists, id)
		}
	}
	if len(finalists) == 1 {
		color := teamByID[finalists[0]].Color
		return &color, true, fmt.Sprintf("%s wins the cell (more stones committed)", color)
	}

	return nil, true, "contested, no winner"
}

// applyResults commits the round's winners to the board, bumps the winning
// teams' stone counts, and clears the pending-move buffer whether or not
// every cell found a winner.
func applyResults(state *GameState, results []RoundResult, teams []*Team) {
	for _, result := range results {
		if result.Winner == nil {
			continue
		}
		state.Board[result.Position[0]][result.Position[1]] = *result.Winner
		for _, team := range teams {
			if team.Color == *result.Winner {
				team.StoneCount++
				break
			}
		}
	}
	state.RoundMoves = nil
	state.Passes = make(map[string]bool)
}

// checkWin scans the board for each color's longest line. The game ends
// only when exactly one color holds the strict maximum at or past
// WinLength; two colors tied at the top keep the game going.
func checkWin(state *GameState) (bool, *TeamColor, int) {
	type lineResult struct {
		color  TeamColor
		length int
	}
	var lines []lineResult
	for _, color := range TeamColors {
		if max := maxLine(state.Board, color); max >= WinLength {
			lines = append(lines, lineResult{color, max})
		}
	}
	if len(lines) == 0 {
		return false, nil, 0
	}

	maxLength := 0
	for _, l := range lines {
		if l.length > maxLength {
			maxLength = l.length
		}
	}
	var leaders []TeamColor
	for _, l := range lines {
		if l.length == maxLength {
			leaders = append(leaders, l.color)
		}
	}
	if len(leaders) == 1 {
		return true, &leaders[0], maxLength
	}
	return false, nil, maxLength
}

// maxLine finds the longest unbroken run of a color in any of the four
// straight directions.
func maxLine(board [][]TeamColor, color TeamColor) int {
	directions := [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}
	best := 0
	for row := 0; row < BoardSize; row++ {
		for col := 0; col < BoardSize; col++ {
			if board[row][col] != color {
				continue
			}
			for _, d := range directions {
				length := 1
				r, c := row+d[0], col+d[1]
				for r >= 0 && r < BoardSize && c >= 0 && c < BoardSize && board[r][c] == color {
					length++
					r += d[0]
					c += d[1]
				}
				if length > best {
					best = length
				}
			}
		}
	}
	return best
}

func newBoard() [][]TeamColor {
	board := make([][]TeamColor, BoardSize)
	for i := range board {
		board[i] = make([]TeamColor, BoardSize)
	}
	return board
}
