// Package protocol defines the newline-delimited text protocol spoken between
// clients and the game server.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Inbound command prefixes and keywords.
const (
	PrefixName     = "NAME:"
	PrefixGridSize = "GRIDSIZE:"
	PrefixMove     = "MOVE:"
	PrefixChat     = "CHAT:"
	CmdRematch     = "REMATCH"
	CmdPing        = "PING"
)

// Outbound messages without arguments.
const (
	YourTurn         = "YOUR_TURN"
	WaitTurn         = "WAIT_TURN"
	RematchStart     = "REMATCH_START"
	GridSizeMismatch = "GRIDSIZE_MISMATCH"
	Pong             = "PONG"
)

var (
	// ErrInvalidGridSize is returned for a GRIDSIZE argument that is not an integer.
	ErrInvalidGridSize = errors.New("Invalid grid size")
	// ErrInvalidMove is returned for a MOVE argument that is not "<row>,<col>".
	ErrInvalidMove = errors.New("Invalid move format")
)

// Kind identifies a parsed inbound command.
type Kind int

const (
	KindUnknown Kind = iota
	KindName
	KindGridSize
	KindMove
	KindChat
	KindRematch
	KindPing
)

var kindNames = map[Kind]string{
	KindUnknown:  "unknown",
	KindName:     "name",
	KindGridSize: "gridsize",
	KindMove:     "move",
	KindChat:     "chat",
	KindRematch:  "rematch",
	KindPing:     "ping",
}

// String returns a lowercase name for logging.
func (k Kind) String() string {
	return kindNames[k]
}

// Command is one parsed inbound line.
type Command struct {
	Kind Kind
	// Text holds the NAME or CHAT payload. NAME payloads are trimmed; CHAT payloads are verbatim.
	Text string
	// Size holds the GRIDSIZE argument.
	Size int
	// Row and Col hold the MOVE coordinates.
	Row int
	Col int
}

// Parse decodes a single line (without its terminator). Prefixes are matched
// case-sensitively. Unrecognized lines yield KindUnknown and no error. A
// recognized command with a malformed argument yields its Kind together with
// ErrInvalidGridSize or ErrInvalidMove.
func Parse(line string) (Command, error) {
	switch {
	case strings.HasPrefix(line, PrefixName):
		return Command{Kind: KindName, Text: strings.TrimSpace(line[len(PrefixName):])}, nil

	case strings.HasPrefix(line, PrefixGridSize):
		size, err := strconv.Atoi(strings.TrimSpace(line[len(PrefixGridSize):]))
		if err != nil {
			return Command{Kind: KindGridSize}, ErrInvalidGridSize
		}
		return Command{Kind: KindGridSize, Size: size}, nil

	case strings.HasPrefix(line, PrefixMove):
		row, col, err := parseCoords(line[len(PrefixMove):])
		if err != nil {
			return Command{Kind: KindMove}, err
		}
		return Command{Kind: KindMove, Row: row, Col: col}, nil

	case strings.HasPrefix(line, PrefixChat):
		return Command{Kind: KindChat, Text: line[len(PrefixChat):]}, nil

	case line == CmdRematch:
		return Command{Kind: KindRematch}, nil

	case line == CmdPing:
		return Command{Kind: KindPing}, nil
	}
	return Command{Kind: KindUnknown}, nil
}

func parseCoords(arg string) (int, int, error) {
	parts := strings.Split(arg, ",")
	if len(parts) != 2 {
		return 0, 0, ErrInvalidMove
	}
	row, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, ErrInvalidMove
	}
	col, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, ErrInvalidMove
	}
	return row, col, nil
}

// Message formats an informational MESSAGE line.
func Message(text string) string { return "MESSAGE:" + text }

// Symbol formats the one-time SYMBOL assignment.
func Symbol(symbol string) string { return "SYMBOL:" + symbol }

// Update formats a cell change broadcast.
func Update(row, col int, symbol string) string {
	return fmt.Sprintf("UPDATE:%d,%d,%s", row, col, symbol)
}

// GameOver formats an end-of-game broadcast.
func GameOver(text string) string { return "GAME_OVER:" + text }

// Win returns the GAME_OVER text naming the winning symbol.
func Win(symbol string) string { return GameOver("Player " + symbol + " wins!") }

// Draw is the GAME_OVER broadcast for a full board without a winner.
var Draw = GameOver("Draw!")

// Scores formats the score line, always X first then O.
func Scores(scoreX, scoreO int) string {
	return fmt.Sprintf("SCORES:%d,%d", scoreX, scoreO)
}

// Chat formats a relayed chat line tagged with the sender's name and symbol.
func Chat(name, symbol, text string) string {
	return fmt.Sprintf("CHAT:%s (%s):%s", name, symbol, text)
}
