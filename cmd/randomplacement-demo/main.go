// Command randomplacement-demo plays one offline Battleship match between
// two randomly-placed fleets and prints the turn-by-turn log to stdout. It
// exercises the board engine without any network, session, or auth
// machinery, the way the teacher repo carries its own offline bot tooling
// (internal/bots) alongside the networked broker.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"battleship/broker/internal/board"
	"battleship/broker/internal/gameplay"
)

func main() {
	catalogue := flag.String("catalogue", "standard", "ship catalogue: standard or mini")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	fleet, err := gameplay.Fleet(*catalogue)
	if err != nil {
		fmt.Fprintln(os.Stderr, "randomplacement-demo:", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))
	boards := [2]*board.Board{placeRandomly(rng, fleet), placeRandomly(rng, fleet)}
	names := [2]string{"Player A", "Player B"}

	fmt.Println("=== randomplacement-demo ===")
	attacker := 0
	for round := 1; ; round++ {
		defender := 1 - attacker
		row, col := rng.Intn(board.Size), rng.Intn(board.Size)
		outcome, shipName, err := boards[defender].Fire(row, col)
		if err != nil || outcome == board.AlreadyShot {
			round--
			continue
		}
		fmt.Printf("round %2d: %s fires at %s -> %s\n", round, names[attacker], coordLabel(row, col), describe(outcome, shipName))
		if boards[defender].AllSunk() {
			fmt.Printf("%s wins in %d rounds\n", names[attacker], round)
			return
		}
		attacker = defender
	}
}

// placeRandomly drops every hull in the fleet onto random, non-overlapping
// cells, retrying placements that fail CanPlace. Grounded on the random
// placement helper the networked core deliberately excludes from online
// play (manual placement only) but keeps available for offline tooling.
func placeRandomly(rng *rand.Rand, fleet []gameplay.ShipClass) *board.Board {
	b := board.New()
	for _, class := range fleet {
		for {
			row := rng.Intn(board.Size)
			col := rng.Intn(board.Size)
			orientation := board.Horizontal
			if rng.Intn(2) == 1 {
				orientation = board.Vertical
			}
			if !b.CanPlace(row, col, class.Length, orientation) {
				continue
			}
			if _, err := b.Place(class.Name, row, col, class.Length, orientation); err != nil {
				continue
			}
			break
		}
	}
	return b
}

func describe(outcome board.FireOutcome, shipName string) string {
	switch outcome {
	case board.Sunk:
		return "sunk " + shipName
	case board.Hit:
		return "hit"
	default:
		return "miss"
	}
}

func coordLabel(row, col int) string {
	return fmt.Sprintf("%c%d", 'A'+row, col+1)
}
