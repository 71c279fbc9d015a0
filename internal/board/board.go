// Package board implements the 10x10 Battleship grid: ship placement
// validation, fire resolution, sunk detection, and the two textual
// rendering views (setup and display).
package board

import (
	"errors"
	"fmt"
	"strings"

	"battleship/broker/internal/gameplay"
)

// Size is the fixed grid dimension for both axes.
const Size = 10

// Cell values for the authoritative grid.
const (
	CellWater byte = iota
	CellShip
	CellHit
	CellMiss
)

// Orientation of a placed ship.
type Orientation int

// Horizontal grows across columns; Vertical grows across rows.
const (
	Horizontal Orientation = iota
	Vertical
)

var (
	// ErrInvalidPlacement is returned when a ship does not fit or overlaps another.
	ErrInvalidPlacement = errors.New("board: invalid ship placement")
	// ErrOutOfBounds is returned for a coordinate outside the grid.
	ErrOutOfBounds = errors.New("board: coordinate out of bounds")
)

// FireOutcome classifies the result of a single shot.
type FireOutcome int

const (
	// Miss indicates the shot struck open water.
	Miss FireOutcome = iota
	// Hit indicates the shot struck a ship that is not yet sunk.
	Hit
	// Sunk indicates the shot struck the last remaining cell of a ship.
	Sunk
	// AlreadyShot indicates the cell was already fired upon.
	AlreadyShot
)

// Ship tracks a placed ship's name and its remaining (unhit) cells.
type Ship struct {
	Name      string
	Remaining map[[2]int]struct{}
}

// Sunk reports whether every cell of the ship has been hit.
func (s *Ship) Sunk() bool { return len(s.Remaining) == 0 }

// Board owns one player's 10x10 grid: the authoritative view (water/ship/
// hit/miss) and the attacker-facing view (unknown/hit/miss) derived from it.
type Board struct {
	grid  [Size][Size]byte
	ships []*Ship
	owner map[[2]int]int // cell -> index into ships
}

// New constructs an empty board with no ships placed.
func New() *Board {
	return &Board{owner: make(map[[2]int]int)}
}

// CanPlace reports whether a ship of the given length fits at (row, col) in
// the given orientation without leaving the grid or overlapping another ship.
func (b *Board) CanPlace(row, col, length int, orientation Orientation) bool {
	cells, ok := footprint(row, col, length, orientation)
	if !ok {
		return false
	}
	for _, c := range cells {
		if b.grid[c[0]][c[1]] != CellWater {
			return false
		}
	}
	return true
}

// Place marks the footprint as ship-occupied and records the ship entry.
// It re-checks bounds and overlap itself and returns ErrInvalidPlacement,
// leaving the board unchanged, when the footprint does not fit.
func (b *Board) Place(name string, row, col, length int, orientation Orientation) ([][2]int, error) {
	cells, ok := footprint(row, col, length, orientation)
	if !ok {
		return nil, ErrInvalidPlacement
	}
	remaining := make(map[[2]int]struct{}, len(cells))
	for _, c := range cells {
		if b.grid[c[0]][c[1]] != CellWater {
			return nil, ErrInvalidPlacement
		}
		remaining[c] = struct{}{}
	}
	ship := &Ship{Name: name, Remaining: remaining}
	idx := len(b.ships)
	b.ships = append(b.ships, ship)
	for _, c := range cells {
		b.grid[c[0]][c[1]] = CellShip
		b.owner[c] = idx
	}
	return cells, nil
}

// Fire resolves a shot at (row, col) against the authoritative grid.
func (b *Board) Fire(row, col int) (FireOutcome, string, error) {
	if row < 0 || row >= Size || col < 0 || col >= Size {
		return Miss, "", ErrOutOfBounds
	}
	switch b.grid[row][col] {
	case CellHit, CellMiss:
		return AlreadyShot, "", nil
	case CellWater:
		b.grid[row][col] = CellMiss
		return Miss, "", nil
	case CellShip:
		b.grid[row][col] = CellHit
		idx := b.owner[[2]int{row, col}]
		ship := b.ships[idx]
		delete(ship.Remaining, [2]int{row, col})
		if ship.Sunk() {
			return Sunk, ship.Name, nil
		}
		return Hit, "", nil
	default:
		return Miss, "", fmt.Errorf("board: unrecognised cell state %d", b.grid[row][col])
	}
}

// AllSunk reports whether every placed ship has been fully hit.
func (b *Board) AllSunk() bool {
	if len(b.ships) == 0 {
		return false
	}
	for _, ship := range b.ships {
		if !ship.Sunk() {
			return false
		}
	}
	return true
}

// Ships exposes the placed ships for inspection (e.g. replay transcripts).
func (b *Board) Ships() []*Ship { return b.ships }

// RenderSetup renders the board with ships visible, for the owning player.
func (b *Board) RenderSetup() string { return b.render(true) }

// RenderDisplay renders the board as an attacker sees it: hit, miss, or
// unknown, never revealing un-hit ship cells.
func (b *Board) RenderDisplay() string { return b.render(false) }

func (b *Board) render(showShips bool) string {
	var sb strings.Builder
	sb.WriteString("  ")
	for c := 1; c <= Size; c++ {
		fmt.Fprintf(&sb, "%2d", c)
	}
	sb.WriteByte('\n')
	for row := 0; row < Size; row++ {
		sb.WriteByte(byte('A' + row))
		sb.WriteByte(' ')
		for col := 0; col < Size; col++ {
			sb.WriteByte(' ')
			sb.WriteByte(renderCell(b.grid[row][col], showShips))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func renderCell(cell byte, showShips bool) byte {
	switch cell {
	case CellHit:
		return 'X'
	case CellMiss:
		return 'o'
	case CellShip:
		if showShips {
			return 'S'
		}
		return '.'
	default:
		return '.'
	}
}

func footprint(row, col, length int, orientation Orientation) ([][2]int, bool) {
	if row < 0 || col < 0 || length <= 0 {
		return nil, false
	}
	cells := make([][2]int, length)
	for i := 0; i < length; i++ {
		r, c := row, col
		switch orientation {
		case Horizontal:
			c += i
		case Vertical:
			r += i
		}
		if r >= Size || c >= Size {
			return nil, false
		}
		cells[i] = [2]int{r, c}
	}
	return cells, true
}

// PlaceFleet places every class of a fleet catalogue at the given
// coordinates in order, returning the first placement error encountered.
// It is primarily used by offline demo tooling and tests; the networked
// match driver places ships one at a time as prompts are answered.
func PlaceFleet(b *Board, fleet []gameplay.ShipClass, placements []Placement) error {
	if len(fleet) != len(placements) {
		return fmt.Errorf("board: expected %d placements, got %d", len(fleet), len(placements))
	}
	for i, class := range fleet {
		p := placements[i]
		if !b.CanPlace(p.Row, p.Col, class.Length, p.Orientation) {
			return fmt.Errorf("%w: %s at (%d,%d)", ErrInvalidPlacement, class.Name, p.Row, p.Col)
		}
		if _, err := b.Place(class.Name, p.Row, p.Col, class.Length, p.Orientation); err != nil {
			return err
		}
	}
	return nil
}

// Placement is a coordinate and orientation for one ship.
type Placement struct {
	Row         int
	Col         int
	Orientation Orientation
}
