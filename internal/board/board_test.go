package board

import (
	"testing"

	"battleship/broker/internal/gameplay"
)

func TestCanPlaceRejectsOutOfBoundsAndOverlap(t *testing.T) {
	b := New()
	if !b.CanPlace(0, 5, 5, Horizontal) {
		t.Fatalf("expected placement at A6 H to fit")
	}
	if b.CanPlace(0, 7, 5, Horizontal) {
		t.Fatalf("expected placement running off the grid to be rejected")
	}
	if _, err := b.Place("Carrier", 0, 0, 5, Horizontal); err != nil {
		t.Fatalf("place: %v", err)
	}
	if b.CanPlace(0, 2, 3, Horizontal) {
		t.Fatalf("expected overlapping placement to be rejected")
	}
}

func TestFireHitSunkAndAlreadyShot(t *testing.T) {
	b := New()
	if _, err := b.Place("Destroyer", 0, 0, 2, Horizontal); err != nil {
		t.Fatalf("place: %v", err)
	}

	outcome, name, err := b.Fire(0, 0)
	if err != nil || outcome != Hit || name != "" {
		t.Fatalf("unexpected first hit: %v %v %v", outcome, name, err)
	}
	outcome, name, err = b.Fire(0, 1)
	if err != nil || outcome != Sunk || name != "Destroyer" {
		t.Fatalf("unexpected sunk result: %v %v %v", outcome, name, err)
	}
	if !b.AllSunk() {
		t.Fatalf("expected AllSunk once the only ship is destroyed")
	}

	outcome, _, err = b.Fire(0, 0)
	if err != nil || outcome != AlreadyShot {
		t.Fatalf("expected already_shot on repeat fire, got %v %v", outcome, err)
	}
}

func TestFireMissLeavesWater(t *testing.T) {
	b := New()
	outcome, _, err := b.Fire(5, 5)
	if err != nil || outcome != Miss {
		t.Fatalf("expected miss, got %v %v", outcome, err)
	}
	outcome, _, err = b.Fire(5, 5)
	if err != nil || outcome != AlreadyShot {
		t.Fatalf("expected already_shot on repeated miss, got %v %v", outcome, err)
	}
}

func TestRenderDisplayNeverRevealsShips(t *testing.T) {
	b := New()
	if _, err := b.Place("Destroyer", 3, 3, 2, Horizontal); err != nil {
		t.Fatalf("place: %v", err)
	}
	display := b.RenderDisplay()
	if containsByte(display, 'S') {
		t.Fatalf("display view must not reveal ship cells:\n%s", display)
	}
	setup := b.RenderSetup()
	if !containsByte(setup, 'S') {
		t.Fatalf("setup view should reveal ship cells:\n%s", setup)
	}
}

func TestPlaceFleetTotalsSeventeenCells(t *testing.T) {
	b := New()
	fleet := gameplay.StandardFleet()
	placements := []Placement{
		{Row: 0, Col: 0, Orientation: Horizontal},
		{Row: 1, Col: 0, Orientation: Horizontal},
		{Row: 2, Col: 0, Orientation: Horizontal},
		{Row: 3, Col: 0, Orientation: Horizontal},
		{Row: 4, Col: 0, Orientation: Horizontal},
	}
	if err := PlaceFleet(b, fleet, placements); err != nil {
		t.Fatalf("place fleet: %v", err)
	}
	total := 0
	for _, ship := range b.Ships() {
		total += len(ship.Remaining)
	}
	if total != 17 {
		t.Fatalf("expected 17 unhit cells immediately after placement, got %d", total)
	}
}

func TestParseCoordinateAndPlacement(t *testing.T) {
	row, col, err := ParseCoordinate("b5")
	if err != nil || row != 1 || col != 4 {
		t.Fatalf("unexpected parse: %d %d %v", row, col, err)
	}
	if _, _, err := ParseCoordinate("A11"); err == nil {
		t.Fatalf("expected error for out-of-range column on a 10-column board")
	}
	row, col, orientation, err := ParsePlacement("A1 V")
	if err != nil || row != 0 || col != 0 || orientation != Vertical {
		t.Fatalf("unexpected placement parse: %d %d %v %v", row, col, orientation, err)
	}
	if _, _, _, err := ParsePlacement("A11 V"); err == nil {
		t.Fatalf("expected parse error for A11 on a 10-column board")
	}
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}
