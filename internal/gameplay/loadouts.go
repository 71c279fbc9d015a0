package gameplay

import (
	"encoding/json"
	"fmt"
	"sync"

	_ "embed"
)

// ShipClass describes one entry of a fleet catalogue: a name and the
// number of contiguous cells it occupies.
type ShipClass struct {
	Name   string `json:"name"`
	Length int    `json:"length"`
}

//go:embed ships_standard.json
var standardFleetPayload []byte

//go:embed ships_mini.json
var miniFleetPayload []byte

var (
	standardOnce  sync.Once
	standardFleet []ShipClass
	standardErr   error

	miniOnce  sync.Once
	miniFleet []ShipClass
	miniErr   error
)

// StandardFleet returns the canonical five-ship Battleship catalogue
// (Carrier 5, Battleship 4, Cruiser 3, Submarine 3, Destroyer 2).
func StandardFleet() []ShipClass {
	standardOnce.Do(func() {
		standardErr = json.Unmarshal(standardFleetPayload, &standardFleet)
	})
	if standardErr != nil {
		panic(standardErr)
	}
	return cloneFleet(standardFleet)
}

// MiniFleet returns the two-ship catalogue used for fast manual
// integration testing, carried from the original implementation's
// testing_place_ships helper.
func MiniFleet() []ShipClass {
	miniOnce.Do(func() {
		miniErr = json.Unmarshal(miniFleetPayload, &miniFleet)
	})
	if miniErr != nil {
		panic(miniErr)
	}
	return cloneFleet(miniFleet)
}

// Fleet resolves a catalogue name ("standard" or "mini") to its ship list.
func Fleet(catalogue string) ([]ShipClass, error) {
	switch catalogue {
	case "", "standard":
		return StandardFleet(), nil
	case "mini":
		return MiniFleet(), nil
	default:
		return nil, fmt.Errorf("gameplay: unknown ship catalogue %q", catalogue)
	}
}

func cloneFleet(fleet []ShipClass) []ShipClass {
	out := make([]ShipClass, len(fleet))
	copy(out, fleet)
	return out
}
