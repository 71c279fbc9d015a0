package main

import (
	"flag"
	"fmt"
	"os"

	"battleship/broker/tools/replay_catalog"
)

func main() {
	root := flag.String("dir", ".", "directory containing replay headers")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	entries, err := replaycatalog.List(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonFlag {
		payload, err := replaycatalog.MarshalEntries(entries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
		return
	}

	for _, entry := range entries {
		fmt.Printf("%s (schema %d)\n", entry.ReplayPath, entry.Header.SchemaVersion)
		if entry.Header.MatchSeed != "" {
			fmt.Printf("  seed: %s\n", entry.Header.MatchSeed)
		}
		if entry.Header.MatchID != "" {
			fmt.Printf("  match: %s\n", entry.Header.MatchID)
		}
		if len(entry.Header.Players) > 0 {
			fmt.Printf("  players: %v\n", entry.Header.Players)
		}
		fmt.Printf("  header: %s\n", entry.HeaderPath)
	}
}
