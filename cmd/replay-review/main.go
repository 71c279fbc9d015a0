// Command replay-review prints the deterministic timeline of a manual
// replay dump (the gzip-compressed moves/boards/chat envelope produced by
// the admin /replay/dump endpoint) to stdout, one line per entry.
package main

import (
	"flag"
	"fmt"
	"os"

	"battleship/broker/internal/replay"
)

func main() {
	path := flag.String("file", "", "path to a *.json.gz replay dump")
	flag.Parse()
	if *path == "" {
		fmt.Fprintln(os.Stderr, "replay-review: -file is required")
		os.Exit(1)
	}

	loader, err := replay.Load(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay-review:", err)
		os.Exit(1)
	}

	err = loader.Replay(func(entry replay.TimelineEntry) error {
		fmt.Printf("%8dms seq=%-6d %-6s %s\n", entry.ElapsedMs, entry.Seq, entry.Type, string(entry.Payload))
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay-review:", err)
		os.Exit(1)
	}
}
