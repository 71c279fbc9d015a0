package replay

import (
	"path/filepath"
	"testing"
)

func TestWriteAndReadHeader(t *testing.T) {
	dir := t.TempDir()
	header := Header{
		SchemaVersion: HeaderSchemaVersion,
		MatchID:       "match-9",
		MatchSeed:     "seed-9",
		Players:       []string{"alice", "bob"},
		FilePointer:   "match.json.gz",
	}
	path := filepath.Join(dir, "example.header.json")
	if err := WriteHeader(path, header); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	loaded, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if loaded.SchemaVersion != header.SchemaVersion || loaded.MatchSeed != header.MatchSeed {
		t.Fatalf("unexpected header values: %+v", loaded)
	}
	if loaded.MatchID != header.MatchID {
		t.Fatalf("unexpected match id: %q", loaded.MatchID)
	}
	if len(loaded.Players) != 2 || loaded.Players[0] != "alice" || loaded.Players[1] != "bob" {
		t.Fatalf("unexpected players: %#v", loaded.Players)
	}
	if loaded.FilePointer != header.FilePointer {
		t.Fatalf("unexpected file pointer: %q", loaded.FilePointer)
	}
}

func TestHeaderValidateRequiresMatchID(t *testing.T) {
	header := Header{SchemaVersion: HeaderSchemaVersion, FilePointer: "x.json.gz"}
	if err := header.Validate(); err == nil {
		t.Fatal("expected validation error for missing match id")
	}
}
