package trace

import (
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot is the serialized form of a ring dump.
type Snapshot struct {
	Version int     `msgpack:"version"`
	Events  []Event `msgpack:"events"`
}

const snapshotVersion = 1

// WriteSnapshot encodes the ring's events as a msgpack snapshot.
func WriteSnapshot(w io.Writer, ring *RingTracer) error {
	snap := Snapshot{
		Version: snapshotVersion,
		Events:  ring.Snapshot(),
	}
	enc := msgpack.NewEncoder(w)
	if err := enc.Encode(&snap); err != nil {
		return fmt.Errorf("failed to encode trace snapshot: %w", err)
	}
	return nil
}

// WriteSnapshotFile writes a msgpack snapshot to path.
func WriteSnapshotFile(path string, ring *RingTracer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace snapshot: %w", err)
	}
	defer f.Close()
	return WriteSnapshot(f, ring)
}

// ReadSnapshot decodes a msgpack snapshot.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode trace snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported trace snapshot version %d", snap.Version)
	}
	return &snap, nil
}
