package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version   int    `json:"version"`
	SessionID string `json:"session_id"`
	Cycle     int    `json:"cycle"`
	SavedAt   string `json:"saved_at"`
}

// SnapshotV1 wraps a marshalled game state. The state payload is carried
// opaquely so the snapshot format does not chase every domain field.
type SnapshotV1 struct {
	Header Header          `json:"header"`
	State  json.RawMessage `json:"state"`
}

func New(sessionID string, cycle int, state json.RawMessage) SnapshotV1 {
	return SnapshotV1{
		Header: Header{
			Version:   1,
			SessionID: sessionID,
			Cycle:     cycle,
			SavedAt:   time.Now().UTC().Format(time.RFC3339),
		},
		State: state,
	}
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := json.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("snapshot encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is informational; the body repeats it.
	_, _ = br.ReadBytes('\n')

	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("snapshot decode: %w", err)
	}
	return snap, nil
}
