package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Meta describes one archived finished game.
type Meta struct {
	SessionID  string  `json:"session_id"`
	CountryISO string  `json:"country_iso"`
	Cycles     int     `json:"cycles"`
	FinalScore float64 `json:"final_score"`
	FinalRank  int     `json:"final_rank,omitempty"`
	ArchivedAt string  `json:"archived_at"`
}

// ArchiveFinishedGame copies the final snapshot and writes the end-of-game
// report next to it under <dataDir>/archive/<session>/. Returns the archive
// directory.
func ArchiveFinishedGame(dataDir, snapshotPath string, meta Meta, report any) (string, error) {
	dir := filepath.Join(dataDir, "archive", meta.SessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	if snapshotPath != "" {
		if err := copyFile(snapshotPath, filepath.Join(dir, "final.snap.zst")); err != nil {
			return "", fmt.Errorf("archive snapshot: %w", err)
		}
	}

	rb, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "report.json"), rb, 0o644); err != nil {
		return "", err
	}

	meta.ArchivedAt = time.Now().UTC().Format(time.RFC3339)
	mb, _ := json.MarshalIndent(meta, "", "  ")
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), mb, 0o644); err != nil {
		return "", err
	}
	return dir, nil
}

// ListArchived returns the metas of all archived games under dataDir.
func ListArchived(dataDir string) ([]Meta, error) {
	base := filepath.Join(dataDir, "archive")
	ents, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Meta
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(base, e.Name(), "meta.json"))
		if err != nil {
			continue
		}
		var m Meta
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
