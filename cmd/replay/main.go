// Prints the cycle ledger of a saved game: the snapshot's history, or the
// hour-rotated cycle logs when a log directory is given. Replays nothing;
// the ledger is already the authoritative record.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"ohisim.ai/internal/persistence/snapshot"
	"ohisim.ai/internal/sim/game"
)

func main() {
	var (
		snapPath = flag.String("snapshot", "", "path to .snap.zst")
		logsDir  = flag.String("cycles", "", "cycles log dir containing cycles-*.jsonl.zst (optional)")
		fromYear = flag.Int("from_year", 0, "print cycles from this year (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" && *logsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot or -cycles")
		os.Exit(2)
	}

	var records []game.CycleRecord
	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		var st game.GameState
		if err := json.Unmarshal(snap.State, &st); err != nil {
			fmt.Fprintln(os.Stderr, "decode state:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d session=%s country=%s phase=%s cycle=%d year=%d score=%.2f\n",
			snap.Header.Version, st.SessionID, st.CountryISO, st.Phase, st.Cycle, st.Year, st.Score)
		records = st.History
	} else {
		var err error
		records, err = readCycleLogs(*logsDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read cycle logs:", err)
			os.Exit(1)
		}
	}

	for _, rec := range records {
		if rec.Year < *fromYear {
			continue
		}
		printRecord(rec)
	}
}

func printRecord(rec game.CycleRecord) {
	event := "-"
	if rec.EventID != "" {
		event = rec.EventID
		if rec.EventChoiceID != "" {
			event += "/" + rec.EventChoiceID
		}
	}
	fmt.Printf("cycle=%d year=%d score=%.2f->%.2f spent=%d carry=%d decisions=%s event=%s\n",
		rec.Cycle, rec.Year, rec.Score, rec.NewScore, rec.SpentTotal, rec.CarryOver,
		joinOr(rec.Decisions, "-"), event)
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ",")
}

func readCycleLogs(dir string) ([]game.CycleRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, "cycles-") && strings.HasSuffix(name, ".jsonl.zst") {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)

	var out []game.CycleRecord
	for _, path := range files {
		recs, err := readOneLog(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		out = append(out, recs...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cycle < out[j].Cycle })
	return out, nil
}

func readOneLog(path string) ([]game.CycleRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var out []game.CycleRecord
	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec game.CycleRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}
