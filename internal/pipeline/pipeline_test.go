package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ohisim.ai/internal/persistence/indexdb"
)

type fakeGen struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]int // ISO -> number of failures before success; -1 = always fail
}

func newFakeGen() *fakeGen {
	return &fakeGen{calls: map[string]int{}, fail: map[string]int{}}
}

func (g *fakeGen) CountryInsight(_ context.Context, iso, name string, score float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[iso]++
	if n := g.fail[iso]; n == -1 || g.calls[iso] <= n {
		return "", fmt.Errorf("generation failed for %s", iso)
	}
	return fmt.Sprintf("%s insight (score %.1f)", name, score), nil
}

func (g *fakeGen) callCount(iso string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[iso]
}

func writeSourceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	countries := `[
	  {"iso":"BRA","name":"Brazil","region":"Americas"},
	  {"iso":"DEU","name":"Germany","region":"Europe"}
	]`
	if err := os.WriteFile(filepath.Join(dir, "countries.json"), []byte(countries), 0o644); err != nil {
		t.Fatalf("write countries.json: %v", err)
	}
	csvBody := "iso,code,year,value\n" +
		"BRA,SL.FAT.INJR,2018,30\n" +
		"BRA,SL.FAT.INJR,2020,40\n" + // latest year wins
		"BRA,OSH.COV,2020,60\n" +
		"DEU,SL.FAT.INJR,2020,80\n"
	if err := os.WriteFile(filepath.Join(dir, "indicators.csv"), []byte(csvBody), 0o644); err != nil {
		t.Fatalf("write indicators.csv: %v", err)
	}
	return dir
}

func openDB(t *testing.T) *indexdb.SQLiteIndex {
	t.Helper()
	idx, err := indexdb.OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func waitETL(t *testing.T, r *Runner) ETLStatus {
	t.Helper()
	for i := 0; i < 200; i++ {
		st := r.ETLStatus()
		if !st.Running && st.FinishedAt != "" {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("etl did not finish")
	return ETLStatus{}
}

func waitFill(t *testing.T, r *Runner) FillStatus {
	t.Helper()
	for i := 0; i < 200; i++ {
		st := r.FillStatus()
		if !st.Running && st.FinishedAt != "" {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("fill did not finish")
	return FillStatus{}
}

func waitBatch(t *testing.T, r *Runner) BatchStatus {
	t.Helper()
	for i := 0; i < 200; i++ {
		st := r.BatchStatus()
		if !st.Running && st.FinishedAt != "" {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("batch did not finish")
	return BatchStatus{}
}

func TestETLAndFill(t *testing.T) {
	db := openDB(t)
	r := NewRunner(db, newFakeGen(), writeSourceDir(t), nil)

	if err := r.StartETL(); err != nil {
		t.Fatalf("StartETL: %v", err)
	}
	st := waitETL(t, r)
	if st.Error != "" {
		t.Fatalf("etl error: %s", st.Error)
	}
	if st.CountriesParsed != 2 || st.IndicatorsParsed != 4 || st.FilesParsed != 2 {
		t.Fatalf("etl status: %+v", st)
	}

	if err := r.StartFill(); err != nil {
		t.Fatalf("StartFill: %v", err)
	}
	fs := waitFill(t, r)
	if fs.Error != "" || fs.CountriesUpserted != 2 || fs.IndicatorsUpserted != 4 {
		t.Fatalf("fill status: %+v", fs)
	}

	countries, err := db.ListCountries()
	if err != nil {
		t.Fatalf("ListCountries: %v", err)
	}
	byISO := map[string]float64{}
	for _, c := range countries {
		byISO[c.ISO] = c.Score
	}
	// BRA: latest values 40 and 60, mean 50 -> 1 + 3*0.5 = 2.5
	if got := byISO["BRA"]; got < 2.49 || got > 2.51 {
		t.Fatalf("BRA score=%v want 2.5", got)
	}
	// DEU: single value 80 -> 1 + 3*0.8 = 3.4
	if got := byISO["DEU"]; got < 3.39 || got > 3.41 {
		t.Fatalf("DEU score=%v want 3.4", got)
	}
}

func TestFill_RequiresETL(t *testing.T) {
	r := NewRunner(openDB(t), newFakeGen(), t.TempDir(), nil)
	if err := r.StartFill(); !errors.Is(err, ErrNoParse) {
		t.Fatalf("expected ErrNoParse, got %v", err)
	}
}

func TestETL_MissingSourceReportsError(t *testing.T) {
	r := NewRunner(openDB(t), newFakeGen(), t.TempDir(), nil)
	if err := r.StartETL(); err != nil {
		t.Fatalf("StartETL: %v", err)
	}
	st := waitETL(t, r)
	if st.Error == "" {
		t.Fatalf("missing countries.json should surface in status")
	}
}

func TestBatch_GeneratesAndRetries(t *testing.T) {
	db := openDB(t)
	gen := newFakeGen()
	gen.fail["DEU"] = 1 // first attempt fails, retry succeeds
	r := NewRunner(db, gen, "", nil)

	for _, c := range []indexdb.CountryRow{
		{ISO: "BRA", Name: "Brazil", Score: 2.5},
		{ISO: "DEU", Name: "Germany", Score: 3.4},
	} {
		if err := db.UpsertCountry(c); err != nil {
			t.Fatalf("UpsertCountry: %v", err)
		}
	}

	if err := r.StartBatch(BatchOptions{}); err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	st := waitBatch(t, r)
	if st.Completed != 2 || st.Failed != 0 {
		t.Fatalf("batch status: %+v", st)
	}
	if gen.callCount("DEU") != 2 {
		t.Fatalf("DEU attempts=%d want 2 (one retry)", gen.callCount("DEU"))
	}

	insights, err := db.ListInsights()
	if err != nil || len(insights) != 2 {
		t.Fatalf("ListInsights: %v %d", err, len(insights))
	}
	for _, row := range insights {
		if row.Status != "done" || row.Content == "" {
			t.Fatalf("insight: %+v", row)
		}
	}
}

func TestBatch_SkipsDoneUnlessForced(t *testing.T) {
	db := openDB(t)
	gen := newFakeGen()
	r := NewRunner(db, gen, "", nil)

	if err := db.UpsertCountry(indexdb.CountryRow{ISO: "BRA", Name: "Brazil", Score: 2.5}); err != nil {
		t.Fatalf("UpsertCountry: %v", err)
	}
	if err := db.UpsertInsight(indexdb.InsightRow{CountryISO: "BRA", Status: "done", Content: "old", Attempts: 1}); err != nil {
		t.Fatalf("UpsertInsight: %v", err)
	}

	if err := r.StartBatch(BatchOptions{}); err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	st := waitBatch(t, r)
	if st.Skipped != 1 || st.Completed != 0 {
		t.Fatalf("done country should be skipped: %+v", st)
	}
	if gen.callCount("BRA") != 0 {
		t.Fatalf("generator called for a done country")
	}

	if err := r.StartBatch(BatchOptions{ForceRegenerate: true}); err != nil {
		t.Fatalf("StartBatch force: %v", err)
	}
	st = waitBatch(t, r)
	if st.Completed != 1 {
		t.Fatalf("force should regenerate: %+v", st)
	}
	if gen.callCount("BRA") != 1 {
		t.Fatalf("generator calls=%d want 1", gen.callCount("BRA"))
	}
}

func TestBatch_FailedCountryExhaustsAttempts(t *testing.T) {
	db := openDB(t)
	gen := newFakeGen()
	gen.fail["BRA"] = -1
	r := NewRunner(db, gen, "", nil)

	if err := db.UpsertCountry(indexdb.CountryRow{ISO: "BRA", Name: "Brazil", Score: 2.5}); err != nil {
		t.Fatalf("UpsertCountry: %v", err)
	}

	if err := r.StartBatch(BatchOptions{}); err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	st := waitBatch(t, r)
	if st.Failed != 1 {
		t.Fatalf("batch status: %+v", st)
	}
	if gen.callCount("BRA") != maxInsightAttempts {
		t.Fatalf("attempts=%d want %d", gen.callCount("BRA"), maxInsightAttempts)
	}

	// Without retry_failed the exhausted country is skipped.
	if err := r.StartBatch(BatchOptions{}); err != nil {
		t.Fatalf("StartBatch again: %v", err)
	}
	st = waitBatch(t, r)
	if st.Skipped != 1 {
		t.Fatalf("exhausted country should be skipped: %+v", st)
	}

	// retry_failed does not override the attempt cap.
	if err := r.StartBatch(BatchOptions{RetryFailed: true}); err != nil {
		t.Fatalf("StartBatch retry: %v", err)
	}
	st = waitBatch(t, r)
	if st.Skipped != 1 {
		t.Fatalf("attempt cap should hold under retry_failed: %+v", st)
	}
	if gen.callCount("BRA") != maxInsightAttempts {
		t.Fatalf("extra attempts past the cap: %d", gen.callCount("BRA"))
	}
}

func TestBatch_BusyAndReset(t *testing.T) {
	db := openDB(t)
	gen := newFakeGen()
	r := NewRunner(db, gen, "", nil)

	if err := db.UpsertCountry(indexdb.CountryRow{ISO: "BRA", Name: "Brazil", Score: 2.5}); err != nil {
		t.Fatalf("UpsertCountry: %v", err)
	}
	if err := db.UpsertCountry(indexdb.CountryRow{ISO: "DEU", Name: "Germany", Score: 3.4}); err != nil {
		t.Fatalf("UpsertCountry: %v", err)
	}

	if err := r.StartBatch(BatchOptions{DelayBetween: 200 * time.Millisecond}); err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	if err := r.StartBatch(BatchOptions{}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if err := r.ResetBatch(); !errors.Is(err, ErrBusy) {
		t.Fatalf("reset while running: %v", err)
	}

	r.StopBatch()
	r.StopBatch() // idempotent
	waitBatch(t, r)

	if err := r.ResetBatch(); err != nil {
		t.Fatalf("ResetBatch: %v", err)
	}
	insights, err := db.ListInsights()
	if err != nil || len(insights) != 0 {
		t.Fatalf("reset left insights: %v %d", err, len(insights))
	}
	if st := r.BatchStatus(); st.Running || st.Total != 0 {
		t.Fatalf("status not cleared: %+v", st)
	}
}

func TestBatch_NoCountries(t *testing.T) {
	r := NewRunner(openDB(t), newFakeGen(), "", nil)
	if err := r.StartBatch(BatchOptions{}); !errors.Is(err, ErrNoCountry) {
		t.Fatalf("expected ErrNoCountry, got %v", err)
	}
}
