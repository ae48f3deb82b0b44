// Package pipeline runs the 3-phase database fill job the dashboard monitors:
// ETL over a source directory, sqlite fill, and per-country insight generation.
// One worker goroutine per phase; status is polled, not streamed.
package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"ohisim.ai/internal/persistence/indexdb"
)

var (
	ErrBusy      = errors.New("pipeline: phase already running")
	ErrNoParse   = errors.New("pipeline: run the ETL phase first")
	ErrNoCountry = errors.New("pipeline: no countries in database")
)

// maxInsightAttempts covers the first try plus two automatic retries.
const maxInsightAttempts = 3

// InsightGenerator produces one insight paragraph per country. The advisor
// client implements it.
type InsightGenerator interface {
	CountryInsight(ctx context.Context, iso, name string, score float64) (string, error)
}

type ETLStatus struct {
	Running          bool   `json:"running"`
	FilesParsed      int    `json:"files_parsed"`
	CountriesParsed  int    `json:"countries_parsed"`
	IndicatorsParsed int    `json:"indicators_parsed"`
	StartedAt        string `json:"started_at,omitempty"`
	FinishedAt       string `json:"finished_at,omitempty"`
	Error            string `json:"error,omitempty"`
}

type FillStatus struct {
	Running            bool   `json:"running"`
	CountriesUpserted  int    `json:"countries_upserted"`
	IndicatorsUpserted int    `json:"indicators_upserted"`
	StartedAt          string `json:"started_at,omitempty"`
	FinishedAt         string `json:"finished_at,omitempty"`
	Error              string `json:"error,omitempty"`
}

type BatchStatus struct {
	Running        bool   `json:"running"`
	Total          int    `json:"total"`
	Completed      int    `json:"completed"`
	Failed         int    `json:"failed"`
	Skipped        int    `json:"skipped"`
	CurrentCountry string `json:"current_country,omitempty"`
	Stopped        bool   `json:"stopped"`
	StartedAt      string `json:"started_at,omitempty"`
	FinishedAt     string `json:"finished_at,omitempty"`
	Error          string `json:"error,omitempty"`
}

// BatchOptions mirror the generate-all request body.
type BatchOptions struct {
	ForceRegenerate bool          `json:"force_regenerate"`
	RetryFailed     bool          `json:"retry_failed"`
	DelayBetween    time.Duration `json:"-"`
	DelayBetweenSec float64       `json:"delay_between"`
}

type parsedCountry struct {
	ISO    string `json:"iso"`
	Name   string `json:"name"`
	Region string `json:"region,omitempty"`
}

type parsedIndicator struct {
	ISO   string
	Code  string
	Year  int
	Value float64
}

type Runner struct {
	db        *indexdb.SQLiteIndex
	gen       InsightGenerator
	sourceDir string
	log       *log.Logger

	mu         sync.Mutex
	etl        ETLStatus
	fill       FillStatus
	batch      BatchStatus
	countries  []parsedCountry
	indicators []parsedIndicator
	stopBatch  chan struct{}
}

func NewRunner(db *indexdb.SQLiteIndex, gen InsightGenerator, sourceDir string, logger *log.Logger) *Runner {
	return &Runner{db: db, gen: gen, sourceDir: sourceDir, log: logger}
}

func (r *Runner) ETLStatus() ETLStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.etl
}

func (r *Runner) FillStatus() FillStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fill
}

func (r *Runner) BatchStatus() BatchStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batch
}

// StartETL parses countries.json plus every *.csv indicator file under the
// source directory in a background goroutine.
func (r *Runner) StartETL() error {
	r.mu.Lock()
	if r.etl.Running {
		r.mu.Unlock()
		return ErrBusy
	}
	r.etl = ETLStatus{Running: true, StartedAt: now()}
	r.mu.Unlock()

	go func() {
		countries, indicators, files, err := parseSourceDir(r.sourceDir)
		r.mu.Lock()
		defer r.mu.Unlock()
		r.etl.Running = false
		r.etl.FinishedAt = now()
		r.etl.FilesParsed = files
		if err != nil {
			r.etl.Error = err.Error()
			if r.log != nil {
				r.log.Printf("pipeline: etl failed: %v", err)
			}
			return
		}
		r.countries = countries
		r.indicators = indicators
		r.etl.CountriesParsed = len(countries)
		r.etl.IndicatorsParsed = len(indicators)
	}()
	return nil
}

// StartFill upserts the parsed rows into sqlite. Requires a completed ETL.
func (r *Runner) StartFill() error {
	r.mu.Lock()
	if r.fill.Running {
		r.mu.Unlock()
		return ErrBusy
	}
	if len(r.countries) == 0 {
		r.mu.Unlock()
		return ErrNoParse
	}
	countries := r.countries
	indicators := r.indicators
	r.fill = FillStatus{Running: true, StartedAt: now()}
	r.mu.Unlock()

	go func() {
		scores := scoreByCountry(indicators)
		var cUp, iUp int
		var failErr error
		for _, c := range countries {
			err := r.db.UpsertCountry(indexdb.CountryRow{
				ISO:    c.ISO,
				Name:   c.Name,
				Region: c.Region,
				Score:  scores[c.ISO],
			})
			if err != nil {
				failErr = err
				break
			}
			cUp++
		}
		if failErr == nil {
			for _, ind := range indicators {
				if err := r.db.UpsertIndicator(ind.ISO, ind.Code, ind.Year, ind.Value); err != nil {
					failErr = err
					break
				}
				iUp++
			}
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		r.fill.Running = false
		r.fill.FinishedAt = now()
		r.fill.CountriesUpserted = cUp
		r.fill.IndicatorsUpserted = iUp
		if failErr != nil {
			r.fill.Error = failErr.Error()
			if r.log != nil {
				r.log.Printf("pipeline: fill failed: %v", failErr)
			}
		}
	}()
	return nil
}

// StartBatch generates insights for every country in the database. Countries
// already done are skipped unless ForceRegenerate; failed ones are skipped
// unless RetryFailed, and each gets at most maxInsightAttempts tries overall.
func (r *Runner) StartBatch(opts BatchOptions) error {
	if opts.DelayBetween <= 0 && opts.DelayBetweenSec > 0 {
		opts.DelayBetween = time.Duration(opts.DelayBetweenSec * float64(time.Second))
	}

	countries, err := r.db.ListCountries()
	if err != nil {
		return err
	}
	if len(countries) == 0 {
		return ErrNoCountry
	}
	existing, err := r.db.ListInsights()
	if err != nil {
		return err
	}
	byISO := make(map[string]indexdb.InsightRow, len(existing))
	for _, row := range existing {
		byISO[row.CountryISO] = row
	}

	r.mu.Lock()
	if r.batch.Running {
		r.mu.Unlock()
		return ErrBusy
	}
	stop := make(chan struct{})
	r.stopBatch = stop
	r.batch = BatchStatus{Running: true, Total: len(countries), StartedAt: now()}
	r.mu.Unlock()

	go r.runBatch(countries, byISO, opts, stop)
	return nil
}

func (r *Runner) runBatch(countries []indexdb.CountryRow, byISO map[string]indexdb.InsightRow, opts BatchOptions, stop chan struct{}) {
	defer func() {
		r.mu.Lock()
		r.batch.Running = false
		r.batch.CurrentCountry = ""
		r.batch.FinishedAt = now()
		r.mu.Unlock()
	}()

	for i, c := range countries {
		select {
		case <-stop:
			r.mu.Lock()
			r.batch.Stopped = true
			r.mu.Unlock()
			return
		default:
		}

		prev := byISO[c.ISO]
		skip := false
		switch prev.Status {
		case "done":
			skip = !opts.ForceRegenerate
		case "failed":
			skip = !opts.RetryFailed || prev.Attempts >= maxInsightAttempts
		}
		if skip {
			r.mu.Lock()
			r.batch.Skipped++
			r.mu.Unlock()
			continue
		}

		r.mu.Lock()
		r.batch.CurrentCountry = c.ISO
		r.mu.Unlock()

		attempts := prev.Attempts
		if opts.ForceRegenerate {
			attempts = 0
		}
		content, genErr := r.generateOne(c, &attempts, stop)

		row := indexdb.InsightRow{CountryISO: c.ISO, Attempts: attempts}
		if genErr != nil {
			row.Status = "failed"
			row.Error = genErr.Error()
		} else {
			row.Status = "done"
			row.Content = content
		}
		if err := r.db.UpsertInsight(row); err != nil && r.log != nil {
			r.log.Printf("pipeline: insight upsert %s: %v", c.ISO, err)
		}

		r.mu.Lock()
		if genErr != nil {
			r.batch.Failed++
		} else {
			r.batch.Completed++
		}
		r.mu.Unlock()

		if opts.DelayBetween > 0 && i < len(countries)-1 {
			select {
			case <-stop:
			case <-time.After(opts.DelayBetween):
			}
		}
	}
}

func (r *Runner) generateOne(c indexdb.CountryRow, attempts *int, stop chan struct{}) (string, error) {
	var lastErr error
	for *attempts < maxInsightAttempts {
		select {
		case <-stop:
			if lastErr == nil {
				lastErr = errors.New("stopped")
			}
			return "", lastErr
		default:
		}
		*attempts++
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		content, err := r.gen.CountryInsight(ctx, c.ISO, c.Name, c.Score)
		cancel()
		if err == nil {
			return content, nil
		}
		lastErr = err
	}
	return "", lastErr
}

// StopBatch signals the batch worker; the in-flight country finishes first.
func (r *Runner) StopBatch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.batch.Running && r.stopBatch != nil {
		select {
		case <-r.stopBatch:
		default:
			close(r.stopBatch)
		}
	}
}

// ResetBatch clears all stored insights and the status. Rejected while running.
func (r *Runner) ResetBatch() error {
	r.mu.Lock()
	if r.batch.Running {
		r.mu.Unlock()
		return ErrBusy
	}
	r.batch = BatchStatus{}
	r.mu.Unlock()
	return r.db.ResetInsights()
}

func parseSourceDir(dir string) ([]parsedCountry, []parsedIndicator, int, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "countries.json"))
	if err != nil {
		return nil, nil, 0, fmt.Errorf("countries.json: %w", err)
	}
	var countries []parsedCountry
	if err := json.Unmarshal(raw, &countries); err != nil {
		return nil, nil, 0, fmt.Errorf("countries.json: %w", err)
	}
	files := 1

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, files, err
	}
	var indicators []parsedIndicator
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		rows, err := parseIndicatorCSV(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, nil, files, fmt.Errorf("%s: %w", e.Name(), err)
		}
		indicators = append(indicators, rows...)
		files++
	}
	return countries, indicators, files, nil
}

// parseIndicatorCSV reads rows of iso,code,year,value with a header line.
func parseIndicatorCSV(path string) ([]parsedIndicator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rd := csv.NewReader(f)
	rd.FieldsPerRecord = 4
	var out []parsedIndicator
	first := true
	for {
		rec, err := rd.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			if strings.EqualFold(rec[0], "iso") {
				continue
			}
		}
		year, err := strconv.Atoi(strings.TrimSpace(rec[2]))
		if err != nil {
			return nil, fmt.Errorf("year %q: %w", rec[2], err)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", rec[3], err)
		}
		out = append(out, parsedIndicator{
			ISO:   strings.ToUpper(strings.TrimSpace(rec[0])),
			Code:  strings.TrimSpace(rec[1]),
			Year:  year,
			Value: value,
		})
	}
}

// scoreByCountry maps each country to a 1.0..4.0 maturity score from the mean
// of its latest-year indicator values (values are 0..100 percentages).
func scoreByCountry(indicators []parsedIndicator) map[string]float64 {
	type latest struct {
		year  int
		value float64
	}
	byKey := make(map[string]latest)
	for _, ind := range indicators {
		key := ind.ISO + "\x00" + ind.Code
		if cur, ok := byKey[key]; !ok || ind.Year > cur.year {
			byKey[key] = latest{year: ind.Year, value: ind.Value}
		}
	}
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for key, l := range byKey {
		iso := key[:strings.IndexByte(key, 0)]
		sums[iso] += l.value
		counts[iso]++
	}
	out := make(map[string]float64, len(sums))
	isos := make([]string, 0, len(sums))
	for iso := range sums {
		isos = append(isos, iso)
	}
	sort.Strings(isos)
	for _, iso := range isos {
		avg := sums[iso] / float64(counts[iso])
		score := 1.0 + 3.0*avg/100.0
		if score < 1.0 {
			score = 1.0
		}
		if score > 4.0 {
			score = 4.0
		}
		out[iso] = score
	}
	return out
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }
