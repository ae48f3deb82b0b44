// Package advisor talks to the AI workflow backend and degrades to local
// deterministic narratives when the backend is missing or failing. It also
// synthesizes the cycle simulation result when no backend is configured.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ohisim.ai/internal/persistence/indexdb"
	"ohisim.ai/internal/sim/game"
)

const (
	OpSimulate       = "simulate_cycle"
	OpStrategic      = "strategic_advisor"
	OpFinalReport    = "final_report"
	OpCountryInsight = "country_insight"
)

// Tracer records one row per AI call. indexdb implements it; may be nil.
type Tracer interface {
	RecordTrace(row indexdb.TraceRow)
}

type Config struct {
	BaseURL  string // empty = local model only
	APIKey   string
	Provider string // reported in traces, e.g. "openai"
	Timeout  time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	tracer Tracer
	log    *log.Logger
}

// WorkflowResponse is the backend's envelope: failure is signaled in-band.
type WorkflowResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Errors  []string        `json:"errors,omitempty"`
}

func NewClient(cfg Config, tracer Tracer, logger *log.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Provider == "" {
		cfg.Provider = "local"
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		tracer: tracer,
		log:    logger,
	}
}

// CycleResult implements game.ResultProvider. A remote failure falls back to
// the local model; callers never see an error from a flaky backend.
func (c *Client) CycleResult(req game.ResultRequest) (game.SimulationResult, error) {
	if c.cfg.BaseURL == "" {
		res := c.localResult(req)
		c.trace(OpSimulate, req.CountryISO, true, 0, "")
		return res, nil
	}

	start := time.Now()
	var data struct {
		Pillars   map[string]float64 `json:"pillars"`
		Score     float64            `json:"score,omitempty"`
		Rank      int                `json:"rank,omitempty"`
		Narrative string             `json:"narrative,omitempty"`
	}
	err := c.post("/api/v1/ai/simulate", req, &data)
	lat := time.Since(start).Milliseconds()
	if err != nil {
		c.trace(OpSimulate, req.CountryISO, false, lat, err.Error())
		if c.log != nil {
			c.log.Printf("advisor: simulate failed, using local model: %v", err)
		}
		return c.localResult(req), nil
	}
	res := game.SimulationResult{
		Pillars:   data.Pillars,
		Score:     data.Score,
		Rank:      data.Rank,
		Narrative: data.Narrative,
	}
	if err := res.Validate(); err != nil {
		c.trace(OpSimulate, req.CountryISO, false, lat, err.Error())
		return c.localResult(req), nil
	}
	c.trace(OpSimulate, req.CountryISO, true, lat, "")
	return res, nil
}

// localResult applies the combined impacts with diminishing returns: gains
// shrink as a pillar approaches 100, losses bite fully.
func (c *Client) localResult(req game.ResultRequest) game.SimulationResult {
	pillars := req.Pillars.AsMap()
	for _, impacts := range []map[string]float64{req.DecisionImpacts, req.PolicyImpacts, req.EffectImpacts} {
		for name, delta := range impacts {
			cur, ok := pillars[name]
			if !ok {
				continue
			}
			if delta > 0 {
				delta *= (100 - cur) / 100
			}
			next := cur + delta
			if next < 0 {
				next = 0
			}
			if next > 100 {
				next = 100
			}
			pillars[name] = next
		}
	}
	return game.SimulationResult{
		Pillars:   pillars,
		Rank:      req.Rank,
		Narrative: cycleNarrative(req, pillars),
	}
}

// Ask implements game.AdvisorAsker.
func (c *Client) Ask(req game.AdvisorRequest) (string, error) {
	if c.cfg.BaseURL == "" {
		c.trace(OpStrategic, req.CountryISO, true, 0, "")
		return fallbackAdvice(req), nil
	}
	start := time.Now()
	var data struct {
		SituationAnalysis string `json:"situation_analysis,omitempty"`
		Greeting          string `json:"greeting,omitempty"`
	}
	err := c.post("/api/v1/ai/strategic-advisor", req, &data)
	lat := time.Since(start).Milliseconds()
	if err != nil {
		c.trace(OpStrategic, req.CountryISO, false, lat, err.Error())
		return fallbackAdvice(req), nil
	}
	c.trace(OpStrategic, req.CountryISO, true, lat, "")
	if data.SituationAnalysis != "" {
		return data.SituationAnalysis, nil
	}
	if data.Greeting != "" {
		return data.Greeting, nil
	}
	return fallbackAdvice(req), nil
}

// FinalReport summarizes a finished game.
type FinalReport struct {
	Narrative       string   `json:"narrative"`
	Highlights      []string `json:"highlights,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	Grade           string   `json:"grade"`
}

func (c *Client) RunFinalReport(state game.GameState) FinalReport {
	if c.cfg.BaseURL != "" {
		start := time.Now()
		var rep FinalReport
		err := c.post("/api/v1/ai/final-report", state, &rep)
		lat := time.Since(start).Milliseconds()
		if err == nil && rep.Narrative != "" {
			c.trace(OpFinalReport, state.CountryISO, true, lat, "")
			return rep
		}
		msg := "empty narrative"
		if err != nil {
			msg = err.Error()
		}
		c.trace(OpFinalReport, state.CountryISO, false, lat, msg)
	} else {
		c.trace(OpFinalReport, state.CountryISO, true, 0, "")
	}
	return fallbackReport(state)
}

// CountryInsight generates a one-paragraph insight for the data platform;
// the batch pipeline calls it per country.
func (c *Client) CountryInsight(ctx context.Context, iso, name string, score float64) (string, error) {
	if c.cfg.BaseURL == "" {
		c.trace(OpCountryInsight, iso, true, 0, "")
		return fmt.Sprintf("%s holds an occupational health index of %.2f; priorities follow its weakest pillar.", name, score), nil
	}
	start := time.Now()
	var data struct {
		Insight string `json:"insight"`
	}
	payload := map[string]any{"country_iso": iso, "name": name, "score": score}
	err := c.postCtx(ctx, "/api/v1/ai/country-insight", payload, &data)
	lat := time.Since(start).Milliseconds()
	if err != nil {
		c.trace(OpCountryInsight, iso, false, lat, err.Error())
		return "", err
	}
	c.trace(OpCountryInsight, iso, true, lat, "")
	return data.Insight, nil
}

func (c *Client) post(path string, payload, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()
	return c.postCtx(ctx, path, payload, out)
}

func (c *Client) postCtx(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s: http %d", path, resp.StatusCode)
	}
	var env WorkflowResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if !env.Success {
		if len(env.Errors) > 0 {
			return fmt.Errorf("%s: %s", path, env.Errors[0])
		}
		return fmt.Errorf("%s: workflow failed", path)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s: data: %w", path, err)
		}
	}
	return nil
}

func (c *Client) trace(op, iso string, success bool, latencyMS int64, errMsg string) {
	if c.tracer == nil {
		return
	}
	c.tracer.RecordTrace(indexdb.TraceRow{
		ID:         uuid.NewString(),
		Provider:   c.cfg.Provider,
		Operation:  op,
		CountryISO: iso,
		Success:    success,
		LatencyMS:  latencyMS,
		Error:      errMsg,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	})
}
