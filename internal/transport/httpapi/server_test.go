package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ohisim.ai/internal/persistence/indexdb"
	"ohisim.ai/internal/pipeline"
	"ohisim.ai/internal/sim/catalogs"
	"ohisim.ai/internal/sim/rankings"
)

const testToken = "sekrit"

type nullGen struct{}

func (nullGen) CountryInsight(_ context.Context, iso, name string, score float64) (string, error) {
	return name + " insight", nil
}

func newTestServer(t *testing.T, token string) (*httptest.Server, *indexdb.SQLiteIndex, *pipeline.Runner) {
	t.Helper()
	idx, err := indexdb.OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })

	runner := pipeline.NewRunner(idx, nullGen{}, t.TempDir(), nil)
	board := rankings.NewBoard(idx, nil, []catalogs.StageDef{
		{ID: "developing", Label: "Developing", Min: 1.0, Max: 2.4},
		{ID: "advancing", Label: "Advancing", Min: 2.5, Max: 4.0},
	})

	mux := http.NewServeMux()
	NewServer(idx, runner, board, token, nil).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, idx, runner
}

func doReq(t *testing.T, method, url, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func TestProtect(t *testing.T) {
	srv, _, _ := newTestServer(t, testToken)

	resp, body := doReq(t, http.MethodGet, srv.URL+"/api/v1/auth/users", "", "")
	if resp.StatusCode != http.StatusUnauthorized || body["error"] != "missing bearer token" {
		t.Fatalf("no auth: %d %v", resp.StatusCode, body)
	}
	resp, body = doReq(t, http.MethodGet, srv.URL+"/api/v1/auth/users", "wrong", "")
	if resp.StatusCode != http.StatusForbidden || body["error"] != "invalid token" {
		t.Fatalf("bad token: %d %v", resp.StatusCode, body)
	}
	resp, _ = doReq(t, http.MethodGet, srv.URL+"/api/v1/auth/users", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("good token: %d", resp.StatusCode)
	}
}

func TestProtect_EmptyTokenDisablesAuth(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	resp, _ := doReq(t, http.MethodGet, srv.URL+"/api/v1/auth/users", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open server: %d", resp.StatusCode)
	}
}

func TestUsers_CRUDOverHTTP(t *testing.T) {
	srv, _, _ := newTestServer(t, testToken)
	base := srv.URL + "/api/v1/auth/users"

	resp, created := doReq(t, http.MethodPost, base, testToken, `{"username":"ana","email":"ana@example.org","role":"admin"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %v", resp.StatusCode, created)
	}
	id, _ := created["id"].(string)
	if id == "" || created["role"] != "admin" || created["active"] != true {
		t.Fatalf("created user: %v", created)
	}

	resp, body := doReq(t, http.MethodPost, base, testToken, `{"username":""}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank username: %d %v", resp.StatusCode, body)
	}
	resp, _ = doReq(t, http.MethodPost, base, testToken, `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad json: %d", resp.StatusCode)
	}

	resp, list := doReq(t, http.MethodGet, base, testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d", resp.StatusCode)
	}
	if total, _ := list["total"].(float64); total != 1 {
		t.Fatalf("total=%v want 1", list["total"])
	}

	resp, updated := doReq(t, http.MethodPut, base+"/"+id, testToken, `{"role":"viewer","active":false}`)
	if resp.StatusCode != http.StatusOK || updated["role"] != "viewer" || updated["active"] != false {
		t.Fatalf("update: %d %v", resp.StatusCode, updated)
	}
	// Email was omitted from the body, so it stays.
	if updated["email"] != "ana@example.org" {
		t.Fatalf("partial update clobbered email: %v", updated)
	}

	resp, _ = doReq(t, http.MethodGet, base+"/nope", testToken, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get missing: %d", resp.StatusCode)
	}

	resp, _ = doReq(t, http.MethodDelete, base+"/"+id, testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	resp, _ = doReq(t, http.MethodDelete, base+"/"+id, testToken, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("double delete: %d", resp.StatusCode)
	}
}

func TestTraces_QueryAndValidation(t *testing.T) {
	srv, idx, _ := newTestServer(t, testToken)

	idx.RecordTrace(indexdb.TraceRow{ID: "t1", Provider: "dify", Operation: "simulate", Success: true})
	idx.RecordTrace(indexdb.TraceRow{ID: "t2", Provider: "local", Operation: "simulate", Success: false, Error: "timeout"})
	idx.Flush()

	resp, body := doReq(t, http.MethodGet, srv.URL+"/api/v1/ai-config/traces?provider=dify", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("traces: %d", resp.StatusCode)
	}
	if total, _ := body["total"].(float64); total != 1 {
		t.Fatalf("provider filter total=%v", body["total"])
	}

	resp, _ = doReq(t, http.MethodGet, srv.URL+"/api/v1/ai-config/traces?success=maybe", testToken, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad success param: %d", resp.StatusCode)
	}

	resp, stats := doReq(t, http.MethodGet, srv.URL+"/api/v1/ai-config/traces/stats", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: %d", resp.StatusCode)
	}
	if total, _ := stats["total"].(float64); total != 2 {
		t.Fatalf("stats total=%v", stats["total"])
	}
}

func TestPipelineEndpoints(t *testing.T) {
	srv, idx, _ := newTestServer(t, testToken)

	// Fill before ETL is a precondition failure.
	resp, _ := doReq(t, http.MethodPost, srv.URL+"/api/v1/etl/fill-database", testToken, "")
	if resp.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("fill before etl: %d", resp.StatusCode)
	}

	// Batch with an empty database is a precondition failure too, on both
	// route spellings.
	for _, prefix := range []string{"/api/v1/insight-batch/", "/api/v1/insights/batch-"} {
		resp, _ = doReq(t, http.MethodPost, srv.URL+prefix+"generate-all", testToken, "{}")
		if resp.StatusCode != http.StatusPreconditionFailed {
			t.Fatalf("%s: %d", prefix, resp.StatusCode)
		}
	}

	if err := idx.UpsertCountry(indexdb.CountryRow{ISO: "BRA", Name: "Brazil", Score: 2.0}); err != nil {
		t.Fatalf("UpsertCountry: %v", err)
	}
	resp, _ = doReq(t, http.MethodPost, srv.URL+"/api/v1/insight-batch/generate-all", testToken, "{}")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("batch start: %d", resp.StatusCode)
	}
	waitBatchDone(t, srv.URL, testToken)

	resp, status := doReq(t, http.MethodGet, srv.URL+"/api/v1/insights/batch-generate-status", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("batch status: %d", resp.StatusCode)
	}
	if done, _ := status["completed"].(float64); done != 1 {
		t.Fatalf("completed=%v", status["completed"])
	}

	resp, _ = doReq(t, http.MethodPost, srv.URL+"/api/v1/insight-batch/generate-reset", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("batch reset: %d", resp.StatusCode)
	}

	resp, _ = doReq(t, http.MethodGet, srv.URL+"/api/v1/etl/status", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("etl status: %d", resp.StatusCode)
	}
	resp, _ = doReq(t, http.MethodGet, srv.URL+"/api/v1/etl/run", testToken, "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET on run: %d", resp.StatusCode)
	}
}

func waitBatchDone(t *testing.T, baseURL, token string) {
	t.Helper()
	for i := 0; i < 200; i++ {
		_, status := doReq(t, http.MethodGet, baseURL+"/api/v1/insight-batch/generate-status", token, "")
		running, _ := status["running"].(bool)
		if !running && status["finished_at"] != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("batch did not finish")
}

func TestRankingsEndpoint(t *testing.T) {
	srv, idx, _ := newTestServer(t, testToken)

	for i, iso := range []string{"BRA", "DEU"} {
		err := idx.UpsertCountry(indexdb.CountryRow{ISO: iso, Name: iso, Score: 2.0 + float64(i)})
		if err != nil {
			t.Fatalf("UpsertCountry: %v", err)
		}
	}

	resp, body := doReq(t, http.MethodGet, srv.URL+"/api/v1/rankings", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rankings: %d", resp.StatusCode)
	}
	rows, _ := body["rows"].([]any)
	if len(rows) != 2 {
		t.Fatalf("rows=%d want 2", len(rows))
	}
	first, _ := rows[0].(map[string]any)
	if first["iso"] != "DEU" || first["rank"] != float64(1) {
		t.Fatalf("first row: %v", first)
	}
	if fmt.Sprint(first["stage"]) != "advancing" {
		t.Fatalf("stage: %v", first["stage"])
	}

	resp, _ = doReq(t, http.MethodPost, srv.URL+"/api/v1/rankings", testToken, "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST rankings: %d", resp.StatusCode)
	}
}
