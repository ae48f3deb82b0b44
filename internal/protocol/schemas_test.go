package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	actSchema := compile("act.schema.json")
	stateSchema := compile("state.schema.json")
	resultSchema := compile("result.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "player_name":"minister",
	  "country_iso":"BRA",
	  "scenario_id":"CLASSIC"
	}`), &hello)
	validate(helloSchema, hello)

	var act any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "cycle":1,
	  "player_id":"P1",
	  "instants":[
	    {"id":"I1","type":"SELECT_DECISION","decision_id":"DEC_INSPECTORATE"},
	    {"id":"I2","type":"ALLOCATE","pillar":"governance","points":20},
	    {"id":"I3","type":"CONFIRM_DECISIONS"}
	  ]
	}`), &act)
	validate(actSchema, act)

	var state any
	_ = json.Unmarshal([]byte(`{
	  "type":"STATE",
	  "protocol_version":"1.0",
	  "session_id":"S1",
	  "cycle":1,
	  "year":2025,
	  "phase":"playing",
	  "pillars":{"governance":55,"hazard_control":48,"health_vigilance":52,"restoration":45},
	  "score":2.0,
	  "stage":"developing",
	  "budget":{"total_points":100,"spent":{"governance":20},"spent_total":20,"carry_over":0,"remaining":80},
	  "offered_decisions":["DEC_INSPECTORATE"],
	  "selected_decisions":[],
	  "active_event":{
	    "event_id":"EVT_HEAT_WAVE",
	    "title":"Record heat wave",
	    "description":"Outdoor crews face a week of extreme heat.",
	    "severity":"moderate",
	    "deadline_sec":45,
	    "choices":[{"choice_id":"EVC_HEAT_MANDATE","label":"Mandate rest rules","cost":10,"impacts":{"hazard_control":1.5}}]
	  }
	}`), &state)
	validate(stateSchema, state)

	var result any
	_ = json.Unmarshal([]byte(`{
	  "pillars":{"governance":56.5,"hazard_control":50,"health_vigilance":53,"restoration":46},
	  "score":2.06,
	  "narrative":"Steady progress on enforcement."
	}`), &result)
	validate(resultSchema, result)
}

func TestSchemas_RejectBadInstant(t *testing.T) {
	p := filepath.Join("..", "..", "schemas", "act.schema.json")
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	var act any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "instants":[{"id":"I1","type":"TELEPORT"}]
	}`), &act)
	if err := s.Validate(act); err == nil {
		t.Fatalf("expected unknown instant type to fail validation")
	}
}
