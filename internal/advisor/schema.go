package advisor

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"ohisim.ai/internal/sim/game"
)

// ValidatingProvider gates every simulation result through the JSON schema
// before the state machine consumes it. A result that fails the schema is
// reported as malformed, the same as a structurally bad one.
type ValidatingProvider struct {
	inner  game.ResultProvider
	schema *jsonschema.Schema
}

func NewValidatingProvider(inner game.ResultProvider, schemaPath string) (*ValidatingProvider, error) {
	s, err := jsonschema.Compile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("result schema: %w", err)
	}
	return &ValidatingProvider{inner: inner, schema: s}, nil
}

func (p *ValidatingProvider) CycleResult(req game.ResultRequest) (game.SimulationResult, error) {
	res, err := p.inner.CycleResult(req)
	if err != nil {
		return res, err
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return res, fmt.Errorf("%w: %v", game.ErrMalformedResult, err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return res, fmt.Errorf("%w: %v", game.ErrMalformedResult, err)
	}
	if err := p.schema.Validate(v); err != nil {
		return res, fmt.Errorf("%w: %v", game.ErrMalformedResult, err)
	}
	return res, nil
}
