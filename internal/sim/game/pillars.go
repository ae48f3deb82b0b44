package game

// Pillar names used in wire payloads, catalogs and impact maps.
const (
	PillarGovernance      = "governance"
	PillarHazardControl   = "hazard_control"
	PillarHealthVigilance = "health_vigilance"
	PillarRestoration     = "restoration"
)

var PillarNames = []string{
	PillarGovernance,
	PillarHazardControl,
	PillarHealthVigilance,
	PillarRestoration,
}

// PillarScores holds the four sub-scores of the occupational-health model.
// All four are always present; values are kept in [0,100].
type PillarScores struct {
	Governance      float64 `json:"governance"`
	HazardControl   float64 `json:"hazard_control"`
	HealthVigilance float64 `json:"health_vigilance"`
	Restoration     float64 `json:"restoration"`
}

func (p PillarScores) Get(name string) float64 {
	switch name {
	case PillarGovernance:
		return p.Governance
	case PillarHazardControl:
		return p.HazardControl
	case PillarHealthVigilance:
		return p.HealthVigilance
	case PillarRestoration:
		return p.Restoration
	}
	return 0
}

func (p *PillarScores) set(name string, v float64) {
	switch name {
	case PillarGovernance:
		p.Governance = v
	case PillarHazardControl:
		p.HazardControl = v
	case PillarHealthVigilance:
		p.HealthVigilance = v
	case PillarRestoration:
		p.Restoration = v
	}
}

func IsPillar(name string) bool {
	switch name {
	case PillarGovernance, PillarHazardControl, PillarHealthVigilance, PillarRestoration:
		return true
	}
	return false
}

func clamp01h(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ApplyImpacts returns a copy with each named delta added and the result
// clamped per pillar. Unknown pillar names are ignored.
func (p PillarScores) ApplyImpacts(impacts map[string]float64) PillarScores {
	out := p
	for name, delta := range impacts {
		if !IsPillar(name) {
			continue
		}
		out.set(name, clamp01h(out.Get(name)+delta))
	}
	return out
}

func (p PillarScores) Clamped() PillarScores {
	return PillarScores{
		Governance:      clamp01h(p.Governance),
		HazardControl:   clamp01h(p.HazardControl),
		HealthVigilance: clamp01h(p.HealthVigilance),
		Restoration:     clamp01h(p.Restoration),
	}
}

func (p PillarScores) AsMap() map[string]float64 {
	return map[string]float64{
		PillarGovernance:      p.Governance,
		PillarHazardControl:   p.HazardControl,
		PillarHealthVigilance: p.HealthVigilance,
		PillarRestoration:     p.Restoration,
	}
}

// PillarsFromMap requires all four pillar keys to be present.
func PillarsFromMap(m map[string]float64) (PillarScores, bool) {
	var p PillarScores
	for _, name := range PillarNames {
		v, ok := m[name]
		if !ok {
			return PillarScores{}, false
		}
		p.set(name, clamp01h(v))
	}
	return p, true
}
