package agents

type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

const DefaultPersona = "You are a helpful AI assistant."

type Agent struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description" yaml:"description"`
	Avatar       string   `json:"avatar" yaml:"avatar"`
	Category     string   `json:"category" yaml:"category"`
	Tier         Tier     `json:"type" yaml:"type"`
	PriceCents   int64    `json:"price,omitempty" yaml:"price"`
	Persona      string   `json:"-" yaml:"system_prompt"`
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
	Active       bool     `json:"active" yaml:"-"`
}

func (a Agent) IsFree() bool { return a.Tier == TierFree }

func (a Agent) clone() Agent {
	a.Capabilities = append([]string(nil), a.Capabilities...)
	return a
}

// Patch holds optional updates; nil fields are left unchanged.
type Patch struct {
	Name         *string   `json:"name"`
	Description  *string   `json:"description"`
	Avatar       *string   `json:"avatar"`
	Category     *string   `json:"category"`
	PriceCents   *int64    `json:"price"`
	Persona      *string   `json:"prompt"`
	Capabilities *[]string `json:"capabilities"`
}

func (p Patch) apply(a *Agent) {
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.Avatar != nil {
		a.Avatar = *p.Avatar
	}
	if p.Category != nil {
		a.Category = *p.Category
	}
	if p.PriceCents != nil {
		a.PriceCents = *p.PriceCents
	}
	if p.Persona != nil {
		a.Persona = *p.Persona
	}
	if p.Capabilities != nil {
		a.Capabilities = append([]string(nil), (*p.Capabilities)...)
	}
}
