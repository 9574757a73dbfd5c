package core

// Participant is a persona-driven speaker identified by a stable id.
type Participant struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	Keywords        []string `json:"keywords" yaml:"keywords"`
	Expertise       []string `json:"expertise" yaml:"expertise"`
	Characteristics []string `json:"characteristics" yaml:"characteristics"`
	Persona         string   `json:"persona" yaml:"persona"`
	// Delegate names the remote delegate tool that may speak for this
	// participant. Empty disables the delegate tier.
	Delegate string `json:"delegate,omitempty" yaml:"delegate,omitempty"`
}

// DisplayName returns Name, falling back to ID.
func (p Participant) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// InterventionStyle controls how eagerly the moderator interjects.
type InterventionStyle string

const (
	InterventionActive  InterventionStyle = "active"
	InterventionPassive InterventionStyle = "passive"
)

// Protocol carries the per-session debate configuration.
type Protocol struct {
	TurnDurationSeconds       int               `json:"turn_duration_seconds" mapstructure:"turn_duration_seconds"`
	MaxTurns                  int               `json:"max_turns" mapstructure:"max_turns"`
	ConsensusThresholdPercent int               `json:"consensus_threshold_percent" mapstructure:"consensus_threshold_percent"`
	InterventionStyle         InterventionStyle `json:"intervention_style" mapstructure:"intervention_style"`
}

// DefaultProtocol is used when a session is created without explicit protocol values.
var DefaultProtocol = Protocol{
	TurnDurationSeconds:       60,
	MaxTurns:                  0,
	ConsensusThresholdPercent: 70,
	InterventionStyle:         InterventionActive,
}

// WithDefaults fills zero fields from DefaultProtocol.
func (p Protocol) WithDefaults() Protocol {
	if p.TurnDurationSeconds <= 0 {
		p.TurnDurationSeconds = DefaultProtocol.TurnDurationSeconds
	}
	if p.ConsensusThresholdPercent <= 0 {
		p.ConsensusThresholdPercent = DefaultProtocol.ConsensusThresholdPercent
	}
	if p.InterventionStyle == "" {
		p.InterventionStyle = DefaultProtocol.InterventionStyle
	}
	if p.MaxTurns < 0 {
		p.MaxTurns = 0
	}
	return p
}
