package model

type Role string

const (
	RoleFacilitator Role = "facilitator"
	RoleRespondent  Role = "respondent"
	RoleEvaluator   Role = "evaluator"
)

// Participant is one dialogue role. Persona is opaque to the orchestrator and
// only forwarded to the generator.
type Participant struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Role    Role   `json:"role_tag"`
	Persona string `json:"persona,omitempty"`
}

func (p Participant) IsZero() bool { return p.ID == "" }
