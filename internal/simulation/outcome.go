package simulation

import (
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/riskdesk/internal/domain"
)

// Outcome is the result of a finished simulation: either *Succeeded or
// *Failed.
type Outcome interface {
	State() domain.SimulationState
	outcome()
}

// Succeeded is a completed two-phase simulation.
type Succeeded struct {
	RunID     string  `json:"runId"`
	Token     uint64  `json:"token"`
	Threshold float64 `json:"threshold"`

	Result     domain.SimulationResult `json:"result"`
	Decision   domain.Decision         `json:"decision"`
	Verdict    string                  `json:"verdict"`
	Confidence domain.ConfidenceBand   `json:"confidence"`

	Robustness  []domain.RobustnessRow     `json:"robustness"`
	Explanation domain.RenderedExplanation `json:"explanation"`
}

// State returns SUCCEEDED.
func (*Succeeded) State() domain.SimulationState { return domain.StateSucceeded }
func (*Succeeded) outcome()                      {}

// MarshalJSON adds the status discriminator.
func (o *Succeeded) MarshalJSON() ([]byte, error) {
	type plain Succeeded
	return json.Marshal(struct {
		Status domain.SimulationState `json:"status"`
		*plain
	}{o.State(), (*plain)(o)})
}

// Failed is a simulation that stopped in one of its phases. It carries no
// partial result.
type Failed struct {
	RunID     string  `json:"runId"`
	Token     uint64  `json:"token"`
	Threshold float64 `json:"threshold"`
	Phase     string  `json:"phase"`
	Detail    string  `json:"detail"`
}

// State returns FAILED.
func (*Failed) State() domain.SimulationState { return domain.StateFailed }
func (*Failed) outcome()                      {}

// MarshalJSON adds the status discriminator.
func (o *Failed) MarshalJSON() ([]byte, error) {
	type plain Failed
	return json.Marshal(struct {
		Status domain.SimulationState `json:"status"`
		*plain
	}{o.State(), (*plain)(o)})
}

// PhaseError reports which phase of a simulation failed.
type PhaseError struct {
	Phase  string
	Detail string
	Err    error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("simulation %s phase failed: %s", e.Phase, e.Detail)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}
