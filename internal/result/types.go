package result

import "github.com/signalnine/crucible/internal/score"

// Outcome is the tri-state tag on every evaluation. Regressed and Failed
// both carry zero-valued factors but mean different things: Regressed is a
// measured-as-bad candidate that was stopped early (low fitness), Failed
// is a broken evaluation. Callers must branch on the tag, never on the
// numeric factors.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRegressed Outcome = "regressed"
	OutcomeFailed    Outcome = "failed"
)

// Evaluation is the record returned to the caller and stored per run.
type Evaluation struct {
	ID        string  `json:"id"`
	Candidate string  `json:"candidate"`
	Dataset   string  `json:"dataset"`
	Outcome   Outcome `json:"outcome"`

	score.Factors

	BuildSeconds        float64 `json:"build_seconds"`
	TotalCompileSeconds float64 `json:"total_compile_seconds"`
	TotalExecSeconds    float64 `json:"total_exec_seconds"`
	TotalBinaryBytes    int64   `json:"total_binary_bytes"`
	DurationS           int     `json:"duration_s"`

	RegressedKernel string `json:"regressed_kernel,omitempty"`
	Error           string `json:"error,omitempty"`
}
