// Package intent models the "why" of a tool call separately from the
// call itself and runs it through a chain of validators before the
// policy gates see it.
package intent

import (
	"time"

	"github.com/google/uuid"
)

// Intent is an agent's declared intention to execute a tool action:
// the what (tool/function/arguments) plus the why (justification) and
// the agent's confidence in it.
type Intent struct {
	ID            string
	AgentID       string
	ToolName      string
	FunctionName  string
	Arguments     map[string]any
	Justification string
	Confidence    float64
	Timestamp     time.Time
	Metadata      map[string]any
}

// NewIntent builds an Intent with a fresh id and timestamp. Confidence
// defaults to 1.0 when the agent reports none.
func NewIntent(agentID, toolName, functionName string, arguments map[string]any, justification string, confidence float64) *Intent {
	return &Intent{
		ID:            uuid.NewString(),
		AgentID:       agentID,
		ToolName:      toolName,
		FunctionName:  functionName,
		Arguments:     arguments,
		Justification: justification,
		Confidence:    confidence,
		Timestamp:     time.Now(),
	}
}

// ValidationResult is the outcome of one validator run.
type ValidationResult struct {
	Valid    bool
	Reason   string
	Warnings []string
}

// Validator checks a single aspect of an intent.
type Validator interface {
	// Name identifies the validator in denial reasons.
	Name() string
	// Validate inspects the intent. Invalid results carry a reason.
	Validate(it *Intent) ValidationResult
}

// Pipeline runs validators in order, accumulating warnings. It stops at
// the first invalid result and prefixes the reason with the failing
// validator's name.
type Pipeline struct {
	validators []Validator
}

// NewPipeline creates a pipeline over the given validators.
func NewPipeline(validators ...Validator) *Pipeline {
	return &Pipeline{validators: validators}
}

// Add appends a validator to the chain.
func (p *Pipeline) Add(v Validator) {
	p.validators = append(p.validators, v)
}

// Len returns the number of validators in the chain.
func (p *Pipeline) Len() int { return len(p.validators) }

// Validate runs the chain against the intent.
func (p *Pipeline) Validate(it *Intent) ValidationResult {
	var warnings []string
	for _, v := range p.validators {
		res := v.Validate(it)
		warnings = append(warnings, res.Warnings...)
		if !res.Valid {
			return ValidationResult{
				Valid:    false,
				Reason:   v.Name() + ": " + res.Reason,
				Warnings: warnings,
			}
		}
	}
	return ValidationResult{Valid: true, Warnings: warnings}
}
