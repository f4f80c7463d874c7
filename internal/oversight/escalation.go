package oversight

import "fmt"

// EscalationLevel classifies how much human involvement a decision needs.
type EscalationLevel string

const (
	EscalationNone     EscalationLevel = "none"     // high confidence, proceed
	EscalationNotify   EscalationLevel = "notify"   // medium confidence, notify a human
	EscalationReview   EscalationLevel = "review"   // low confidence, human review
	EscalationApproval EscalationLevel = "approval" // very low confidence, human approval
)

// ConfidenceThresholds split [0,1] into escalation tiers.
// Must be strictly descending: High > Medium > Low.
type ConfidenceThresholds struct {
	High   float64
	Medium float64
	Low    float64
}

// DefaultConfidenceThresholds returns the standard tier boundaries.
func DefaultConfidenceThresholds() ConfidenceThresholds {
	return ConfidenceThresholds{High: 0.9, Medium: 0.7, Low: 0.5}
}

// EscalationDecision is the result of classifying a confidence score.
type EscalationDecision struct {
	Level         EscalationLevel
	Confidence    float64
	RequiresHuman bool
	Message       string
}

// EscalationCallback receives the request coordinates of an escalated
// operation.
type EscalationCallback func(agentID, toolName, functionName string, confidence float64, context map[string]any)

// ConfidenceEscalation maps an agent's self-reported confidence to an
// escalation tier and fires the matching callback. It is an advisory
// gate: it classifies, it does not deny.
type ConfidenceEscalation struct {
	thresholds ConfidenceThresholds
	onNotify   EscalationCallback
	onReview   EscalationCallback
	onApproval EscalationCallback
}

// NewConfidenceEscalation validates the thresholds and builds the
// escalator. Callbacks may be nil.
func NewConfidenceEscalation(t ConfidenceThresholds, notify, review, approval EscalationCallback) (*ConfidenceEscalation, error) {
	if !(t.High > t.Medium && t.Medium > t.Low) {
		return nil, fmt.Errorf("confidence thresholds must be strictly descending, got high=%v medium=%v low=%v", t.High, t.Medium, t.Low)
	}
	return &ConfidenceEscalation{
		thresholds: t,
		onNotify:   notify,
		onReview:   review,
		onApproval: approval,
	}, nil
}

// Evaluate classifies the confidence score, invoking the tier's callback
// as a side effect. Confidence outside [0,1] is a validation error.
func (e *ConfidenceEscalation) Evaluate(confidence float64, agentID, toolName, functionName string, context map[string]any) (EscalationDecision, error) {
	if confidence < 0 || confidence > 1 {
		return EscalationDecision{}, fmt.Errorf("confidence must be between 0.0 and 1.0, got %v", confidence)
	}

	switch {
	case confidence >= e.thresholds.High:
		return EscalationDecision{
			Level:      EscalationNone,
			Confidence: confidence,
			Message:    "high confidence, proceeding",
		}, nil
	case confidence >= e.thresholds.Medium:
		if e.onNotify != nil {
			e.onNotify(agentID, toolName, functionName, confidence, context)
		}
		return EscalationDecision{
			Level:      EscalationNotify,
			Confidence: confidence,
			Message:    "medium confidence, human notified",
		}, nil
	case confidence >= e.thresholds.Low:
		if e.onReview != nil {
			e.onReview(agentID, toolName, functionName, confidence, context)
		}
		return EscalationDecision{
			Level:         EscalationReview,
			Confidence:    confidence,
			RequiresHuman: true,
			Message:       "low confidence, human review required",
		}, nil
	default:
		if e.onApproval != nil {
			e.onApproval(agentID, toolName, functionName, confidence, context)
		}
		return EscalationDecision{
			Level:         EscalationApproval,
			Confidence:    confidence,
			RequiresHuman: true,
			Message:       "very low confidence, human approval required",
		}, nil
	}
}
