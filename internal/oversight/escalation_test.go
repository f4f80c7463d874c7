package oversight

import "testing"

func TestEscalation_Tiers(t *testing.T) {
	esc, err := NewConfidenceEscalation(DefaultConfidenceThresholds(), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewConfidenceEscalation: %v", err)
	}

	cases := []struct {
		confidence float64
		level      EscalationLevel
		human      bool
	}{
		{1.0, EscalationNone, false},
		{0.9, EscalationNone, false},
		{0.89, EscalationNotify, false},
		{0.7, EscalationNotify, false},
		{0.69, EscalationReview, true},
		{0.5, EscalationReview, true},
		{0.49, EscalationApproval, true},
		{0.0, EscalationApproval, true},
	}
	for _, tc := range cases {
		dec, err := esc.Evaluate(tc.confidence, "agent-1", "db", "query", nil)
		if err != nil {
			t.Fatalf("confidence %v: %v", tc.confidence, err)
		}
		if dec.Level != tc.level {
			t.Errorf("confidence %v: expected %s, got %s", tc.confidence, tc.level, dec.Level)
		}
		if dec.RequiresHuman != tc.human {
			t.Errorf("confidence %v: expected RequiresHuman=%v", tc.confidence, tc.human)
		}
	}
}

func TestEscalation_CallbacksFirePerTier(t *testing.T) {
	var notified, reviewed, approvalAsked int
	esc, err := NewConfidenceEscalation(DefaultConfidenceThresholds(),
		func(string, string, string, float64, map[string]any) { notified++ },
		func(string, string, string, float64, map[string]any) { reviewed++ },
		func(string, string, string, float64, map[string]any) { approvalAsked++ },
	)
	if err != nil {
		t.Fatalf("NewConfidenceEscalation: %v", err)
	}

	esc.Evaluate(0.95, "a", "t", "f", nil)
	esc.Evaluate(0.8, "a", "t", "f", nil)
	esc.Evaluate(0.6, "a", "t", "f", nil)
	esc.Evaluate(0.1, "a", "t", "f", nil)

	if notified != 1 || reviewed != 1 || approvalAsked != 1 {
		t.Errorf("expected one callback per tier, got notify=%d review=%d approval=%d",
			notified, reviewed, approvalAsked)
	}
}

func TestEscalation_OutOfRangeConfidence(t *testing.T) {
	esc, _ := NewConfidenceEscalation(DefaultConfidenceThresholds(), nil, nil, nil)

	if _, err := esc.Evaluate(1.5, "a", "t", "f", nil); err == nil {
		t.Error("confidence above 1 should be an error")
	}
	if _, err := esc.Evaluate(-0.1, "a", "t", "f", nil); err == nil {
		t.Error("negative confidence should be an error")
	}
}

func TestEscalation_ThresholdsMustDescend(t *testing.T) {
	if _, err := NewConfidenceEscalation(ConfidenceThresholds{High: 0.5, Medium: 0.7, Low: 0.3}, nil, nil, nil); err == nil {
		t.Error("non-descending thresholds should be rejected")
	}
	if _, err := NewConfidenceEscalation(ConfidenceThresholds{High: 0.7, Medium: 0.7, Low: 0.3}, nil, nil, nil); err == nil {
		t.Error("equal thresholds should be rejected")
	}
}
