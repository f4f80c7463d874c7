package intent

import (
	"fmt"
	"sort"
	"strings"
)

// JustificationValidator requires a meaningful justification string,
// optionally containing tool-specific keywords.
type JustificationValidator struct {
	MinLength int
	// RequiredKeywords maps tool name to keywords; the justification must
	// contain at least one of them (case-insensitive).
	RequiredKeywords map[string][]string
}

// NewJustificationValidator returns a validator with the given minimum
// justification length (default 10).
func NewJustificationValidator(minLength int) *JustificationValidator {
	if minLength <= 0 {
		minLength = 10
	}
	return &JustificationValidator{MinLength: minLength}
}

func (v *JustificationValidator) Name() string { return "JustificationValidator" }

func (v *JustificationValidator) Validate(it *Intent) ValidationResult {
	if it.Justification == "" {
		return ValidationResult{Valid: false, Reason: "missing justification"}
	}
	if len(strings.TrimSpace(it.Justification)) < v.MinLength {
		return ValidationResult{
			Valid:  false,
			Reason: fmt.Sprintf("justification too short (min %d chars)", v.MinLength),
		}
	}

	keywords, ok := v.RequiredKeywords[it.ToolName]
	if ok && len(keywords) > 0 {
		lower := strings.ToLower(it.Justification)
		for _, kw := range keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return ValidationResult{Valid: true}
			}
		}
		return ValidationResult{
			Valid:  false,
			Reason: fmt.Sprintf("justification for %q must contain at least one of: %s", it.ToolName, strings.Join(keywords, ", ")),
		}
	}
	return ValidationResult{Valid: true}
}

// ArgumentSchemaValidator checks tool arguments against a per-tool
// schema. Only required-argument presence is enforced here; full value
// validation belongs to the tool boundary.
type ArgumentSchemaValidator struct {
	// Schemas maps tool name to a JSON-Schema-like document; only the
	// "required" list is consulted.
	Schemas map[string]map[string]any
}

// NewArgumentSchemaValidator returns a validator for the given schemas.
func NewArgumentSchemaValidator(schemas map[string]map[string]any) *ArgumentSchemaValidator {
	return &ArgumentSchemaValidator{Schemas: schemas}
}

func (v *ArgumentSchemaValidator) Name() string { return "ArgumentSchemaValidator" }

func (v *ArgumentSchemaValidator) Validate(it *Intent) ValidationResult {
	schema, ok := v.Schemas[it.ToolName]
	if !ok {
		return ValidationResult{
			Valid:    true,
			Warnings: []string{fmt.Sprintf("no schema defined for tool %q", it.ToolName)},
		}
	}

	var missing []string
	if required, ok := schema["required"].([]string); ok {
		for _, arg := range required {
			if _, present := it.Arguments[arg]; !present {
				missing = append(missing, arg)
			}
		}
	} else if required, ok := schema["required"].([]any); ok {
		// Schemas decoded from JSON carry []any.
		for _, raw := range required {
			arg, ok := raw.(string)
			if !ok {
				continue
			}
			if _, present := it.Arguments[arg]; !present {
				missing = append(missing, arg)
			}
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return ValidationResult{
			Valid:  false,
			Reason: "missing required arguments: " + strings.Join(missing, ", "),
		}
	}
	return ValidationResult{Valid: true}
}
