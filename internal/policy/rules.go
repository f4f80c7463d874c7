// Package policy provides the pluggable decision functions the engine
// delegates to: ordered rule matching, time-window restriction, and
// delegation to a remote decision service.
package policy

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/wardenlabs/warden/internal/engine"
)

// Rule is a single ordered governance rule. Tool, Function and AgentID
// are regular expressions matched against the entire candidate string.
// The literal pattern "*" is sugar for match-anything; every other
// pattern is regexp syntax, not shell globbing.
type Rule struct {
	Tool     string `yaml:"tool" json:"tool"`
	Function string `yaml:"function" json:"function"`
	AgentID  string `yaml:"agent_id" json:"agent_id"`
	Action   string `yaml:"action" json:"action"` // "allow" | "deny"
	Reason   string `yaml:"reason" json:"reason"`
}

type compiledRule struct {
	tool     *regexp.Regexp
	function *regexp.Regexp
	agentID  *regexp.Regexp
	allow    bool
	reason   string
}

// RulePolicy evaluates a request against an ordered rule list; the
// first rule whose tool, function and agent patterns all full-match
// wins. With no match, it falls back to the configured default.
type RulePolicy struct {
	rules        []compiledRule
	defaultAllow bool
}

// NewRulePolicy compiles the rules. Pattern compilation errors surface
// here, at load time, not at evaluation time.
func NewRulePolicy(rules []Rule, defaultAllow bool) (*RulePolicy, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		toolRe, err := compileFullMatch(r.Tool)
		if err != nil {
			return nil, fmt.Errorf("rule %d: tool pattern: %w", i, err)
		}
		fnRe, err := compileFullMatch(r.Function)
		if err != nil {
			return nil, fmt.Errorf("rule %d: function pattern: %w", i, err)
		}
		agentRe, err := compileFullMatch(r.AgentID)
		if err != nil {
			return nil, fmt.Errorf("rule %d: agent_id pattern: %w", i, err)
		}
		compiled = append(compiled, compiledRule{
			tool:     toolRe,
			function: fnRe,
			agentID:  agentRe,
			allow:    strings.EqualFold(r.Action, "allow"),
			reason:   r.Reason,
		})
	}
	return &RulePolicy{rules: compiled, defaultAllow: defaultAllow}, nil
}

// compileFullMatch anchors the pattern so it must match the whole
// candidate string. "*" and "" are match-anything sugar.
func compileFullMatch(pattern string) (*regexp.Regexp, error) {
	if pattern == "*" || pattern == "" {
		pattern = ".*"
	}
	return regexp.Compile(`\A(?:` + pattern + `)\z`)
}

func (p *RulePolicy) Evaluate(_ context.Context, req *engine.Request) engine.Decision {
	for _, r := range p.rules {
		if r.tool.MatchString(req.ToolName) &&
			r.function.MatchString(req.FunctionName) &&
			r.agentID.MatchString(req.AgentID) {
			return engine.Decision{
				Allow:  r.allow,
				Reason: "Matched rule: " + r.reason,
			}
		}
	}
	if p.defaultAllow {
		return engine.Decision{Allow: true, Reason: "Default allow (no rule matched)"}
	}
	return engine.Decision{Allow: false, Reason: "Default deny (no rule matched)"}
}
