package movement

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"pharmastock/internal/core/apperror"
)

// Rule is a tenant-configured CEL condition every movement must satisfy.
//
// Variables:
//
//	movement.type, movement.quantity (double), movement.decreasing,
//	movement.reference_type, movement.has_batch
//	batch.status, batch.batch_number, batch.has_expiry,
//	batch.days_to_expiry (int), batch.opened
//
// Example: `!movement.decreasing || movement.quantity <= 500.0`
type Rule struct {
	Name       string `mapstructure:"name"`
	Expression string `mapstructure:"expression"`
	Message    string `mapstructure:"message"`
}

type compiledRule struct {
	Rule
	program cel.Program
}

// RuleSet evaluates compiled rules against a movement.
type RuleSet struct {
	rules []compiledRule
}

// NewRuleSet compiles rules. Every expression must produce a bool.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	env, err := cel.NewEnv(
		cel.Variable("movement", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("batch", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	rs := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		ast, iss := env.Compile(r.Expression)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("compile rule %q: %w", r.Name, iss.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("rule %q must evaluate to bool, got %s", r.Name, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("program rule %q: %w", r.Name, err)
		}
		rs.rules = append(rs.rules, compiledRule{Rule: r, program: prg})
	}
	return rs, nil
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Evaluate runs every rule. The first rule that yields false aborts with
// RULE_VIOLATION; an evaluation error is reported the same way.
func (rs *RuleSet) Evaluate(cmd Command, b *Batch, at time.Time) error {
	if rs.Len() == 0 {
		return nil
	}

	vars := map[string]any{
		"movement": movementVars(cmd),
		"batch":    batchVars(b, at),
	}
	for _, r := range rs.rules {
		out, _, err := r.program.Eval(vars)
		if err != nil {
			return apperror.NewRuleViolation(r.Name, r.Message).WithCause(err)
		}
		if ok, isBool := out.Value().(bool); !isBool || !ok {
			return apperror.NewRuleViolation(r.Name, r.Message)
		}
	}
	return nil
}

func movementVars(cmd Command) map[string]any {
	ref := ""
	if cmd.ReferenceType != nil {
		ref = *cmd.ReferenceType
	}
	return map[string]any{
		"type":           string(cmd.Type),
		"quantity":       cmd.Quantity.InexactFloat64(),
		"decreasing":     cmd.Decreases(),
		"reference_type": ref,
		"has_batch":      cmd.BatchID != nil,
	}
}

func batchVars(b *Batch, at time.Time) map[string]any {
	vars := map[string]any{
		"status":         "",
		"batch_number":   "",
		"has_expiry":     false,
		"days_to_expiry": int64(0),
		"opened":         false,
	}
	if b == nil {
		return vars
	}
	vars["status"] = string(b.Status)
	vars["batch_number"] = b.BatchNumber
	vars["opened"] = b.OpenedAt != nil
	if b.ExpiresAt != nil {
		vars["has_expiry"] = true
		days := StartOfDayUTC(*b.ExpiresAt).Sub(StartOfDayUTC(at)) / (24 * time.Hour)
		vars["days_to_expiry"] = int64(days)
	}
	return vars
}
