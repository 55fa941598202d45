package governance

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// AdmissionPolicy evaluates CEL rules against a proposal before it is
// accepted. Every rule must evaluate to true.
//
// Variables available to rules:
//
//	proposal.proposer, proposal.title, proposal.budget (double),
//	proposal.max_agents (int), proposal.deadline_days (int),
//	proposal.capabilities (list of string)
//	treasury (double): the current treasury balance
type AdmissionPolicy struct {
	env      *cel.Env
	prgCache map[string]cel.Program
	mu       sync.RWMutex
	rules    []string
}

// NewAdmissionPolicy compiles every rule up front so a bad policy file fails
// at startup rather than on the first proposal.
func NewAdmissionPolicy(rules []string) (*AdmissionPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("proposal", cel.DynType),
		cel.Variable("treasury", cel.DoubleType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	a := &AdmissionPolicy{
		env:      env,
		prgCache: make(map[string]cel.Program),
		rules:    rules,
	}
	for i, rule := range rules {
		if _, err := a.program(rule); err != nil {
			return nil, fmt.Errorf("admission rule %d: %w", i, err)
		}
	}
	return a, nil
}

// Rules returns the configured rule expressions.
func (a *AdmissionPolicy) Rules() []string {
	return a.rules
}

// Admit returns ErrAdmissionDenied if any rule is false. Evaluation errors
// also deny.
func (a *AdmissionPolicy) Admit(ctx context.Context, proposer, title string, spec MissionSpec, treasury float64) error {
	if a == nil || len(a.rules) == 0 {
		return nil
	}
	input := map[string]any{
		"treasury": treasury,
		"proposal": map[string]any{
			"proposer":      proposer,
			"title":         title,
			"budget":        spec.Budget,
			"max_agents":    int64(spec.MaxAgents),
			"deadline_days": int64(spec.DeadlineDays),
			"capabilities":  spec.RequiredCapabilities,
		},
	}

	for i, rule := range a.rules {
		if err := ctx.Err(); err != nil {
			return err
		}
		allowed, err := a.evaluate(rule, input)
		if err != nil {
			return fmt.Errorf("%w: rule %d (%s): %v", ErrAdmissionDenied, i, rule, err)
		}
		if !allowed {
			return fmt.Errorf("%w: rule %d violated: %s", ErrAdmissionDenied, i, rule)
		}
	}
	return nil
}

func (a *AdmissionPolicy) program(expr string) (cel.Program, error) {
	a.mu.RLock()
	prg, hit := a.prgCache[expr]
	a.mu.RUnlock()
	if hit {
		return prg, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if prg, hit = a.prgCache[expr]; hit {
		return prg, nil
	}
	ast, issues := a.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	p, err := a.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	a.prgCache[expr] = p
	return p, nil
}

func (a *AdmissionPolicy) evaluate(expr string, input map[string]any) (bool, error) {
	prg, err := a.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result not bool")
	}
	return val, nil
}
