// Package predicate evaluates requirement applicability expressions.
//
// Language "cel/v1" is a CEL expression over two variables:
//
//	facts  map of the Facts record (issuerCountry, assetClass, targetMarkets,
//	       ledger, distributionType, investorAudience, isCaspInvolved,
//	       transferType)
//	eu     list of EU/EEA ISO country codes
//
// Expressions must yield bool. Programs are cached per expression and run
// under a cost limit; there are no functions with side effects.
package predicate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// LanguageCELv1 is the only supported predicate language version.
const LanguageCELv1 = "cel/v1"

const costLimit = 10000

// ErrUnsupportedLanguage is returned for predicates in unknown languages.
var ErrUnsupportedLanguage = errors.New("unsupported predicate language")

// EEA lists the EU member states plus Iceland, Liechtenstein and Norway.
var EEA = []string{
	"AT", "BE", "BG", "CY", "CZ", "DE", "DK", "EE", "ES", "FI", "FR", "GR",
	"HR", "HU", "IE", "IT", "LT", "LU", "LV", "MT", "NL", "PL", "PT", "RO",
	"SE", "SI", "SK", "IS", "LI", "NO",
}

// Predicate is a versioned applicability expression.
type Predicate struct {
	Language string `json:"language" yaml:"language"`
	Expr     string `json:"expr" yaml:"expr"`
}

// Engine compiles and evaluates predicates. Safe for concurrent use.
type Engine struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewEngine builds the cel/v1 environment.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("facts", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("eu", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &Engine{env: env, cache: make(map[string]cel.Program)}, nil
}

// Check compiles p without evaluating it.
func (e *Engine) Check(p Predicate) error {
	_, err := e.program(p)
	return err
}

// Eval runs p against facts.
func (e *Engine) Eval(p Predicate, facts map[string]any) (bool, error) {
	prg, err := e.program(p)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{
		"facts": facts,
		"eu":    EEA,
	})
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", p.Expr, err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("eval %q: result is %T, not bool", p.Expr, out.Value())
	}
	return val, nil
}

func (e *Engine) program(p Predicate) (cel.Program, error) {
	if p.Language != LanguageCELv1 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, p.Language)
	}

	e.mu.RLock()
	prg, hit := e.cache[p.Expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.cache[p.Expr]; hit {
		return prg, nil
	}
	ast, issues := e.env.Compile(p.Expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", p.Expr, issues.Err())
	}
	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("compile %q: expression yields %s, not bool", p.Expr, out)
	}
	prg, err := e.env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", p.Expr, err)
	}
	e.cache[p.Expr] = prg
	return prg, nil
}
