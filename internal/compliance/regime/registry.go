package regime

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"policykernel/internal/compliance/predicate"
	dErrors "policykernel/pkg/domain-errors"
)

// PredicateChecker compiles predicates at publish time so malformed rules are
// rejected before they can reach an evaluation.
type PredicateChecker interface {
	Check(p predicate.Predicate) error
}

// knownHintPrefixes are the ledger prefixes accepted in hint keys.
var knownHintPrefixes = []string{"xrpl", "evm", "hedera"}

// Registry holds every published regime version.
type Registry struct {
	mu       sync.RWMutex
	checker  PredicateChecker
	versions map[string][]*Regime // ascending by version
	owners   map[string]string    // template id -> regime id
}

// NewRegistry creates an empty registry.
func NewRegistry(checker PredicateChecker) *Registry {
	return &Registry{
		checker:  checker,
		versions: make(map[string][]*Regime),
		owners:   make(map[string]string),
	}
}

// Publish validates and adds a regime version. Publishing an existing
// (id, version) pair is a conflict.
func (r *Registry) Publish(reg *Regime) error {
	if err := r.validate(reg); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.versions[reg.ID] {
		if existing.Version.Equal(reg.Version) {
			return dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("regime %s version %s is already published", reg.ID, reg.Version))
		}
	}
	for _, t := range reg.Templates {
		if owner, ok := r.owners[t.ID]; ok && owner != reg.ID {
			return dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("template %s already belongs to regime %s", t.ID, owner))
		}
	}

	for i := range reg.Templates {
		reg.Templates[i].RegimeID = reg.ID
		reg.Templates[i].RegimeVersion = reg.Version.String()
		r.owners[reg.Templates[i].ID] = reg.ID
	}
	list := append(r.versions[reg.ID], reg)
	sort.Slice(list, func(i, j int) bool { return list[i].Version.LessThan(list[j].Version) })
	r.versions[reg.ID] = list
	return nil
}

// Active returns, per regime id, the highest version in effect at the given
// time, ordered by regime id.
func (r *Registry) Active(at time.Time) []*Regime {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Regime
	for _, regimeID := range sortedKeys(r.versions) {
		list := r.versions[regimeID]
		for i := len(list) - 1; i >= 0; i-- {
			if !list[i].EffectiveFrom.After(at) {
				out = append(out, list[i])
				break
			}
		}
	}
	return out
}

// Get returns a specific regime version.
func (r *Registry) Get(ref Ref) (*Regime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, reg := range r.versions[ref.ID] {
		if reg.Version.String() == ref.Version || reg.Version.Original() == ref.Version {
			return reg, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("regime %s@%s not found", ref.ID, ref.Version))
}

// Template looks up a template within a specific regime version.
func (r *Registry) Template(ref Ref, templateID string) (*RequirementTemplate, error) {
	reg, err := r.Get(ref)
	if err != nil {
		return nil, err
	}
	for i := range reg.Templates {
		if reg.Templates[i].ID == templateID {
			return &reg.Templates[i], nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound,
		fmt.Sprintf("template %s not found in %s@%s", templateID, ref.ID, ref.Version))
}

// List returns every published version ordered by id then version.
func (r *Registry) List() []*Regime {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Regime
	for _, regimeID := range sortedKeys(r.versions) {
		out = append(out, r.versions[regimeID]...)
	}
	return out
}

func (r *Registry) validate(reg *Regime) error {
	if reg == nil || strings.TrimSpace(reg.ID) == "" {
		return dErrors.New(dErrors.CodeValidation, "regime id is required")
	}
	if reg.Version == nil {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("regime %s: version is required", reg.ID))
	}
	if reg.EffectiveFrom.IsZero() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("regime %s: effectiveFrom is required", reg.ID))
	}
	seen := make(map[string]bool, len(reg.Templates))
	for _, t := range reg.Templates {
		if strings.TrimSpace(t.ID) == "" {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("regime %s: template id is required", reg.ID))
		}
		if seen[t.ID] {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("regime %s: duplicate template %s", reg.ID, t.ID))
		}
		seen[t.ID] = true
		if r.checker != nil {
			if err := r.checker.Check(t.Applicability); err != nil {
				return dErrors.Wrap(err, dErrors.CodeValidation,
					fmt.Sprintf("template %s: invalid applicability predicate", t.ID))
			}
		}
		for key := range t.EnforcementHints {
			prefix, _, ok := splitHint(key)
			if !ok || !slices.Contains(knownHintPrefixes, prefix) {
				return dErrors.New(dErrors.CodeValidation,
					fmt.Sprintf("template %s: malformed enforcement hint %q", t.ID, key))
			}
		}
	}
	return nil
}

func splitHint(key string) (prefix, capability string, ok bool) {
	prefix, capability, ok = strings.Cut(key, ".")
	return prefix, capability, ok && prefix != "" && capability != ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
