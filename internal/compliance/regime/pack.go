package regime

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"policykernel/internal/compliance/predicate"
)

//go:embed packs/*.yaml
var embeddedPacks embed.FS

// DefaultPacks are the embedded packs loaded at startup, in order.
var DefaultPacks = []string{"mica", "travel_rule"}

type packFile struct {
	Regimes []regimeDoc `yaml:"regimes"`
}

type regimeDoc struct {
	ID            string        `yaml:"id"`
	Name          string        `yaml:"name"`
	Version       string        `yaml:"version"`
	Jurisdiction  string        `yaml:"jurisdiction"`
	EffectiveFrom string        `yaml:"effectiveFrom"`
	Templates     []templateDoc `yaml:"templates"`
}

type templateDoc struct {
	ID                              string              `yaml:"id"`
	Name                            string              `yaml:"name"`
	Description                     string              `yaml:"description"`
	Applicability                   predicate.Predicate `yaml:"applicability"`
	EnforcementHints                map[string]bool     `yaml:"enforcementHints"`
	RequiresPlatformAcknowledgement bool                `yaml:"requiresPlatformAcknowledgement"`
}

// LoadPack parses a YAML pack into regimes. It does not publish them.
func LoadPack(r io.Reader) ([]*Regime, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var pf packFile
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("decode regime pack: %w", err)
	}

	out := make([]*Regime, 0, len(pf.Regimes))
	for _, doc := range pf.Regimes {
		v, err := semver.NewVersion(doc.Version)
		if err != nil {
			return nil, fmt.Errorf("regime %s: invalid version %q: %w", doc.ID, doc.Version, err)
		}
		from, err := parseEffective(doc.EffectiveFrom)
		if err != nil {
			return nil, fmt.Errorf("regime %s: invalid effectiveFrom %q: %w", doc.ID, doc.EffectiveFrom, err)
		}
		reg := &Regime{
			ID:            doc.ID,
			Name:          doc.Name,
			Version:       v,
			Jurisdiction:  doc.Jurisdiction,
			EffectiveFrom: from,
			Templates:     make([]RequirementTemplate, 0, len(doc.Templates)),
		}
		for _, t := range doc.Templates {
			reg.Templates = append(reg.Templates, RequirementTemplate{
				ID:                              t.ID,
				Name:                            t.Name,
				Description:                     t.Description,
				Applicability:                   t.Applicability,
				EnforcementHints:                t.EnforcementHints,
				RequiresPlatformAcknowledgement: t.RequiresPlatformAcknowledgement,
			})
		}
		out = append(out, reg)
	}
	return out, nil
}

func parseEffective(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}

// LoadEmbedded parses one of the embedded packs by name.
func LoadEmbedded(name string) ([]*Regime, error) {
	data, err := embeddedPacks.ReadFile("packs/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded pack %s: %w", name, err)
	}
	return LoadPack(bytes.NewReader(data))
}

// PublishAll publishes regimes in order, stopping at the first failure.
func (r *Registry) PublishAll(regimes []*Regime) error {
	for _, reg := range regimes {
		if err := r.Publish(reg); err != nil {
			return err
		}
	}
	return nil
}

// NewDefaultRegistry builds a registry from the embedded packs, or from the
// YAML file at overridePath when set.
func NewDefaultRegistry(checker PredicateChecker, overridePath string) (*Registry, error) {
	reg := NewRegistry(checker)
	if overridePath != "" {
		f, err := os.Open(overridePath)
		if err != nil {
			return nil, fmt.Errorf("open regime pack: %w", err)
		}
		defer f.Close()
		regimes, err := LoadPack(f)
		if err != nil {
			return nil, err
		}
		return reg, reg.PublishAll(regimes)
	}
	for _, name := range DefaultPacks {
		regimes, err := LoadEmbedded(name)
		if err != nil {
			return nil, err
		}
		if err := reg.PublishAll(regimes); err != nil {
			return nil, fmt.Errorf("publish pack %s: %w", name, err)
		}
	}
	return reg, nil
}
