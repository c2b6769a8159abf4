package regime

import (
	"strings"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"policykernel/internal/compliance/predicate"
	dErrors "policykernel/pkg/domain-errors"
)

type RegistrySuite struct {
	suite.Suite
	engine *predicate.Engine
	reg    *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	engine, err := predicate.NewEngine()
	s.Require().NoError(err)
	s.engine = engine
	s.reg = NewRegistry(engine)
}

func regimeAt(id, version string, from time.Time, templates ...RequirementTemplate) *Regime {
	return &Regime{
		ID:            id,
		Name:          strings.ToUpper(id),
		Version:       semver.MustParse(version),
		Jurisdiction:  "EU",
		EffectiveFrom: from,
		Templates:     templates,
	}
}

func tmpl(id, expr string) RequirementTemplate {
	return RequirementTemplate{
		ID:            id,
		Name:          id,
		Applicability: predicate.Predicate{Language: predicate.LanguageCELv1, Expr: expr},
	}
}

var (
	jan = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	jun = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
)

// =============================================================================
// Publish
// =============================================================================

func (s *RegistrySuite) TestPublish() {
	s.Run("stamps regime identity on templates", func() {
		s.Require().NoError(s.reg.Publish(regimeAt("mica", "1.0.0", jan, tmpl("t1", "true"))))
		t, err := s.reg.Template(Ref{ID: "mica", Version: "1.0.0"}, "t1")
		s.Require().NoError(err)
		s.Equal("mica", t.RegimeID)
		s.Equal("1.0.0", t.RegimeVersion)
	})

	s.Run("same version twice is a conflict", func() {
		err := s.reg.Publish(regimeAt("mica", "1.0.0", jan))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("template owned by another regime is a conflict", func() {
		err := s.reg.Publish(regimeAt("other", "1.0.0", jan, tmpl("t1", "true")))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("invalid predicate is rejected", func() {
		err := s.reg.Publish(regimeAt("broken", "1.0.0", jan, tmpl("b1", "facts.assetClass ==")))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, getErr := s.reg.Get(Ref{ID: "broken", Version: "1.0.0"})
		s.Error(getErr)
	})

	s.Run("duplicate template id within a version", func() {
		err := s.reg.Publish(regimeAt("dup", "1.0.0", jan, tmpl("d1", "true"), tmpl("d1", "false")))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("malformed hint key", func() {
		t := tmpl("h1", "true")
		t.EnforcementHints = map[string]bool{"solana.freeze": true}
		err := s.reg.Publish(regimeAt("hints", "1.0.0", jan, t))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// Active
// =============================================================================

func (s *RegistrySuite) TestActive() {
	s.Require().NoError(s.reg.Publish(regimeAt("zeta", "1.0.0", jan, tmpl("z1", "true"))))
	s.Require().NoError(s.reg.Publish(regimeAt("alpha", "1.1.0", jun, tmpl("a1", "true"))))
	s.Require().NoError(s.reg.Publish(regimeAt("alpha", "1.0.0", jan, tmpl("a1", "false"))))

	s.Run("highest effective version per regime, sorted by id", func() {
		active := s.reg.Active(jun.Add(time.Hour))
		s.Require().Len(active, 2)
		s.Equal("alpha", active[0].ID)
		s.Equal("1.1.0", active[0].Version.String())
		s.Equal("zeta", active[1].ID)
	})

	s.Run("future versions are not yet active", func() {
		active := s.reg.Active(jan.Add(time.Hour))
		s.Require().Len(active, 2)
		s.Equal("1.0.0", active[0].Version.String())
	})

	s.Run("nothing before the earliest effective date", func() {
		s.Empty(s.reg.Active(jan.Add(-time.Hour)))
	})

	s.Run("list returns every version", func() {
		s.Len(s.reg.List(), 3)
	})
}

func (s *RegistrySuite) TestGetUnknown() {
	_, err := s.reg.Get(Ref{ID: "nope", Version: "1.0.0"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// =============================================================================
// Packs
// =============================================================================

func TestDefaultRegistry(t *testing.T) {
	engine, err := predicate.NewEngine()
	require.NoError(t, err)
	reg, err := NewDefaultRegistry(engine, "")
	require.NoError(t, err)

	mica, err := reg.Get(Ref{ID: "mica", Version: "1.0.0"})
	require.NoError(t, err)
	assert.Len(t, mica.Templates, 10)

	tfr, err := reg.Get(Ref{ID: "eu-travel-rule", Version: "1.0.0"})
	require.NoError(t, err)
	assert.NotEmpty(t, tfr.Templates)

	assert.Len(t, reg.Active(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)), 1)
	assert.Len(t, reg.Active(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)), 2)
}

func TestLoadPackErrors(t *testing.T) {
	_, err := LoadPack(strings.NewReader("regimes:\n  - id: x\n    version: banana\n    effectiveFrom: \"2025-01-01\"\n"))
	assert.ErrorContains(t, err, "invalid version")

	_, err = LoadPack(strings.NewReader("regimes:\n  - id: x\n    version: \"1.0.0\"\n    effectiveFrom: yesterday\n"))
	assert.ErrorContains(t, err, "invalid effectiveFrom")

	_, err = LoadPack(strings.NewReader("regimes:\n  - id: x\n    colour: blue\n"))
	assert.Error(t, err)
}

func TestHintsFor(t *testing.T) {
	tm := RequirementTemplate{EnforcementHints: map[string]bool{
		"xrpl.requireAuth": true,
		"xrpl.clawback":    false,
		"evm.pause":        true,
	}}
	assert.Equal(t, []string{"requireAuth"}, tm.HintsFor("xrpl"))
	assert.Equal(t, []string{"pause"}, tm.HintsFor("evm"))
	assert.Empty(t, tm.HintsFor("hedera"))
}
