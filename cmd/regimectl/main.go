// regimectl validates regime packs and previews which requirement templates
// apply to a set of asset facts, without touching a running kernel.
//
//	regimectl lint <pack.yaml>
//	regimectl eval [--pack <pack.yaml>] --facts <facts.json> [--at <RFC3339>]
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/spf13/pflag"

	"policykernel/internal/compliance/evaluator"
	"policykernel/internal/compliance/facts"
	"policykernel/internal/compliance/models"
	"policykernel/internal/compliance/predicate"
	"policykernel/internal/compliance/regime"
	id "policykernel/pkg/domain"
)

const usage = `usage:
  regimectl lint <pack.yaml>
  regimectl eval [--pack <pack.yaml>] --facts <facts.json> [--at <RFC3339>]
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("missing command\n" + usage)
	}
	switch args[0] {
	case "lint":
		return lint(args[1:], stdout)
	case "eval":
		return eval(args[1:], stdout)
	case "help", "-h", "--help":
		_, err := io.WriteString(stdout, usage)
		return err
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func lint(args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("lint takes exactly one pack file\n" + usage)
	}
	reg, err := loadRegistry(args[0])
	if err != nil {
		return err
	}
	templates := 0
	for _, r := range reg.List() {
		templates += len(r.Templates)
		fmt.Fprintf(stdout, "%s@%s  %d templates  effective %s\n",
			r.ID, r.Version, len(r.Templates), r.EffectiveFrom.Format(time.DateOnly))
	}
	fmt.Fprintf(stdout, "ok: %d regimes, %d templates\n", len(reg.List()), templates)
	return nil
}

type applicableTemplate struct {
	TemplateID                      string   `json:"templateId"`
	Name                            string   `json:"name"`
	RegimeID                        string   `json:"regimeId"`
	RegimeVersion                   string   `json:"regimeVersion"`
	RequiresPlatformAcknowledgement bool     `json:"requiresPlatformAcknowledgement"`
	EnforcementHints                []string `json:"enforcementHints,omitempty"`
}

type evalOutput struct {
	Facts      facts.Facts          `json:"facts"`
	At         time.Time            `json:"at"`
	Regimes    []regime.Ref         `json:"regimes"`
	Applicable []applicableTemplate `json:"applicable"`
	Counters   models.Counters      `json:"counters"`
}

func eval(args []string, stdout io.Writer) error {
	var packPath, factsPath, atRaw string
	flagSet := pflag.NewFlagSet("regimectl eval", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&packPath, "pack", "", "regime pack YAML (default: embedded packs)")
	flagSet.StringVar(&factsPath, "facts", "", "asset facts JSON")
	flagSet.StringVar(&atRaw, "at", "", "evaluation time, RFC3339 (default: now)")
	if err := flagSet.Parse(args); err != nil {
		return fmt.Errorf("%w\n%s", err, usage)
	}
	if factsPath == "" {
		return errors.New("--facts is required\n" + usage)
	}

	at := time.Now().UTC()
	if atRaw != "" {
		parsed, err := time.Parse(time.RFC3339, atRaw)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		at = parsed.UTC()
	}

	f, err := readFacts(factsPath)
	if err != nil {
		return err
	}
	engine, err := predicate.NewEngine()
	if err != nil {
		return err
	}
	reg, err := newRegistry(engine, packPath)
	if err != nil {
		return err
	}

	res, err := evaluator.New(engine).Evaluate(f, reg.Active(at), nil, id.AssetID{}, at)
	if err != nil {
		return err
	}

	out := evalOutput{
		Facts:      f,
		At:         at,
		Regimes:    res.Regimes,
		Applicable: make([]applicableTemplate, 0, len(res.New)),
		Counters:   res.Counters,
	}
	if out.Regimes == nil {
		out.Regimes = []regime.Ref{}
	}
	for _, inst := range res.New {
		t := res.Templates[inst.TemplateID]
		var hints []string
		for _, key := range slices.Sorted(maps.Keys(t.EnforcementHints)) {
			if t.EnforcementHints[key] {
				hints = append(hints, key)
			}
		}
		out.Applicable = append(out.Applicable, applicableTemplate{
			TemplateID:                      t.ID,
			Name:                            t.Name,
			RegimeID:                        inst.RegimeID,
			RegimeVersion:                   inst.RegimeVersion,
			RequiresPlatformAcknowledgement: t.RequiresPlatformAcknowledgement,
			EnforcementHints:                hints,
		})
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func readFacts(path string) (facts.Facts, error) {
	file, err := os.Open(path)
	if err != nil {
		return facts.Facts{}, fmt.Errorf("open facts: %w", err)
	}
	defer file.Close()

	dec := json.NewDecoder(file)
	dec.DisallowUnknownFields()
	var f facts.Facts
	if err := dec.Decode(&f); err != nil {
		return facts.Facts{}, fmt.Errorf("decode facts: %w", err)
	}
	return f.Normalize(), nil
}

// loadRegistry publishes a single pack file into a fresh registry, which runs
// the same validation the kernel applies at startup.
func loadRegistry(path string) (*regime.Registry, error) {
	engine, err := predicate.NewEngine()
	if err != nil {
		return nil, err
	}
	return newRegistry(engine, path)
}

func newRegistry(engine *predicate.Engine, path string) (*regime.Registry, error) {
	if path == "" {
		return regime.NewDefaultRegistry(engine, "")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open regime pack: %w", err)
	}
	defer file.Close()

	regimes, err := regime.LoadPack(file)
	if err != nil {
		return nil, err
	}
	reg := regime.NewRegistry(engine)
	if err := reg.PublishAll(regimes); err != nil {
		return nil, err
	}
	return reg, nil
}
