// Package facts derives the ephemeral Facts record evaluated by regime
// predicates. Facts are rebuilt from registry rows on every evaluation and
// never stored as a source of truth.
package facts

import (
	"context"
	"errors"
	"strings"

	assetmodels "policykernel/internal/asset/models"
	id "policykernel/pkg/domain"
	dErrors "policykernel/pkg/domain-errors"
	"policykernel/pkg/platform/sentinel"
	pkgstrings "policykernel/pkg/platform/strings"
)

// Facts is the normalized view of an asset used by applicability predicates.
type Facts struct {
	IssuerCountry    string        `json:"issuerCountry"`
	AssetClass       id.AssetClass `json:"assetClass"`
	TargetMarkets    []string      `json:"targetMarkets"`
	Ledger           id.Ledger     `json:"ledger"`
	DistributionType string        `json:"distributionType"`
	InvestorAudience string        `json:"investorAudience"`
	IsCASPInvolved   bool          `json:"isCaspInvolved"`
	TransferType     string        `json:"transferType"`
}

// Build assembles Facts from registry state. Codes are upper-cased and target
// markets de-duplicated and sorted so equal inputs give equal Facts.
func Build(asset assetmodels.Asset, product assetmodels.Product, org assetmodels.Organization) Facts {
	return Facts{
		IssuerCountry:    normCode(org.Country),
		AssetClass:       asset.Class,
		TargetMarkets:    pkgstrings.NormalizeCodes(product.TargetMarkets),
		Ledger:           asset.Ledger,
		DistributionType: normCode(product.DistributionType),
		InvestorAudience: normCode(product.InvestorAudience),
		IsCASPInvolved:   product.CASPInvolved || org.IsCASP,
		TransferType:     normCode(product.TransferType),
	}
}

// Normalize applies the same normalization Build does to externally supplied
// Facts (regimectl, tests).
func (f Facts) Normalize() Facts {
	f.IssuerCountry = normCode(f.IssuerCountry)
	f.AssetClass = id.ParseAssetClass(string(f.AssetClass))
	f.TargetMarkets = pkgstrings.NormalizeCodes(f.TargetMarkets)
	f.Ledger = id.Ledger(normCode(string(f.Ledger)))
	f.DistributionType = normCode(f.DistributionType)
	f.InvestorAudience = normCode(f.InvestorAudience)
	f.TransferType = normCode(f.TransferType)
	return f
}

// Activation exposes the record to the predicate language.
func (f Facts) Activation() map[string]any {
	markets := f.TargetMarkets
	if markets == nil {
		markets = []string{}
	}
	return map[string]any{
		"issuerCountry":    f.IssuerCountry,
		"assetClass":       string(f.AssetClass),
		"targetMarkets":    markets,
		"ledger":           string(f.Ledger),
		"distributionType": f.DistributionType,
		"investorAudience": f.InvestorAudience,
		"isCaspInvolved":   f.IsCASPInvolved,
		"transferType":     f.TransferType,
	}
}

func normCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// AssetSource reads the registry rows facts are built from.
type AssetSource interface {
	Get(ctx context.Context, assetID id.AssetID) (*assetmodels.Record, error)
}

// Builder loads registry state and builds Facts.
type Builder struct {
	assets AssetSource
}

func NewBuilder(assets AssetSource) *Builder {
	return &Builder{assets: assets}
}

// ForAsset returns the current facts together with the record they came from.
func (b *Builder) ForAsset(ctx context.Context, assetID id.AssetID) (Facts, *assetmodels.Record, error) {
	rec, err := b.assets.Get(ctx, assetID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Facts{}, nil, dErrors.New(dErrors.CodeNotFound, "asset not found")
		}
		return Facts{}, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load asset")
	}
	return Build(rec.Asset, rec.Product, rec.Organization), rec, nil
}
