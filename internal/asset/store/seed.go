package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"policykernel/internal/asset/models"
	id "policykernel/pkg/domain"
)

// Writer is implemented by both stores.
type Writer interface {
	Put(ctx context.Context, r *models.Record) error
}

// Demo asset ids are stable so local tooling can reference them.
var (
	DemoARTAssetID   = id.AssetID(uuid.MustParse("6f1c1d3e-7a0b-4c55-9a43-0e7d1b9a0001"))
	DemoOtherAssetID = id.AssetID(uuid.MustParse("6f1c1d3e-7a0b-4c55-9a43-0e7d1b9a0002"))
)

// SeedDemo loads two development assets: an ART on XRPL distributed in
// Germany, and a utility token on EVM outside the EU.
func SeedDemo(ctx context.Context, w Writer, now time.Time) error {
	org := models.Organization{
		ID:      id.OrganizationID(uuid.MustParse("6f1c1d3e-7a0b-4c55-9a43-0e7d1b9a00a0")),
		Name:    "Demo Issuer GmbH",
		Country: "DE",
	}
	records := []*models.Record{
		{
			Organization: org,
			Product: models.Product{
				ID:               id.ProductID(uuid.MustParse("6f1c1d3e-7a0b-4c55-9a43-0e7d1b9a00b1")),
				OrganizationID:   org.ID,
				Name:             "Basket Stable",
				TargetMarkets:    []string{"DE"},
				DistributionType: "PUBLIC_OFFER",
				InvestorAudience: "RETAIL",
				TransferType:     "PEER_TO_PEER",
				UpdatedAt:        now,
			},
			Asset: models.Asset{
				ID:            DemoARTAssetID,
				ProductID:     id.ProductID(uuid.MustParse("6f1c1d3e-7a0b-4c55-9a43-0e7d1b9a00b1")),
				Code:          "BSKT",
				Class:         id.AssetClassART,
				Ledger:        id.LedgerXRPL,
				IssuerAddress: "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh",
				Status:        models.AssetStatusActive,
				UpdatedAt:     now,
			},
		},
		{
			Organization: org,
			Product: models.Product{
				ID:               id.ProductID(uuid.MustParse("6f1c1d3e-7a0b-4c55-9a43-0e7d1b9a00b2")),
				OrganizationID:   org.ID,
				Name:             "Loyalty Points",
				TargetMarkets:    []string{"US"},
				DistributionType: "PRIVATE_PLACEMENT",
				InvestorAudience: "PROFESSIONAL",
				TransferType:     "RESTRICTED",
				UpdatedAt:        now,
			},
			Asset: models.Asset{
				ID:            DemoOtherAssetID,
				ProductID:     id.ProductID(uuid.MustParse("6f1c1d3e-7a0b-4c55-9a43-0e7d1b9a00b2")),
				Code:          "LOYAL",
				Class:         id.AssetClassOther,
				Ledger:        id.LedgerEVM,
				IssuerAddress: "0x52908400098527886E0F7030069857D2E4169EE7",
				Status:        models.AssetStatusDraft,
				UpdatedAt:     now,
			},
		},
	}
	for _, r := range records {
		if err := w.Put(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
