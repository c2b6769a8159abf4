package domain

import (
	"strings"

	dErrors "policykernel/pkg/domain-errors"
)

// AssetClass is the regulatory classification of a token.
type AssetClass string

const (
	AssetClassART   AssetClass = "ART"   // asset-referenced token
	AssetClassEMT   AssetClass = "EMT"   // e-money token
	AssetClassOther AssetClass = "OTHER" // everything else
)

// RequiresPlatformAcknowledgement reports whether SATISFIED requirements of
// this class need a second sign-off by the platform operator.
func (c AssetClass) RequiresPlatformAcknowledgement() bool {
	return c == AssetClassART || c == AssetClassEMT
}

// ParseAssetClass normalizes an asset class. Unknown classes map to OTHER.
func ParseAssetClass(s string) AssetClass {
	switch AssetClass(strings.ToUpper(strings.TrimSpace(s))) {
	case AssetClassART:
		return AssetClassART
	case AssetClassEMT:
		return AssetClassEMT
	default:
		return AssetClassOther
	}
}

// Ledger identifies the chain an asset lives on.
type Ledger string

const (
	LedgerXRPL   Ledger = "XRPL"
	LedgerEVM    Ledger = "EVM"
	LedgerHedera Ledger = "HEDERA"
)

// Ledgers lists every supported ledger in display order.
var Ledgers = []Ledger{LedgerXRPL, LedgerEVM, LedgerHedera}

// ParseLedger validates a ledger name.
func ParseLedger(s string) (Ledger, error) {
	l := Ledger(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Ledgers {
		if l == known {
			return l, nil
		}
	}
	return "", dErrors.New(dErrors.CodeValidation, "unsupported ledger: "+s)
}

// HintPrefix is the lower-case prefix ledgers use in enforcement hint keys
// (e.g. "xrpl.requireAuth").
func (l Ledger) HintPrefix() string {
	return strings.ToLower(string(l))
}

func (l Ledger) String() string { return string(l) }
