package models

import (
	"regexp"
	"strings"

	id "policykernel/pkg/domain"
	dErrors "policykernel/pkg/domain-errors"
)

var (
	// XRPL classic addresses use the ripple base58 alphabet (no 0, O, I, l).
	xrplAddress   = regexp.MustCompile(`^r[1-9A-HJ-NP-Za-km-z]{24,34}$`)
	evmAddress    = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	hederaAccount = regexp.MustCompile(`^0\.0\.[0-9]+$`)
	limitPattern  = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
)

// NormalizeAddress validates a holder or issuer address for a ledger. EVM
// addresses are lower-cased so the (asset, holder) key is stable.
func NormalizeAddress(ledger id.Ledger, addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	var ok bool
	switch ledger {
	case id.LedgerXRPL:
		ok = xrplAddress.MatchString(addr)
	case id.LedgerEVM:
		ok = evmAddress.MatchString(addr)
		addr = strings.ToLower(addr)
	case id.LedgerHedera:
		ok = hederaAccount.MatchString(addr)
	}
	if !ok {
		return "", dErrors.New(dErrors.CodeValidation, "invalid "+string(ledger)+" address: "+addr)
	}
	return addr, nil
}

// ValidateLimit accepts a non-negative decimal amount.
func ValidateLimit(limit string) error {
	if !limitPattern.MatchString(strings.TrimSpace(limit)) {
		return dErrors.New(dErrors.CodeValidation, "limit must be a non-negative decimal")
	}
	return nil
}

// CanonicalHolder applies the same case folding as NormalizeAddress without
// knowing the ledger, for lookups keyed by a path parameter.
func CanonicalHolder(addr string) string {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X") {
		return strings.ToLower(addr)
	}
	return addr
}
