package enforcement

import (
	id "policykernel/pkg/domain"
)

// XRPL TrustSet flags.
const (
	xrplSetfAuth    = 0x00010000
	xrplSetNoRipple = 0x00020000
	xrplSetFreeze   = 0x00100000
	xrplClearFreeze = 0x00200000
)

const (
	xrplTxTrustSet   = "TrustSet"
	hederaAssociate  = "TokenAssociateTransaction"
	hederaGrantKyc   = "TokenGrantKycTransaction"
	hederaFreeze     = "TokenFreezeTransaction"
	hederaUnfreeze   = "TokenUnfreezeTransaction"
	evmContractCall  = "ContractCall"
	evmSetAllowlist  = "setAllowlisted(address,bool)"
	evmFreezeAccount = "freezeAccount(address)"
	evmUnfreeze      = "unfreezeAccount(address)"
)

// TxIntent is an unsigned ledger operation for a wallet or the issuer's
// signing service to submit. The kernel never submits it.
type TxIntent struct {
	Ledger     id.Ledger         `json:"ledger"`
	Type       string            `json:"type"`
	Capability string            `json:"capability,omitempty"`
	Account    string            `json:"account"`
	Flags      uint32            `json:"flags,omitempty"`
	Params     map[string]string `json:"params"`
}

// TrustlineRef names the (asset, holder) pair an operation targets.
type TrustlineRef struct {
	Issuer   string
	Holder   string
	Currency string
	Limit    string
}

// HolderSetupTx is the operation a holder signs to open a trustline. EVM
// assets need no holder-side setup.
func (a Adapter) HolderSetupTx(t TrustlineRef) (TxIntent, bool) {
	switch a.Ledger {
	case id.LedgerXRPL:
		return TxIntent{
			Ledger:     a.Ledger,
			Type:       xrplTxTrustSet,
			Capability: "Trustline Limit",
			Account:    t.Holder,
			Flags:      xrplSetNoRipple,
			Params:     map[string]string{"currency": t.Currency, "issuer": t.Issuer, "value": t.Limit},
		}, true
	case id.LedgerHedera:
		return TxIntent{
			Ledger:  a.Ledger,
			Type:    hederaAssociate,
			Account: t.Holder,
			Params:  map[string]string{"tokenId": t.Currency},
		}, true
	default:
		return TxIntent{}, false
	}
}

// AuthorizationTx is the issuer-side operation granting the holder.
func (a Adapter) AuthorizationTx(t TrustlineRef) (TxIntent, bool) {
	c, ok := a.authorizer()
	if !ok {
		return TxIntent{}, false
	}
	tx := TxIntent{Ledger: a.Ledger, Capability: c.Name, Account: t.Issuer}
	switch a.Ledger {
	case id.LedgerXRPL:
		tx.Type = xrplTxTrustSet
		tx.Flags = xrplSetfAuth
		tx.Params = map[string]string{"currency": t.Currency, "issuer": t.Holder, "value": "0"}
	case id.LedgerEVM:
		tx.Type = evmContractCall
		tx.Params = map[string]string{"function": evmSetAllowlist, "account": t.Holder, "allowed": "true"}
	case id.LedgerHedera:
		tx.Type = hederaGrantKyc
		tx.Params = map[string]string{"tokenId": t.Currency, "accountId": t.Holder}
	default:
		return TxIntent{}, false
	}
	return tx, true
}

// FreezeTx is the issuer-side per-holder freeze or unfreeze.
func (a Adapter) FreezeTx(t TrustlineRef, freeze bool) (TxIntent, bool) {
	c, ok := a.holderFreeze()
	if !ok {
		return TxIntent{}, false
	}
	tx := TxIntent{Ledger: a.Ledger, Capability: c.Name, Account: t.Issuer}
	switch a.Ledger {
	case id.LedgerXRPL:
		tx.Type = xrplTxTrustSet
		tx.Flags = xrplClearFreeze
		if freeze {
			tx.Flags = xrplSetFreeze
		}
		tx.Params = map[string]string{"currency": t.Currency, "issuer": t.Holder, "value": "0"}
	case id.LedgerEVM:
		tx.Type = evmContractCall
		fn := evmUnfreeze
		if freeze {
			fn = evmFreezeAccount
		}
		tx.Params = map[string]string{"function": fn, "account": t.Holder}
	case id.LedgerHedera:
		tx.Type = hederaUnfreeze
		if freeze {
			tx.Type = hederaFreeze
		}
		tx.Params = map[string]string{"tokenId": t.Currency, "accountId": t.Holder}
	default:
		return TxIntent{}, false
	}
	return tx, true
}

// HolderFreezeCapability names the per-holder freeze control, if any.
func (a Adapter) HolderFreezeCapability() (Capability, bool) {
	return a.holderFreeze()
}
