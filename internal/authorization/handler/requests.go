package handler

import (
	"strings"

	"policykernel/internal/authorization/models"
	"policykernel/internal/authorization/service"
	id "policykernel/pkg/domain"
	dErrors "policykernel/pkg/domain-errors"
)

// CreateRequest is the body of POST /v1/authorization-requests.
type CreateRequest struct {
	AssetID        string `json:"assetId"`
	HolderAddress  string `json:"holderAddress"`
	RequestedLimit string `json:"requestedLimit"`
	InitiatedBy    string `json:"initiatedBy"`

	parsedAssetID     id.AssetID
	parsedInitiatedBy models.Initiator
}

func (r *CreateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	assetID, err := id.ParseAssetID(r.AssetID)
	if err != nil {
		return err
	}
	r.parsedAssetID = assetID
	if strings.TrimSpace(r.HolderAddress) == "" {
		return dErrors.New(dErrors.CodeValidation, "holderAddress is required")
	}
	if r.InitiatedBy != "" {
		initiator, ok := models.ParseInitiator(strings.ToUpper(strings.TrimSpace(r.InitiatedBy)))
		if !ok {
			return dErrors.New(dErrors.CodeValidation, "initiatedBy must be HOLDER, ISSUER or SYSTEM")
		}
		r.parsedInitiatedBy = initiator
	}
	return nil
}

func (r *CreateRequest) ToService() service.CreateRequest {
	return service.CreateRequest{
		AssetID:        r.parsedAssetID,
		HolderAddress:  r.HolderAddress,
		RequestedLimit: r.RequestedLimit,
		InitiatedBy:    r.parsedInitiatedBy,
	}
}

// FulfillRequest is the body of POST /v1/authorization-requests/fulfill.
type FulfillRequest struct {
	Token  string `json:"token"`
	TxHash string `json:"txHash"`
}

func (r *FulfillRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Token = strings.TrimSpace(r.Token)
	if r.Token == "" {
		return dErrors.New(dErrors.CodeValidation, "token is required")
	}
	if len(r.TxHash) > 128 {
		return dErrors.New(dErrors.CodeValidation, "txHash must be at most 128 characters")
	}
	return nil
}

// RegisterExternalRequest is the body of POST /v1/authorizations/external.
type RegisterExternalRequest struct {
	AssetID        string `json:"assetId"`
	HolderAddress  string `json:"holderAddress"`
	Currency       string `json:"currency"`
	IssuerAddress  string `json:"issuerAddress"`
	Limit          string `json:"limit"`
	ExternalSource string `json:"externalSource"`

	parsedAssetID id.AssetID
}

func (r *RegisterExternalRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	assetID, err := id.ParseAssetID(r.AssetID)
	if err != nil {
		return err
	}
	r.parsedAssetID = assetID
	if strings.TrimSpace(r.Currency) == "" {
		return dErrors.New(dErrors.CodeValidation, "currency is required")
	}
	return nil
}

func (r *RegisterExternalRequest) ToService() service.RegisterExternalRequest {
	return service.RegisterExternalRequest{
		AssetID:        r.parsedAssetID,
		HolderAddress:  r.HolderAddress,
		Currency:       r.Currency,
		IssuerAddress:  r.IssuerAddress,
		Limit:          r.Limit,
		ExternalSource: r.ExternalSource,
	}
}

// LimitRequest is the body of POST /v1/authorizations/{id}/limit.
type LimitRequest struct {
	Limit string `json:"limit"`
}

func (r *LimitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return models.ValidateLimit(r.Limit)
}

const signingModeWallet = "wallet"

// WalletRequest is the body of PUT /v1/assets/{assetId}/authorizations/{holder}.
type WalletRequest struct {
	Params struct {
		Limit string `json:"limit"`
	} `json:"params"`
	Signing struct {
		Mode string `json:"mode"`
	} `json:"signing"`
}

func (r *WalletRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if err := models.ValidateLimit(r.Params.Limit); err != nil {
		return err
	}
	if r.Signing.Mode != "" && r.Signing.Mode != signingModeWallet {
		return dErrors.New(dErrors.CodeValidation, "signing.mode must be wallet")
	}
	return nil
}
