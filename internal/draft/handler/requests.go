package handler

import (
	"strings"

	"policykernel/internal/draft/service"
	id "policykernel/pkg/domain"
	dErrors "policykernel/pkg/domain-errors"
)

// CreateRequest is the body of POST /v1/drafts.
type CreateRequest struct {
	AssetID        string `json:"assetId"`
	HolderAddress  string `json:"holderAddress"`
	Amount         string `json:"amount"`
	RequestedLimit string `json:"requestedLimit"`

	parsedAssetID id.AssetID
}

func (r *CreateRequest) Validate() error {
	assetID, err := id.ParseAssetID(r.AssetID)
	if err != nil {
		return err
	}
	r.parsedAssetID = assetID
	if strings.TrimSpace(r.HolderAddress) == "" {
		return dErrors.New(dErrors.CodeValidation, "holderAddress is required")
	}
	return nil
}

func (r *CreateRequest) ToService() service.CreateRequest {
	return service.CreateRequest{
		AssetID:        r.parsedAssetID,
		HolderAddress:  r.HolderAddress,
		Amount:         r.Amount,
		RequestedLimit: r.RequestedLimit,
	}
}
