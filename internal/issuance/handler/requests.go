package handler

import (
	"strings"

	"policykernel/internal/issuance/service"
	dErrors "policykernel/pkg/domain-errors"
)

// PreflightRequest is the optional body of POST /v1/assets/{assetId}/preflight.
type PreflightRequest struct {
	HolderAddress string `json:"holderAddress"`
}

func (r *PreflightRequest) Validate() error {
	r.HolderAddress = strings.TrimSpace(r.HolderAddress)
	return nil
}

// CreateRequest is the body of POST /v1/assets/{assetId}/issuances.
type CreateRequest struct {
	HolderAddress string `json:"holderAddress"`
	Amount        string `json:"amount"`
}

func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.HolderAddress) == "" {
		return dErrors.New(dErrors.CodeValidation, "holderAddress is required")
	}
	if strings.TrimSpace(r.Amount) == "" {
		return dErrors.New(dErrors.CodeValidation, "amount is required")
	}
	return nil
}

func (r *CreateRequest) ToService() service.CreateRequest {
	return service.CreateRequest{HolderAddress: r.HolderAddress, Amount: r.Amount}
}
