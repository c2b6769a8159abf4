package handler

import (
	"net/url"
	"strconv"
	"strings"

	"policykernel/internal/compliance/models"
	"policykernel/internal/compliance/service"
	id "policykernel/pkg/domain"
	dErrors "policykernel/pkg/domain-errors"
)

// UpdateStatusRequest is the body of PATCH /v1/compliance/requirements/{id}.
type UpdateStatusRequest struct {
	Status          string   `json:"status"`
	ExceptionReason string   `json:"exceptionReason"`
	Rationale       string   `json:"rationale"`
	EvidenceRefs    []string `json:"evidenceRefs"`

	parsedStatus models.Status
}

func (r *UpdateStatusRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Rationale) > 2000 || len(r.ExceptionReason) > 2000 {
		return dErrors.New(dErrors.CodeValidation, "rationale and exceptionReason must be at most 2000 characters")
	}
	if len(r.EvidenceRefs) > 50 {
		return dErrors.New(dErrors.CodeValidation, "at most 50 evidenceRefs are accepted")
	}
	if strings.TrimSpace(r.Status) == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	st, err := models.ParseStatus(r.Status)
	if err != nil {
		return err
	}
	r.parsedStatus = st
	r.Rationale = strings.TrimSpace(r.Rationale)
	return nil
}

func (r *UpdateStatusRequest) ToService() service.UpdateStatusRequest {
	return service.UpdateStatusRequest{
		Status:          r.parsedStatus,
		ExceptionReason: r.ExceptionReason,
		Rationale:       r.Rationale,
		EvidenceRefs:    r.EvidenceRefs,
	}
}

// AcknowledgeRequest is the body of the platform-acknowledge endpoint. An
// empty reason is passed through so the service reports MissingReason.
type AcknowledgeRequest struct {
	AcknowledgmentReason string `json:"acknowledgmentReason"`
}

func (r *AcknowledgeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.AcknowledgmentReason) > 2000 {
		return dErrors.New(dErrors.CodeValidation, "acknowledgmentReason must be at most 2000 characters")
	}
	return nil
}

// EvaluateRequest is the body of POST /v1/compliance/evaluate.
type EvaluateRequest struct {
	AssetID   string `json:"assetId"`
	ProductID string `json:"productId"`

	parsedAssetID   id.AssetID
	parsedProductID id.ProductID
}

func (r *EvaluateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if strings.TrimSpace(r.AssetID) == "" {
		return dErrors.New(dErrors.CodeValidation, "assetId is required")
	}
	assetID, err := id.ParseAssetID(r.AssetID)
	if err != nil {
		return err
	}
	r.parsedAssetID = assetID
	if strings.TrimSpace(r.ProductID) != "" {
		productID, err := id.ParseProductID(r.ProductID)
		if err != nil {
			return err
		}
		r.parsedProductID = productID
	}
	return nil
}

// parseListQuery reads filter and page from the query string.
func parseListQuery(q url.Values) (models.Filter, models.Page, error) {
	var (
		filter models.Filter
		page   models.Page
	)
	if v := q.Get("assetId"); v != "" {
		assetID, err := id.ParseAssetID(v)
		if err != nil {
			return filter, page, err
		}
		filter.AssetID = &assetID
	}
	if v := q.Get("issuanceId"); v != "" {
		issuanceID, err := id.ParseIssuanceID(v)
		if err != nil {
			return filter, page, err
		}
		filter.IssuanceID = &issuanceID
	}
	if v := q.Get("status"); v != "" {
		st, err := models.ParseStatus(v)
		if err != nil {
			return filter, page, err
		}
		filter.Status = &st
	}
	switch scope := models.Scope(strings.ToLower(q.Get("scope"))); scope {
	case "", models.ScopeAsset:
		filter.Scope = models.ScopeAsset
	case models.ScopeAll:
		filter.Scope = models.ScopeAll
	default:
		return filter, page, dErrors.New(dErrors.CodeValidation, "scope must be asset or all")
	}
	var err error
	if page.Limit, err = intParam(q, "limit"); err != nil {
		return filter, page, err
	}
	if page.Offset, err = intParam(q, "offset"); err != nil {
		return filter, page, err
	}
	if page.Limit > models.MaxPageLimit {
		return filter, page, dErrors.New(dErrors.CodeValidation, "limit must be at most 200")
	}
	return filter, page, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeValidation, name+" must be a non-negative integer")
	}
	return n, nil
}
