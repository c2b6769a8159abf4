package testutil

import (
	"net/http"

	"policykernel/pkg/requestcontext"
)

// WithPrincipal attaches an authenticated caller to the request context,
// standing in for the capability middleware.
func WithPrincipal(req *http.Request, subject string, caps ...requestcontext.Capability) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), requestcontext.NewPrincipal(subject, caps...))
	return req.WithContext(ctx)
}

// AllCapabilities is a convenience set for handler tests that exercise
// behaviour rather than access control.
var AllCapabilities = []requestcontext.Capability{
	requestcontext.CapManageCompliance,
	requestcontext.CapApproveAuthorizations,
	requestcontext.CapCreateIssuances,
	requestcontext.CapViewCompliance,
	requestcontext.CapPlatformOperator,
}
