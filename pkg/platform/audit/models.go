package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: requirement
	// status changes, platform acknowledgements, authorization transitions and
	// issuance snapshots. These back the evidence export and need long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine activity (evaluations that changed
	// nothing, draft hand-offs).
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. It stays
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time
	// AssetID scopes the event; every kernel action is per asset.
	AssetID   string
	Subject   string
	Action    string
	Decision  string
	Reason    string
	RequestID string
	// ActorID is the principal that performed the action ("system" for
	// consumers and background re-evaluation).
	ActorID string
	Details map[string]string
}

type AuditEvent string

const (
	EventComplianceEvaluated       AuditEvent = "compliance_evaluated"
	EventRequirementStatusChanged  AuditEvent = "requirement_status_changed"
	EventRequirementAcknowledged   AuditEvent = "requirement_platform_acknowledged"
	EventRequirementsSnapshotted   AuditEvent = "requirements_snapshotted"
	EventAuthorizationRequested    AuditEvent = "authorization_requested"
	EventAuthorizationTransitioned AuditEvent = "authorization_transitioned"
	EventAuthorizationExternal     AuditEvent = "authorization_external_registered"
	EventIssuanceCreated           AuditEvent = "issuance_created"
	EventDraftCreated              AuditEvent = "draft_created"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRequirementStatusChanged:  CategoryCompliance,
	EventRequirementAcknowledged:   CategoryCompliance,
	EventRequirementsSnapshotted:   CategoryCompliance,
	EventAuthorizationRequested:    CategoryCompliance,
	EventAuthorizationTransitioned: CategoryCompliance,
	EventAuthorizationExternal:     CategoryCompliance,
	EventIssuanceCreated:           CategoryCompliance,

	EventComplianceEvaluated: CategoryOperations,
	EventDraftCreated:        CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events. Postgres implementations write to the outbox
// inside the caller's transaction.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Emitter is the port services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
