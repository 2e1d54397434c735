package domain

import "time"

// IncidentStatus enumerates the investigation pipeline.
type IncidentStatus string

const (
	IncidentStatusNew           IncidentStatus = "new"
	IncidentStatusTriaged       IncidentStatus = "triaged"
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusContained     IncidentStatus = "contained"
	IncidentStatusRecovered     IncidentStatus = "recovered"
	IncidentStatusClosed        IncidentStatus = "closed"
)

var incidentStatusRank = map[IncidentStatus]int{
	IncidentStatusNew:           0,
	IncidentStatusTriaged:       1,
	IncidentStatusInvestigating: 2,
	IncidentStatusContained:     3,
	IncidentStatusRecovered:     4,
	IncidentStatusClosed:        5,
}

// Valid reports whether s is a known incident status.
func (s IncidentStatus) Valid() bool {
	_, ok := incidentStatusRank[s]
	return ok
}

// CanTransitionTo reports whether next does not move the incident backwards.
func (s IncidentStatus) CanTransitionTo(next IncidentStatus) bool {
	if s == IncidentStatusClosed {
		return false
	}
	from, ok := incidentStatusRank[s]
	if !ok {
		return false
	}
	to, ok := incidentStatusRank[next]
	return ok && to >= from
}

// PublicProgress reports whether entering s is shown to end users.
func (s IncidentStatus) PublicProgress() bool {
	switch s {
	case IncidentStatusTriaged, IncidentStatusInvestigating, IncidentStatusContained,
		IncidentStatusRecovered, IncidentStatusClosed:
		return true
	}
	return false
}

// Severity enumerates incident severity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Impact rates confidentiality, integrity or availability impact.
type Impact string

const (
	ImpactNone   Impact = "none"
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Valid reports whether i is a known impact rating.
func (i Impact) Valid() bool {
	switch i {
	case ImpactNone, ImpactLow, ImpactMedium, ImpactHigh:
		return true
	}
	return false
}

// DetectionMethod records how an incident came to light.
type DetectionMethod string

const (
	DetectionUserReported DetectionMethod = "user_reported"
	DetectionMonitoring   DetectionMethod = "monitoring"
	DetectionAudit        DetectionMethod = "audit"
	DetectionThirdParty   DetectionMethod = "third_party"
)

// Valid reports whether d is a known detection method.
func (d DetectionMethod) Valid() bool {
	switch d {
	case DetectionUserReported, DetectionMonitoring, DetectionAudit, DetectionThirdParty:
		return true
	}
	return false
}

// Incident is a formally tracked security event.
type Incident struct {
	ID                    string
	Number                string
	Branch                string
	Category              string
	Title                 string
	Description           string
	Severity              Severity
	Status                IncidentStatus
	DetectionMethod       DetectionMethod
	ConfidentialityImpact Impact
	IntegrityImpact       Impact
	AvailabilityImpact    Impact
	SourceTicketID        *string
	CreatorID             string
	AssigneeID            *string
	AffectedAsset         string
	AffectedUserID        *string
	RootCause             *string
	ResolutionSummary     *string
	TriagedAt             *time.Time
	ContainedAt           *time.Time
	RecoveredAt           *time.Time
	ClosedAt              *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// StampStatus sets the first-reached timestamp for s. Re-entering never re-stamps.
func (i *Incident) StampStatus(s IncidentStatus, now time.Time) {
	var slot **time.Time
	switch s {
	case IncidentStatusTriaged:
		slot = &i.TriagedAt
	case IncidentStatusContained:
		slot = &i.ContainedAt
	case IncidentStatusRecovered:
		slot = &i.RecoveredAt
	case IncidentStatusClosed:
		slot = &i.ClosedAt
	default:
		return
	}
	if *slot == nil {
		t := now
		*slot = &t
	}
}

// TimelineAction tags a timeline entry.
type TimelineAction string

const (
	TimelineCreated       TimelineAction = "CREATED"
	TimelineStatusChanged TimelineAction = "STATUS_CHANGED"
	TimelineAssigned      TimelineAction = "ASSIGNED"
	TimelineUpdated       TimelineAction = "UPDATED"
	TimelineNote          TimelineAction = "NOTE"
	TimelineConverted     TimelineAction = "CONVERTED_FROM_TICKET"
	TimelineStaffComment  TimelineAction = "STAFF_COMMENT"
	TimelineUserComment   TimelineAction = "USER_COMMENT"
)

// TimelineEntry belongs to exactly one incident.
type TimelineEntry struct {
	ID          string
	IncidentID  string
	AuthorID    string
	Action      TimelineAction
	Description string
	Internal    bool
	CreatedAt   time.Time
}
