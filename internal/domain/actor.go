package domain

import "time"

// Role enumerates the four actor roles.
type Role string

const (
	RoleEndUser         Role = "end_user"
	RoleSupportAgent    Role = "support_agent"
	RoleSecurityOfficer Role = "security_officer"
	RoleAdministrator   Role = "administrator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleEndUser, RoleSupportAgent, RoleSecurityOfficer, RoleAdministrator:
		return true
	}
	return false
}

// Staff reports whether r belongs to helpdesk staff (anyone except end users).
func (r Role) Staff() bool {
	return r.Valid() && r != RoleEndUser
}

// ActorStatus represents lifecycle states for an actor.
type ActorStatus string

const (
	ActorStatusActive   ActorStatus = "active"
	ActorStatusInactive ActorStatus = "inactive"
)

// Actor is anyone who can call the API.
type Actor struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	Status    ActorStatus
	Branches  []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the actor may act.
func (a *Actor) Active() bool {
	return a != nil && a.Status == ActorStatusActive
}

// InBranch reports whether the actor may act within branch. An empty branch set means unrestricted.
func (a *Actor) InBranch(branch string) bool {
	if a == nil {
		return false
	}
	if len(a.Branches) == 0 || branch == "" {
		return true
	}
	for _, b := range a.Branches {
		if b == branch {
			return true
		}
	}
	return false
}
