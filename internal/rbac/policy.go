package rbac

import "github.com/spec-kit/helpdesk/internal/domain"

// DefaultPolicy returns the capability table as (role, kind, action, scope) lines.
func DefaultPolicy() [][]string {
	admin := string(domain.RoleAdministrator)
	officer := string(domain.RoleSecurityOfficer)
	agent := string(domain.RoleSupportAgent)
	user := string(domain.RoleEndUser)

	lines := [][]string{
		// tickets
		{admin, string(KindTicket), "*", string(ScopeAny)},
		{user, string(KindTicket), string(ActionCreate), string(ScopeAny)},
		{user, string(KindTicket), string(ActionRead), string(ScopeOwn)},
		{user, string(KindTicket), string(ActionComment), string(ScopeOwnOpen)},
		{user, string(KindTicket), string(ActionUpdate), string(ScopeOwnOpen)},
		{user, string(KindTicket), string(ActionDelete), string(ScopeOwnOpen)},

		// incidents
		{admin, string(KindIncident), "*", string(ScopeAny)},
		{officer, string(KindIncident), "*", string(ScopeAny)},
		{user, string(KindIncident), string(ActionRead), string(ScopeOwn)},

		// administration
		{admin, string(KindSLARule), "*", string(ScopeAny)},
		{admin, string(KindAudit), string(ActionRead), string(ScopeAny)},
		{admin, string(KindActor), "*", string(ScopeAny)},
		{admin, string(KindReconciliation), string(ActionRead), string(ScopeAny)},
	}

	for _, action := range []Action{ActionRead, ActionReadInternal, ActionUpdate, ActionDelete, ActionComment, ActionConvert} {
		lines = append(lines,
			[]string{officer, string(KindTicket), string(action), string(ScopeAny)},
			[]string{agent, string(KindTicket), string(action), string(ScopeAssignable)},
		)
	}

	for _, role := range []string{admin, officer, agent, user} {
		lines = append(lines,
			[]string{role, string(KindSLARule), string(ActionRead), string(ScopeAny)},
			[]string{role, string(KindBranch), string(ActionRead), string(ScopeAny)},
			[]string{role, string(KindNotification), string(ActionRead), string(ScopeOwn)},
			[]string{role, string(KindNotification), string(ActionUpdate), string(ScopeOwn)},
		)
	}
	return lines
}
