package rbac

import (
	"fmt"

	casbin "github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// Action is an operation an actor intends to perform.
type Action string

const (
	ActionCreate       Action = "create"
	ActionRead         Action = "read"
	ActionReadInternal Action = "read_internal"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionComment      Action = "comment"
	ActionConvert      Action = "convert"
	ActionAnnotate     Action = "annotate"
)

// Kind is the type of resource an action targets.
type Kind string

const (
	KindTicket         Kind = "ticket"
	KindIncident       Kind = "incident"
	KindSLARule        Kind = "sla_rule"
	KindAudit          Kind = "audit"
	KindActor          Kind = "actor"
	KindNotification   Kind = "notification"
	KindReconciliation Kind = "reconciliation"
	KindBranch         Kind = "branch"
)

// Scope qualifies which instances of a kind a policy line covers.
type Scope string

const (
	ScopeNone Scope = ""
	// ScopeAny covers every instance.
	ScopeAny Scope = "any"
	// ScopeAssignable covers unassigned instances and those assigned to the actor.
	ScopeAssignable Scope = "assignable"
	// ScopeOwn covers instances the actor owns (ticket creator, incident affected user).
	ScopeOwn Scope = "own"
	// ScopeOwnOpen covers owned instances that are still open.
	ScopeOwnOpen Scope = "own_open"
)

// Resource describes the target of a decision. Zero-valued ownership fields describe the kind as a whole.
type Resource struct {
	Kind       Kind
	OwnerID    string
	AssigneeID *string
	Branch     string
	Open       bool
}

const modelText = `
[request_definition]
r = sub, obj, act, scope

[policy_definition]
p = sub, obj, act, scope

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && (p.act == "*" || r.act == p.act) && r.scope == p.scope
`

// Guard answers allow/deny for an actor, an action and a resource. It holds no per-call state.
type Guard struct {
	enforcer     *casbin.SyncedEnforcer
	branchScoped map[domain.Role]bool
}

// NewGuard loads the default capability table.
func NewGuard() (*Guard, error) {
	return NewGuardWithPolicy(DefaultPolicy())
}

// NewGuardWithPolicy builds a guard from explicit policy lines (role, kind, action, scope).
func NewGuardWithPolicy(policy [][]string) (*Guard, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	if len(policy) > 0 {
		if _, err := e.AddPolicies(policy); err != nil {
			return nil, fmt.Errorf("rbac policy: %w", err)
		}
	}
	return &Guard{
		enforcer:     e,
		branchScoped: map[domain.Role]bool{domain.RoleSupportAgent: true},
	}, nil
}

// Can reports whether actor may perform action on res. It never fails: any error is a deny.
func (g *Guard) Can(actor *domain.Actor, action Action, res Resource) bool {
	if g == nil || !actor.Active() {
		return false
	}
	if g.branchScoped[actor.Role] && !actor.InBranch(res.Branch) {
		return false
	}
	for _, scope := range scopesFor(actor, res) {
		if g.allowed(actor.Role, res.Kind, action, scope) {
			return true
		}
	}
	return false
}

// ListScope returns the broadest scope under which actor may perform action on kind.
// Callers turn it into a store filter.
func (g *Guard) ListScope(actor *domain.Actor, action Action, kind Kind) Scope {
	if g == nil || !actor.Active() {
		return ScopeNone
	}
	for _, scope := range []Scope{ScopeAny, ScopeAssignable, ScopeOwn, ScopeOwnOpen} {
		if g.allowed(actor.Role, kind, action, scope) {
			return scope
		}
	}
	return ScopeNone
}

func (g *Guard) allowed(role domain.Role, kind Kind, action Action, scope Scope) bool {
	ok, err := g.enforcer.Enforce(string(role), string(kind), string(action), string(scope))
	return err == nil && ok
}

func scopesFor(actor *domain.Actor, res Resource) []Scope {
	scopes := []Scope{ScopeAny}
	if res.AssigneeID == nil || *res.AssigneeID == actor.ID {
		scopes = append(scopes, ScopeAssignable)
	}
	if res.OwnerID != "" && res.OwnerID == actor.ID {
		scopes = append(scopes, ScopeOwn)
		if res.Open {
			scopes = append(scopes, ScopeOwnOpen)
		}
	}
	return scopes
}
