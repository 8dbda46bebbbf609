// Package authz provides the authorization predicates injected into the
// query and serialization layers. The real permission system lives outside
// this service; these rules mirror its defaults for the read-only surface.
package authz

import "github.com/your-org/contentd/internal/domain"

// RuleAuthorizer is the default predicate:
//   - editors and admins see everything
//   - restricted pages require an authenticated caller
//   - non-public elements require at least author role
//
// Unknown resource types are denied.
type RuleAuthorizer struct{}

// NewRuleAuthorizer creates the default authorizer.
func NewRuleAuthorizer() RuleAuthorizer {
	return RuleAuthorizer{}
}

// Can implements domain.Authorizer.
func (RuleAuthorizer) Can(identity domain.Identity, action domain.Action, resource interface{}) bool {
	if action != domain.ActionRead {
		return false
	}
	if identity.HasRole(domain.RoleEditor) || identity.HasRole(domain.RoleAdmin) {
		return true
	}

	switch res := resource.(type) {
	case *domain.Page:
		if res.Restricted {
			return identity.Authenticated()
		}
		return true
	case *domain.Element:
		if !res.Public {
			return identity.HasRole(domain.RoleAuthor)
		}
		return true
	default:
		return false
	}
}

// AllowAll grants every read. Used in tests and trusted internal tooling.
type AllowAll struct{}

// Can implements domain.Authorizer.
func (AllowAll) Can(domain.Identity, domain.Action, interface{}) bool {
	return true
}

// Compile-time interface checks.
var (
	_ domain.Authorizer = RuleAuthorizer{}
	_ domain.Authorizer = AllowAll{}
)
