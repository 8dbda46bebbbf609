package domain

// Identity is the requesting caller as seen by the authorization layer.
// Authentication itself is external; the HTTP layer only maps a presented
// token to a subject and its roles.
type Identity struct {
	Subject string
	Roles   []string
}

// Well-known role names, least to most privileged.
const (
	RoleGuest  = "guest"
	RoleMember = "member"
	RoleAuthor = "author"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

// Anonymous returns the identity used when no credentials are presented.
func Anonymous() Identity {
	return Identity{Subject: "anonymous", Roles: []string{RoleGuest}}
}

// HasRole reports whether the identity carries the given role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Authenticated reports whether the identity is more than a guest.
func (i Identity) Authenticated() bool {
	return i.Subject != "" && i.Subject != "anonymous"
}

// Action names an operation checked against the authorizer.
type Action string

const (
	ActionRead Action = "read"
)

// Authorizer is the injected permission predicate. Resources are passed as
// *Page or *Element; implementations must treat unknown resource types as
// denied.
type Authorizer interface {
	Can(identity Identity, action Action, resource interface{}) bool
}

// AuthorizerFunc adapts a plain function to the Authorizer interface.
type AuthorizerFunc func(identity Identity, action Action, resource interface{}) bool

// Can implements Authorizer.
func (f AuthorizerFunc) Can(identity Identity, action Action, resource interface{}) bool {
	return f(identity, action, resource)
}
