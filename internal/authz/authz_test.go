package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/contentd/internal/domain"
)

// TestRuleAuthorizerPages tests the page visibility rules per role
func TestRuleAuthorizerPages(t *testing.T) {
	auth := NewRuleAuthorizer()
	public := &domain.Page{ID: 1, Name: "Home"}
	restricted := &domain.Page{ID: 2, Name: "Internal", Restricted: true}

	member := domain.Identity{Subject: "alice", Roles: []string{domain.RoleMember}}
	editor := domain.Identity{Subject: "erin", Roles: []string{domain.RoleEditor}}

	assert.True(t, auth.Can(domain.Anonymous(), domain.ActionRead, public))
	assert.False(t, auth.Can(domain.Anonymous(), domain.ActionRead, restricted))
	assert.True(t, auth.Can(member, domain.ActionRead, restricted))
	assert.True(t, auth.Can(editor, domain.ActionRead, restricted))
}

// TestRuleAuthorizerElements tests the element visibility rules per role
func TestRuleAuthorizerElements(t *testing.T) {
	auth := NewRuleAuthorizer()
	public := &domain.Element{ID: 1, Name: "header", Public: true}
	hidden := &domain.Element{ID: 2, Name: "draft", Public: false}

	member := domain.Identity{Subject: "alice", Roles: []string{domain.RoleMember}}
	author := domain.Identity{Subject: "bob", Roles: []string{domain.RoleAuthor}}
	admin := domain.Identity{Subject: "root", Roles: []string{domain.RoleAdmin}}

	assert.True(t, auth.Can(domain.Anonymous(), domain.ActionRead, public))
	assert.False(t, auth.Can(domain.Anonymous(), domain.ActionRead, hidden))
	assert.False(t, auth.Can(member, domain.ActionRead, hidden), "membership alone does not reveal drafts")
	assert.True(t, auth.Can(author, domain.ActionRead, hidden))
	assert.True(t, auth.Can(admin, domain.ActionRead, hidden))
}

// TestRuleAuthorizerDenyByDefault tests unknown resources and actions
func TestRuleAuthorizerDenyByDefault(t *testing.T) {
	auth := NewRuleAuthorizer()
	admin := domain.Identity{Subject: "root", Roles: []string{domain.RoleAdmin}}

	assert.False(t, auth.Can(domain.Anonymous(), domain.ActionRead, "not a resource"))
	assert.False(t, auth.Can(admin, domain.Action("write"), &domain.Page{ID: 1}))
	assert.False(t, auth.Can(domain.Anonymous(), domain.ActionRead, nil))
}

// TestAllowAll tests the permissive predicate used by internal tooling
func TestAllowAll(t *testing.T) {
	auth := AllowAll{}
	assert.True(t, auth.Can(domain.Anonymous(), domain.ActionRead, &domain.Element{Public: false}))
	assert.True(t, auth.Can(domain.Anonymous(), domain.ActionRead, nil))
}
