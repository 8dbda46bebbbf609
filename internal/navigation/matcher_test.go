package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestEntryActiveDirectMatch tests controller/action matching, normalization
// included
func TestEntryActiveDirectMatch(t *testing.T) {
	entry := Entry{Name: "Pages", Controller: "/admin/pages", Action: "index"}

	assert.True(t, entry.Active(RequestContext{Controller: "/admin/pages", Action: "index"}))
	assert.True(t, entry.Active(RequestContext{Controller: "admin/pages", Action: "index"}),
		"leading slash must not matter")
	assert.False(t, entry.Active(RequestContext{Controller: "/admin/pages", Action: "edit"}))
	assert.False(t, entry.Active(RequestContext{Controller: "/admin/users", Action: "index"}))
}

// TestEntryActiveNestedActions tests that follow-up actions keep the entry
// active
func TestEntryActiveNestedActions(t *testing.T) {
	entry := Entry{
		Name:          "Products",
		Controller:    "/shop/products",
		Action:        "index",
		NestedActions: []string{"edit", "update"},
	}

	assert.True(t, entry.Active(RequestContext{Controller: "/shop/products", Action: "index"}))
	assert.True(t, entry.Active(RequestContext{Controller: "/shop/products", Action: "edit"}))
	assert.True(t, entry.Active(RequestContext{Controller: "/shop/products", Action: "update"}))
	assert.False(t, entry.Active(RequestContext{Controller: "/shop/products", Action: "destroy"}))
}

// TestEntryActiveThroughSub tests that a matching sub entry activates its
// parent
func TestEntryActiveThroughSub(t *testing.T) {
	entry := Entry{
		Name:       "Settings",
		Controller: "/admin/settings",
		Action:     "index",
		Sub: []Entry{
			{Name: "Languages", Controller: "/admin/languages", Action: "index", NestedActions: []string{"edit"}},
		},
	}

	assert.True(t, entry.Active(RequestContext{Controller: "/admin/languages", Action: "index"}))
	assert.True(t, entry.Active(RequestContext{Controller: "/admin/languages", Action: "edit"}))
	assert.False(t, entry.Active(RequestContext{Controller: "/admin/languages", Action: "destroy"}))

	// Only direct sub entries count: the rule does not recurse further down.
	deep := Entry{
		Name:       "Top",
		Controller: "/top",
		Action:     "index",
		Sub: []Entry{
			{Name: "Mid", Controller: "/mid", Action: "index", Sub: []Entry{
				{Name: "Leaf", Controller: "/leaf", Action: "index"},
			}},
		},
	}
	assert.False(t, deep.Active(RequestContext{Controller: "/leaf", Action: "index"}))
}

// TestEntryActiveThroughNested tests the nested sibling group rule
func TestEntryActiveThroughNested(t *testing.T) {
	entry := Entry{
		Name:       "Library",
		Controller: "/admin/library",
		Action:     "index",
		Nested: []Entry{
			{Name: "Pictures", Controller: "/admin/pictures", Action: "index"},
			{Name: "Files", Controller: "/admin/files", Action: "index"},
		},
	}

	assert.True(t, entry.Active(RequestContext{Controller: "/admin/pictures", Action: "index"}))
	assert.True(t, entry.Active(RequestContext{Controller: "/admin/files", Action: "index"}))
	assert.False(t, entry.Active(RequestContext{Controller: "/admin/attachments", Action: "index"}))
}
