package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/contentd/internal/domain"
)

// allowPublic mirrors the production element rule: public elements for
// everyone, the rest only for authors.
var allowPublic = domain.AuthorizerFunc(func(identity domain.Identity, action domain.Action, resource interface{}) bool {
	switch res := resource.(type) {
	case *domain.Page:
		return true
	case *domain.Element:
		return res.Public || identity.HasRole(domain.RoleAuthor)
	default:
		return false
	}
})

func pageFixture() *domain.Page {
	return &domain.Page{ID: 1, Name: "Home", Urlname: "home", LanguageCode: "en"}
}

// treeFixture is a two-branch page:
//
//	header (pos 1)
//	gallery (pos 2)
//	  slide (pos 1)
//	  slide (pos 2)
//	    caption (pos 1)
//	secret (pos 3, not public)
//	  leak (pos 1, public but under a pruned parent)
func treeFixture() []*domain.Element {
	return []*domain.Element{
		{ID: 10, Name: "header", PageID: 1, Position: 1, Public: true},
		{ID: 11, Name: "gallery", PageID: 1, Position: 2, Public: true, Nestable: true},
		{ID: 12, Name: "slide", PageID: 1, ParentElementID: 11, Position: 1, Public: true},
		{ID: 13, Name: "slide", PageID: 1, ParentElementID: 11, Position: 2, Public: true, Nestable: true},
		{ID: 14, Name: "caption", PageID: 1, ParentElementID: 13, Position: 1, Public: true},
		{ID: 15, Name: "secret", PageID: 1, Position: 3, Public: false, Nestable: true},
		{ID: 16, Name: "leak", PageID: 1, ParentElementID: 15, Position: 1, Public: true},
	}
}

// TestBuildPageTreeFull tests full expansion in sibling position order
func TestBuildPageTreeFull(t *testing.T) {
	tree, err := BuildPageTree(pageFixture(), treeFixture(), allowPublic, domain.Anonymous(), TreeOptions{Full: true})
	require.NoError(t, err)

	require.Len(t, tree.Elements, 2)
	assert.Equal(t, "header", tree.Elements[0].Name)
	assert.Equal(t, "gallery", tree.Elements[1].Name)

	gallery := tree.Elements[1]
	require.Len(t, gallery.NestedElements, 2)
	assert.Equal(t, int64(12), gallery.NestedElements[0].ID)
	assert.Equal(t, int64(13), gallery.NestedElements[1].ID)
	require.Len(t, gallery.NestedElements[1].NestedElements, 1)
	assert.Equal(t, "caption", gallery.NestedElements[1].NestedElements[0].Name)
}

// TestBuildPageTreeSubtreePruning tests that pruning a node hides its whole
// subtree, public descendants included
func TestBuildPageTreeSubtreePruning(t *testing.T) {
	tree, err := BuildPageTree(pageFixture(), treeFixture(), allowPublic, domain.Anonymous(), TreeOptions{Full: true})
	require.NoError(t, err)

	var walk func(nodes []*ElementJSON)
	seen := map[int64]bool{}
	walk = func(nodes []*ElementJSON) {
		for _, n := range nodes {
			seen[n.ID] = true
			walk(n.NestedElements)
		}
	}
	walk(tree.Elements)

	assert.False(t, seen[15], "non-public element must be pruned")
	assert.False(t, seen[16], "descendant of a pruned element must not reappear")

	// An author sees the whole tree.
	author := domain.Identity{Subject: "bob", Roles: []string{domain.RoleAuthor}}
	tree, err = BuildPageTree(pageFixture(), treeFixture(), allowPublic, author, TreeOptions{Full: true})
	require.NoError(t, err)
	require.Len(t, tree.Elements, 3)
	assert.Equal(t, "secret", tree.Elements[2].Name)
	require.Len(t, tree.Elements[2].NestedElements, 1)
	assert.Equal(t, "leak", tree.Elements[2].NestedElements[0].Name)
}

// TestBuildPageTreeShallow tests that shallow mode emits the first level only
func TestBuildPageTreeShallow(t *testing.T) {
	tree, err := BuildPageTree(pageFixture(), treeFixture(), allowPublic, domain.Anonymous(), TreeOptions{})
	require.NoError(t, err)

	require.Len(t, tree.Elements, 2)
	for _, el := range tree.Elements {
		assert.Empty(t, el.NestedElements)
	}
	// Own contents still serialize in shallow mode.
	assert.NotNil(t, tree.Elements[0].ContentIDs)
}

// TestBuildPageTreeNameRestriction tests top-level name filtering
func TestBuildPageTreeNameRestriction(t *testing.T) {
	tree, err := BuildPageTree(pageFixture(), treeFixture(), allowPublic, domain.Anonymous(), TreeOptions{
		Full:         true,
		ElementNames: []string{"gallery"},
	})
	require.NoError(t, err)

	require.Len(t, tree.Elements, 1)
	assert.Equal(t, "gallery", tree.Elements[0].Name)
	// The restriction applies to roots only; nesting below them is intact.
	assert.Len(t, tree.Elements[0].NestedElements, 2)
}

// TestBuildPageTreeEmptyPage tests that a page without elements serializes an
// empty slice, not null
func TestBuildPageTreeEmptyPage(t *testing.T) {
	tree, err := BuildPageTree(pageFixture(), nil, allowPublic, domain.Anonymous(), TreeOptions{Full: true})
	require.NoError(t, err)
	assert.NotNil(t, tree.Elements)
	assert.Empty(t, tree.Elements)
}

// TestBuildPageTreeCycleDetection tests that a reachable duplicate stops the
// traversal with a structural error
func TestBuildPageTreeCycleDetection(t *testing.T) {
	corrupt := []*domain.Element{
		{ID: 20, Name: "loop", PageID: 1, Position: 1, Public: true, Nestable: true},
		{ID: 20, Name: "loop", PageID: 1, ParentElementID: 20, Position: 1, Public: true},
	}

	_, err := BuildPageTree(pageFixture(), corrupt, allowPublic, domain.Anonymous(), TreeOptions{Full: true})
	require.Error(t, err)

	var structural *domain.StructuralError
	require.ErrorAs(t, err, &structural)
	assert.Equal(t, int64(1), structural.PageID)
	assert.Equal(t, int64(20), structural.ElementID)
	assert.Contains(t, structural.Reason, "cycle")
}

// TestBuildPageTreeDepthBound tests that pathological nesting is rejected,
// not truncated
func TestBuildPageTreeDepthBound(t *testing.T) {
	deep := []*domain.Element{
		{ID: 1, Name: "level0", PageID: 1, Position: 1, Public: true, Nestable: true},
		{ID: 2, Name: "level1", PageID: 1, ParentElementID: 1, Position: 1, Public: true, Nestable: true},
		{ID: 3, Name: "level2", PageID: 1, ParentElementID: 2, Position: 1, Public: true, Nestable: true},
		{ID: 4, Name: "level3", PageID: 1, ParentElementID: 3, Position: 1, Public: true},
	}

	// Depth 3 fits within a bound of 3.
	_, err := BuildPageTree(pageFixture(), deep, allowPublic, domain.Anonymous(), TreeOptions{Full: true, MaxDepth: 3})
	require.NoError(t, err)

	_, err = BuildPageTree(pageFixture(), deep, allowPublic, domain.Anonymous(), TreeOptions{Full: true, MaxDepth: 2})
	require.Error(t, err)

	var structural *domain.StructuralError
	require.ErrorAs(t, err, &structural)
	assert.Contains(t, structural.Reason, "depth")
}

// TestBuildElementTree tests single-branch expansion
func TestBuildElementTree(t *testing.T) {
	elements := treeFixture()
	gallery := elements[1]

	node, err := BuildElementTree(gallery, elements, allowPublic, domain.Anonymous(), TreeOptions{Full: true})
	require.NoError(t, err)
	assert.Equal(t, int64(11), node.ID)
	require.Len(t, node.NestedElements, 2)
	// Siblings outside the branch never appear.
	assert.NotEqual(t, "header", node.NestedElements[0].Name)
}

// TestBuildElementTreePrunedRoot tests the forbidden outcome when the root
// itself fails authorization
func TestBuildElementTreePrunedRoot(t *testing.T) {
	elements := treeFixture()
	secret := elements[5]

	_, err := BuildElementTree(secret, elements, allowPublic, domain.Anonymous(), TreeOptions{Full: true})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
