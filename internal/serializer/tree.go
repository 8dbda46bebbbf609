package serializer

import (
	"sort"

	"github.com/your-org/contentd/internal/domain"
)

// DefaultMaxDepth bounds tree traversal when the caller supplies no limit.
const DefaultMaxDepth = 64

// TreeOptions controls a tree build.
type TreeOptions struct {
	// Full expands nested elements to unbounded depth (within MaxDepth);
	// otherwise only the first level below the root is emitted.
	Full bool

	// ElementNames restricts which top-level element names are expanded.
	// Empty means no restriction.
	ElementNames []string

	// MaxDepth is the traversal depth bound. Zero selects DefaultMaxDepth.
	// Exceeding it is treated as structural corruption, not truncation.
	MaxDepth int
}

// elementArena indexes a page's flat element slice by ID and by parent,
// with each sibling group kept in position order.
type elementArena struct {
	byID     map[int64]*domain.Element
	children map[int64][]*domain.Element
}

func newElementArena(elements []*domain.Element) *elementArena {
	a := &elementArena{
		byID:     make(map[int64]*domain.Element, len(elements)),
		children: make(map[int64][]*domain.Element),
	}
	for _, el := range elements {
		a.byID[el.ID] = el
		a.children[el.ParentElementID] = append(a.children[el.ParentElementID], el)
	}
	for parentID := range a.children {
		siblings := a.children[parentID]
		sort.SliceStable(siblings, func(i, j int) bool {
			return siblings[i].Position < siblings[j].Position
		})
	}
	return a
}

// frame is one unit of the explicit traversal stack. Keeping the stack on the
// heap instead of recursing means pathological nesting depth cannot exhaust
// goroutine stack space before the depth bound fires.
type frame struct {
	element *domain.Element
	parent  *ElementJSON
	depth   int
}

// BuildPageTree serializes a page and its authorized element tree.
// Traversal is depth-first in sibling position order. Authorization is
// checked per node; a rejected node is pruned together with its whole
// subtree, regardless of what the predicate would say about its descendants.
//
// The page itself is assumed already authorized by the caller (the usecase
// rejects with Forbidden before any elements are loaded).
func BuildPageTree(
	page *domain.Page,
	elements []*domain.Element,
	authorizer domain.Authorizer,
	identity domain.Identity,
	opts TreeOptions,
) (*PageTreeJSON, error) {
	out := &PageTreeJSON{
		PageJSON: *SerializePage(page),
		Elements: []*ElementJSON{},
	}

	arena := newElementArena(elements)
	roots := filterByName(arena.children[0], opts.ElementNames)

	serialized, err := walk(page.ID, arena, roots, authorizer, identity, opts)
	if err != nil {
		return nil, err
	}
	out.Elements = serialized
	return out, nil
}

// BuildElementTree serializes one element and its authorized nested subtree.
// The elements slice must hold the root's page elements (the root included);
// the subtree is assembled from parent references, exactly as for a page.
func BuildElementTree(
	root *domain.Element,
	elements []*domain.Element,
	authorizer domain.Authorizer,
	identity domain.Identity,
	opts TreeOptions,
) (*ElementJSON, error) {
	arena := newElementArena(elements)
	serialized, err := walk(root.PageID, arena, []*domain.Element{root}, authorizer, identity, opts)
	if err != nil {
		return nil, err
	}
	if len(serialized) == 0 {
		// The caller authorizes the root before building; an empty result
		// here means the predicate changed mid-flight. Treat it as pruned.
		return nil, domain.ErrForbidden
	}
	return serialized[0], nil
}

// walk runs the iterative depth-first traversal shared by both tree roots.
func walk(
	pageID int64,
	arena *elementArena,
	roots []*domain.Element,
	authorizer domain.Authorizer,
	identity domain.Identity,
	opts TreeOptions,
) ([]*ElementJSON, error) {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	top := []*ElementJSON{}
	visited := make(map[int64]bool, len(arena.byID))

	// Seed the stack with roots reversed so LIFO pops keep position order.
	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{element: roots[i], depth: 0})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		el := f.element

		if visited[el.ID] {
			return nil, &domain.StructuralError{
				PageID:    pageID,
				ElementID: el.ID,
				Reason:    "cycle detected in nested elements",
			}
		}
		visited[el.ID] = true

		if f.depth > maxDepth {
			return nil, &domain.StructuralError{
				PageID:    pageID,
				ElementID: el.ID,
				Reason:    "nesting depth bound exceeded",
			}
		}

		// Per-node authorization. Children of a rejected node are never
		// pushed, so the prune is subtree-wide by construction.
		if !authorizer.Can(identity, domain.ActionRead, el) {
			continue
		}

		node := SerializeElement(el)
		if f.parent == nil {
			top = append(top, node)
		} else {
			f.parent.NestedElements = append(f.parent.NestedElements, node)
		}

		// Shallow mode stops at the traversal roots: the first level is
		// emitted, nothing below it.
		if !opts.Full {
			continue
		}
		children := arena.children[el.ID]
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{element: children[i], parent: node, depth: f.depth + 1})
		}
	}

	return top, nil
}

// filterByName keeps elements whose name is in the allow list.
func filterByName(elements []*domain.Element, names []string) []*domain.Element {
	if len(names) == 0 {
		return elements
	}
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	kept := make([]*domain.Element, 0, len(elements))
	for _, el := range elements {
		if allowed[el.Name] {
			kept = append(kept, el)
		}
	}
	return kept
}
