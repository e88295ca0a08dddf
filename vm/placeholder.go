package vm

import "fmt"

// ---------------------------------------------------------------------------
// Placeholder resolution (§4.4)
// ---------------------------------------------------------------------------

// Relation names the syntactic use that produced an edge from a parent
// placeholder to a child placeholder.
type Relation uint8

const (
	RelationCall Relation = iota
	RelationYield
	RelationSubscript
	RelationKey
	RelationSuperFieldAccess
	RelationFieldAccess
	RelationAssignment
	RelationInstance
	RelationOptional
	RelationUnwrap
)

// SourceLocation pins a placeholder to the place in source that created
// it, so an unresolved placeholder can name its origin in a diagnostic.
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

func (l SourceLocation) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// edge records one (child, relation) pair hanging off a parent
// placeholder; each parent keeps its edges in its own children slice.
type edge struct {
	child    *TypeDef
	relation Relation
}

// PlaceholderDef is the payload of a TypeDef with Kind == TypePlaceholder.
type PlaceholderDef struct {
	Name    *string
	Where   SourceLocation
	parent  *TypeDef // nil until link() sets it; first-writer-wins
	relation Relation
	children []edge
	self    *TypeDef // back-pointer to the owning TypeDef
}

// NewPlaceholder allocates an unresolved TypeDef of kind Placeholder.
func NewPlaceholder(name *string, where SourceLocation) *TypeDef {
	p := &PlaceholderDef{Name: name, Where: where}
	t := &TypeDef{Kind: TypePlaceholder, placeholder: p, payload: &TypeUnion{Placeholder: p}}
	p.self = t
	return t
}

// Link records an edge from parent to child under relation. Both sides
// must be placeholders; self-links and re-links are silently no-ops
// (first edge wins, per §4.4's idempotent-table guarantee — this also
// means the acyclic single-parent rule needs no separate cycle check).
func Link(parent, child *TypeDef, rel Relation) {
	if parent == nil || child == nil {
		return
	}
	if parent.Kind != TypePlaceholder || child.Kind != TypePlaceholder {
		return
	}
	if parent == child {
		return
	}
	cp := child.placeholder
	if cp.parent != nil {
		return
	}
	cp.parent = parent
	cp.relation = rel
	parent.placeholder.children = append(parent.placeholder.children, edge{child: child, relation: rel})
}

// chainTerminates verifies invariant 4 of §8: the parent chain from any
// placeholder is finite. Exposed for tests; resolution itself never
// needs to walk upward, only downward through children.
func chainTerminates(t *TypeDef) bool {
	seen := make(map[*TypeDef]bool)
	for t != nil && t.Kind == TypePlaceholder {
		if seen[t] {
			return false
		}
		seen[t] = true
		t = t.placeholder.parent
	}
	return true
}

// Resolve substitutes `actual` for the placeholder `p`, then walks every
// child transitively and re-evaluates its relation against the newly
// known type (§4.4). Resolve is a no-op if p is not a placeholder or is
// already resolved.
func Resolve(p *TypeDef, actual *TypeDef) {
	if p == nil || p.Kind != TypePlaceholder || p.substituted != nil {
		return
	}
	p.substituted = actual
	resolveChildren(p.placeholder, actual)
}

func resolveChildren(pd *PlaceholderDef, actual *TypeDef) {
	for _, e := range pd.children {
		child := e.child
		if child.substituted != nil {
			continue
		}
		resolved := deriveChildType(actual, e.relation)
		if resolved == nil {
			continue
		}
		child.substituted = resolved
		if child.placeholder != nil {
			resolveChildren(child.placeholder, resolved)
		}
	}
}

// deriveChildType computes what a child placeholder becomes once its
// parent's true type is known, per the relation that created the edge.
func deriveChildType(parent *TypeDef, rel Relation) *TypeDef {
	parent = parent.resolved()
	switch rel {
	case RelationCall:
		if parent.Kind == TypeFunction && parent.payload != nil && parent.payload.Function != nil {
			return parent.payload.Function.Return
		}
	case RelationYield:
		if parent.Kind == TypeFunction && parent.payload != nil && parent.payload.Function != nil {
			return parent.payload.Function.Yield
		}
	case RelationSubscript:
		if parent.Kind == TypeList {
			return parent.payloadItem()
		}
	case RelationKey:
		if parent.Kind == TypeMap {
			return parent.payloadMapValue()
		}
	case RelationFieldAccess, RelationSuperFieldAccess:
		// Field types live on the ObjectDef; the parser resolves the
		// concrete field TypeDef and calls Resolve directly for these,
		// since the field name is only known to the caller, not to this
		// generic derivation step.
		return nil
	case RelationAssignment:
		return parent
	case RelationInstance:
		if parent.Kind == TypeObject || parent.Kind == TypeEnum {
			return parent
		}
	case RelationOptional:
		return parent.cloneOptional()
	case RelationUnwrap:
		unwrapped := *parent
		unwrapped.Optional = false
		return &unwrapped
	}
	return nil
}

// Unresolved reports whether p still has no substitution, for the
// end-of-compilation sweep that turns a dangling placeholder into a
// compile error naming its SourceLocation (§4.4).
func Unresolved(p *TypeDef) bool {
	return p.Kind == TypePlaceholder && p.substituted == nil
}

// ErrUnresolvedPlaceholder is the compile-time error for a placeholder
// that never received its true type.
type ErrUnresolvedPlaceholder struct {
	Name  *string
	Where SourceLocation
}

func (e *ErrUnresolvedPlaceholder) Error() string {
	name := "<anonymous>"
	if e.Name != nil {
		name = *e.Name
	}
	return fmt.Sprintf("%s: unresolved placeholder %q", e.Where, name)
}
