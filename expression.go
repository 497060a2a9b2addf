/*
Package dynoro – update expression compiler.

Compiles trees of update actions into the store's wire expression language:
an UpdateExpression string plus ExpressionAttributeNames and
ExpressionAttributeValues placeholder maps.
*/
package dynoro

import (
	"fmt"
	"strings"
)

// variables allocates placeholder names during one compilation pass. The two
// mappings are append-only and keyed by monotonically increasing indices; an
// allocator is never shared across independent compilations.
type variables struct {
	namePrefix  string
	valuePrefix string

	names  map[string]string
	values map[string]any
	nindex int
	vindex int
}

func newVariables(namePrefix, valuePrefix string) *variables {
	return &variables{
		namePrefix:  namePrefix,
		valuePrefix: valuePrefix,
		names:       map[string]string{},
	}
}

// addName allocates a fresh placeholder for one attribute name segment.
func (v *variables) addName(segment string) string {
	key := fmt.Sprintf("%s%d", v.namePrefix, v.nindex)
	v.nindex++
	v.names[key] = segment
	return key
}

// addPath allocates one placeholder per dotted-path segment, joined with a
// literal dot. Each segment is escaped independently because the store treats
// an unescaped dot as a path separator.
func (v *variables) addPath(a *Attr) string {
	segments := strings.Split(a.Name, ".")
	keys := make([]string, len(segments))
	for i, seg := range segments {
		keys[i] = v.addName(seg)
	}
	path := strings.Join(keys, ".")
	if a.size {
		return fmt.Sprintf("size(%s)", path)
	}
	return path
}

// addValue serializes a literal and allocates a fresh value placeholder.
// Duplicates are not deduplicated; repeated literals just repeat.
func (v *variables) addValue(value any) string {
	if v.values == nil {
		v.values = map[string]any{}
	}
	key := fmt.Sprintf("%s%d", v.valuePrefix, v.vindex)
	v.vindex++
	v.values[key] = Serialize(value)
	return key
}

// ─── Update action AST ────────────────────────────────────────────────────────

// UpdateAction is one clause of an update expression, built from an *Attr.
// The type is a closed union; all implementations live in this package.
type UpdateAction interface {
	verb() string
	compile(v *variables) string
}

type setAction struct {
	path  *Attr
	value any
}

func (*setAction) verb() string { return "SET" }

func (a *setAction) compile(v *variables) string {
	return fmt.Sprintf("%s = %s", v.addPath(a.path), compileOperand(v, a.value))
}

type removeAction struct {
	path     *Attr
	index    any
	hasIndex bool
}

func (*removeAction) verb() string { return "REMOVE" }

func (a *removeAction) compile(v *variables) string {
	target := v.addPath(a.path)
	if a.hasIndex {
		// the index was validated to be exactly an int before compilation
		return fmt.Sprintf("%s[%d]", target, a.index)
	}
	return target
}

type addAction struct {
	path  *Attr
	value any
}

func (*addAction) verb() string { return "ADD" }

func (a *addAction) compile(v *variables) string {
	return fmt.Sprintf("%s %s", v.addPath(a.path), v.addValue(a.value))
}

type deleteAction struct {
	path  *Attr
	value any
}

func (*deleteAction) verb() string { return "DELETE" }

func (a *deleteAction) compile(v *variables) string {
	return fmt.Sprintf("%s %s", v.addPath(a.path), v.addValue(a.value))
}

// fnNode is a function sub-expression: if_not_exists or list_append.
type fnNode struct {
	name string
	args [2]any
}

// opNode is an arithmetic sub-expression: left + right or left - right.
type opNode struct {
	op    string
	left  any
	right any
}

// compileOperand compiles a Set right-hand side: an attribute reference, a
// nested sub-expression, or a literal value.
func compileOperand(v *variables, operand any) string {
	switch o := operand.(type) {
	case *Attr:
		return v.addPath(o)
	case *fnNode:
		return fmt.Sprintf("%s(%s, %s)", o.name,
			compileOperand(v, o.args[0]), compileOperand(v, o.args[1]))
	case *opNode:
		return fmt.Sprintf("%s %s %s",
			compileOperand(v, o.left), o.op, compileOperand(v, o.right))
	default:
		return v.addValue(o)
	}
}

// ─── Top-level translation ────────────────────────────────────────────────────

// UpdateExpr is a compiled update expression with its placeholder maps.
// Values is nil when no value placeholders were allocated; the store rejects
// an empty-but-present value map.
type UpdateExpr struct {
	Expression string
	Names      map[string]string
	Values     map[string]any
}

// TranslateUpdates compiles update actions into one composite expression.
// Actions are grouped by verb in encounter order; same-verb fragments join
// with ", " and verb groups join with a single space. All actions share one
// allocator so placeholder numbering is a pure function of traversal order.
func TranslateUpdates(actions ...UpdateAction) (*UpdateExpr, error) {
	if len(actions) == 0 {
		return nil, NewError("update requires at least one action", WithCode(ErrValidation))
	}
	if err := validateActions(actions); err != nil {
		return nil, err
	}

	v := newVariables("#", ":")

	var order []string
	groups := map[string][]string{}
	for _, action := range actions {
		verb := action.verb()
		if _, seen := groups[verb]; !seen {
			order = append(order, verb)
		}
		groups[verb] = append(groups[verb], action.compile(v))
	}

	parts := make([]string, 0, len(order))
	for _, verb := range order {
		parts = append(parts, verb+" "+strings.Join(groups[verb], ", "))
	}

	return &UpdateExpr{
		Expression: strings.Join(parts, " "),
		Names:      v.names,
		Values:     v.values,
	}, nil
}

// validateActions rejects malformed actions before any allocator mutation so
// a failed translation has no partial side effects. A remove index must be
// exactly an int: named integer types can override their string form, which
// would allow expression injection through the inlined literal.
func validateActions(actions []UpdateAction) error {
	for _, action := range actions {
		rm, ok := action.(*removeAction)
		if !ok || !rm.hasIndex {
			continue
		}
		switch rm.index.(type) {
		case int:
		default:
			return NewError("remove index must be an int",
				WithCode(ErrValidation),
				WithContext(map[string]any{"attribute": rm.path.Name, "index": fmt.Sprintf("%v (%T)", rm.index, rm.index)}))
		}
	}
	return nil
}
