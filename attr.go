/*
Package dynoro – attribute paths.

An Attr names a (possibly nested, dot-separated) attribute and builds the
condition predicates and update actions that reference it. Building is pure;
placeholders are allocated only when the expression is compiled.
*/
package dynoro

// Attr identifies an attribute by its dot-separated path.
type Attr struct {
	// Name is the dot-separated attribute path, e.g. "profile.address.city".
	Name string

	// size marks the derived size(path) pseudo-attribute.
	size bool
}

// A returns the attribute path for name.
func A(name string) *Attr { return &Attr{Name: name} }

// Size returns the size(path) pseudo-attribute, usable as the left side of a
// comparison predicate.
func (a *Attr) Size() *Attr { return &Attr{Name: a.Name, size: true} }

// ─── Condition predicates ─────────────────────────────────────────────────────

func (a *Attr) Eq(value any) Condition { return &compareCond{attr: a, op: "=", value: value} }
func (a *Attr) Ne(value any) Condition { return &compareCond{attr: a, op: "<>", value: value} }
func (a *Attr) Lt(value any) Condition { return &compareCond{attr: a, op: "<", value: value} }
func (a *Attr) Le(value any) Condition { return &compareCond{attr: a, op: "<=", value: value} }
func (a *Attr) Gt(value any) Condition { return &compareCond{attr: a, op: ">", value: value} }
func (a *Attr) Ge(value any) Condition { return &compareCond{attr: a, op: ">=", value: value} }

// Between matches values in the inclusive range [low, high].
func (a *Attr) Between(low, high any) Condition {
	return &betweenCond{attr: a, low: low, high: high}
}

// IsIn matches any of the supplied values.
func (a *Attr) IsIn(values ...any) Condition {
	return &inCond{attr: a, values: values}
}

// BeginsWith matches string attributes starting with prefix.
func (a *Attr) BeginsWith(prefix string) Condition {
	return &funcCond{name: "begins_with", attr: a, value: prefix, hasValue: true}
}

// Contains matches sets/lists containing value, or strings containing a
// substring.
func (a *Attr) Contains(value any) Condition {
	return &funcCond{name: "contains", attr: a, value: value, hasValue: true}
}

// AttributeType matches attributes of the given store type tag (S, N, B, SS,
// NS, BS, M, L, NULL, BOOL).
func (a *Attr) AttributeType(typeTag string) Condition {
	return &funcCond{name: "attribute_type", attr: a, value: typeTag, hasValue: true}
}

// Exists matches items where the attribute is present.
func (a *Attr) Exists() Condition {
	return &funcCond{name: "attribute_exists", attr: a}
}

// NotExists matches items where the attribute is absent.
func (a *Attr) NotExists() Condition {
	return &funcCond{name: "attribute_not_exists", attr: a}
}

// And combines conditions conjunctively.
func And(conds ...Condition) Condition { return &andCond{conds: conds} }

// Or combines conditions disjunctively.
func Or(conds ...Condition) Condition { return &orCond{conds: conds} }

// Not negates a condition.
func Not(cond Condition) Condition { return &notCond{cond: cond} }

// ─── Update actions ───────────────────────────────────────────────────────────

// Set assigns value to the attribute. Value may be a literal, another *Attr,
// or an operand built with IfNotExists / ListAppend / Plus / Minus.
func (a *Attr) Set(value any) UpdateAction {
	return &setAction{path: a, value: value}
}

// SetDefault assigns value only when the attribute does not exist yet.
func (a *Attr) SetDefault(value any) UpdateAction {
	return &setAction{path: a, value: IfNotExists(a, value)}
}

// Append appends values to the list attribute, creating it when absent.
func (a *Attr) Append(values ...any) UpdateAction {
	return &setAction{path: a, value: ListAppend(IfNotExists(a, []any{}), values)}
}

// Remove removes the attribute.
func (a *Attr) Remove() UpdateAction {
	return &removeAction{path: a}
}

// RemoveIndex removes the list element at index. The index must be exactly an
// int; anything else is rejected at compile time.
func (a *Attr) RemoveIndex(index any) UpdateAction {
	return &removeAction{path: a, index: index, hasIndex: true}
}

// Add performs the store's ADD action: arithmetic increment for numbers, set
// union for sets. Lone strings and byte slices coerce to one-element sets.
func (a *Attr) Add(value any) UpdateAction {
	return &addAction{path: a, value: coerceSet(value)}
}

// Delete performs the store's DELETE action: set difference. Lone strings and
// byte slices coerce to one-element sets.
func (a *Attr) Delete(value any) UpdateAction {
	return &deleteAction{path: a, value: coerceSet(value)}
}

// Plus builds the arithmetic sub-expression "path + value".
func (a *Attr) Plus(value any) any {
	return &opNode{op: "+", left: a, right: value}
}

// Minus builds the arithmetic sub-expression "path - value".
func (a *Attr) Minus(value any) any {
	return &opNode{op: "-", left: a, right: value}
}

// IfNotExists builds the if_not_exists(path, fallback) sub-expression.
func IfNotExists(a *Attr, fallback any) any {
	return &fnNode{name: "if_not_exists", args: [2]any{a, fallback}}
}

// ListAppend builds the list_append(first, second) sub-expression. Either
// argument may be an *Attr, a literal list, or a nested sub-expression.
func ListAppend(first, second any) any {
	return &fnNode{name: "list_append", args: [2]any{first, second}}
}
