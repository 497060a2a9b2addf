/*
Package dynoro – condition compiler.

Conditions compile two ways. On the write path (save/delete/update conditions
and transaction condition checks) this package compiles them itself using the
"#n" / ":v" placeholder prefixes, so the resulting maps merge with the update
compiler's "#" / ":" maps without collision. On the read path (query key
conditions, query/scan filters) the same tree is translated to the AWS
expression builders, which own their request exclusively.
*/
package dynoro

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
)

// Condition is a predicate over item attributes, built from an *Attr.
// The type is a closed union; all implementations live in this package.
type Condition interface {
	compile(v *variables) string
}

type compareCond struct {
	attr  *Attr
	op    string
	value any
}

type betweenCond struct {
	attr      *Attr
	low, high any
}

type inCond struct {
	attr   *Attr
	values []any
}

type funcCond struct {
	name     string
	attr     *Attr
	value    any
	hasValue bool
}

type andCond struct{ conds []Condition }
type orCond struct{ conds []Condition }
type notCond struct{ cond Condition }

// ─── Write-path compilation ───────────────────────────────────────────────────

func (c *compareCond) compile(v *variables) string {
	return fmt.Sprintf("%s %s %s", v.addPath(c.attr), c.op, compileOperand(v, c.value))
}

func (c *betweenCond) compile(v *variables) string {
	return fmt.Sprintf("%s BETWEEN %s AND %s",
		v.addPath(c.attr), compileOperand(v, c.low), compileOperand(v, c.high))
}

func (c *inCond) compile(v *variables) string {
	keys := make([]string, len(c.values))
	for i, val := range c.values {
		keys[i] = compileOperand(v, val)
	}
	return fmt.Sprintf("%s IN (%s)", v.addPath(c.attr), strings.Join(keys, ", "))
}

func (c *funcCond) compile(v *variables) string {
	if !c.hasValue {
		return fmt.Sprintf("%s(%s)", c.name, v.addPath(c.attr))
	}
	return fmt.Sprintf("%s(%s, %s)", c.name, v.addPath(c.attr), compileOperand(v, c.value))
}

func (c *andCond) compile(v *variables) string { return compileJunction(v, c.conds, "AND") }
func (c *orCond) compile(v *variables) string  { return compileJunction(v, c.conds, "OR") }

func (c *notCond) compile(v *variables) string {
	return fmt.Sprintf("NOT (%s)", c.cond.compile(v))
}

func compileJunction(v *variables, conds []Condition, word string) string {
	if len(conds) == 1 {
		return conds[0].compile(v)
	}
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = "(" + c.compile(v) + ")"
	}
	return strings.Join(parts, " "+word+" ")
}

// ConditionExpr is a compiled condition expression with its placeholder maps.
type ConditionExpr struct {
	Expression string
	Names      map[string]string
	Values     map[string]any
}

// TranslateCondition compiles a condition for the write path. The "#n" / ":v"
// prefixes are disjoint from the update compiler's by construction, so the
// two placeholder maps merge without runtime collision checks.
func TranslateCondition(cond Condition) (*ConditionExpr, error) {
	if cond == nil {
		return nil, NewError("condition must not be nil", WithCode(ErrValidation))
	}
	if err := validateCondition(cond); err != nil {
		return nil, err
	}
	v := newVariables("#n", ":v")
	text := cond.compile(v)
	return &ConditionExpr{Expression: text, Names: v.names, Values: v.values}, nil
}

// validateCondition rejects malformed condition trees before any allocator
// mutation so a failed translation has no partial side effects. The store
// rejects an IN with an empty operand list and an empty junction group, so
// neither shape may reach it.
func validateCondition(cond Condition) error {
	switch c := cond.(type) {
	case *inCond:
		if len(c.values) == 0 {
			return NewError("IN requires at least one value",
				WithCode(ErrValidation),
				WithContext(map[string]any{"attribute": c.attr.Name}))
		}
	case *andCond:
		return validateJunction(c.conds)
	case *orCond:
		return validateJunction(c.conds)
	case *notCond:
		return validateCondition(c.cond)
	}
	return nil
}

func validateJunction(conds []Condition) error {
	if len(conds) == 0 {
		return NewError("empty condition group", WithCode(ErrValidation))
	}
	for _, c := range conds {
		if err := validateCondition(c); err != nil {
			return err
		}
	}
	return nil
}

// mergeExpressionMaps folds a compiled condition's placeholder maps into an
// operation's own name/value maps.
func mergeExpressionMaps(names map[string]string, values map[string]any, cond *ConditionExpr) (map[string]string, map[string]any) {
	if len(cond.Names) > 0 {
		if names == nil {
			names = map[string]string{}
		}
		for k, v := range cond.Names {
			names[k] = v
		}
	}
	if len(cond.Values) > 0 {
		if values == nil {
			values = map[string]any{}
		}
		for k, v := range cond.Values {
			values[k] = v
		}
	}
	return names, values
}

// ─── Read-path translation ────────────────────────────────────────────────────

// toOperand converts a predicate operand to an expression-builder operand.
func toOperand(v any) expression.OperandBuilder {
	if a, ok := v.(*Attr); ok {
		return expression.Name(a.Name)
	}
	return expression.Value(Serialize(v))
}

// buildFilterCondition translates a condition tree to an AWS expression
// filter/condition builder for query and scan requests.
func buildFilterCondition(cond Condition) (expression.ConditionBuilder, error) {
	var zero expression.ConditionBuilder
	switch c := cond.(type) {
	case *compareCond:
		if c.attr.size {
			return buildSizeCompare(c)
		}
		name := expression.Name(c.attr.Name)
		operand := toOperand(c.value)
		switch c.op {
		case "=":
			return name.Equal(operand), nil
		case "<>":
			return name.NotEqual(operand), nil
		case "<":
			return name.LessThan(operand), nil
		case "<=":
			return name.LessThanEqual(operand), nil
		case ">":
			return name.GreaterThan(operand), nil
		case ">=":
			return name.GreaterThanEqual(operand), nil
		}
		return zero, NewError("unsupported comparison operator "+c.op, WithCode(ErrValidation))

	case *betweenCond:
		return expression.Name(c.attr.Name).Between(toOperand(c.low), toOperand(c.high)), nil

	case *inCond:
		if len(c.values) == 0 {
			return zero, NewError("IN requires at least one value", WithCode(ErrValidation))
		}
		rest := make([]expression.OperandBuilder, len(c.values)-1)
		for i, v := range c.values[1:] {
			rest[i] = toOperand(v)
		}
		return expression.Name(c.attr.Name).In(toOperand(c.values[0]), rest...), nil

	case *funcCond:
		name := expression.Name(c.attr.Name)
		switch c.name {
		case "attribute_exists":
			return name.AttributeExists(), nil
		case "attribute_not_exists":
			return name.AttributeNotExists(), nil
		case "begins_with":
			prefix, ok := c.value.(string)
			if !ok {
				return zero, NewError("begins_with requires a string prefix", WithCode(ErrValidation))
			}
			return name.BeginsWith(prefix), nil
		case "contains":
			substr, ok := c.value.(string)
			if !ok {
				return zero, NewError("contains filters require a string operand", WithCode(ErrValidation))
			}
			return name.Contains(substr), nil
		case "attribute_type":
			tag, ok := c.value.(string)
			if !ok {
				return zero, NewError("attribute_type requires a string type tag", WithCode(ErrValidation))
			}
			return name.AttributeType(expression.DynamoDBAttributeType(tag)), nil
		}
		return zero, NewError("unsupported condition function "+c.name, WithCode(ErrValidation))

	case *andCond:
		return buildJunction(c.conds, expression.And)
	case *orCond:
		return buildJunction(c.conds, expression.Or)
	case *notCond:
		inner, err := buildFilterCondition(c.cond)
		if err != nil {
			return zero, err
		}
		return expression.Not(inner), nil
	}
	return zero, NewError("unsupported condition node", WithCode(ErrValidation))
}

func buildSizeCompare(c *compareCond) (expression.ConditionBuilder, error) {
	var zero expression.ConditionBuilder
	size := expression.Name(c.attr.Name).Size()
	operand := toOperand(c.value)
	switch c.op {
	case "=":
		return size.Equal(operand), nil
	case "<>":
		return size.NotEqual(operand), nil
	case "<":
		return size.LessThan(operand), nil
	case "<=":
		return size.LessThanEqual(operand), nil
	case ">":
		return size.GreaterThan(operand), nil
	case ">=":
		return size.GreaterThanEqual(operand), nil
	}
	return zero, NewError("unsupported comparison operator "+c.op, WithCode(ErrValidation))
}

func buildJunction(conds []Condition, join func(expression.ConditionBuilder, expression.ConditionBuilder, ...expression.ConditionBuilder) expression.ConditionBuilder) (expression.ConditionBuilder, error) {
	var zero expression.ConditionBuilder
	if len(conds) == 0 {
		return zero, NewError("empty condition group", WithCode(ErrValidation))
	}
	built := make([]expression.ConditionBuilder, len(conds))
	for i, c := range conds {
		b, err := buildFilterCondition(c)
		if err != nil {
			return zero, err
		}
		built[i] = b
	}
	if len(built) == 1 {
		return built[0], nil
	}
	return join(built[0], built[1], built[2:]...), nil
}

// buildKeyCondition translates a condition tree to a key-condition builder.
// Only the key-legal subset is accepted: equality and range comparisons,
// begins_with, between, and a single AND of hash plus range predicates.
func buildKeyCondition(cond Condition) (expression.KeyConditionBuilder, error) {
	var zero expression.KeyConditionBuilder
	switch c := cond.(type) {
	case *compareCond:
		if c.attr.size {
			return zero, NewError("size() is not valid in a key condition", WithCode(ErrValidation))
		}
		if _, ok := c.value.(*Attr); ok {
			return zero, NewError("key conditions compare against literal values", WithCode(ErrValidation))
		}
		key := expression.Key(c.attr.Name)
		value := expression.Value(Serialize(c.value))
		switch c.op {
		case "=":
			return key.Equal(value), nil
		case "<":
			return key.LessThan(value), nil
		case "<=":
			return key.LessThanEqual(value), nil
		case ">":
			return key.GreaterThan(value), nil
		case ">=":
			return key.GreaterThanEqual(value), nil
		}
		return zero, NewError("operator "+c.op+" is not valid in a key condition", WithCode(ErrValidation))

	case *betweenCond:
		return expression.Key(c.attr.Name).Between(
			expression.Value(Serialize(c.low)), expression.Value(Serialize(c.high))), nil

	case *funcCond:
		if c.name != "begins_with" {
			return zero, NewError(c.name+" is not valid in a key condition", WithCode(ErrValidation))
		}
		prefix, ok := c.value.(string)
		if !ok {
			return zero, NewError("begins_with requires a string prefix", WithCode(ErrValidation))
		}
		return expression.Key(c.attr.Name).BeginsWith(prefix), nil

	case *andCond:
		if len(c.conds) != 2 {
			return zero, NewError("key condition AND takes exactly a hash and a range predicate", WithCode(ErrValidation))
		}
		left, err := buildKeyCondition(c.conds[0])
		if err != nil {
			return zero, err
		}
		right, err := buildKeyCondition(c.conds[1])
		if err != nil {
			return zero, err
		}
		return expression.KeyAnd(left, right), nil
	}
	return zero, NewError("unsupported key condition", WithCode(ErrValidation))
}
