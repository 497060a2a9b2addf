package dynoro

import (
	"reflect"
	"testing"
)

func TestTranslateConditionUsesDisjointPrefixes(t *testing.T) {
	ce, err := TranslateCondition(A("status").Eq("active"))
	if err != nil {
		t.Fatal(err)
	}
	if ce.Expression != "#n0 = :v0" {
		t.Fatalf("expression = %q", ce.Expression)
	}
	if !reflect.DeepEqual(ce.Names, map[string]string{"#n0": "status"}) {
		t.Fatalf("names = %v", ce.Names)
	}
	if !reflect.DeepEqual(ce.Values, map[string]any{":v0": "active"}) {
		t.Fatalf("values = %v", ce.Values)
	}
}

func TestMergeExpressionMapsNeverCollides(t *testing.T) {
	upd, err := TranslateUpdates(A("count").Set(A("count").Plus(1)))
	if err != nil {
		t.Fatal(err)
	}
	ce, err := TranslateCondition(A("count").Lt(10))
	if err != nil {
		t.Fatal(err)
	}

	names, values := mergeExpressionMaps(upd.Names, upd.Values, ce)
	wantNames := map[string]string{"#0": "count", "#1": "count", "#n0": "count"}
	if !reflect.DeepEqual(names, wantNames) {
		t.Fatalf("merged names = %v", names)
	}
	wantValues := map[string]any{":0": 1, ":v0": 10}
	if !reflect.DeepEqual(values, wantValues) {
		t.Fatalf("merged values = %v", values)
	}
}

func TestTranslateConditionRejectsEmptyIn(t *testing.T) {
	ce, err := TranslateCondition(A("state").IsIn())
	if !hasCode(err, ErrValidation) {
		t.Fatalf("empty IN accepted: expr=%v err=%v", ce, err)
	}

	// also when nested under a junction
	_, err = TranslateCondition(And(A("state").Exists(), Not(A("state").IsIn())))
	if !hasCode(err, ErrValidation) {
		t.Fatalf("nested empty IN accepted: %v", err)
	}
}

func TestTranslateConditionRejectsEmptyJunction(t *testing.T) {
	if _, err := TranslateCondition(And()); !hasCode(err, ErrValidation) {
		t.Fatalf("empty AND accepted: %v", err)
	}
	if _, err := TranslateCondition(Or()); !hasCode(err, ErrValidation) {
		t.Fatalf("empty OR accepted: %v", err)
	}
}

func TestConditionShapes(t *testing.T) {
	cases := []struct {
		name string
		cond Condition
		want string
	}{
		{"exists", A("email").Exists(), "attribute_exists(#n0)"},
		{"not exists", A("email").NotExists(), "attribute_not_exists(#n0)"},
		{"between", A("age").Between(18, 65), "#n0 BETWEEN :v0 AND :v1"},
		{"in", A("state").IsIn("a", "b", "c"), "#n0 IN (:v0, :v1, :v2)"},
		{"begins with", A("sk").BeginsWith("user#"), "begins_with(#n0, :v0)"},
		{"contains", A("tags").Contains("x"), "contains(#n0, :v0)"},
		{"attribute type", A("data").AttributeType("M"), "attribute_type(#n0, :v0)"},
		{"size", A("items").Size().Gt(3), "size(#n0) > :v0"},
		{"dotted path", A("profile.city").Eq("berlin"), "#n0.#n1 = :v0"},
		{"attr against attr", A("a").Eq(A("b")), "#n0 = #n1"},
		{"and", And(A("a").Eq(1), A("b").Eq(2)), "(#n0 = :v0) AND (#n1 = :v1)"},
		{"or", Or(A("a").Eq(1), A("b").Eq(2)), "(#n0 = :v0) OR (#n1 = :v1)"},
		{"not", Not(A("a").Exists()), "NOT (attribute_exists(#n0))"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ce, err := TranslateCondition(tc.cond)
			if err != nil {
				t.Fatal(err)
			}
			if ce.Expression != tc.want {
				t.Fatalf("expression = %q, want %q", ce.Expression, tc.want)
			}
		})
	}
}

func TestBuildKeyConditionAcceptsKeyLegalSubset(t *testing.T) {
	legal := []Condition{
		A("pk").Eq("x"),
		A("sk").Lt(5),
		A("sk").Between(1, 9),
		A("sk").BeginsWith("user#"),
		And(A("pk").Eq("x"), A("sk").BeginsWith("user#")),
	}
	for _, cond := range legal {
		if _, err := buildKeyCondition(cond); err != nil {
			t.Fatalf("legal key condition rejected: %v", err)
		}
	}
}

func TestBuildKeyConditionRejectsIllegal(t *testing.T) {
	illegal := []Condition{
		A("pk").Ne("x"),
		A("pk").Contains("x"),
		A("pk").Exists(),
		A("pk").Size().Gt(1),
		A("pk").Eq(A("other")),
		And(A("a").Eq(1), A("b").Eq(2), A("c").Eq(3)),
		Or(A("a").Eq(1), A("b").Eq(2)),
	}
	for _, cond := range illegal {
		if _, err := buildKeyCondition(cond); !hasCode(err, ErrValidation) {
			t.Fatalf("illegal key condition accepted: %#v", cond)
		}
	}
}

func TestBuildFilterCondition(t *testing.T) {
	conds := []Condition{
		A("a").Eq(1),
		A("a").Ne("x"),
		A("a").Between(1, 2),
		A("a").IsIn(1, 2, 3),
		A("a").BeginsWith("p"),
		A("a").Contains("p"),
		A("a").AttributeType("S"),
		A("a").Exists(),
		A("a").Size().Le(10),
		And(A("a").Eq(1), Not(A("b").Exists())),
	}
	for _, cond := range conds {
		if _, err := buildFilterCondition(cond); err != nil {
			t.Fatalf("filter condition rejected: %v", err)
		}
	}
}

func TestBuildFilterConditionRejectsNonStringContains(t *testing.T) {
	if _, err := buildFilterCondition(A("a").Contains(5)); !hasCode(err, ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
}
