// ABOUTME: Tests for the condition language: parsing, operators, OR/AND groups, negation, and validation.
// ABOUTME: Covers quote stripping, numeric coercion, regex failure semantics, and key resolution.
package attractor

import (
	"testing"
)

func evalCond(t *testing.T, expr string, outcome *Outcome, ctx *Context) bool {
	t.Helper()
	parsed, err := ParseCondition(expr)
	if err != nil {
		t.Fatalf("ParseCondition(%q) failed: %v", expr, err)
	}
	return parsed.Evaluate(outcome, ctx)
}

func TestConditionEmptyIsTrue(t *testing.T) {
	if !evalCond(t, "", &Outcome{Status: StatusFail}, NewContext()) {
		t.Error("empty condition should be true")
	}
	if !evalCond(t, "   ", &Outcome{Status: StatusFail}, NewContext()) {
		t.Error("whitespace condition should be true")
	}
}

func TestConditionParseQuotedValue(t *testing.T) {
	parsed, err := ParseCondition(`a = "x y"`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	clause := parsed.Groups[0][0]
	if clause.Key != "a" || clause.Op != "=" || clause.Value != "x y" {
		t.Errorf("expected {a = 'x y'}, got %+v", clause)
	}
}

func TestConditionSingleQuotes(t *testing.T) {
	ctx := NewContext()
	ctx.Set("mode", "prod")
	if !evalCond(t, "mode = 'prod'", &Outcome{}, ctx) {
		t.Error("single-quoted value should match")
	}
}

func TestConditionOutcomeKey(t *testing.T) {
	outcome := &Outcome{Status: StatusSuccess}
	if !evalCond(t, "outcome = success", outcome, NewContext()) {
		t.Error("outcome key should resolve to status")
	}
	if evalCond(t, "outcome = fail", outcome, NewContext()) {
		t.Error("outcome = fail should be false for success")
	}
}

func TestConditionPreferredLabelKey(t *testing.T) {
	outcome := &Outcome{Status: StatusSuccess, PreferredLabel: "yes"}
	if !evalCond(t, "preferred_label = yes", outcome, NewContext()) {
		t.Error("preferred_label should resolve")
	}
}

func TestConditionContextPrefix(t *testing.T) {
	ctx := NewContext()
	ctx.Set("mode", "prod")
	if !evalCond(t, "context.mode = prod", &Outcome{}, ctx) {
		t.Error("context. prefix should fall back to bare key")
	}
	if !evalCond(t, "mode = prod", &Outcome{}, ctx) {
		t.Error("bare key should resolve from context")
	}
}

func TestConditionMissingKeyIsEmpty(t *testing.T) {
	if !evalCond(t, `nope = ""`, &Outcome{}, NewContext()) {
		t.Error("missing key should resolve to empty string")
	}
}

func TestConditionAndGroups(t *testing.T) {
	ctx := NewContext()
	ctx.Set("a", "1")
	ctx.Set("b", "2")
	if !evalCond(t, "a = 1 && b = 2", &Outcome{}, ctx) {
		t.Error("both clauses true should be true")
	}
	if evalCond(t, "a = 1 && b = 3", &Outcome{}, ctx) {
		t.Error("one false clause should make the AND false")
	}
}

func TestConditionOrGroups(t *testing.T) {
	ctx := NewContext()
	ctx.Set("a", "1")
	if !evalCond(t, "a = 2 || a = 1", &Outcome{}, ctx) {
		t.Error("any true OR group should be true")
	}
	if evalCond(t, "a = 2 || a = 3", &Outcome{}, ctx) {
		t.Error("all false OR groups should be false")
	}
}

func TestConditionContains(t *testing.T) {
	ctx := NewContext()
	ctx.Set("msg", "rate limit exceeded")
	if !evalCond(t, "msg contains limit", &Outcome{}, ctx) {
		t.Error("contains should match substrings")
	}
}

func TestConditionMatches(t *testing.T) {
	ctx := NewContext()
	ctx.Set("id", "run-42")
	if !evalCond(t, `id matches "run-[0-9]+"`, &Outcome{}, ctx) {
		t.Error("matches should apply the regex")
	}
}

func TestConditionMatchesBadRegexIsFalse(t *testing.T) {
	ctx := NewContext()
	ctx.Set("id", "anything")
	if evalCond(t, `id matches "["`, &Outcome{}, ctx) {
		t.Error("invalid regex should evaluate to false")
	}
}

func TestConditionNumericComparisons(t *testing.T) {
	ctx := NewContext()
	ctx.Set("n", "5")
	cases := map[string]bool{
		"n > 4":  true,
		"n < 4":  false,
		"n >= 5": true,
		"n <= 5": true,
		"n <= 4": false,
	}
	for expr, want := range cases {
		if got := evalCond(t, expr, &Outcome{}, ctx); got != want {
			t.Errorf("%q: expected %v, got %v", expr, want, got)
		}
	}
}

func TestConditionNumericNonNumberIsFalse(t *testing.T) {
	ctx := NewContext()
	ctx.Set("n", "hello")
	if evalCond(t, "n > 4", &Outcome{}, ctx) {
		t.Error("non-numeric operand should make the clause false")
	}
}

func TestConditionBareKey(t *testing.T) {
	ctx := NewContext()
	ctx.Set("flag", "on")
	if !evalCond(t, "flag", &Outcome{}, ctx) {
		t.Error("bare key with non-empty value should be true")
	}
	if evalCond(t, "missing", &Outcome{}, ctx) {
		t.Error("bare key with missing value should be false")
	}
}

func TestConditionNegation(t *testing.T) {
	ctx := NewContext()
	ctx.Set("flag", "on")
	if evalCond(t, "!flag", &Outcome{}, ctx) {
		t.Error("!flag should be false when flag set")
	}
	if !evalCond(t, "!missing", &Outcome{}, ctx) {
		t.Error("!missing should be true")
	}
	// A leading ! immediately followed by = is not negation.
	parsed, err := ParseCondition("a != b")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.Groups[0][0].Negated {
		t.Error("!= must not be parsed as negation")
	}
}

func TestConditionOperatorFirstMatchOrder(t *testing.T) {
	ctx := NewContext()
	ctx.Set("n", "3")
	// "<=" must win over "<" and "=".
	parsed, err := ParseCondition("n <= 3")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.Groups[0][0].Op != "<=" {
		t.Errorf("expected <= operator, got %q", parsed.Groups[0][0].Op)
	}
}

func TestValidateConditionSyntax(t *testing.T) {
	if err := ValidateConditionSyntax("outcome = success"); err != nil {
		t.Errorf("valid condition rejected: %v", err)
	}
	if err := ValidateConditionSyntax(""); err != nil {
		t.Errorf("empty condition should be valid: %v", err)
	}
	if err := ValidateConditionSyntax("= value"); err == nil {
		t.Error("empty key should be rejected")
	}
	if err := ValidateConditionSyntax(`x matches "["`); err == nil {
		t.Error("invalid regex should be rejected")
	}
}

func TestEvaluateConditionAllGroupsSemantics(t *testing.T) {
	ctx := NewContext()
	ctx.Set("a", "1")
	ctx.Set("b", "2")
	// (a=1 && b=9) || (a=1 && b=2) -> true via second group
	if !evalCond(t, "a = 1 && b = 9 || a = 1 && b = 2", &Outcome{}, ctx) {
		t.Error("second AND group should satisfy the OR")
	}
}
