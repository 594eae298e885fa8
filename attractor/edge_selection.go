// ABOUTME: Edge selection for graph traversal: a deterministic five-step priority procedure.
// ABOUTME: Priority: condition match > preferred label > suggested IDs > unconditional weight > fallback.
package attractor

import (
	"regexp"
	"sort"
	"strings"
)

// acceleratorPatterns match keyboard-accelerator prefixes like "[y] ",
// "y) ", "y - " at the start of an already-lowercased label.
var acceleratorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\[[a-z0-9]\]\s+`),
	regexp.MustCompile(`^[a-z0-9]\)\s+`),
	regexp.MustCompile(`^[a-z0-9]\s+-\s+`),
}

// NormalizeLabel lowercases and trims a label, then strips any accelerator
// prefix. The function is idempotent.
func NormalizeLabel(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	for changed := true; changed; {
		changed = false
		for _, pat := range acceleratorPatterns {
			if stripped := pat.ReplaceAllString(s, ""); stripped != s {
				s = stripped
				changed = true
			}
		}
	}
	return strings.TrimSpace(s)
}

// bestByWeightThenLexical picks the edge with the highest weight; ties break
// on target id ascending. The input slice is not mutated.
func bestByWeightThenLexical(edges []*GraphEdge) *GraphEdge {
	if len(edges) == 0 {
		return nil
	}
	sorted := append([]*GraphEdge(nil), edges...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Weight != sorted[j].Weight {
			return sorted[i].Weight > sorted[j].Weight
		}
		return sorted[i].To < sorted[j].To
	})
	return sorted[0]
}

// SelectEdge chooses one outgoing edge for the current node given the node's
// outcome and the running context. The five steps, first producing a
// candidate wins:
//
//  1. Edges whose non-empty condition evaluates true; highest weight, then
//     target id ascending.
//  2. The first edge (in declaration order) whose normalized label equals
//     the outcome's normalized preferred label.
//  3. For each suggested next id in order, the first edge targeting it.
//  4. Unconditional edges by weight, lexical tie-break.
//  5. All edges by weight, lexical tie-break.
//
// Returns nil only for an empty edge list.
func SelectEdge(edges []*GraphEdge, outcome *Outcome, ctx *Context) *GraphEdge {
	if len(edges) == 0 {
		return nil
	}

	// Step 1: condition matches.
	var condMatches []*GraphEdge
	for _, e := range edges {
		if strings.TrimSpace(e.Condition) == "" {
			continue
		}
		if EvaluateCondition(e.Condition, outcome, ctx) {
			condMatches = append(condMatches, e)
		}
	}
	if len(condMatches) > 0 {
		return bestByWeightThenLexical(condMatches)
	}

	// Step 2: preferred label.
	if outcome != nil && outcome.PreferredLabel != "" {
		want := NormalizeLabel(outcome.PreferredLabel)
		for _, e := range edges {
			if e.Label != "" && NormalizeLabel(e.Label) == want {
				return e
			}
		}
	}

	// Step 3: suggested next ids.
	if outcome != nil {
		for _, id := range outcome.SuggestedNextIDs {
			for _, e := range edges {
				if e.To == id {
					return e
				}
			}
		}
	}

	// Step 4: unconditional edges by weight.
	var unconditional []*GraphEdge
	for _, e := range edges {
		if strings.TrimSpace(e.Condition) == "" {
			unconditional = append(unconditional, e)
		}
	}
	if len(unconditional) > 0 {
		return bestByWeightThenLexical(unconditional)
	}

	// Step 5: fallback across all edges.
	return bestByWeightThenLexical(edges)
}
