// ABOUTME: CSS-like model stylesheet assigning LLM properties to graph nodes by selector.
// ABOUTME: Supports universal (*), class (.name), and id (#name) selectors with specificity resolution.
package attractor

import (
	"fmt"
	"strings"
	"unicode"
)

// StyleRule is a single rule: a selector with property declarations.
type StyleRule struct {
	Selector    string
	Properties  map[string]string
	Specificity int
}

// Stylesheet is an ordered collection of style rules.
type Stylesheet struct {
	Rules []StyleRule
}

// styleableProperties maps stylesheet property names to node field setters.
var styleableProperties = map[string]func(*GraphNode, string){
	"llm_model":        func(n *GraphNode, v string) { n.LLMModel = v },
	"llm_provider":     func(n *GraphNode, v string) { n.LLMProvider = v },
	"reasoning_effort": func(n *GraphNode, v string) { n.ReasoningEffort = v },
}

// ParseStylesheet parses a stylesheet of "selector { key: value; }" rules.
func ParseStylesheet(input string) (*Stylesheet, error) {
	rest := strings.TrimSpace(input)
	if rest == "" {
		return nil, fmt.Errorf("empty stylesheet")
	}

	ss := &Stylesheet{}
	for rest != "" {
		rest = strings.TrimSpace(rest)
		if rest == "" {
			break
		}

		open := strings.Index(rest, "{")
		if open < 0 {
			return nil, fmt.Errorf("expected '{' in stylesheet")
		}
		selector := strings.TrimSpace(rest[:open])
		specificity, err := selectorSpecificity(selector)
		if err != nil {
			return nil, err
		}
		rest = rest[open+1:]

		closing := strings.Index(rest, "}")
		if closing < 0 {
			return nil, fmt.Errorf("unclosed rule for selector %q", selector)
		}
		props, err := parseStyleProperties(rest[:closing])
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", selector, err)
		}
		rest = rest[closing+1:]

		ss.Rules = append(ss.Rules, StyleRule{Selector: selector, Properties: props, Specificity: specificity})
	}

	if len(ss.Rules) == 0 {
		return nil, fmt.Errorf("no rules found in stylesheet")
	}
	return ss, nil
}

func selectorSpecificity(selector string) (int, error) {
	switch {
	case selector == "*":
		return 0, nil
	case strings.HasPrefix(selector, "."):
		if !isStyleIdentifier(selector[1:]) {
			return 0, fmt.Errorf("invalid class selector %q", selector)
		}
		return 1, nil
	case strings.HasPrefix(selector, "#"):
		if !isStyleIdentifier(selector[1:]) {
			return 0, fmt.Errorf("invalid id selector %q", selector)
		}
		return 2, nil
	default:
		return 0, fmt.Errorf("invalid selector %q: must be *, .class, or #id", selector)
	}
}

func isStyleIdentifier(s string) bool {
	for i, r := range s {
		if i == 0 && !unicode.IsLetter(r) && r != '_' {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return false
		}
	}
	return len(s) > 0
}

// parseStyleProperties parses semicolon-delimited "key: value" declarations.
func parseStyleProperties(s string) (map[string]string, error) {
	props := make(map[string]string)
	for _, decl := range strings.Split(s, ";") {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		colon := strings.Index(decl, ":")
		if colon < 0 {
			return nil, fmt.Errorf("malformed declaration %q", decl)
		}
		key := strings.TrimSpace(decl[:colon])
		value := strings.TrimSpace(decl[colon+1:])
		if key == "" || value == "" {
			return nil, fmt.Errorf("malformed declaration %q", decl)
		}
		props[key] = value
	}
	return props, nil
}

// Apply writes matching rule properties onto each node, higher specificity
// winning; later rules win ties.
func (ss *Stylesheet) Apply(g *Graph) {
	for _, node := range g.Nodes() {
		winners := make(map[string]StyleRule)
		for _, rule := range ss.Rules {
			if !rule.matches(node) {
				continue
			}
			for key := range rule.Properties {
				if prev, ok := winners[key]; !ok || rule.Specificity >= prev.Specificity {
					winners[key] = rule
				}
			}
		}
		for key, rule := range winners {
			if setter, ok := styleableProperties[key]; ok {
				setter(node, rule.Properties[key])
				node.Attrs[key] = rule.Properties[key]
			}
		}
	}
}

func (r StyleRule) matches(node *GraphNode) bool {
	switch {
	case r.Selector == "*":
		return true
	case strings.HasPrefix(r.Selector, "#"):
		return node.ID == r.Selector[1:]
	case strings.HasPrefix(r.Selector, "."):
		want := r.Selector[1:]
		for _, class := range node.Classes {
			if class == want {
				return true
			}
		}
		return false
	default:
		return false
	}
}
