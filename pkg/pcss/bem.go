package pcss

import (
	"strings"

	"github.com/rotisserie/eris"
)

// BEMOptions configures the BEM at-rules
type BEMOptions struct {
	ElementSeparator  string
	ModifierSeparator string
	StatePrefix       string

	// Shortcuts maps short at-rule names to component, descendent or modifier
	Shortcuts map[string]string
}

// DefaultBEMOptions uses the block__element--modifier convention with the @b, @e and @m shortcuts
func DefaultBEMOptions() BEMOptions {
	return BEMOptions{
		ElementSeparator:  "__",
		ModifierSeparator: "--",
		StatePrefix:       "is-",
		Shortcuts: map[string]string{
			"b": "component",
			"e": "descendent",
			"m": "modifier",
		},
	}
}

type bemScope struct {
	block   string
	element string
	// selector of the rule the at-rule is nested in
	selector string
}

// ExpandBEM replaces @component/@b, @descendent/@e, @modifier/@m and @when at-rules with plain rules.
// Elements and modifiers of a block are emitted as flat rules right after the block rule.
func ExpandBEM(sheet *Stylesheet, opts BEMOptions) error {
	nodes, err := expandBEMNodes(sheet.Nodes, nil, opts)
	if err != nil {
		return err
	}
	sheet.Nodes = nodes
	return nil
}

func (opts BEMOptions) kind(name string) string {
	if kind, ok := opts.Shortcuts[name]; ok {
		return kind
	}

	switch name {
	case "component", "descendent", "modifier", "when":
		return name
	}
	return ""
}

func expandBEMNodes(nodes []Node, scope *bemScope, opts BEMOptions) ([]Node, error) {
	result := make([]Node, 0, len(nodes))

	for _, n := range nodes {
		switch n := n.(type) {
		case *AtRule:
			kind := opts.kind(n.Name)
			if kind == "" {
				if n.Block {
					children, err := expandBEMNodes(n.Children, scope, opts)
					if err != nil {
						return nil, err
					}
					n.Children = children
				}
				result = append(result, n)
				continue
			}

			expanded, err := expandBEMRule(n, kind, scope, opts)
			if err != nil {
				return nil, err
			}
			result = append(result, expanded...)
		case *Rule:
			children, err := expandBEMNodes(n.Children, scope, opts)
			if err != nil {
				return nil, err
			}
			n.Children = children
			result = append(result, n)
		default:
			result = append(result, n)
		}
	}

	return result, nil
}

func expandBEMRule(at *AtRule, kind string, scope *bemScope, opts BEMOptions) ([]Node, error) {
	name := strings.TrimSpace(at.Params)
	if name == "" || strings.ContainsAny(name, " ,{}") {
		return nil, eris.Errorf("@%s expects a single name, got %q", at.Name, at.Params)
	}

	if !at.Block {
		return nil, eris.Errorf("@%s %s needs a block", at.Name, name)
	}

	inner := &bemScope{}
	switch kind {
	case "component":
		inner.block = name
		inner.selector = "." + name
	case "descendent":
		if scope == nil || scope.block == "" {
			return nil, eris.Errorf("@%s %s must be nested in a component", at.Name, name)
		}
		inner.block = scope.block
		inner.element = name
		inner.selector = "." + scope.block + opts.ElementSeparator + name
	case "modifier":
		if scope == nil || scope.block == "" {
			return nil, eris.Errorf("@%s %s must be nested in a component", at.Name, name)
		}
		inner.block = scope.block
		inner.element = scope.element

		base := "." + scope.block
		if scope.element != "" {
			base += opts.ElementSeparator + scope.element
		}
		inner.selector = base + opts.ModifierSeparator + name
	case "when":
		if scope == nil {
			return nil, eris.Errorf("@%s %s must be nested in a component", at.Name, name)
		}
		inner.block = scope.block
		inner.element = scope.element
		inner.selector = scope.selector + "." + opts.StatePrefix + name
	}

	own := make([]Node, 0, len(at.Children))
	hoisted := make([]Node, 0)
	for _, child := range at.Children {
		if childAt, ok := child.(*AtRule); ok && opts.kind(childAt.Name) != "" {
			expanded, err := expandBEMRule(childAt, opts.kind(childAt.Name), inner, opts)
			if err != nil {
				return nil, err
			}
			hoisted = append(hoisted, expanded...)
			continue
		}

		expanded, err := expandBEMNodes([]Node{child}, inner, opts)
		if err != nil {
			return nil, err
		}
		own = append(own, expanded...)
	}

	result := make([]Node, 0, 1+len(hoisted))
	result = append(result, &Rule{Selectors: []string{inner.selector}, Children: own})
	return append(result, hoisted...), nil
}
