package pcss

import "strings"

// at-rules that bubble out of rules, wrapping the parent selector
var bubblingAtRules = map[string]bool{
	"media":     true,
	"supports":  true,
	"container": true,
	"layer":     true,
	"document":  true,
}

// at-rules whose blocks hold declarations or keyframe selectors instead of style rules
var opaqueAtRules = map[string]bool{
	"font-face":           true,
	"page":                true,
	"keyframes":           true,
	"-webkit-keyframes":   true,
	"-moz-keyframes":      true,
	"counter-style":       true,
	"property":            true,
	"font-feature-values": true,
}

// Unnest flattens nested rules. Nested selectors are prefixed with the parent selector unless
// they contain "&", which is replaced by it (so "&__title" concatenates). Nested @media,
// @supports and similar at-rules move to the top level and wrap the parent selector; nested
// @media queries are joined with "and".
func Unnest(sheet *Stylesheet) {
	sheet.Nodes = unnestNodes(sheet.Nodes)
}

func unnestNodes(nodes []Node) []Node {
	result := make([]Node, 0, len(nodes))

	for _, n := range nodes {
		switch n := n.(type) {
		case *Rule:
			result = append(result, unnestRule(n.Selectors, n.Children)...)
		case *AtRule:
			if n.Block && !opaqueAtRules[n.Name] {
				n.Children = unnestNodes(n.Children)
			}
			result = append(result, n)
		default:
			result = append(result, n)
		}
	}

	return result
}

// unnestRule flattens the body of a rule whose selectors are already resolved.
func unnestRule(selectors []string, children []Node) []Node {
	own := make([]Node, 0, len(children))
	after := make([]Node, 0)

	for _, child := range children {
		switch child := child.(type) {
		case *Rule:
			after = append(after, unnestRule(resolveSelectors(selectors, child.Selectors), child.Children)...)
		case *AtRule:
			if child.Block && bubblingAtRules[child.Name] {
				after = append(after, bubble(child, selectors)...)
			} else {
				own = append(own, child)
			}
		default:
			own = append(own, child)
		}
	}

	result := make([]Node, 0, 1+len(after))
	if hasContent(own) {
		result = append(result, &Rule{Selectors: selectors, Children: own})
	}
	return append(result, after...)
}

// bubble moves an at-rule nested in a rule to the outside
func bubble(at *AtRule, selectors []string) []Node {
	inner := unnestRule(selectors, at.Children)

	body := make([]Node, 0, len(inner))
	nested := make([]Node, 0)
	for _, n := range inner {
		innerAt, ok := n.(*AtRule)
		if ok && innerAt.Block && innerAt.Name == at.Name && at.Name == "media" {
			nested = append(nested, &AtRule{
				Name:     at.Name,
				Params:   at.Params + " and " + innerAt.Params,
				Block:    true,
				Children: innerAt.Children,
			})
			continue
		}
		body = append(body, n)
	}

	result := make([]Node, 0, 1+len(nested))
	if len(body) > 0 {
		result = append(result, &AtRule{
			Name:     at.Name,
			Params:   at.Params,
			Block:    true,
			Children: body,
		})
	}
	return append(result, nested...)
}

func resolveSelectors(parents, children []string) []string {
	if len(parents) == 0 {
		return children
	}

	result := make([]string, 0, len(parents)*len(children))
	for _, parent := range parents {
		for _, child := range children {
			if strings.Contains(child, "&") {
				result = append(result, strings.ReplaceAll(child, "&", parent))
			} else {
				result = append(result, parent+" "+child)
			}
		}
	}
	return result
}

func hasContent(nodes []Node) bool {
	for _, n := range nodes {
		if _, ok := n.(*Comment); !ok {
			return true
		}
	}
	return false
}
