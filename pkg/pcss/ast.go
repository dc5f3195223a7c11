// Package pcss implements the stylesheet passes that run before a stylesheet is handed to
// esbuild: @import inlining, BEM at-rule shortcuts, Sass-style nesting and px to rem conversion.
//
// Stylesheets are parsed into a small rule tree. Selectors, at-rule preludes and declaration
// values are kept as normalised text; the passes re-tokenise them where they need to.
package pcss

import "strings"

// Node is a statement in a stylesheet or block
type Node interface {
	node()
}

// Declaration is a property: value pair
type Declaration struct {
	Property string
	Value    string
}

// Rule is a qualified rule with a selector list
type Rule struct {
	Selectors []string
	Children  []Node
}

// AtRule is an at-rule. Block is false for statements like @import that end with a semicolon.
type AtRule struct {
	Name     string
	Params   string
	Block    bool
	Children []Node
}

// Comment holds a comment including its delimiters
type Comment struct {
	Text string
}

// Stylesheet is the root of a parsed file
type Stylesheet struct {
	Nodes []Node
}

func (*Declaration) node() {}
func (*Rule) node()        {}
func (*AtRule) node()      {}
func (*Comment) node()     {}

// Selector returns the selector list joined by ", "
func (r *Rule) Selector() string {
	return strings.Join(r.Selectors, ", ")
}

// Walk calls fn for every node in the tree, depth first. Children of a node are visited after the
// node itself.
func Walk(nodes []Node, fn func(Node)) {
	for _, n := range nodes {
		fn(n)
		switch n := n.(type) {
		case *Rule:
			Walk(n.Children, fn)
		case *AtRule:
			Walk(n.Children, fn)
		}
	}
}
