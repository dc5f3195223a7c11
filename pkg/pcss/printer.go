package pcss

import (
	"strings"
)

// String renders the stylesheet with two-space indentation
func (s *Stylesheet) String() string {
	var buf strings.Builder
	printNodes(&buf, s.Nodes, 0)
	return buf.String()
}

func printNodes(buf *strings.Builder, nodes []Node, depth int) {
	indent := strings.Repeat("  ", depth)

	for idx, n := range nodes {
		switch n := n.(type) {
		case *Declaration:
			buf.WriteString(indent + n.Property + ": " + n.Value + ";\n")
		case *Comment:
			buf.WriteString(indent + n.Text + "\n")
		case *Rule:
			if idx > 0 && depth == 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(indent + strings.Join(n.Selectors, ",\n"+indent) + " {\n")
			printNodes(buf, n.Children, depth+1)
			buf.WriteString(indent + "}\n")
		case *AtRule:
			head := "@" + n.Name
			if n.Params != "" {
				head += " " + n.Params
			}

			if !n.Block {
				buf.WriteString(indent + head + ";\n")
				continue
			}

			if idx > 0 && depth == 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(indent + head + " {\n")
			printNodes(buf, n.Children, depth+1)
			buf.WriteString(indent + "}\n")
		}
	}
}
