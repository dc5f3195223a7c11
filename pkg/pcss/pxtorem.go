package pcss

import (
	"math"
	"strconv"
	"strings"

	"github.com/tdewolff/parse/v2/css"
)

// PxToRemOptions mirrors the options of the usual px to rem conversion
type PxToRemOptions struct {
	RootValue     float64
	UnitPrecision int

	// PropList selects the converted properties. Supports "*", "*part*", "part*", "*part" and
	// "!prop" for exclusions.
	PropList      []string
	MinPixelValue float64

	// Replace rewrites the value in place. Otherwise a converted copy of the declaration is added
	// after the original as a fallback.
	Replace bool
}

// DefaultPxToRemOptions converts font related properties with a 16px root
func DefaultPxToRemOptions() PxToRemOptions {
	return PxToRemOptions{
		RootValue:     16,
		UnitPrecision: 5,
		PropList:      []string{"font", "font-size", "line-height", "letter-spacing"},
		Replace:       true,
	}
}

// PxToRem converts px values of the selected properties to rem
func PxToRem(sheet *Stylesheet, opts PxToRemOptions) {
	sheet.Nodes = pxToRemNodes(sheet.Nodes, opts)
}

func pxToRemNodes(nodes []Node, opts PxToRemOptions) []Node {
	result := make([]Node, 0, len(nodes))

	for _, n := range nodes {
		switch n := n.(type) {
		case *Declaration:
			result = append(result, n)
			if !opts.matchProp(n.Property) || !strings.Contains(n.Value, "px") {
				continue
			}

			converted := opts.convertValue(n.Value)
			if converted == n.Value {
				continue
			}

			if opts.Replace {
				n.Value = converted
			} else {
				result = append(result, &Declaration{Property: n.Property, Value: converted})
			}
		case *Rule:
			n.Children = pxToRemNodes(n.Children, opts)
			result = append(result, n)
		case *AtRule:
			if n.Block {
				n.Children = pxToRemNodes(n.Children, opts)
			}
			result = append(result, n)
		default:
			result = append(result, n)
		}
	}

	return result
}

func (opts PxToRemOptions) matchProp(prop string) bool {
	prop = strings.ToLower(prop)
	matched := false

	for _, pattern := range opts.PropList {
		if strings.HasPrefix(pattern, "!") {
			if matchPropPattern(pattern[1:], prop) {
				return false
			}
			continue
		}

		if matchPropPattern(pattern, prop) {
			matched = true
		}
	}

	return matched
}

func matchPropPattern(pattern, prop string) bool {
	switch {
	case pattern == "*":
		return true
	case len(pattern) > 1 && strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
		return strings.Contains(prop, pattern[1:len(pattern)-1])
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(prop, pattern[1:])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(prop, pattern[:len(pattern)-1])
	}
	return pattern == prop
}

// convertValue rewrites px dimensions. Strings and url() arguments stay untouched, as do
// uppercase PX units which serve as an opt-out.
func (opts PxToRemOptions) convertValue(value string) string {
	tokens, err := tokenize(value)
	if err != nil {
		return value
	}

	var buf strings.Builder
	urlDepth := 0
	for _, tok := range tokens {
		switch tok.tt {
		case css.FunctionToken:
			if urlDepth > 0 || strings.EqualFold(tok.data, "url(") {
				urlDepth++
			}
		case css.LeftParenthesisToken:
			if urlDepth > 0 {
				urlDepth++
			}
		case css.RightParenthesisToken:
			if urlDepth > 0 {
				urlDepth--
			}
		case css.DimensionToken:
			if urlDepth == 0 && strings.HasSuffix(tok.data, "px") {
				buf.WriteString(opts.convertPx(tok.data))
				continue
			}
		}

		buf.WriteString(tok.data)
	}

	return buf.String()
}

func (opts PxToRemOptions) convertPx(dimension string) string {
	pixels, err := strconv.ParseFloat(dimension[:len(dimension)-2], 64)
	if err != nil {
		return dimension
	}

	if math.Abs(pixels) < opts.MinPixelValue {
		return dimension
	}

	scale := math.Pow(10, float64(opts.UnitPrecision))
	rem := math.Round(pixels/opts.RootValue*scale) / scale
	if rem == 0 {
		return "0"
	}

	return strconv.FormatFloat(rem, 'f', -1, 64) + "rem"
}
