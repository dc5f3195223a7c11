package pcss

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tdewolff/parse/v2/css"
)

var importExtensions = []string{"", ".pcss", ".css"}

// Importer inlines local @import statements. Every file is inlined at most once, which also
// breaks import cycles.
type Importer struct {
	// Files lists every file read so far, in the order they were read
	Files []string

	seen map[string]bool
}

// NewImporter returns an Importer with an empty file list
func NewImporter() *Importer {
	return &Importer{seen: make(map[string]bool)}
}

// Load parses the given file and replaces its local imports with the imported content.
func (im *Importer) Load(filename string) (*Stylesheet, error) {
	filename, err := filepath.Abs(filename)
	if err != nil {
		return nil, err
	}

	im.seen[filename] = true
	im.Files = append(im.Files, filename)

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", filename)
	}

	sheet, err := Parse(string(content))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", filename)
	}

	nodes := make([]Node, 0, len(sheet.Nodes))
	for _, n := range sheet.Nodes {
		at, ok := n.(*AtRule)
		if !ok || at.Name != "import" || at.Block {
			nodes = append(nodes, n)
			continue
		}

		target, local := importTarget(at.Params)
		if !local {
			nodes = append(nodes, n)
			continue
		}

		resolved, err := resolveImport(filepath.Dir(filename), target)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve @import %s in %s", at.Params, filename)
		}

		if im.seen[resolved] {
			continue
		}

		imported, err := im.Load(resolved)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, imported.Nodes...)
	}

	sheet.Nodes = nodes
	return sheet, nil
}

// importTarget extracts the path of an @import prelude. Imports with media queries, layers or
// remote URLs are reported as not local and stay untouched.
func importTarget(params string) (string, bool) {
	tokens, err := tokenize(params)
	if err != nil {
		return "", false
	}

	target := ""
	rest := 0
	for idx, tok := range tokens {
		if tok.tt == css.WhitespaceToken || tok.tt == css.CommentToken {
			continue
		}

		if target == "" {
			switch tok.tt {
			case css.StringToken:
				target = tok.data[1 : len(tok.data)-1]
			case css.URLToken:
				target = urlTokenValue(tok.data)
			case css.FunctionToken:
				if strings.EqualFold(tok.data, "url(") && idx+1 < len(tokens) && tokens[idx+1].tt == css.StringToken {
					str := tokens[idx+1].data
					target = str[1 : len(str)-1]
					rest = -2
				}
			}

			if target == "" {
				return "", false
			}
			continue
		}

		// skip the string and closing parenthesis of url("...")
		if rest < 0 {
			rest++
			continue
		}
		return "", false
	}

	if target == "" || strings.HasPrefix(target, "//") || strings.Contains(target, "://") {
		return "", false
	}
	return target, true
}

func urlTokenValue(data string) string {
	value := strings.TrimSpace(data[4 : len(data)-1])
	if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') {
		value = value[1 : len(value)-1]
	}
	return value
}

func resolveImport(dir, target string) (string, error) {
	base := filepath.Join(dir, filepath.FromSlash(target))

	for _, ext := range importExtensions {
		candidate := base + ext
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	// partials like blocks/_header.pcss
	partial := filepath.Join(filepath.Dir(base), "_"+filepath.Base(base))
	for _, ext := range importExtensions[1:] {
		candidate := partial + ext
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", eris.Wrapf(os.ErrNotExist, "%s not found", target)
}
