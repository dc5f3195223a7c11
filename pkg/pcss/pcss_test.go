package pcss

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func mustParse(t *testing.T, src string) *Stylesheet {
	t.Helper()
	sheet, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return sheet
}

func ruleSelectors(nodes []Node) []string {
	result := []string{}
	for _, n := range nodes {
		if r, ok := n.(*Rule); ok {
			result = append(result, r.Selector())
		}
	}
	return result
}

func declarations(nodes []Node) map[string]string {
	result := map[string]string{}
	Walk(nodes, func(n Node) {
		if d, ok := n.(*Declaration); ok {
			result[d.Property] = d.Value
		}
	})
	return result
}

func TestParseAndPrint(t *testing.T) {
	sheet := mustParse(t, "a{color:red}\n/* note */\n@charset \"utf-8\";\n.b, .c > d { margin : 0 auto }")

	want := "a {\n  color: red;\n}\n/* note */\n@charset \"utf-8\";\n\n.b,\n.c > d {\n  margin: 0 auto;\n}\n"
	if got := sheet.String(); got != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", got, want)
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{"a { color: red", "}", "a { color }"} {
		if _, err := Parse(src); err == nil {
			t.Errorf("expected an error for %q", src)
		}
	}
}

func TestExpandBEM(t *testing.T) {
	sheet := mustParse(t, `
@b card {
  color: red;
  @e title {
    font-weight: bold;
    @m big { font-size: 20px; }
  }
  @m active { color: blue; }
  @when open { display: block; }
}
`)

	if err := ExpandBEM(sheet, DefaultBEMOptions()); err != nil {
		t.Fatalf("ExpandBEM: %v", err)
	}

	want := []string{".card", ".card__title", ".card__title--big", ".card--active", ".card.is-open"}
	if got := ruleSelectors(sheet.Nodes); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	first := sheet.Nodes[0].(*Rule)
	if len(first.Children) != 1 {
		t.Fatalf("expected the block rule to keep only its own declaration, got %d children", len(first.Children))
	}
}

func TestExpandBEMErrors(t *testing.T) {
	cases := []string{
		"@e title { color: red; }",
		"@b { color: red; }",
		"@b card;",
		"@b card { @m; }",
	}

	for _, src := range cases {
		sheet := mustParse(t, src)
		if err := ExpandBEM(sheet, DefaultBEMOptions()); err == nil {
			t.Errorf("expected an error for %q", src)
		}
	}
}

func TestUnnest(t *testing.T) {
	sheet := mustParse(t, `
.nav {
  color: red;
  &__item { margin: 0; }
  a, b { text-decoration: none; }
  &:hover { color: blue; }
  @media (min-width: 100px) {
    color: green;
    .x { float: left; }
  }
}
`)

	Unnest(sheet)

	want := []string{".nav", ".nav__item", ".nav a, .nav b", ".nav:hover"}
	if got := ruleSelectors(sheet.Nodes); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	media, ok := sheet.Nodes[len(sheet.Nodes)-1].(*AtRule)
	if !ok || media.Name != "media" || media.Params != "(min-width: 100px)" {
		t.Fatalf("expected a bubbled media query, got %#v", sheet.Nodes[len(sheet.Nodes)-1])
	}

	if got := ruleSelectors(media.Children); !reflect.DeepEqual(got, []string{".nav", ".nav .x"}) {
		t.Fatalf("unexpected rules inside @media: %v", got)
	}
}

func TestUnnestMergesMediaQueries(t *testing.T) {
	sheet := mustParse(t, ".a { @media screen { @media (min-width: 1px) { color: red; } } }")
	Unnest(sheet)

	if len(sheet.Nodes) != 1 {
		t.Fatalf("expected a single node, got %s", sheet.String())
	}

	media := sheet.Nodes[0].(*AtRule)
	if media.Params != "screen and (min-width: 1px)" {
		t.Fatalf("unexpected params %q", media.Params)
	}
	if got := ruleSelectors(media.Children); !reflect.DeepEqual(got, []string{".a"}) {
		t.Fatalf("unexpected rules %v", got)
	}
}

func TestUnnestKeepsKeyframes(t *testing.T) {
	sheet := mustParse(t, "@keyframes spin { from { opacity: 0; } to { opacity: 1; } }")
	Unnest(sheet)

	at := sheet.Nodes[0].(*AtRule)
	if got := ruleSelectors(at.Children); !reflect.DeepEqual(got, []string{"from", "to"}) {
		t.Fatalf("keyframes were modified: %v", got)
	}
}

func TestPxToRem(t *testing.T) {
	sheet := mustParse(t, `
.a {
  font-size: 24px;
  margin: 10px;
  line-height: 0px;
  letter-spacing: 1PX;
  font: 12px/16px serif;
}
.b { font-size: -8px; }
`)

	PxToRem(sheet, DefaultPxToRemOptions())

	decls := declarations(sheet.Nodes)
	want := map[string]string{
		"font-size":      "-0.5rem",
		"margin":         "10px",
		"line-height":    "0",
		"letter-spacing": "1PX",
		"font":           "0.75rem/1rem serif",
	}
	if !reflect.DeepEqual(decls, want) {
		t.Fatalf("got %v, want %v", decls, want)
	}

	first := sheet.Nodes[0].(*Rule).Children[0].(*Declaration)
	if first.Value != "1.5rem" {
		t.Fatalf("expected 1.5rem, got %s", first.Value)
	}
}

func TestPxToRemPropListAndFallback(t *testing.T) {
	opts := DefaultPxToRemOptions()
	opts.PropList = []string{"*", "!margin*"}
	opts.Replace = false

	sheet := mustParse(t, `.a { padding: 13px; margin-top: 16px; background: url("a-16px.png") 16px; }`)
	PxToRem(sheet, opts)

	rule := sheet.Nodes[0].(*Rule)
	values := []string{}
	for _, n := range rule.Children {
		d := n.(*Declaration)
		values = append(values, d.Property+": "+d.Value)
	}

	want := []string{
		"padding: 13px",
		"padding: 0.8125rem",
		"margin-top: 16px",
		`background: url("a-16px.png") 16px`,
		`background: url("a-16px.png") 1rem`,
	}
	if !reflect.DeepEqual(values, want) {
		t.Fatalf("got %v, want %v", values, want)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestProcessInlinesImportsOnce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "styles.pcss"), `@import "blocks/header";
@import url("base.css");
@import "base.css";
@import "https://fonts.example/x.css";
@b main { font-size: 32px; }
`)
	writeFile(t, filepath.Join(dir, "blocks", "header.pcss"), `@import "../base";
.header { color: blue; &__logo { width: 10px; } }
`)
	writeFile(t, filepath.Join(dir, "base.css"), "body { margin: 0; }\n")

	out, files, err := Process(filepath.Join(dir, "styles.pcss"), DefaultOptions())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(files) != 3 {
		t.Fatalf("expected 3 files to be read, got %v", files)
	}

	if strings.Count(out, "body {") != 1 {
		t.Fatalf("base.css should be inlined exactly once:\n%s", out)
	}

	for _, part := range []string{".header__logo {", `@import "https://fonts.example/x.css";`, ".main {", "font-size: 2rem;"} {
		if !strings.Contains(out, part) {
			t.Errorf("output is missing %q:\n%s", part, out)
		}
	}

	if strings.Index(out, "body {") > strings.Index(out, ".header {") {
		t.Errorf("imports must keep their order:\n%s", out)
	}
}

func TestProcessImportCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.pcss"), "@import \"b\";\n.a { color: red; }\n")
	writeFile(t, filepath.Join(dir, "b.pcss"), "@import \"a\";\n.b { color: blue; }\n")

	out, _, err := Process(filepath.Join(dir, "a.pcss"), DefaultOptions())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if strings.Count(out, ".a {") != 1 || strings.Count(out, ".b {") != 1 {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestProcessMissingImport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.pcss"), "@import \"missing\";\n")

	if _, _, err := Process(filepath.Join(dir, "a.pcss"), DefaultOptions()); err == nil {
		t.Fatal("expected an error for a missing import")
	}
}
