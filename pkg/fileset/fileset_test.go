package fileset

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
	"time"
)

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestBase(t *testing.T) {
	cases := map[string]string{
		"/p/src/{img,js}/*":       "/p/src",
		"/p/src/*.html":           "/p/src",
		"/p/src/css/**/*.pcss":    "/p/src/css",
		"/p/src/css/styles.pcss":  "/p/src/css",
		"*.html":                  ".",
		"/p/src/data/[a-z]*.json": "/p/src/data",
	}

	for pattern, want := range cases {
		got := filepath.ToSlash(Base(filepath.FromSlash(pattern)))
		if got != want {
			t.Errorf("Base(%q) = %q, want %q", pattern, got, want)
		}
	}
}

func TestResolveBracesAndGlobstar(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "src/img/a.png", "src/js/main.js", "src/index.html", "src/about.html",
		"src/css/styles.pcss", "src/css/blocks/header.pcss", "src/data/x.json")

	got, err := Resolve([]string{
		filepath.Join(root, "src/{img,js}/*"),
		filepath.Join(root, "src/*.html"),
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	want := []string{
		filepath.Join(root, "src/about.html"),
		filepath.Join(root, "src/img/a.png"),
		filepath.Join(root, "src/index.html"),
		filepath.Join(root, "src/js/main.js"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	got, err = Resolve([]string{filepath.Join(root, "src/css/**/*.pcss")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	found := false
	for _, item := range got {
		if item == filepath.Join(root, "src/css/blocks/header.pcss") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the nested stylesheet in %v", got)
	}
}

func TestResolveNegationAndNoMatch(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "src/a.html", "src/b.html")

	got, err := Resolve([]string{
		filepath.Join(root, "src/*.html"),
		"!" + filepath.Join(root, "src/b.html"),
		filepath.Join(root, "src/*.missing"),
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	want := []string{filepath.Join(root, "src/a.html")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestResolveSpecialCharsInPath(t *testing.T) {
	for _, dir := range []string{"my project", "it's", "a$b", "x;y (1)"} {
		t.Run(dir, func(t *testing.T) {
			root := filepath.Join(t.TempDir(), dir)
			writeFiles(t, root, "src/index.html", "src/img/a b.png", "src/img/$c.png")

			got, err := Files([]string{
				filepath.Join(root, "src/*.html"),
				filepath.Join(root, "src/{img,js}/*"),
			}, time.Time{})
			if err != nil {
				t.Fatalf("Files: %v", err)
			}

			want := []string{
				filepath.Join(root, "src/img/$c.png"),
				filepath.Join(root, "src/img/a b.png"),
				filepath.Join(root, "src/index.html"),
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}
}

func TestFilesSince(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "src/old.txt", "src/new.txt", "src/dir/nested.txt")

	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(root, "src/old.txt"), past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	got, err := Files([]string{filepath.Join(root, "src/*")}, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	want := []string{filepath.Join(root, "src/new.txt")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestFilesMissingLiteral(t *testing.T) {
	root := t.TempDir()
	_, err := Files([]string{filepath.Join(root, "nope.css")}, time.Time{})
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestDest(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX paths")
	}

	got, err := Dest("/p/src/img/a.png", "/p/src", "/p/dest")
	if err != nil {
		t.Fatalf("Dest: %v", err)
	}
	if filepath.ToSlash(got) != "/p/dest/img/a.png" {
		t.Fatalf("unexpected destination %s", got)
	}

	if _, err := Dest("/p/other/a.png", "/p/src", "/p/dest"); err == nil {
		t.Fatal("expected an error for a file outside the base")
	}
}
