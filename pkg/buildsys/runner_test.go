package buildsys

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yehorDorosh/mne-travel/pkg/steps"
)

type funcStep struct {
	name string
	run  func(ctx context.Context, env *steps.Env) error
}

func (s *funcStep) Name() string {
	return s.name
}

func (s *funcStep) Run(ctx context.Context, env *steps.Env) error {
	return s.run(ctx, env)
}

func stepTask(short string, mode TaskMode, stepList ...steps.Step) *Task {
	task := &Task{Short: short, Mode: mode, Base: ".", Env: map[string]string{}}
	for _, step := range stepList {
		task.Cmds = append(task.Cmds, TaskCmdStep{Step: step})
	}
	return task
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(content)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestRunSeriesOrder(t *testing.T) {
	root := t.TempDir()
	tasks := loadTasks(t, root, `
setenv("GREETING", "hi")

def configure():
    task(short = "a", cmds = ["echo a >> order.txt"])
    task(short = "b", deps = ["a"], cmds = ["echo b >> order.txt"])
    task(short = "c", cmds = [series("b", task(cmds = ["echo c >> order.txt"]), "a")])
    task(short = "env", cmds = ["echo $GREETING > env.txt"])
`, nil, true)

	if err := RunTask(context.Background(), root, "c", tasks, RunOptions{}); err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	if got := readFile(t, filepath.Join(root, "order.txt")); got != "a\nb\nc\n" {
		t.Errorf("unexpected order %q", got)
	}

	if err := RunTask(context.Background(), root, "env", tasks, RunOptions{}); err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if got := readFile(t, filepath.Join(root, "env.txt")); got != "hi\n" {
		t.Errorf("unexpected env output %q", got)
	}
}

func TestRunShellFailure(t *testing.T) {
	root := t.TempDir()
	tasks := loadTasks(t, root, `
def configure():
    task(short = "fail", cmds = ["false", "echo unreachable > out.txt"])
    task(short = "stop", cmds = ["exit 0", "echo unreachable > out.txt"])
    task(short = "mkdir", cmds = ["mkdir -p a/b", "rm -r a"])
`, nil, true)

	if err := RunTask(context.Background(), root, "fail", tasks, RunOptions{}); err == nil {
		t.Fatal("expected the failing command to fail the task")
	}

	if err := RunTask(context.Background(), root, "stop", tasks, RunOptions{}); err != nil {
		t.Fatalf("exit 0 should end the task successfully: %v", err)
	}

	if fileExists(filepath.Join(root, "out.txt")) {
		t.Error("commands after a failure or exit must not run")
	}

	if err := RunTask(context.Background(), root, "mkdir", tasks, RunOptions{}); err != nil {
		t.Fatalf("posix helpers: %v", err)
	}
	if fileExists(filepath.Join(root, "a")) {
		t.Error("rm -r did not remove the directory")
	}
}

func TestRunParallel(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)

	barrier := func(ctx context.Context, env *steps.Env) error {
		wg.Done()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("steps did not run concurrently")
		}
	}

	tasks := TaskList{
		"both": stepTask("both", ModeParallel, &funcStep{"one", barrier}, &funcStep{"two", barrier}),
	}

	if err := RunTask(context.Background(), t.TempDir(), "both", tasks, RunOptions{}); err != nil {
		t.Fatalf("RunTask: %v", err)
	}
}

func TestRunParallelFailureCancels(t *testing.T) {
	failing := &funcStep{"fail", func(ctx context.Context, env *steps.Env) error {
		return errors.New("broken image")
	}}
	waiting := &funcStep{"wait", func(ctx context.Context, env *steps.Env) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return errors.New("not cancelled")
		}
	}}

	tasks := TaskList{"both": stepTask("both", ModeParallel, failing, waiting)}

	err := RunTask(context.Background(), t.TempDir(), "both", tasks, RunOptions{})
	if err == nil || !strings.Contains(err.Error(), "broken image") {
		t.Fatalf("expected the first failure, got %v", err)
	}
}

func TestRunSharedDependency(t *testing.T) {
	var lock sync.Mutex
	runs := 0
	shared := stepTask("shared", ModeSeries, &funcStep{"count", func(ctx context.Context, env *steps.Env) error {
		lock.Lock()
		defer lock.Unlock()
		runs++
		return nil
	}})

	left := &Task{Short: "left", Mode: ModeSeries, Deps: []string{"shared"}}
	right := &Task{Short: "right", Mode: ModeSeries, Deps: []string{"shared"}}
	all := &Task{Short: "all", Mode: ModeParallel, Cmds: []TaskCmd{TaskCmdTaskRef{Name: "left"}, TaskCmdTaskRef{Task: right}}}

	tasks := TaskList{"shared": shared, "left": left, "right": right, "all": all}
	if err := RunTask(context.Background(), t.TempDir(), "all", tasks, RunOptions{}); err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	if runs != 1 {
		t.Errorf("shared dependency ran %d times", runs)
	}
}

func TestRunRecursionAndMissingTasks(t *testing.T) {
	root := t.TempDir()
	tasks := loadTasks(t, root, `
def configure():
    task(short = "a", deps = ["b"])
    task(short = "b", cmds = [series("a")])
    task(short = "broken", deps = ["missing"])
    task(short = "ref", cmds = [series("nope")])
`, nil, true)

	err := RunTask(context.Background(), root, "a", tasks, RunOptions{})
	if err == nil || !strings.Contains(err.Error(), "recursively") {
		t.Errorf("expected a recursion error, got %v", err)
	}

	err = RunTask(context.Background(), root, "unknown", tasks, RunOptions{})
	if err == nil || !strings.Contains(err.Error(), "Task unknown not found") {
		t.Errorf("unexpected error %v", err)
	}

	for _, name := range []string{"broken", "ref"} {
		err = RunTask(context.Background(), root, name, tasks, RunOptions{})
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Errorf("%s: expected a missing task error, got %v", name, err)
		}
	}
}

func TestRunDryRun(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "dest"), 0o755); err != nil {
		t.Fatal(err)
	}

	tasks := loadTasks(t, root, `
def configure():
    task(short = "dry", cmds = [clean("//dest"), "echo x > out.txt"])
`, nil, true)

	if err := RunTask(context.Background(), root, "dry", tasks, RunOptions{DryRun: true}); err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	if !fileExists(filepath.Join(root, "dest")) || fileExists(filepath.Join(root, "out.txt")) {
		t.Error("a dry run must not change any files")
	}
}

func TestRunSinceLastRun(t *testing.T) {
	var seen []time.Time
	record := &funcStep{"record", func(ctx context.Context, env *steps.Env) error {
		seen = append(seen, env.Since)
		return nil
	}}

	tasks := TaskList{"assets": stepTask("assets", ModeSeries, record)}
	history := NewHistory()
	before := time.Now()

	for i := 0; i < 2; i++ {
		if err := RunTask(context.Background(), t.TempDir(), "assets", tasks, RunOptions{History: history}); err != nil {
			t.Fatalf("RunTask: %v", err)
		}
	}

	if !seen[0].IsZero() {
		t.Errorf("the first run should see no previous run, got %v", seen[0])
	}
	if seen[1].Before(before) {
		t.Errorf("the second run should see the start of the first run, got %v", seen[1])
	}
	if !history.LastRun("assets").After(seen[1]) && !history.LastRun("assets").Equal(seen[1]) {
		t.Errorf("history was not updated")
	}
}

func TestRunFreshness(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "in.txt")
	output := filepath.Join(root, "out.txt")

	if err := os.WriteFile(input, []byte("in"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(output, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(input, past, past); err != nil {
		t.Fatal(err)
	}

	tasks := loadTasks(t, root, `
def configure():
    task(short = "gen", inputs = ["in.txt"], outputs = ["out.txt"], cmds = ["echo new > out.txt"])
    task(short = "skip", skip_if_exists = ["in.txt"], cmds = ["echo skipped > skip.txt"])
`, nil, true)

	if err := RunTask(context.Background(), root, "gen", tasks, RunOptions{}); err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if got := readFile(t, output); got != "old" {
		t.Errorf("an up to date task should be skipped, output is %q", got)
	}

	if err := RunTask(context.Background(), root, "gen", tasks, RunOptions{Force: true}); err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if got := readFile(t, output); got != "new\n" {
		t.Errorf("a forced task should run, output is %q", got)
	}

	if err := RunTask(context.Background(), root, "skip", tasks, RunOptions{}); err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if fileExists(filepath.Join(root, "skip.txt")) {
		t.Error("skip_if_exists was ignored")
	}
}

func TestRunCancelled(t *testing.T) {
	root := t.TempDir()
	tasks := loadTasks(t, root, `
def configure():
    task(short = "a", cmds = ["echo a > out.txt"])
`, nil, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := RunTask(ctx, root, "a", tasks, RunOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func writeProjectFile(t *testing.T, root, name string, content []byte) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
}

func setupProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	var img bytes.Buffer
	if err := png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}

	writeProjectFile(t, root, "src/css/styles.pcss", []byte("@import \"blocks/header\";\nbody { margin: 0; }\n"))
	writeProjectFile(t, root, "src/css/blocks/header.pcss", []byte("@b header {\n  font-size: 24px;\n  @e logo { width: 100px; }\n}\n"))
	writeProjectFile(t, root, "src/index.html", []byte("<!DOCTYPE html>\n<html>\n  <body>\n    <p>Hello</p>\n  </body>\n</html>\n"))
	writeProjectFile(t, root, "src/img/logo.png", img.Bytes())
	writeProjectFile(t, root, "src/js/main.js", []byte("import { greet } from './greet.js';\ngreet();\n"))
	writeProjectFile(t, root, "src/js/greet.js", []byte("export function greet() {\n  document.title = 'Hello';\n}\n"))
	writeProjectFile(t, root, "src/js/vendor/slider.js", []byte("window.slider = {};\n"))
	writeProjectFile(t, root, "src/data/tours.json", []byte("{\n  \"tours\": []\n}\n"))
	writeProjectFile(t, root, "dest/stale.txt", []byte("left over"))
	return root
}

func TestBuildDevelopment(t *testing.T) {
	root := setupProject(t)

	tasks, _, err := LoadScript(context.Background(), root, nil, testConfig(t, true), true)
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}

	if err := RunTask(context.Background(), root, "build", tasks, RunOptions{Development: true, Quiet: true}); err != nil {
		t.Fatalf("build: %v", err)
	}

	dest := filepath.Join(root, "dest")
	for _, name := range []string{"css/styles.css", "css/styles.css.map", "index.html", "img/logo.png", "js/main.js", "js/main.js.map", "js/vendor/slider.js", "data/tours.json"} {
		if !fileExists(filepath.Join(dest, filepath.FromSlash(name))) {
			t.Errorf("dest/%s is missing", name)
		}
	}

	if fileExists(filepath.Join(dest, "stale.txt")) {
		t.Error("clean did not run before the build")
	}
	if fileExists(filepath.Join(dest, "css", "styles.css.br")) {
		t.Error("development builds must not compress")
	}

	css := readFile(t, filepath.Join(dest, "css", "styles.css"))
	for _, part := range []string{".header", ".header__logo", "1.5rem", "sourceMappingURL=styles.css.map"} {
		if !strings.Contains(css, part) {
			t.Errorf("styles.css is missing %q:\n%s", part, css)
		}
	}
}

func TestBuildProduction(t *testing.T) {
	root := setupProject(t)

	tasks, _, err := LoadScript(context.Background(), root, nil, testConfig(t, false), true)
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}

	if err := RunTask(context.Background(), root, "build", tasks, RunOptions{Quiet: true}); err != nil {
		t.Fatalf("build: %v", err)
	}

	dest := filepath.Join(root, "dest")
	for _, name := range []string{"css/styles.css.map", "js/main.js.map"} {
		if fileExists(filepath.Join(dest, filepath.FromSlash(name))) {
			t.Errorf("production builds must not write dest/%s", name)
		}
	}

	for _, name := range []string{"css/styles.css.br", "css/styles.css.gz", "index.html.gz", "js/main.js.br"} {
		if !fileExists(filepath.Join(dest, filepath.FromSlash(name))) {
			t.Errorf("dest/%s is missing", name)
		}
	}

	css := readFile(t, filepath.Join(dest, "css", "styles.css"))
	if strings.Contains(css, "sourceMappingURL") || strings.Contains(css, "\n  ") {
		t.Errorf("styles.css should be minified:\n%s", css)
	}

	if got := readFile(t, filepath.Join(dest, "data", "tours.json")); got != `{"tours":[]}` {
		t.Errorf("tours.json should be minified, got %q", got)
	}
}

func TestCleanTask(t *testing.T) {
	root := setupProject(t)

	tasks, _, err := LoadScript(context.Background(), root, nil, testConfig(t, true), true)
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}

	if err := RunTask(context.Background(), root, "clean", tasks, RunOptions{Development: true}); err != nil {
		t.Fatalf("clean: %v", err)
	}
	if fileExists(filepath.Join(root, "dest")) {
		t.Error("clean did not remove the destination tree")
	}
}
