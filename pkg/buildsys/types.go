package buildsys

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	starsyntax "go.starlark.net/syntax"
	"mvdan.cc/sh/v3/syntax"

	"github.com/yehorDorosh/mne-travel/pkg/steps"
)

// TaskMode decides how the commands of a task are executed
type TaskMode string

const (
	// ModeSeries runs the commands one after another and stops at the first failure
	ModeSeries TaskMode = "series"
	// ModeParallel runs all commands at once; the first failure cancels the others
	ModeParallel TaskMode = "parallel"
)

// TaskCmd is a single entry in a task's command list
type TaskCmd interface {
	// Describe returns the text logged before the command runs
	Describe() string
}

// TaskCmdScript is a shell snippet executed by mvdan.cc/sh
type TaskCmdScript struct {
	TaskName string
	Content  string
	Index    int
}

func (s TaskCmdScript) Describe() string {
	return s.Content
}

// ToShellStmts parses the snippet
func (s TaskCmdScript) ToShellStmts(parser *syntax.Parser) ([]*syntax.Stmt, error) {
	reader := strings.NewReader(s.Content)
	result, err := parser.Parse(reader, fmt.Sprintf("%s:%d", s.TaskName, s.Index))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse command %s", s.Content)
	}

	return result.Stmts, nil
}

// TaskCmdTaskRef runs another task. Either Task is set (the script passed a task value) or
// Name is (the script passed the task's short name).
type TaskCmdTaskRef struct {
	Task *Task
	Name string
}

func (t TaskCmdTaskRef) Describe() string {
	if t.Task != nil {
		return t.Task.Short
	}
	return t.Name
}

// Resolve looks up the referenced task
func (t TaskCmdTaskRef) Resolve(tasks TaskList) (*Task, error) {
	if t.Task != nil {
		return t.Task, nil
	}

	task, ok := tasks[t.Name]
	if !ok {
		return nil, eris.Errorf("Task %s not found", t.Name)
	}
	return task, nil
}

// TaskCmdStep runs an asset step
type TaskCmdStep struct {
	Step steps.Step
}

func (s TaskCmdStep) Describe() string {
	return s.Step.Name()
}

// Task contains the processed values passed to task(), series() or parallel() by the script
type Task struct {
	Env          map[string]string
	Short        string
	Desc         string
	Base         string
	Inputs       []string
	Deps         []string
	SkipIfExists []string
	Outputs      []string
	Cmds         []TaskCmd
	Mode         TaskMode
	Hidden       bool
}

// TaskList maps short names to each visible task
type TaskList map[string]*Task

// ScriptOption is an option declared by the script with option()
type ScriptOption struct {
	DefaultValue starlark.String
	Help         string
}

func (o ScriptOption) Default() string {
	return o.DefaultValue.GoString()
}

// String returns a string representation of the task
func (t *Task) String() string {
	if t.Hidden {
		return fmt.Sprintf("<%s %s>", t.Mode, t.Short)
	}
	return fmt.Sprintf("<Task %s: %s>", t.Short, t.Desc)
}

// Type always returns "task"
func (t *Task) Type() string {
	return "task"
}

// Freeze doesn't do anything since tasks can't be modified from scripts
func (t *Task) Freeze() {}

func (t *Task) Truth() starlark.Bool {
	return starlark.True
}

// Hash always returns an error; tasks are never used as dict keys
func (t *Task) Hash() (uint32, error) {
	return 0, eris.New("task is not a hashable type")
}

// StarlarkStep wraps a steps.Step so that scripts can pass it to task(), series() and parallel()
type StarlarkStep struct {
	Step steps.Step
}

func (s *StarlarkStep) String() string {
	return fmt.Sprintf("<step %s>", s.Step.Name())
}

func (s *StarlarkStep) Type() string {
	return "step"
}

func (s *StarlarkStep) Freeze() {}

func (s *StarlarkStep) Truth() starlark.Bool {
	return starlark.True
}

func (s *StarlarkStep) Hash() (uint32, error) {
	return 0, eris.New("step is not a hashable type")
}

// StarlarkPath is an absolute path returned by resolve_path()
type StarlarkPath string

func (p StarlarkPath) String() string {
	return starlark.String(p).String()
}

func (p StarlarkPath) Type() string {
	return "path"
}

func (p StarlarkPath) Freeze() {}

func (p StarlarkPath) Truth() starlark.Bool {
	return p != ""
}

func (p StarlarkPath) Hash() (uint32, error) {
	return starlark.String(p).Hash()
}

func (p StarlarkPath) CompareSameType(op starsyntax.Token, y_ starlark.Value, depth int) (bool, error) {
	y := y_.(StarlarkPath)

	switch op {
	case starsyntax.EQL:
		return p == y, nil
	case starsyntax.NEQ:
		return p != y, nil
	case starsyntax.LT:
		return p < y, nil
	case starsyntax.LE:
		return p <= y, nil
	case starsyntax.GT:
		return p > y, nil
	case starsyntax.GE:
		return p >= y, nil
	}

	return false, eris.Errorf("unknown operator %v", op)
}

// Binary supports path + "suffix" so that scripts can build patterns from resolved paths
func (p StarlarkPath) Binary(op starsyntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	if op != starsyntax.PLUS {
		return nil, nil
	}

	suffix, ok := y.(starlark.String)
	if !ok {
		return nil, nil
	}

	if side == starlark.Left {
		return StarlarkPath(string(p) + suffix.GoString()), nil
	}
	return starlark.String(suffix.GoString() + string(p)), nil
}

func (p StarlarkPath) Index(i int) starlark.Value {
	return starlark.String(p[i])
}

func (p StarlarkPath) Len() int {
	return len(p)
}

func (p StarlarkPath) Slice(start, end, step int) starlark.Value {
	return starlark.String(p).Slice(start, end, step)
}
