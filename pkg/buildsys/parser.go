package buildsys

import (
	"context"
	_ "embed"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"mvdan.cc/sh/v3/syntax"

	"github.com/yehorDorosh/mne-travel/pkg/buildlog"
	"github.com/yehorDorosh/mne-travel/pkg/config"
)

// defaultScript declares the standard pipeline for projects without their own script
//
//go:embed default.star
var defaultScript []byte

type parserCtx struct {
	ctx          context.Context
	cfg          *config.Config
	options      map[string]ScriptOption
	optionValues map[string]string
	envOverrides map[string]string
	yamlCache    map[string]interface{}
	filepath     string
	projectRoot  string
	tasks        []*Task
	initPhase    bool
}

func getCtx(thread *starlark.Thread) *parserCtx {
	return thread.Local("parserCtx").(*parserCtx)
}

// shellCommand turns command words into a single shell command. Leading NAME=value words become
// variable assignments, paths are made relative to base.
func shellCommand(parts []starlark.Value, base string) (string, error) {
	words := make([]string, 0, len(parts))
	assigns := true

	for idx, part := range parts {
		var value string
		switch part := part.(type) {
		case starlark.String:
			value = part.GoString()
		case StarlarkPath:
			value = string(part)
			// absolute paths cause issues on Windows
			if rel, err := filepath.Rel(base, value); err == nil {
				value = rel
			}
			value = filepath.ToSlash(value)
		default:
			return "", eris.Errorf("found argument #%d of type %s but only strings and paths are supported: %s", idx, part.Type(), part.String())
		}

		if assigns {
			name, assigned, ok := strings.Cut(value, "=")
			if ok && syntax.ValidName(name) {
				quoted, err := syntax.Quote(assigned, syntax.LangBash)
				if err != nil {
					return "", eris.Wrapf(err, "failed to quote %s", value)
				}
				words = append(words, name+"="+quoted)
				continue
			}
			assigns = false
		}

		quoted, err := syntax.Quote(value, syntax.LangBash)
		if err != nil {
			return "", eris.Wrapf(err, "failed to quote %s", value)
		}
		words = append(words, quoted)
	}

	return strings.Join(words, " "), nil
}

// patternList normalizes glob patterns relative to the task's base directory
func patternList(ctx *parserCtx, base string, value starlark.Value, field string) ([]string, error) {
	patterns, err := stringList(value, field)
	if err != nil {
		return nil, err
	}

	for idx, pattern := range patterns {
		patterns[idx] = normalizePath(ctx, base, pattern)
	}
	return patterns, nil
}

func option(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var defaultValue starlark.String
	var help string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &defaultValue, "help?", &help)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if !ctx.initPhase {
		return nil, eris.New("can only be called during the init phase (in the global scope)")
	}

	ctx.options[name] = ScriptOption{
		DefaultValue: defaultValue,
		Help:         help,
	}

	value, ok := ctx.optionValues[name]
	if ok {
		return starlark.String(value), nil
	}

	return defaultValue, nil
}

func newHiddenTask(ctx *parserCtx, mode TaskMode) *Task {
	return &Task{
		Short:  "auto#" + nanoid.New(),
		Base:   normalizePath(ctx, "."),
		Env:    map[string]string{},
		Mode:   mode,
		Hidden: true,
	}
}

func registerTask(ctx *parserCtx, task *Task) error {
	if !task.Hidden {
		for _, other := range ctx.tasks {
			if other.Short == task.Short {
				return eris.Errorf("task %s is declared twice", task.Short)
			}
		}
	}

	ctx.tasks = append(ctx.tasks, task)
	return nil
}

func task(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var deps, skipIfExists, inputs, outputs, cmds starlark.Value
	var env *starlark.Dict
	var base string

	ctx := getCtx(thread)
	task := &Task{Mode: ModeSeries}

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "short?", &task.Short, "desc?", &task.Desc,
		"deps?", &deps, "base?", &base, "inputs?", &inputs, "outputs?", &outputs,
		"skip_if_exists?", &skipIfExists, "env?", &env, "cmds?", &cmds, "hidden?", &task.Hidden)
	if err != nil {
		return nil, err
	}

	if task.Short == "" {
		task.Hidden = true
		task.Short = "auto#" + nanoid.New()
	}

	if task.Short == "configure" {
		return nil, eris.New(`the task name "configure" is reserved, please use a different name`)
	}

	if strings.ContainsAny(task.Short, "= ") {
		return nil, eris.Errorf("invalid task name %q, names can't contain spaces or =", task.Short)
	}

	if base == "" {
		base = "."
	}
	task.Base = normalizePath(ctx, base)
	task.Env = map[string]string{}

	task.Deps, err = stringList(deps, "deps")
	if err != nil {
		return nil, err
	}

	task.Inputs, err = patternList(ctx, base, inputs, "inputs")
	if err != nil {
		return nil, err
	}

	task.Outputs, err = patternList(ctx, base, outputs, "outputs")
	if err != nil {
		return nil, err
	}

	task.SkipIfExists, err = patternList(ctx, base, skipIfExists, "skip_if_exists")
	if err != nil {
		return nil, err
	}

	if env != nil {
		for _, item := range env.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, eris.Errorf("found key type %s in env map but only strings are supported", item[0].Type())
			}

			value, ok := item[1].(starlark.String)
			if !ok {
				return nil, eris.Errorf("found value of type %s for key %s but only strings are supported", item[1].Type(), key.GoString())
			}
			task.Env[key.GoString()] = value.GoString()
		}
	}

	task.Cmds = make([]TaskCmd, 0)
	if cmds != nil && cmds != starlark.None {
		iterable, ok := cmds.(starlark.Iterable)
		if !ok {
			return nil, eris.Errorf("%s: cmds must be a list, got %s", fn.Name(), cmds.Type())
		}

		iter := iterable.Iterate()
		defer iter.Done()

		var item starlark.Value
		for idx := 0; iter.Next(&item); idx++ {
			switch value := item.(type) {
			case starlark.String:
				task.Cmds = append(task.Cmds, TaskCmdScript{TaskName: task.Short, Content: value.GoString(), Index: idx})
			case starlark.Tuple, *starlark.List:
				indexable := value.(starlark.Indexable)
				parts := make([]starlark.Value, indexable.Len())
				for p := range parts {
					parts[p] = indexable.Index(p)
				}

				content, err := shellCommand(parts, task.Base)
				if err != nil {
					return nil, eris.Wrapf(err, "failed to process command #%d", idx)
				}
				task.Cmds = append(task.Cmds, TaskCmdScript{TaskName: task.Short, Content: content, Index: idx})
			case *Task:
				task.Cmds = append(task.Cmds, TaskCmdTaskRef{Task: value})
			case *StarlarkStep:
				task.Cmds = append(task.Cmds, TaskCmdStep{Step: value.Step})
			default:
				return nil, eris.Errorf("%s: unexpected type %s in cmds. Only strings, tuples, lists, tasks and steps are valid", fn.Name(), item.Type())
			}
		}
	}

	if len(task.Inputs) > 0 && len(task.Outputs) == 0 {
		warn(thread, "%s: found inputs but no outputs", fn.Name())
	}

	if err := registerTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// composite implements series() and parallel(). Items are task names, task values or steps.
func composite(mode TaskMode) builtinFunc {
	return func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		ctx := getCtx(thread)
		task := newHiddenTask(ctx, mode)

		if err := starlark.UnpackArgs(fn.Name(), nil, kwargs, "desc?", &task.Desc); err != nil {
			return nil, err
		}

		if len(args) == 0 {
			return nil, eris.Errorf("%s: expects at least one task or step", fn.Name())
		}

		for idx, item := range args {
			switch value := item.(type) {
			case starlark.String:
				task.Cmds = append(task.Cmds, TaskCmdTaskRef{Name: value.GoString()})
			case *Task:
				task.Cmds = append(task.Cmds, TaskCmdTaskRef{Task: value})
			case *StarlarkStep:
				task.Cmds = append(task.Cmds, TaskCmdStep{Step: value.Step})
			default:
				return nil, eris.Errorf("%s: argument #%d has type %s but only task names, tasks and steps are valid", fn.Name(), idx+1, item.Type())
			}
		}

		if err := registerTask(ctx, task); err != nil {
			return nil, err
		}
		return task, nil
	}
}

func scriptBuiltins(cfg *config.Config) starlark.StringDict {
	builtins := starlark.StringDict{
		"DEVELOPMENT":  starlark.Bool(cfg.Development()),
		"OS":           starlark.String(runtime.GOOS),
		"ARCH":         starlark.String(runtime.GOARCH),
		"info":         starlark.NewBuiltin("info", starInfo),
		"warn":         starlark.NewBuiltin("warn", starWarn),
		"error":        starlark.NewBuiltin("error", starError),
		"resolve_path": starlark.NewBuiltin("resolve_path", resolvePath),
		"option":       starlark.NewBuiltin("option", option),
		"getenv":       starlark.NewBuiltin("getenv", getenv),
		"setenv":       starlark.NewBuiltin("setenv", setenv),
		"prepend_path": starlark.NewBuiltin("prepend_path", prependPathDir),
		"read_yaml":    starlark.NewBuiltin("read_yaml", readYaml),
		"isdir":        starlark.NewBuiltin("isdir", starIsdir),
		"isfile":       starlark.NewBuiltin("isfile", starIsfile),
		"execute":      starlark.NewBuiltin("execute", starExec),
		"task":         starlark.NewBuiltin("task", task),
		"series":       starlark.NewBuiltin("series", composite(ModeSeries)),
		"parallel":     starlark.NewBuiltin("parallel", composite(ModeParallel)),
	}

	for name, fn := range stepBuiltins {
		builtins[name] = starlark.NewBuiltin(name, fn)
	}
	return builtins
}

// RunScript executes a pipeline script and returns the declared options. If doConfigure is true,
// the script's configure function is called and the declared tasks are collected and returned.
func RunScript(ctx context.Context, filename, projectRoot string, options map[string]string, cfg *config.Config, doConfigure bool) (TaskList, map[string]ScriptOption, error) {
	source, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "failed to read %s", filename)
	}

	return execScript(ctx, filename, source, projectRoot, options, cfg, doConfigure)
}

// LoadScript runs the project's pipeline script (config.Script, relative to the project root).
// Projects without one get the built-in default pipeline.
func LoadScript(ctx context.Context, projectRoot string, options map[string]string, cfg *config.Config, doConfigure bool) (TaskList, map[string]ScriptOption, error) {
	filename := cfg.Script
	if !filepath.IsAbs(filename) {
		filename = filepath.Join(projectRoot, filename)
	}

	_, err := os.Stat(filename)
	if err == nil {
		return RunScript(ctx, filename, projectRoot, options, cfg, doConfigure)
	}

	if !eris.Is(err, os.ErrNotExist) {
		return nil, nil, eris.Wrapf(err, "failed to check %s", filename)
	}

	if cfg.Script != config.DefaultScript {
		return nil, nil, eris.Errorf("pipeline script %s does not exist", filename)
	}

	buildlog.Log(ctx).Debug().Msgf("%s not found, using the default pipeline", cfg.Script)
	return execScript(ctx, filename, defaultScript, projectRoot, options, cfg, doConfigure)
}

func execScript(ctx context.Context, filename string, source []byte, projectRoot string, options map[string]string, cfg *config.Config, doConfigure bool) (TaskList, map[string]ScriptOption, error) {
	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, nil, err
	}

	filename, err = filepath.Abs(filename)
	if err != nil {
		return nil, nil, err
	}

	if options == nil {
		options = map[string]string{}
	}

	thread := &starlark.Thread{
		Name: "main",
		Print: func(thread *starlark.Thread, msg string) {
			buildlog.Log(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	threadCtx := parserCtx{
		ctx:          ctx,
		cfg:          cfg,
		filepath:     filename,
		projectRoot:  projectRoot,
		options:      make(map[string]ScriptOption),
		optionValues: options,
		envOverrides: make(map[string]string),
		tasks:        make([]*Task, 0),
		yamlCache:    make(map[string]interface{}),
		initPhase:    true,
	}
	thread.SetLocal("parserCtx", &threadCtx)

	scriptName := simplifyPath(&threadCtx, filename)
	globals, err := starlark.ExecFile(thread, scriptName, source, scriptBuiltins(cfg))
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, nil, eris.Errorf("failed to execute %s:\n%s", scriptName, evalError.Backtrace())
		}
		return nil, nil, eris.Wrapf(err, "failed to execute %s", scriptName)
	}

	tasks := TaskList{}
	if !doConfigure {
		return tasks, threadCtx.options, nil
	}

	configure, ok := globals["configure"]
	if !ok {
		return nil, nil, eris.Errorf("%s did not declare a configure function", scriptName)
	}

	configureFunc, ok := configure.(starlark.Callable)
	if !ok {
		return nil, nil, eris.Errorf("%s did declare a configure value but it's not a function", scriptName)
	}

	threadCtx.initPhase = false
	_, err = starlark.Call(thread, configureFunc, starlark.Tuple{}, nil)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, nil, eris.New(evalError.Backtrace())
		}
		return nil, nil, eris.Wrapf(err, "failed configure call in %s", scriptName)
	}

	for _, task := range threadCtx.tasks {
		for name, value := range threadCtx.envOverrides {
			if _, present := task.Env[name]; !present {
				task.Env[name] = value
			}
		}

		if !task.Hidden {
			tasks[task.Short] = task
		}
	}

	return tasks, threadCtx.options, nil
}
