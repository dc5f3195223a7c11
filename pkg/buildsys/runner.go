package buildsys

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/yehorDorosh/mne-travel/pkg/buildlog"
	"github.com/yehorDorosh/mne-travel/pkg/fileset"
	"github.com/yehorDorosh/mne-travel/pkg/posix"
	"github.com/yehorDorosh/mne-travel/pkg/steps"
)

// RunOptions controls a RunTask invocation
type RunOptions struct {
	// DryRun only logs commands and steps
	DryRun bool
	// Force ignores skip_if_exists and the input/output freshness check of the requested task
	Force       bool
	Development bool
	// Quiet hides progress bars
	Quiet bool
	// History is shared between invocations so that since_last_run steps see the previous run.
	// A fresh history is used if nil.
	History *History
}

// History records the start time of each task's last successful run
type History struct {
	lock    sync.Mutex
	lastRun map[string]time.Time
}

func NewHistory() *History {
	return &History{lastRun: make(map[string]time.Time)}
}

// LastRun returns the zero time if the task hasn't completed yet
func (h *History) LastRun(task string) time.Time {
	h.lock.Lock()
	defer h.lock.Unlock()

	return h.lastRun[task]
}

func (h *History) record(task string, start time.Time) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.lastRun[task] = start
}

type taskState struct {
	done chan struct{}
	err  error
}

type (
	runtimeCtxKey struct{}
	runtimeCtx    struct {
		projectRoot string
		tasks       TaskList
		opts        RunOptions
		lock        sync.Mutex
		states      map[string]*taskState
	}
)

func getRuntimeCtx(ctx context.Context) *runtimeCtx {
	return ctx.Value(runtimeCtxKey{}).(*runtimeCtx)
}

var errShellExit = eris.New("shell exited")

var defaultExecHandler = interp.DefaultExecHandler(2 * time.Second)

func execHandler(ctx context.Context, args []string) error {
	if len(args) > 0 && posix.Handles(args[0]) {
		// always use our cross-platform implementation for these operations to make sure
		// they behave consistently
		return posix.Run(interp.HandlerCtx(ctx).Dir, args)
	}

	return defaultExecHandler(ctx, args)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

func newShellRunner(task *Task) (*interp.Runner, error) {
	runner, err := interp.New(
		interp.Dir(task.Base),
		interp.Env(expand.ListEnviron(getEnvVars(task.Env)...)),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, os.Stdout, os.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return nil, eris.Wrap(err, "Failed to initialize runner")
	}
	return runner, nil
}

// checkGraph makes sure that every task reachable from root exists and that no task depends on
// itself, before anything runs
func checkGraph(root *Task, tasks TaskList) error {
	const (
		visiting = 1
		visited  = 2
	)
	marks := make(map[*Task]int)

	var visit func(task *Task) error
	visit = func(task *Task) error {
		switch marks[task] {
		case visiting:
			return eris.Errorf("Task %s was called recursively", task.Short)
		case visited:
			return nil
		}
		marks[task] = visiting

		for _, dep := range task.Deps {
			depTask, ok := tasks[dep]
			if !ok {
				return eris.Errorf("Task %s not found", dep)
			}

			if err := visit(depTask); err != nil {
				return err
			}
		}

		for _, cmd := range task.Cmds {
			ref, ok := cmd.(TaskCmdTaskRef)
			if !ok {
				continue
			}

			subTask, err := ref.Resolve(tasks)
			if err != nil {
				return err
			}

			if err := visit(subTask); err != nil {
				return err
			}
		}

		marks[task] = visited
		return nil
	}

	return visit(root)
}

// RunTask executes the named task after its dependencies. Every task runs at most once per call.
func RunTask(ctx context.Context, projectRoot, name string, tasks TaskList, opts RunOptions) error {
	task, found := tasks[name]
	if !found {
		return eris.Errorf("Task %s not found", name)
	}

	if err := checkGraph(task, tasks); err != nil {
		return err
	}

	if opts.History == nil {
		opts.History = NewHistory()
	}

	rctx := runtimeCtx{
		projectRoot: projectRoot,
		tasks:       tasks,
		opts:        opts,
		states:      make(map[string]*taskState),
	}

	ctx = context.WithValue(ctx, runtimeCtxKey{}, &rctx)
	return runTaskInternal(ctx, task, opts.Force)
}

func runTaskInternal(ctx context.Context, task *Task, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rctx := getRuntimeCtx(ctx)
	rctx.lock.Lock()
	state, ok := rctx.states[task.Short]
	if ok {
		rctx.lock.Unlock()

		// another branch started this task already
		select {
		case <-state.done:
		case <-ctx.Done():
			return ctx.Err()
		}

		buildlog.Log(ctx).Debug().Msgf("Task %s already run", task.Short)
		return state.err
	}

	state = &taskState{done: make(chan struct{})}
	rctx.states[task.Short] = state
	rctx.lock.Unlock()

	state.err = executeTask(ctx, task, force)
	close(state.done)
	return state.err
}

// upToDate implements skip_if_exists and the input/output freshness check
func upToDate(ctx context.Context, task *Task) (bool, error) {
	skipList, err := fileset.Resolve(task.SkipIfExists)
	if err != nil {
		return false, eris.Wrapf(err, "failed to resolve skip_if_exists list")
	}

	found := 0
	for _, item := range skipList {
		_, err := os.Stat(item)
		if err == nil {
			found++
		} else if !eris.Is(err, os.ErrNotExist) {
			return false, eris.Wrapf(err, "Failed to check %s", item)
		}
	}

	if found > 0 && found == len(skipList) {
		buildlog.Log(ctx).Info().Msg("skipped because all skip files exist")
		return true, nil
	}

	inputList, err := fileset.Resolve(task.Inputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve inputs")
	}

	var newestInput time.Time
	for _, item := range inputList {
		info, err := os.Stat(item)
		if err != nil {
			return false, eris.Wrapf(err, "Failed to check input %s", item)
		}

		if info.ModTime().After(newestInput) {
			newestInput = info.ModTime()
		}
	}

	if newestInput.IsZero() {
		return false, nil
	}

	outputList, err := fileset.Resolve(task.Outputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve output list")
	}

	var newestOutput time.Time
	oldestOutput := time.Now()
	for _, item := range outputList {
		info, err := os.Stat(item)
		if err != nil {
			if eris.Is(err, os.ErrNotExist) {
				// a missing output always means that the task has to run
				return false, nil
			}
			return false, eris.Wrapf(err, "Failed to check output %s", item)
		}

		mt := info.ModTime()
		if mt.After(newestOutput) {
			newestOutput = mt
		}
		if mt.Before(oldestOutput) {
			oldestOutput = mt
		}
	}

	if newestOutput.Sub(oldestOutput) > 10*time.Minute {
		buildlog.Log(ctx).Warn().
			Msgf("oldest output is %f minutes older than the newest output", newestOutput.Sub(oldestOutput).Minutes())
	}

	if newestOutput.After(newestInput) {
		buildlog.Log(ctx).Info().
			Msgf("nothing to do (output is %f seconds newer)", newestOutput.Sub(newestInput).Seconds())
		return true, nil
	}

	return false, nil
}

func executeTask(ctx context.Context, task *Task, force bool) error {
	rctx := getRuntimeCtx(ctx)
	if !task.Hidden {
		ctx = buildlog.WithTask(ctx, task.Short)
	}

	for _, dep := range task.Deps {
		err := runTaskInternal(ctx, rctx.tasks[dep], false)
		if err != nil {
			return eris.Wrapf(err, "Task %s failed due to its dependency %s", task.Short, dep)
		}
	}

	if !force {
		skip, err := upToDate(ctx, task)
		if err != nil || skip {
			return err
		}
	}

	start := time.Now()
	env := &steps.Env{
		Root:        rctx.projectRoot,
		Development: rctx.opts.Development,
		Since:       rctx.opts.History.LastRun(task.Short),
		Quiet:       rctx.opts.Quiet,
		RunTask: func(ctx context.Context, name string) error {
			opts := rctx.opts
			opts.Force = false
			return RunTask(ctx, rctx.projectRoot, name, rctx.tasks, opts)
		},
	}

	if !task.Hidden {
		buildlog.Log(ctx).Info().Msgf("Starting %s", task.Short)
	}

	var err error
	if task.Mode == ModeParallel {
		err = runParallel(ctx, task, env, force)
	} else {
		err = runSeries(ctx, task, env, force)
	}
	if err != nil {
		return err
	}

	if !rctx.opts.DryRun {
		rctx.opts.History.record(task.Short, start)
	}

	if !task.Hidden {
		buildlog.Log(ctx).Info().Msgf("Finished %s after %s", task.Short, time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func runSeries(ctx context.Context, task *Task, env *steps.Env, force bool) error {
	var shell *interp.Runner

	for _, cmd := range task.Cmds {
		if _, ok := cmd.(TaskCmdScript); ok && shell == nil {
			var err error
			shell, err = newShellRunner(task)
			if err != nil {
				return err
			}
		}

		err := runCmd(ctx, task, cmd, env, shell, force)
		if eris.Is(err, errShellExit) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}

func runParallel(ctx context.Context, task *Task, env *steps.Env, force bool) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, cmd := range task.Cmds {
		cmd := cmd
		g.Go(func() error {
			var shell *interp.Runner
			if _, ok := cmd.(TaskCmdScript); ok {
				var err error
				shell, err = newShellRunner(task)
				if err != nil {
					return err
				}
			}

			err := runCmd(gctx, task, cmd, env, shell, force)
			if eris.Is(err, errShellExit) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

func runCmd(ctx context.Context, task *Task, cmd TaskCmd, env *steps.Env, shell *interp.Runner, force bool) error {
	rctx := getRuntimeCtx(ctx)

	switch cmd := cmd.(type) {
	case TaskCmdScript:
		stmts, err := cmd.ToShellStmts(syntax.NewParser())
		if err != nil {
			return eris.Wrap(err, "failed to parse shell script")
		}

		printer := syntax.NewPrinter(syntax.Minify(true))
		strBuffer := strings.Builder{}
		for _, stmt := range stmts {
			strBuffer.Reset()
			if err := printer.Print(&strBuffer, stmt); err != nil {
				return eris.Wrap(err, "failed to print command")
			}

			buildlog.Log(ctx).Info().Bool("command", true).Msg(strBuffer.String())
			if rctx.opts.DryRun {
				continue
			}

			if err := shell.Run(ctx, stmt); err != nil {
				return eris.Wrapf(err, "command failed: %s", strBuffer.String())
			}

			if shell.Exited() {
				return errShellExit
			}
		}
		return nil
	case TaskCmdTaskRef:
		subTask, err := cmd.Resolve(rctx.tasks)
		if err != nil {
			return err
		}
		return runTaskInternal(ctx, subTask, force)
	case TaskCmdStep:
		logger := buildlog.Log(ctx).With().Str("step", cmd.Step.Name()).Logger()
		ctx = buildlog.WithLogger(ctx, &logger)

		logger.Debug().Msgf("Running %s", cmd.Step.Name())
		if rctx.opts.DryRun {
			logger.Info().Msgf("Would run %s", cmd.Step.Name())
			return nil
		}

		if err := cmd.Step.Run(ctx, env); err != nil {
			return eris.Wrapf(err, "step %s failed", cmd.Step.Name())
		}
		return nil
	}

	return eris.Errorf("unexpected task command %+v", cmd)
}
