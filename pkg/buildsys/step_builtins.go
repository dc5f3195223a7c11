package buildsys

import (
	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"

	"github.com/yehorDorosh/mne-travel/pkg/config"
	"github.com/yehorDorosh/mne-travel/pkg/pcss"
	"github.com/yehorDorosh/mne-travel/pkg/steps"
)

type builtinFunc func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

// stepBuiltins are the script functions returning asset steps
var stepBuiltins = map[string]builtinFunc{
	"clean":    stepClean,
	"copy":     stepCopy,
	"styles":   stepStyles,
	"html":     stepHTML,
	"images":   stepImages,
	"scripts":  stepScripts,
	"data":     stepData,
	"compress": stepCompress,
	"watch":    stepWatch,
}

func wrapStep(step steps.Step) (starlark.Value, error) {
	return &StarlarkStep{Step: step}, nil
}

// fileArgs is the argument set shared by the steps that map source files to a destination
type fileArgs struct {
	src          starlark.Value
	dest         starlark.Value
	base         starlark.Value
	sinceLastRun bool
}

func (a *fileArgs) pairs() []interface{} {
	return []interface{}{"src", &a.src, "dest", &a.dest, "base?", &a.base, "since_last_run?", &a.sinceLastRun}
}

func (a *fileArgs) resolve(ctx *parserCtx) (src []string, dest, base string, err error) {
	src, err = pathList(ctx, a.src, "src")
	if err != nil {
		return
	}
	if len(src) == 0 {
		err = eris.New("src must not be empty")
		return
	}

	dest, err = pathArg(a.dest, "dest")
	if err != nil {
		return
	}
	dest = normalizePath(ctx, dest)

	if a.base != nil && a.base != starlark.None {
		base, err = pathArg(a.base, "base")
		if err != nil {
			return
		}
		if base != "" {
			base = normalizePath(ctx, base)
		}
	}
	return
}

func stylesOptions(cfg *config.Config) pcss.Options {
	opts := pcss.DefaultOptions()
	opts.PxToRem.RootValue = cfg.Styles.RootValue
	opts.PxToRem.UnitPrecision = cfg.Styles.Precision
	opts.PxToRem.PropList = cfg.Styles.PropList
	return opts
}

func stepClean(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, eris.Errorf("%s: unexpected keyword arguments", fn.Name())
	}

	if len(args) == 0 {
		return nil, eris.Errorf("%s: expects at least one path", fn.Name())
	}

	ctx := getCtx(thread)
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		items, err := pathList(ctx, arg, fn.Name())
		if err != nil {
			return nil, err
		}
		paths = append(paths, items...)
	}

	return wrapStep(&steps.Clean{Paths: paths})
}

func stepCopy(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var files fileArgs
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, files.pairs()...); err != nil {
		return nil, err
	}

	src, dest, base, err := files.resolve(getCtx(thread))
	if err != nil {
		return nil, eris.Wrap(err, fn.Name())
	}

	return wrapStep(&steps.Copy{Src: src, Dest: dest, Base: base, SinceLastRun: files.sinceLastRun})
}

func stepStyles(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var src, dest, sourcemaps, minify starlark.Value
	var rename string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "src", &src, "dest", &dest, "rename?", &rename,
		"sourcemaps?", &sourcemaps, "minify?", &minify)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	srcPath, err := pathArg(src, "src")
	if err != nil {
		return nil, err
	}

	destPath, err := pathArg(dest, "dest")
	if err != nil {
		return nil, err
	}

	step := &steps.Styles{
		Src:     normalizePath(ctx, srcPath),
		Dest:    normalizePath(ctx, destPath),
		Rename:  rename,
		Targets: ctx.cfg.Styles.Targets,
		Options: stylesOptions(ctx.cfg),
	}

	if step.Sourcemaps, err = optionalBool(sourcemaps, "sourcemaps"); err != nil {
		return nil, err
	}
	if step.Minify, err = optionalBool(minify, "minify"); err != nil {
		return nil, err
	}

	return wrapStep(step)
}

func stepHTML(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var files fileArgs
	var minify starlark.Value

	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, append(files.pairs(), "minify?", &minify)...); err != nil {
		return nil, err
	}

	src, dest, base, err := files.resolve(getCtx(thread))
	if err != nil {
		return nil, eris.Wrap(err, fn.Name())
	}

	step := &steps.HTML{Src: src, Dest: dest, Base: base, SinceLastRun: files.sinceLastRun}
	if step.Minify, err = optionalBool(minify, "minify"); err != nil {
		return nil, err
	}

	return wrapStep(step)
}

func stepImages(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var files fileArgs
	maxWidth := -1
	quality := -1

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, append(files.pairs(), "max_width?", &maxWidth, "quality?", &quality)...)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	src, dest, base, err := files.resolve(ctx)
	if err != nil {
		return nil, eris.Wrap(err, fn.Name())
	}

	// unset arguments fall back to the config
	if maxWidth < 0 {
		maxWidth = ctx.cfg.Images.MaxWidth
	}
	if quality < 0 {
		quality = ctx.cfg.Images.Quality
	}
	if quality < 1 || quality > 100 {
		return nil, eris.Errorf("%s: quality must be between 1 and 100, got %d", fn.Name(), quality)
	}

	return wrapStep(&steps.Images{
		Src:          src,
		Dest:         dest,
		Base:         base,
		SinceLastRun: files.sinceLastRun,
		MaxWidth:     maxWidth,
		Quality:      quality,
		Workers:      ctx.cfg.Images.Workers,
	})
}

func stepScripts(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var entry, dest, sourcemaps, minify starlark.Value
	bundle := true

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "entry", &entry, "dest", &dest, "sourcemaps?", &sourcemaps,
		"minify?", &minify, "bundle?", &bundle)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	entries, err := pathList(ctx, entry, "entry")
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, eris.Errorf("%s: entry must not be empty", fn.Name())
	}

	destPath, err := pathArg(dest, "dest")
	if err != nil {
		return nil, err
	}

	step := &steps.Scripts{
		Entry:   entries,
		Dest:    normalizePath(ctx, destPath),
		Bundle:  bundle,
		Targets: ctx.cfg.Styles.Targets,
	}

	if step.Sourcemaps, err = optionalBool(sourcemaps, "sourcemaps"); err != nil {
		return nil, err
	}
	if step.Minify, err = optionalBool(minify, "minify"); err != nil {
		return nil, err
	}

	return wrapStep(step)
}

func stepData(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var files fileArgs
	var minify starlark.Value
	var toJSON bool

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, append(files.pairs(), "minify?", &minify, "to_json?", &toJSON)...)
	if err != nil {
		return nil, err
	}

	src, dest, base, err := files.resolve(getCtx(thread))
	if err != nil {
		return nil, eris.Wrap(err, fn.Name())
	}

	step := &steps.Data{Src: src, Dest: dest, Base: base, SinceLastRun: files.sinceLastRun, ToJSON: toJSON}
	if step.Minify, err = optionalBool(minify, "minify"); err != nil {
		return nil, err
	}

	return wrapStep(step)
}

func stepCompress(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var src, formats starlark.Value

	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "src", &src, "formats?", &formats); err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	patterns, err := pathList(ctx, src, "src")
	if err != nil {
		return nil, err
	}

	formatList, err := stringList(formats, "formats")
	if err != nil {
		return nil, err
	}
	if len(formatList) == 0 {
		formatList = []string{"br", "gz"}
	}

	for _, format := range formatList {
		if format != "br" && format != "gz" {
			return nil, eris.Errorf("%s: unsupported format %q (supported: br, gz)", fn.Name(), format)
		}
	}

	return wrapStep(&steps.Compress{Src: patterns, Formats: formatList})
}

func stepWatch(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var patterns, exclude starlark.Value
	var taskName string

	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "patterns", &patterns, "task", &taskName, "exclude?", &exclude); err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	include, err := pathList(ctx, patterns, "patterns")
	if err != nil {
		return nil, err
	}
	if len(include) == 0 {
		return nil, eris.Errorf("%s: patterns must not be empty", fn.Name())
	}

	excluded, err := pathList(ctx, exclude, "exclude")
	if err != nil {
		return nil, err
	}

	return wrapStep(&steps.Watch{Patterns: include, Exclude: excluded, Task: taskName, Lull: ctx.cfg.Watch.Lull})
}
