package steps

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/yehorDorosh/mne-travel/pkg/buildlog"
	"github.com/yehorDorosh/mne-travel/pkg/pcss"
)

// Styles compiles a single stylesheet: imports, BEM shortcuts, nesting and px to rem run first,
// then esbuild lowers the syntax for Targets, adds vendor prefixes and optionally minifies.
type Styles struct {
	Src  string
	Dest string
	// Rename sets the output file name, defaults to the source name with a .css extension
	Rename string
	// Sourcemaps and Minify follow the build mode when nil
	Sourcemaps *bool
	Minify     *bool
	Targets    []string
	Options    pcss.Options
}

func (s *Styles) Name() string {
	return "styles " + s.Src + " -> " + filepath.Join(s.Dest, s.outputName())
}

func (s *Styles) outputName() string {
	if s.Rename != "" {
		return s.Rename
	}

	base := filepath.Base(s.Src)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".css"
}

func (s *Styles) Run(ctx context.Context, env *Env) error {
	engines, err := ParseTargets(s.Targets)
	if err != nil {
		return err
	}

	source, files, err := pcss.Process(s.Src, s.Options)
	if err != nil {
		return err
	}
	buildlog.Log(ctx).Debug().Msgf("Read %d stylesheet(s)", len(files))

	sourcemaps := flag(s.Sourcemaps, env.Development)
	minify := flag(s.Minify, !env.Development)

	opts := api.TransformOptions{
		Loader:           api.LoaderCSS,
		Sourcefile:       relPath(env, s.Src),
		Engines:          engines,
		MinifyWhitespace: minify,
		MinifySyntax:     minify,
		LogLevel:         api.LogLevelSilent,
	}
	if sourcemaps {
		opts.Sourcemap = api.SourceMapExternal
	}

	result := api.Transform(source, opts)
	if err := esbuildResult(ctx, result.Errors, result.Warnings); err != nil {
		return err
	}

	name := s.outputName()
	outPath := filepath.Join(s.Dest, name)
	mapPath := outPath + ".map"
	code := result.Code

	if sourcemaps {
		code = append(code, []byte("/*# sourceMappingURL="+name+".map */\n")...)
		if err := writeFile(mapPath, result.Map, 0o644); err != nil {
			return err
		}
	} else if err := removeStale(mapPath); err != nil {
		return err
	}

	if err := writeFile(outPath, code, 0o644); err != nil {
		return err
	}

	buildlog.Log(ctx).Info().
		Str("path", outPath).
		Bool("sourcemaps", sourcemaps).
		Bool("minify", minify).
		Msgf("Wrote %s", relPath(env, outPath))
	return nil
}
