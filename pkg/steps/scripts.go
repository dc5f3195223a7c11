package steps

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/yehorDorosh/mne-travel/pkg/buildlog"
)

// Scripts bundles and transpiles script entry points with esbuild
type Scripts struct {
	Entry []string
	Dest  string
	// Sourcemaps and Minify follow the build mode when nil
	Sourcemaps *bool
	Minify     *bool
	Bundle     bool
	Targets    []string
}

func (s *Scripts) Name() string {
	return "scripts " + strings.Join(s.Entry, " ") + " -> " + s.Dest
}

func (s *Scripts) Run(ctx context.Context, env *Env) error {
	engines, err := ParseTargets(s.Targets)
	if err != nil {
		return err
	}

	sourcemaps := flag(s.Sourcemaps, env.Development)
	minify := flag(s.Minify, !env.Development)

	opts := api.BuildOptions{
		EntryPoints:       s.Entry,
		Bundle:            s.Bundle,
		Outdir:            s.Dest,
		AbsWorkingDir:     env.Root,
		Engines:           engines,
		MinifyWhitespace:  minify,
		MinifySyntax:      minify,
		MinifyIdentifiers: minify,
		LogLevel:          api.LogLevelSilent,
		Write:             false,
	}
	if sourcemaps {
		opts.Sourcemap = api.SourceMapLinked
	}
	if len(s.Entry) > 1 {
		opts.Outbase = commonDir(s.Entry)
	}

	result := api.Build(opts)
	if err := esbuildResult(ctx, result.Errors, result.Warnings); err != nil {
		return err
	}

	for _, out := range result.OutputFiles {
		if err := writeFile(out.Path, out.Contents, 0o644); err != nil {
			return err
		}

		if !sourcemaps && !strings.HasSuffix(out.Path, ".map") {
			if err := removeStale(out.Path + ".map"); err != nil {
				return err
			}
		}

		buildlog.Log(ctx).Info().Str("path", out.Path).Msgf("Wrote %s", relPath(env, out.Path))
	}

	return nil
}

func commonDir(paths []string) string {
	common := filepath.Dir(paths[0])
	for _, path := range paths[1:] {
		dir := filepath.Dir(path)
		for !strings.HasPrefix(dir+string(filepath.Separator), common+string(filepath.Separator)) {
			parent := filepath.Dir(common)
			if parent == common {
				return common
			}
			common = parent
		}
	}
	return common
}
