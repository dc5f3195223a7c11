package steps

import (
	"context"
	"strings"

	"github.com/yehorDorosh/mne-travel/pkg/buildlog"
	"github.com/yehorDorosh/mne-travel/pkg/fileset"
)

// Copy copies the matched files into Dest, keeping their path relative to Base.
type Copy struct {
	Src  []string
	Dest string
	// Base defaults to the static prefix of the first pattern
	Base         string
	SinceLastRun bool
}

func (s *Copy) Name() string {
	return "copy " + strings.Join(s.Src, " ") + " -> " + s.Dest
}

func (s *Copy) Run(ctx context.Context, env *Env) error {
	files, err := fileset.Files(s.Src, since(env, s.SinceLastRun))
	if err != nil {
		return err
	}

	base := baseDir(s.Base, s.Src)
	for _, file := range files {
		dest, err := fileset.Dest(file, base, s.Dest)
		if err != nil {
			return err
		}

		buildlog.Log(ctx).Debug().Str("path", file).Msgf("%s -> %s", relPath(env, file), relPath(env, dest))
		if err := copyFile(file, dest); err != nil {
			return err
		}
	}

	buildlog.Log(ctx).Info().Msgf("Copied %d files to %s", len(files), relPath(env, s.Dest))
	return nil
}

func baseDir(base string, patterns []string) string {
	if base != "" {
		return base
	}

	for _, pattern := range patterns {
		if !strings.HasPrefix(pattern, "!") {
			return fileset.Base(pattern)
		}
	}
	return "."
}
