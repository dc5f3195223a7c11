package steps

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/yehorDorosh/mne-travel/pkg/buildlog"
	"github.com/yehorDorosh/mne-travel/pkg/fileset"
)

// HTML copies pages into Dest and minifies them in production
type HTML struct {
	Src          []string
	Dest         string
	Base         string
	SinceLastRun bool
	Minify       *bool
}

func (s *HTML) Name() string {
	return "html " + strings.Join(s.Src, " ") + " -> " + s.Dest
}

func (s *HTML) Run(ctx context.Context, env *Env) error {
	files, err := fileset.Files(s.Src, since(env, s.SinceLastRun))
	if err != nil {
		return err
	}

	minify := flag(s.Minify, !env.Development)
	base := baseDir(s.Base, s.Src)
	for _, file := range files {
		dest, err := fileset.Dest(file, base, s.Dest)
		if err != nil {
			return err
		}

		if !minify {
			if err := copyFile(file, dest); err != nil {
				return err
			}
			continue
		}

		content, err := os.ReadFile(file)
		if err != nil {
			return eris.Wrapf(err, "failed to read %s", file)
		}

		minified, err := getMinifier().Bytes(mediaHTML, content)
		if err != nil {
			return eris.Wrapf(err, "failed to minify %s", file)
		}

		buildlog.Log(ctx).Debug().Str("path", file).Msgf("%s: %d -> %d bytes", relPath(env, file), len(content), len(minified))
		if err := writeFile(dest, minified, 0o644); err != nil {
			return err
		}
	}

	buildlog.Log(ctx).Info().Bool("minify", minify).Msgf("Wrote %d page(s) to %s", len(files), relPath(env, s.Dest))
	return nil
}
