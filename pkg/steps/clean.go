package steps

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/yehorDorosh/mne-travel/pkg/buildlog"
	"github.com/yehorDorosh/mne-travel/pkg/fileset"
)

// Clean removes files and directories. Missing paths are ignored.
type Clean struct {
	Paths []string
}

func (s *Clean) Name() string {
	return "clean " + strings.Join(s.Paths, " ")
}

func (s *Clean) Run(ctx context.Context, env *Env) error {
	matches, err := fileset.Resolve(s.Paths)
	if err != nil {
		return err
	}

	for _, item := range matches {
		item = filepath.Clean(item)

		rel, err := filepath.Rel(env.Root, item)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			return eris.Errorf("refusing to delete %s because it is not inside the project root %s", item, env.Root)
		}

		buildlog.Log(ctx).Info().Str("path", item).Msgf("Removing %s", filepath.ToSlash(rel))
		err = os.RemoveAll(item)
		if err != nil && !eris.Is(err, os.ErrNotExist) {
			return eris.Wrapf(err, "Could not delete %s", item)
		}
	}

	return nil
}
