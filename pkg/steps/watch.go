package steps

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/cortesi/moddwatch"
	"github.com/rotisserie/eris"

	"github.com/yehorDorosh/mne-travel/pkg/buildlog"
)

// DefaultLull is the quiet period after the last change before a task is triggered
const DefaultLull = 300 * time.Millisecond

// Watch re-runs Task whenever a file matching Patterns changes. It blocks until the context is
// cancelled. Failing runs are logged and don't stop the watcher.
type Watch struct {
	Patterns []string
	Exclude  []string
	Task     string
	Lull     time.Duration
}

func (s *Watch) Name() string {
	return "watch " + strings.Join(s.Patterns, " ") + " -> " + s.Task
}

// relativePatterns converts absolute patterns to slash separated patterns relative to root
func relativePatterns(root string, patterns []string) ([]string, error) {
	result := make([]string, len(patterns))
	for idx, pattern := range patterns {
		if !filepath.IsAbs(pattern) {
			result[idx] = filepath.ToSlash(pattern)
			continue
		}

		rel, err := filepath.Rel(root, pattern)
		if err != nil || strings.HasPrefix(rel, "..") {
			return nil, eris.Errorf("watch pattern %s is outside of the project root", pattern)
		}
		result[idx] = filepath.ToSlash(rel)
	}
	return result, nil
}

func (s *Watch) Run(ctx context.Context, env *Env) error {
	if env.RunTask == nil {
		return eris.New("watch needs a task runner")
	}

	includes, err := relativePatterns(env.Root, s.Patterns)
	if err != nil {
		return err
	}

	excludes, err := relativePatterns(env.Root, s.Exclude)
	if err != nil {
		return err
	}

	lull := s.Lull
	if lull <= 0 {
		lull = DefaultLull
	}

	changes := make(chan *moddwatch.Mod, 1)
	watcher, err := moddwatch.Watch(env.Root, includes, excludes, lull, changes)
	if err != nil {
		return eris.Wrapf(err, "failed to watch %s", strings.Join(includes, ", "))
	}
	defer watcher.Stop()

	buildlog.Log(ctx).Info().Msgf("Watching %s", strings.Join(includes, ", "))
	for {
		select {
		case <-ctx.Done():
			return nil
		case mod, ok := <-changes:
			if !ok {
				return nil
			}
			if mod == nil || mod.Empty() {
				continue
			}

			buildlog.Log(ctx).Info().Msgf("Changed: %s", strings.Join(mod.All(), ", "))
			if err := env.RunTask(ctx, s.Task); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				buildlog.Log(ctx).Error().Err(err).Msgf("Task %s failed", s.Task)
			}
		}
	}
}
