package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rotisserie/eris"

	"github.com/yehorDorosh/mne-travel/pkg/buildlog"
)

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"safari":  api.EngineSafari,
	"ios":     api.EngineIOS,
	"opera":   api.EngineOpera,
	"node":    api.EngineNode,
}

// ParseTargets converts browser targets like "chrome109" or "safari15.6" into esbuild engines
func ParseTargets(targets []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(targets))

	for _, target := range targets {
		target = strings.ToLower(strings.TrimSpace(target))
		split := strings.IndexAny(target, "0123456789")
		if split < 1 {
			return nil, eris.Errorf("invalid browser target %q, expected a name followed by a version", target)
		}

		name, ok := engineNames[target[:split]]
		if !ok {
			return nil, eris.Errorf("unknown browser %q in target %q", target[:split], target)
		}

		version := target[split:]
		if strings.Trim(version, "0123456789.") != "" {
			return nil, eris.Errorf("invalid version in browser target %q", target)
		}

		engines = append(engines, api.Engine{Name: name, Version: version})
	}

	return engines, nil
}

func formatMessage(msg api.Message) string {
	if msg.Location == nil {
		return msg.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text)
}

// esbuildResult turns esbuild diagnostics into log entries and a single error
func esbuildResult(ctx context.Context, errors, warnings []api.Message) error {
	for _, msg := range warnings {
		buildlog.Log(ctx).Warn().Msg(formatMessage(msg))
	}

	if len(errors) == 0 {
		return nil
	}

	lines := make([]string, len(errors))
	for idx, msg := range errors {
		lines[idx] = formatMessage(msg)
	}
	return eris.Errorf("esbuild reported %d error(s):\n%s", len(errors), strings.Join(lines, "\n"))
}
