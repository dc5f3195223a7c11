package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/yehorDorosh/mne-travel/pkg/buildlog"
	"github.com/yehorDorosh/mne-travel/pkg/fileset"
)

// Data moves data files into Dest. JSON files are minified in production and YAML files can be
// converted to JSON.
type Data struct {
	Src          []string
	Dest         string
	Base         string
	SinceLastRun bool
	Minify       *bool
	ToJSON       bool
}

func (s *Data) Name() string {
	return "move-data " + strings.Join(s.Src, " ") + " -> " + s.Dest
}

func (s *Data) Run(ctx context.Context, env *Env) error {
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

		ext := strings.ToLower(filepath.Ext(file))
		switch {
		case ext == ".json" && minify:
			content, err := os.ReadFile(file)
			if err != nil {
				return eris.Wrapf(err, "failed to read %s", file)
			}

			minified, err := getMinifier().Bytes(mediaJSON, content)
			if err != nil {
				return eris.Wrapf(err, "failed to minify %s", file)
			}

			err = writeFile(dest, minified, 0o644)
			if err != nil {
				return err
			}
		case (ext == ".yml" || ext == ".yaml") && s.ToJSON:
			encoded, err := yamlToJSON(file, !minify)
			if err != nil {
				return err
			}

			dest = strings.TrimSuffix(dest, filepath.Ext(dest)) + ".json"
			err = writeFile(dest, encoded, 0o644)
			if err != nil {
				return err
			}
		default:
			if err := copyFile(file, dest); err != nil {
				return err
			}
		}

		buildlog.Log(ctx).Debug().Str("path", file).Msgf("%s -> %s", relPath(env, file), relPath(env, dest))
	}

	buildlog.Log(ctx).Info().Msgf("Moved %d data file(s) to %s", len(files), relPath(env, s.Dest))
	return nil
}

func yamlToJSON(file string, indent bool) ([]byte, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", file)
	}

	var doc interface{}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", file)
	}

	doc, err = jsonCompatible(doc)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to convert %s", file)
	}

	var encoded []byte
	if indent {
		encoded, err = json.MarshalIndent(doc, "", "  ")
	} else {
		encoded, err = json.Marshal(doc)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to encode %s", file)
	}
	return encoded, nil
}

// jsonCompatible converts YAML maps with non-string keys, which encoding/json can't handle,
// into maps keyed by the keys' string form
func jsonCompatible(value interface{}) (interface{}, error) {
	switch value := value.(type) {
	case map[string]interface{}:
		for k, v := range value {
			converted, err := jsonCompatible(v)
			if err != nil {
				return nil, err
			}
			value[k] = converted
		}
		return value, nil
	case map[interface{}]interface{}:
		result := make(map[string]interface{}, len(value))
		for k, v := range value {
			// JSON object keys are strings; 1: foo becomes "1": "foo"
			key := fmt.Sprint(k)

			converted, err := jsonCompatible(v)
			if err != nil {
				return nil, err
			}
			result[key] = converted
		}
		return result, nil
	case []interface{}:
		for idx, v := range value {
			converted, err := jsonCompatible(v)
			if err != nil {
				return nil, err
			}
			value[idx] = converted
		}
		return value, nil
	}

	return value, nil
}
