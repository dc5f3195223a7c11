package buildsys

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
)

// normalizePath joins the given paths relative to the script's directory and returns the result.
// A leading "//" refers to the project root and a leading "!" (pattern exclusion) is kept.
func normalizePath(ctx *parserCtx, pathList ...string) string {
	result := filepath.Dir(ctx.filepath)
	negate := false

	for _, path := range pathList {
		if strings.HasPrefix(path, "!") {
			negate = true
			path = path[1:]
		}

		if strings.HasPrefix(path, "//") {
			result = filepath.Join(ctx.projectRoot, path[2:])
		} else if strings.HasPrefix(path, "/") {
			result = filepath.Join(filepath.VolumeName(result), path)
		} else if !filepath.IsAbs(path) {
			result = filepath.Join(result, path)
		} else {
			result = path
		}
	}

	result = filepath.Clean(result)
	if negate {
		return "!" + result
	}
	return result
}

// simplifyPath turns paths inside the project into "//" paths for messages
func simplifyPath(ctx *parserCtx, path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	rel, err := filepath.Rel(ctx.projectRoot, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return "//" + filepath.ToSlash(rel)
}

// getEnvVars returns the process environment with the script's setenv() overrides applied
func getEnvVars(overrides map[string]string) []string {
	osEnv := os.Environ()
	shellEnv := make([]string, 0, len(osEnv)+len(overrides))
	for _, item := range osEnv {
		parts := strings.SplitN(item, "=", 2)
		if runtime.GOOS == "windows" {
			parts[0] = strings.ToUpper(parts[0])
		}

		if _, present := overrides[parts[0]]; !present {
			shellEnv = append(shellEnv, item)
		}
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		shellEnv = append(shellEnv, fmt.Sprintf("%s=%s", k, overrides[k]))
	}

	return shellEnv
}

// pathArg accepts a string or a path value
func pathArg(value starlark.Value, field string) (string, error) {
	switch value := value.(type) {
	case starlark.String:
		return value.GoString(), nil
	case StarlarkPath:
		return string(value), nil
	}
	return "", eris.Errorf("%s: got %s, want string or path", field, value.Type())
}

// pathList accepts a single path or a list/tuple of them and normalizes every entry. None
// results in an empty list.
func pathList(ctx *parserCtx, value starlark.Value, field string) ([]string, error) {
	if value == nil || value == starlark.None {
		return []string{}, nil
	}

	var items []starlark.Value
	switch value := value.(type) {
	case starlark.String, StarlarkPath:
		items = []starlark.Value{value}
	case starlark.Indexable:
		items = make([]starlark.Value, value.Len())
		for idx := range items {
			items[idx] = value.Index(idx)
		}
	default:
		return nil, eris.Errorf("%s: got %s, want a path or a list of paths", field, value.Type())
	}

	result := make([]string, len(items))
	for idx, item := range items {
		path, err := pathArg(item, field)
		if err != nil {
			return nil, err
		}
		result[idx] = normalizePath(ctx, path)
	}
	return result, nil
}

// stringList converts a list or tuple of strings
func stringList(value starlark.Value, field string) ([]string, error) {
	if value == nil || value == starlark.None {
		return []string{}, nil
	}

	iterable, ok := value.(starlark.Iterable)
	if !ok {
		return nil, eris.Errorf("%s: got %s, want a list of strings", field, value.Type())
	}

	result := make([]string, 0)
	iter := iterable.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		str, ok := item.(starlark.String)
		if !ok {
			return nil, eris.Errorf("expected all items in %s to be strings but found %s", field, item.Type())
		}
		result = append(result, str.GoString())
	}
	return result, nil
}

// optionalBool maps None to nil so that the step falls back to the build mode
func optionalBool(value starlark.Value, field string) (*bool, error) {
	if value == nil || value == starlark.None {
		return nil, nil
	}

	b, ok := value.(starlark.Bool)
	if !ok {
		return nil, eris.Errorf("%s: got %s, want bool or None", field, value.Type())
	}

	result := bool(b)
	return &result, nil
}

func interfaceToStarlark(value interface{}) (starlark.Value, error) {
	switch value := value.(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(value), nil
	case int:
		return starlark.MakeInt(value), nil
	case int64:
		return starlark.MakeInt64(value), nil
	case bool:
		return starlark.Bool(value), nil
	case float64:
		return starlark.Float(value), nil
	case []string:
		items := make(starlark.Tuple, len(value))
		for idx, raw := range value {
			items[idx] = starlark.String(raw)
		}
		return items, nil
	}

	refValue := reflect.ValueOf(value)
	switch refValue.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]starlark.Value, refValue.Len())
		for idx := range items {
			item, err := interfaceToStarlark(refValue.Index(idx).Interface())
			if err != nil {
				return nil, err
			}
			items[idx] = item
		}
		return starlark.NewList(items), nil
	case reflect.Map:
		dict := starlark.NewDict(refValue.Len())
		iter := refValue.MapRange()
		for iter.Next() {
			key, err := interfaceToStarlark(iter.Key().Interface())
			if err != nil {
				return nil, err
			}

			item, err := interfaceToStarlark(iter.Value().Interface())
			if err != nil {
				return nil, err
			}

			if err := dict.SetKey(key, item); err != nil {
				return nil, err
			}
		}
		return dict, nil
	}

	return nil, eris.Errorf("encountered unsupported type %T", value)
}
