// Package fileset resolves shell-style glob patterns (brace expansion, ** globstar) into file lists.
package fileset

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

const globChars = "*?[{"

func shellReadDir(path string) ([]os.FileInfo, error) {
	if path == "" {
		path = "."
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// the entry vanished between listing and stat
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// IsGlob reports whether the pattern contains glob or brace characters
func IsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, globChars)
}

// Base returns the static directory prefix of a pattern, i.e. everything before the first
// path segment containing a glob character. For a plain file path it is the parent directory.
func Base(pattern string) string {
	pattern = filepath.Clean(pattern)
	if !IsGlob(pattern) {
		return filepath.Dir(pattern)
	}

	segments := strings.Split(filepath.ToSlash(pattern), "/")
	static := make([]string, 0, len(segments))
	for _, seg := range segments {
		if IsGlob(seg) {
			break
		}
		static = append(static, seg)
	}

	if len(static) == 0 {
		return "."
	}
	if len(static) == 1 && static[0] == "" {
		return string(filepath.Separator)
	}
	return filepath.FromSlash(strings.Join(static, "/"))
}

// shellSpecial are characters that must not reach the shell parser unescaped. Glob and brace
// characters are kept so that they still expand.
const shellSpecial = " \t\n'\"$`\\;&|<>()#~="

// shellWord turns a pattern into shell source: the static prefix is quoted and the special
// characters of the glob part are escaped, so only globs and braces are interpreted.
func shellWord(pattern string) (string, error) {
	segments := strings.Split(pattern, "/")
	split := len(segments)
	for idx, seg := range segments {
		if IsGlob(seg) {
			split = idx
			break
		}
	}

	var word strings.Builder
	if split > 0 {
		static := strings.Join(segments[:split], "/")
		if split < len(segments) {
			static += "/"
		}

		quoted, err := syntax.Quote(static, syntax.LangBash)
		if err != nil {
			return "", err
		}
		word.WriteString(quoted)
	}

	for _, r := range strings.Join(segments[split:], "/") {
		if strings.ContainsRune(shellSpecial, r) {
			word.WriteRune('\\')
		}
		word.WriteRune(r)
	}
	return word.String(), nil
}

func expandPattern(parser *syntax.Parser, cfg *expand.Config, item string) ([]string, error) {
	item = filepath.ToSlash(item)
	if !IsGlob(item) {
		return []string{filepath.FromSlash(item)}, nil
	}

	source, err := shellWord(item)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to quote pattern %s", item)
	}

	words := make([]*syntax.Word, 0)
	err = parser.Words(strings.NewReader(source), func(w *syntax.Word) bool {
		words = append(words, w)
		return true
	})
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to parse pattern %s", item)
	}

	matches, err := expand.Fields(cfg, words...)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to resolve pattern %s", item)
	}

	result := make([]string, 0, len(matches))
	for _, match := range matches {
		// If a pattern didn't match anything, it's returned as a result. Skip those results.
		if !strings.ContainsAny(match, "*?[") {
			result = append(result, filepath.FromSlash(match))
		}
	}
	return result, nil
}

// Resolve expands the given absolute patterns. Patterns starting with "!" remove their matches
// from the result. Plain paths are returned even if they don't exist so that callers fail on them.
// The result is sorted and free of duplicates.
func Resolve(patterns []string) ([]string, error) {
	cfg := &expand.Config{
		ReadDir:  shellReadDir,
		GlobStar: true,
	}
	parser := syntax.NewParser()

	seen := make(map[string]bool)
	excluded := make(map[string]bool)
	for _, item := range patterns {
		negate := strings.HasPrefix(item, "!")
		if negate {
			item = item[1:]
		}

		matches, err := expandPattern(parser, cfg, item)
		if err != nil {
			return nil, err
		}

		for _, match := range matches {
			match = filepath.Clean(match)
			if negate {
				excluded[match] = true
			} else {
				seen[match] = true
			}
		}
	}

	result := make([]string, 0, len(seen))
	for match := range seen {
		if !excluded[match] {
			result = append(result, match)
		}
	}
	sort.Strings(result)
	return result, nil
}

// Files works like Resolve but drops directories and, if since is not zero, files that
// haven't been modified after since.
func Files(patterns []string, since time.Time) ([]string, error) {
	matches, err := Resolve(patterns)
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(matches))
	for _, item := range matches {
		info, err := os.Stat(item)
		if err != nil {
			return nil, eris.Wrapf(err, "File not found: %s", item)
		}

		if info.IsDir() {
			continue
		}

		if !since.IsZero() && !info.ModTime().After(since) {
			continue
		}

		result = append(result, item)
	}
	return result, nil
}

// Dest maps a source file below base to the same relative location below dest.
func Dest(file, base, dest string) (string, error) {
	rel, err := filepath.Rel(base, file)
	if err != nil {
		return "", eris.Wrapf(err, "failed to make %s relative to %s", file, base)
	}

	if strings.HasPrefix(rel, "..") {
		return "", eris.Errorf("%s is outside of the base directory %s", file, base)
	}

	return filepath.Join(dest, rel), nil
}
