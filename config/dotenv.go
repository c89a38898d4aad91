// ABOUTME: Reads KEY=VALUE pairs from .env files into a map for config parsing.
// ABOUTME: The process environment is never modified; closer files win over farther ones.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ReadDotEnv parses one .env file. A missing file yields an empty map.
// Lines may be KEY=VALUE, KEY="VALUE", KEY='VALUE' or export KEY=VALUE;
// blank lines and # comments are skipped.
func ReadDotEnv(path string) (map[string]string, error) {
	vars := map[string]string{}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return vars, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		// Values may themselves contain '='.
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		vars[key] = unquote(strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return vars, nil
}

func unquote(v string) string {
	if len(v) >= 2 {
		first, last := v[0], v[len(v)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// ReadDotEnvChain merges several .env files. Earlier paths take priority;
// unreadable files are skipped.
func ReadDotEnvChain(paths ...string) map[string]string {
	merged := map[string]string{}
	for _, p := range paths {
		vars, err := ReadDotEnv(p)
		if err != nil {
			continue
		}
		for k, v := range vars {
			if _, set := merged[k]; !set {
				merged[k] = v
			}
		}
	}
	return merged
}

// DotEnvPaths lists candidate .env files: the working directory and each of
// its parents, then the directory of the running executable.
func DotEnvPaths() []string {
	seen := map[string]bool{}
	var paths []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	if wd, err := os.Getwd(); err == nil {
		for dir := wd; ; {
			add(filepath.Join(dir, ".env"))
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	if exe, err := os.Executable(); err == nil {
		add(filepath.Join(filepath.Dir(exe), ".env"))
	}
	return paths
}
