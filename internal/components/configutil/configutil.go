package configutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

func readJson5[T any](path string) (T, bool, error) {
	var out T
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	if len(contents) == 0 {
		return out, false, nil
	}
	err = json5.Unmarshal(contents, &out)
	if err != nil {
		return out, false, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, true, nil
}

// ReadConfig reads a configuration file, `name` should come with a file extension.
// The following files are merged on top of `defaults`, where higher number is more prioritized.
// 1. <name>.<ext>
// 2. <name>.local.<ext>
//
// Missing files are not an error, the defaults are returned as is.
func ReadConfig[T any](name string, defaults T) (T, error) {
	out := defaults

	dirname := filepath.Dir(name)
	prefixname, ext := splitExt(filepath.Base(name))
	localFilepath := filepath.Join(
		dirname,
		fmt.Sprintf("%s.local.%s", prefixname, ext),
	)

	for _, path := range []string{name, localFilepath} {
		override, found, err := readJson5[T](path)
		if err != nil {
			return out, err
		}
		if !found {
			continue
		}
		err = mergo.Merge(&out, override, mergo.WithOverride)
		if err != nil {
			return out, err
		}
		slog.Debug("merged config file", "path", path)
	}

	return out, nil
}
