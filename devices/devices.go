// Package devices publishes the device backing each mount point of a system
// as environment variables for the steps that populate the image.
package devices

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/joho/godotenv"
	"github.com/kairos-io/diskbuild/constants"
	"github.com/kairos-io/diskbuild/state"
	"github.com/kairos-io/diskbuild/types/logger"
)

var ErrNoFilesystem = errors.New("the filesystem of the system is not defined yet")

// Lookup resolves vars, env var name to mount point, against the filesystem
// table of sys. Unknown mount points get a placeholder and a warning.
func Lookup(sys *state.System, vars map[string]string, l *logger.KairosLogger) (map[string]string, error) {
	if sys.Filesystem == nil {
		return nil, fmt.Errorf("system %s: %w", sys.Name, ErrNoFilesystem)
	}
	env := map[string]string{}
	for name, mp := range vars {
		rec, ok := sys.Filesystem[mp]
		if !ok {
			l.Logger.Warn().Str("mountpoint", mp).Str("system", sys.Name).Msg("Mount point does not exist")
			env[name] = constants.DeviceNotFound
			continue
		}
		env[name] = rec.Device
	}
	return env, nil
}

// Export merges env into the dotenv file at path, warning about every variable
// it overwrites.
func Export(path string, env map[string]string, l *logger.KairosLogger) error {
	current := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		current, err = godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if old, ok := current[k]; ok && old != env[k] {
			l.Logger.Warn().Str("var", k).Str("old", old).Str("new", env[k]).Msg("Overwriting environment")
		}
		current[k] = env[k]
	}
	return godotenv.Write(current, path)
}

// Unexport drops the given variables from the dotenv file at path.
func Unexport(path string, names []string) error {
	current, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, n := range names {
		delete(current, n)
	}
	return godotenv.Write(current, path)
}
