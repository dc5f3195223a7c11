// Package posix implements mv, rm and mkdir for shell commands in pipeline scripts so that they
// behave the same on every platform.
package posix

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/pflag"
)

// Handles reports whether name is one of the commands implemented here
func Handles(name string) bool {
	switch name {
	case "mv", "rm", "mkdir":
		return true
	}
	return false
}

// Move moves items to dest. If dest is an existing directory, the items are moved into it,
// otherwise the single item is renamed to dest.
func Move(items []string, dest string) error {
	if len(items) == 0 {
		return eris.New("Not enough parameters")
	}

	dest = filepath.Clean(dest)
	destParent := filepath.Dir(dest)
	info, err := os.Stat(destParent)
	if err != nil {
		return eris.Wrapf(err, "Could not find destination directory %s", destParent)
	}

	if !info.IsDir() {
		return eris.Errorf("%s is not a directory!", destParent)
	}

	info, err = os.Stat(dest)
	if err != nil && !eris.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "Failed to retrieve info about destination %s", dest)
	}
	destIsDir := err == nil && info.IsDir()

	if len(items) > 1 && !destIsDir {
		return eris.Errorf("Can't move multiple items to %s because it is not a directory!", dest)
	}

	for _, item := range items {
		itemDest := dest
		if destIsDir {
			itemDest = filepath.Join(dest, filepath.Base(item))
		}

		if err := os.Rename(item, itemDest); err != nil {
			return eris.Wrapf(err, "Failed to move %s to %s", item, itemDest)
		}
	}

	return nil
}

// Remove deletes items. Directories require recursive, missing items are only accepted with force.
func Remove(items []string, recursive, force bool) error {
	existing := make([]string, 0, len(items))
	for _, item := range items {
		info, err := os.Stat(item)
		if err != nil {
			if force && eris.Is(err, os.ErrNotExist) {
				continue
			}
			return eris.Wrapf(err, "Could not stat %s", item)
		}

		if info.IsDir() && !recursive {
			return eris.Errorf("%s is a directory but -r wasn't passed", item)
		}
		existing = append(existing, item)
	}

	for _, item := range existing {
		if err := os.RemoveAll(item); err != nil {
			return eris.Wrapf(err, "Could not delete %s", item)
		}
	}

	return nil
}

// Mkdir creates the given directories
func Mkdir(items []string, parents bool) error {
	for _, item := range items {
		var err error
		if parents {
			err = os.MkdirAll(item, 0o770)
		} else {
			err = os.Mkdir(item, 0o770)
		}

		if err != nil {
			return eris.Wrapf(err, "Failed to create %s", item)
		}
	}

	return nil
}

// Flags registers the flags of the named command
func Flags(name string, flags *pflag.FlagSet) {
	switch name {
	case "rm":
		flags.BoolP("recursive", "r", false, "recursively delete directories")
		flags.BoolP("force", "f", false, "suppresses errors caused by missing files/folders")
	case "mkdir":
		flags.BoolP("parents", "p", false, "create parent directories as needed")
	}
}

// Exec runs the named command with the already parsed flags. Relative paths resolve against dir.
func Exec(name, dir string, flags *pflag.FlagSet, args []string) error {
	paths := make([]string, len(args))
	for idx, arg := range args {
		if filepath.IsAbs(arg) || dir == "" {
			paths[idx] = arg
		} else {
			paths[idx] = filepath.Join(dir, arg)
		}
	}

	switch name {
	case "mv":
		if len(paths) < 2 {
			return eris.New("Not enough parameters")
		}
		return Move(paths[:len(paths)-1], paths[len(paths)-1])
	case "rm":
		recursive, err := flags.GetBool("recursive")
		if err != nil {
			return err
		}

		force, err := flags.GetBool("force")
		if err != nil {
			return err
		}
		return Remove(paths, recursive, force)
	case "mkdir":
		parents, err := flags.GetBool("parents")
		if err != nil {
			return err
		}
		return Mkdir(paths, parents)
	}

	return eris.Errorf("unknown command %s", name)
}

// Run parses a full command line like ["rm", "-rf", "dest"] and executes it
func Run(dir string, args []string) error {
	if len(args) == 0 || !Handles(args[0]) {
		return eris.Errorf("unsupported command %v", args)
	}

	flags := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	Flags(args[0], flags)

	if err := flags.Parse(args[1:]); err != nil {
		return eris.Wrapf(err, "%s", args[0])
	}

	return Exec(args[0], dir, flags, flags.Args())
}
